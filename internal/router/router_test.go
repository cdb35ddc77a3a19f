package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postreach/postreach/internal/config"
	"github.com/postreach/postreach/internal/handler"
	"github.com/postreach/postreach/internal/logger"
	"github.com/postreach/postreach/internal/middleware"
	"github.com/postreach/postreach/internal/service"
	"github.com/postreach/postreach/internal/storage"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
	}
	log := logger.Nop()

	posts := storage.NewCSVBackend(filepath.Join(t.TempDir(), "posts.csv"))
	storageSvc := service.NewStorageService(nil, posts, nil, log)
	dispatcher := service.NewDispatcher(cfg.Email, nil, storage.NewSentLog(filepath.Join(t.TempDir(), "sent.csv")), nil, log)
	job := service.NewEmailJob(storageSvc, dispatcher, log)

	h := handler.New(storageSvc, dispatcher, job, nil, nil, nil, log, cfg)
	return New(h, middleware.New(nil, log, cfg))
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		method   string
		path     string
		body     string
		wantCode int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodPost, "/posts", `{"batch_number":1,"posts":[{"author":"A","content":"hi"}]}`, http.StatusOK},
		{http.MethodGet, "/email-job-status", "", http.StatusOK},
		{http.MethodPost, "/trigger-emails", "", http.StatusServiceUnavailable},
		{http.MethodPost, "/send-emails", `{"emails":["a@b.io"]}`, http.StatusServiceUnavailable},
		{http.MethodPost, "/email-status", `{"recipient_email":"a@b.io","status":"sent"}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/posts", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_ErrorEnvelopeCarriesRequestID(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"batch_number":0,"posts":[]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_batch", body["error"]["code"])
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}
