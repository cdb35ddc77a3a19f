package router

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/postreach/postreach/internal/handler"
	"github.com/postreach/postreach/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics endpoints (not rate limited)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Ingest from the browser extension
	postsRateLimit := mw.RateLimit(mw.DefaultRateLimit("posts"))
	mux.Handle("POST /posts", postsRateLimit(http.HandlerFunc(h.ReceivePosts)))

	// Sending is slow and talks to an outside provider
	sendRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "send",
		Limit:  10,
		Window: 1 * time.Minute,
		KeyFn:  middleware.IPKey,
	})
	mux.Handle("POST /send-emails", sendRateLimit(http.HandlerFunc(h.SendEmails)))
	mux.Handle("POST /trigger-emails", sendRateLimit(http.HandlerFunc(h.TriggerEmails)))
	mux.HandleFunc("GET /email-job-status", h.EmailJobStatus)

	// Delivery status tracking
	statusRateLimit := mw.RateLimit(mw.DefaultRateLimit("email_status"))
	mux.Handle("POST /email-status", statusRateLimit(http.HandlerFunc(h.RecordEmailStatus)))
	mux.HandleFunc("GET /email-status/{email}", h.GetEmailStatus)

	// Apply middleware stack
	var handler http.Handler = mux

	// Route metrics (innermost, so the matched pattern is visible)
	handler = mw.Metrics(handler)

	// CORS for the extension and local tools
	handler = mw.CORS(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Timing
	handler = mw.Timing(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
