package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/postreach/postreach/internal/metrics"
)

// Metrics records request latency per route pattern.
// It must wrap the mux directly so the matched pattern is visible afterwards.
func (m *Middleware) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}
