package middleware

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/tracing"
)

// Trace opens a root span per request, keyed by the request ID, and logs
// the finished tree. Trees of requests slower than slow are logged at info.
// It must run inside RequestID.
func Trace(slow time.Duration) func(http.Handler) http.Handler {
	log := logger.WithComponent("trace")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+normalizePath(r.URL.Path), logger.RequestID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()
			span.Log(log, slow)
		})
	}
}
