package middleware

import (
	"net/http"
	"time"

	"github.com/milanh34/linkUp/internal/logger"
)

// RequestLog logs each HTTP request: method, path and elapsed time
// (asynchronously, never blocking the response).
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(w, r)
	})
}
