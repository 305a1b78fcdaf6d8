package middleware

import (
	"net/http"
	"time"

	"github.com/milanh34/linkUp/internal/limiter"
	"github.com/milanh34/linkUp/internal/logger"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 200
	rateLimitMaxUser = 100
)

// RateLimitAPI limits /api/* requests per IP and per user id (when
// authenticated). 429 on excess. The limiter store is shared across replicas
// when Redis-backed; on store errors the request is let through.
func RateLimitAPI(store limiter.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if x := r.Header.Get("X-Real-Ip"); x != "" {
				ip = x
			} else if x := r.Header.Get("X-Forwarded-For"); x != "" {
				ip = x
			}
			if !allow(r, store, "rl:ip:"+ip, rateLimitMaxIP) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			if userID := GetUserID(r.Context()); userID != "" {
				if !allow(r, store, "rl:u:"+userID, rateLimitMaxUser) {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allow(r *http.Request, store limiter.Store, key string, max int64) bool {
	count, err := store.Incr(r.Context(), key, rateLimitWindow)
	if err != nil {
		logger.Errorf("rate limit %s: %v", key, err)
		return true
	}
	return count <= max
}
