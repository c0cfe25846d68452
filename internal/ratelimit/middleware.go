package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"

	"printmill/internal/auth"
)

// Middleware throttles one action on a chi router. The identifier is the
// authenticated user when present, otherwise the caller's address.
func Middleware(limiter *Limiter, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := auth.UserID(r.Context())
			if identifier == "" {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				identifier = host
			}

			decision, err := limiter.CheckAndIncrement(r.Context(), identifier, action)
			if err != nil {
				// Counting failures must not take the API down.
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(decision.RetryAfter.Seconds()))))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
