package server

import (
	"net/http"

	"golang.org/x/time/rate"

	apperrors "github.com/copyleftdev/tourney/internal/errors"
)

// NewLimiter creates the request limiter. A non-positive rate disables
// limiting and yields nil.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// RateLimit rejects requests with 429 once limiter runs out of tokens. A nil
// limiter lets everything through.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				apperrors.Respond(w, r, apperrors.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
