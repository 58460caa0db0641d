// Package ratelimit defines the API server's rate-limiting hook. Only
// the hook lives here: a Limiter decision interface and the middleware
// that consults it. No limiter is constructed and no policy is decided
// in this module; callers that want limiting wire their own (a
// golang.org/x/time/rate.Limiter satisfies Limiter directly).
package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Limiter is consulted once per request before dispatch.
type Limiter interface {
	Allow() bool
}

var _ Limiter = (*rate.Limiter)(nil)

// Middleware rejects requests with 429 when l denies them. A nil l
// disables limiting and passes every request through untouched.
func Middleware(l Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limit_exceeded","error_description":"too many requests, try again later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
