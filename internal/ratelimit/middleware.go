package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/redmonkez12/go-shortener-api/internal/httputil"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
)

// Middleware rejects requests beyond the purpose budget with 429.
// Redis failures let the request through.
func (l *Limiter) Middleware(purpose string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httputil.ClientIP(r)

			allowed, err := l.Allow(r.Context(), ip, purpose)
			if err != nil {
				logging.GetLoggerFromContext(r.Context()).Error("rate limiter unavailable", "purpose", purpose, "error", err)
			}
			if !allowed {
				logging.GetLoggerFromContext(r.Context()).Warn("rate limit exceeded", "purpose", purpose, "ip", ip)
				p := l.Policy(purpose)
				w.Header().Set("Retry-After", strconv.Itoa(int(p.Window.Seconds())))
				httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
