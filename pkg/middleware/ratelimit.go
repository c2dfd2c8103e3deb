package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/catalog-indexer/pkg/httputil"
)

// RateLimit caps the admin write endpoints with one shared token bucket.
// Every accepted request there turns into queued sync work, so the limit is
// global rather than per client. A non-positive rps disables it.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		limiter := rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", retryAfter(delay))
				rateLimited.WithLabelValues(r.Method).Inc()
				httputil.WriteFailure(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many admin requests, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter renders d in whole seconds, rounding up.
func retryAfter(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
