package middlewares

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/go-redis/redis_rate/v10"

	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

func rateKey(r *http.Request) string {
	if id := CallerID(r.Context()); id != "" {
		return "loyalty:rate:caller:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "loyalty:rate:addr:" + host
}

// RateLimit allows perMinute requests per caller. When the limiter itself fails
// the request is let through.
func RateLimit(limiter Limiter, perMinute int, log *slog.Logger) func(http.Handler) http.Handler {
	limit := redis_rate.PerMinute(perMinute)
	return func(next http.Handler) http.Handler {
		limitFunc := func(w http.ResponseWriter, r *http.Request) {
			key := rateKey(r)
			res, err := limiter.Allow(r.Context(), key, limit)
			if err != nil {
				log.LogAttrs(r.Context(),
					slog.LevelError,
					"rate limiter unavailable",
					slog.Any(model.KeyLoggerError, err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if res.Allowed == 0 {
				limited := &serviceerrs.TooManyRequestsError{RetryAfter: res.RetryAfter, Limit: perMinute}
				log.LogAttrs(r.Context(),
					slog.LevelInfo,
					"request rate limited",
					slog.String("key", key),
					slog.Any(model.KeyLoggerError, limited),
				)
				retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				http.Error(w, limited.Error(), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(limitFunc)
	}
}
