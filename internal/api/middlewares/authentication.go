package middlewares

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/utils/auth"
)

// Authentication accepts service tokens signed with secret and puts the caller id
// into the request context.
func Authentication(secret []byte, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authFunc := func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := auth.FromHeader(r.Header.Get("Authorization"))
			if err != nil {
				log.LogAttrs(r.Context(),
					slog.LevelWarn,
					"failed to find token in request",
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}

			claims, err := auth.CheckToken(tokenStr, secret)
			if err != nil {
				log.LogAttrs(r.Context(),
					slog.LevelWarn,
					"authentication failed",
					slog.Any(model.KeyLoggerError, err),
				)
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}

			initial := r.Context()
			idCtx := context.WithValue(
				initial, model.KeyContextCallerID, claims.CallerID)

			rWithID := r.WithContext(idCtx)
			next.ServeHTTP(w, rWithID)
		}
		return http.HandlerFunc(authFunc)
	}
}

func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(model.KeyContextCallerID).(string)
	return id
}
