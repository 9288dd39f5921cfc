package middlewares

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis_rate/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/utils/auth"
)

var secret = []byte("super-secret-key")

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CallerID(r.Context())))
	})
}

func TestAuthentication(t *testing.T) {
	valid, err := auth.BuildToken("backoffice", secret, time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := auth.BuildToken("backoffice", secret, time.Hour, time.Now().Add(-3*time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantCaller string
		wantCode   int
	}{
		{"valid", "Bearer " + valid, "backoffice", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"cookie style", "jwt-token=" + valid, "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"tampered", "Bearer " + valid + "x", "", http.StatusUnauthorized},
	}

	h := Authentication(secret, slog.New(slog.DiscardHandler))(echoCaller())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts/a", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantCaller, rr.Body.String())
			}
		})
	}
}

type countingLimiter struct {
	err    error
	counts map[string]int
	mu     sync.Mutex
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit,
) (*redis_rate.Result, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	if l.counts[key] > limit.Rate {
		return &redis_rate.Result{Limit: limit, RetryAfter: 1500 * time.Millisecond}, nil
	}
	return &redis_rate.Result{Limit: limit, Allowed: 1, Remaining: limit.Rate - l.counts[key]}, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{counts: make(map[string]int)}
	h := RateLimit(limiter, 2, slog.New(slog.DiscardHandler))(echoCaller())

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000").Code)
	rr := send("10.0.0.1:5001")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = send("10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000").Code, "another address has its own budget")
}

func TestRateLimit_keyedByCaller(t *testing.T) {
	limiter := &countingLimiter{counts: make(map[string]int)}
	token, err := auth.BuildToken("pos", secret, time.Hour, time.Now())
	require.NoError(t, err)

	log := slog.New(slog.DiscardHandler)
	h := Authentication(secret, log)(RateLimit(limiter, 1, log)(echoCaller()))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/a", nil)
		req.RemoteAddr = "10.0.0." + string(rune('1'+i)) + ":5000"
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code)
	}
	assert.Equal(t, 2, limiter.counts["loyalty:rate:caller:pos"])
}

func TestRateLimit_limiterDown(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis: connection refused")}
	h := RateLimit(limiter, 1, slog.New(slog.DiscardHandler))(echoCaller())

	for range 3 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var sawLogger bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = r.Context().Value(model.KeyContextLogger) != nil
		w.WriteHeader(http.StatusConflict)
	})
	h := middleware.RequestID(Logging(log)(inner))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/wallets/w1/spend", nil))

	assert.True(t, sawLogger)
	assert.Equal(t, http.StatusConflict, rr.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request served", entry["msg"])
	assert.Equal(t, float64(http.StatusConflict), entry["status"])
	assert.Equal(t, "/api/wallets/w1/spend", entry["path"])
	assert.NotEmpty(t, entry["request_id"])
}
