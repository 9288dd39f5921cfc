package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/talx-hub/gopher-loyalty/internal/api/dto"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	"github.com/talx-hub/gopher-loyalty/internal/utils/logger"
)

const transientRetryAfter = "1"

type validatable interface {
	IsValid() error
}

// decode reads a JSON body and validates it when the target supports it.
func decode(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: failed to decode body: %w", serviceerrs.ErrInvalidRequest, err)
	}
	if v, ok := target.(validatable); ok {
		if err := v.IsValid(); err != nil {
			return fmt.Errorf("%w: %w", serviceerrs.ErrInvalidRequest, err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, r *http.Request, status int, body any) {
	w.Header().Set(model.HeaderContentType, "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to encode response",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func statusOf(err error) int {
	var tooMany *serviceerrs.TooManyRequestsError
	switch {
	case errors.As(err, &tooMany):
		return http.StatusTooManyRequests
	case serviceerrs.IsValidation(err):
		return http.StatusBadRequest
	case serviceerrs.IsNotFound(err):
		return http.StatusNotFound
	case serviceerrs.IsInsufficient(err):
		return http.StatusPaymentRequired
	case serviceerrs.IsConflict(err):
		return http.StatusConflict
	case serviceerrs.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger prefers the request scoped logger so errors carry the request id.
func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	if r.Context().Value(model.KeyContextLogger) == nil {
		return fallback
	}
	return logger.FromContext(r.Context())
}

func writeError(w http.ResponseWriter, log *slog.Logger, r *http.Request, err error) {
	log = requestLogger(r, log)
	status := statusOf(err)
	msg := err.Error()
	level := slog.LevelInfo
	switch status {
	case http.StatusInternalServerError:
		level = slog.LevelError
		msg = http.StatusText(status)
	case http.StatusServiceUnavailable:
		level = slog.LevelWarn
		w.Header().Set("Retry-After", transientRetryAfter)
	}
	log.LogAttrs(r.Context(),
		level,
		"request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Any(model.KeyLoggerError, err),
	)
	writeJSON(w, log, r, status, dto.ErrorResponse{Error: msg})
}

// limitParam reads the optional ?limit= query parameter. A missing or zero limit
// becomes model.DefaultListLimit and larger values are capped at model.MaxListLimit.
func limitParam(r *http.Request) (int, error) {
	n, err := intParam(r, "limit")
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return model.DefaultListLimit, nil
	}
	return min(int(n), model.MaxListLimit), nil
}

// intParam reads an optional non-negative integer query parameter. Missing means zero.
func intParam(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", serviceerrs.ErrInvalidRequest, name)
	}
	return n, nil
}
