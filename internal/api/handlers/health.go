package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/service/sweeper"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

type HealthChecker interface {
	Healthy(ctx context.Context) error
}

type HealthHandler struct {
	logger  *slog.Logger
	checker HealthChecker
}

func NewHealthHandler(checker HealthChecker, log *slog.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  log.With("handler", "health"),
		checker: checker,
	}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), model.DefaultTimeout)
	defer cancel()

	if err := h.checker.Healthy(ctx); err != nil {
		h.logger.LogAttrs(ctx,
			slog.LevelError,
			"storage is unhealthy",
			slog.Any(model.KeyLoggerError, err),
		)
		http.Error(w,
			http.StatusText(http.StatusServiceUnavailable),
			http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type SweepRunner interface {
	SweepOnce(ctx context.Context, now time.Time) (sweeper.Report, error)
}

type SweepHandler struct {
	logger *slog.Logger
	runner SweepRunner
	clock  clock.Clock
}

func NewSweepHandler(runner SweepRunner, clk clock.Clock, log *slog.Logger) *SweepHandler {
	return &SweepHandler{
		logger: log.With("handler", "sweep"),
		runner: runner,
		clock:  clk,
	}
}

// Sweep runs one expiry pass on demand. A report with failures still answers 200.
func (h *SweepHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.SweepOnce(r.Context(), h.clock.Now())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, report)
}
