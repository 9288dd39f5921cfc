package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
)

const ParamMerchantID = "merchantID"

type MerchantService interface {
	ListMembers(ctx context.Context, filter points.MemberFilter) ([]points.Account, error)
	MerchantStats(ctx context.Context, merchantID string) (points.MerchantStats, error)
}

// MerchantHandler serves the back office views over all members of a merchant.
type MerchantHandler struct {
	logger  *slog.Logger
	service MerchantService
}

func NewMerchantHandler(service MerchantService, log *slog.Logger) *MerchantHandler {
	return &MerchantHandler{
		logger:  log.With("handler", "merchants"),
		service: service,
	}
}

func (h *MerchantHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	minBalance, err := intParam(r, "min_balance")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if offset > model.MaxListOffset {
		offset = model.MaxListOffset
	}

	members, err := h.service.ListMembers(r.Context(), points.MemberFilter{
		MerchantID: chi.URLParam(r, ParamMerchantID),
		Tier:       r.URL.Query().Get("tier"),
		MinBalance: minBalance,
		Limit:      limit,
		Offset:     int(offset),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, members)
}

func (h *MerchantHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.MerchantStats(r.Context(), chi.URLParam(r, ParamMerchantID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, stats)
}
