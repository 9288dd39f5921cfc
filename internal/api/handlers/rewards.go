package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talx-hub/gopher-loyalty/internal/api/dto"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/service/redemption"
)

const ParamCode = "code"

type RewardService interface {
	SaveReward(ctx context.Context, rw reward.Reward) (reward.Reward, error)
	RedeemReward(ctx context.Context, req redemption.RedeemRequest) (redemption.Result, error)
	ListRedemptions(ctx context.Context, accountID string) ([]reward.Redemption, error)
	MarkUsed(ctx context.Context, rawCode string) (reward.Redemption, error)
}

type RewardHandler struct {
	logger  *slog.Logger
	service RewardService
}

func NewRewardHandler(service RewardService, log *slog.Logger) *RewardHandler {
	return &RewardHandler{
		logger:  log.With("handler", "rewards"),
		service: service,
	}
}

func (h *RewardHandler) SaveReward(w http.ResponseWriter, r *http.Request) {
	var req dto.RewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	rw, err := h.service.SaveReward(r.Context(), req.ToModel())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, rw)
}

// Redeem answers 201 for a new redemption and 200 when the attempt was already applied.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req dto.RedeemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.service.RedeemReward(r.Context(), redemption.RedeemRequest{
		AccountID: chi.URLParam(r, ParamAccountID),
		RewardID:  req.RewardID,
		AttemptID: req.AttemptID,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, h.logger, r, status, res)
}

func (h *RewardHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListRedemptions(r.Context(), chi.URLParam(r, ParamAccountID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, out)
}

func (h *RewardHandler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	rd, err := h.service.MarkUsed(r.Context(), chi.URLParam(r, ParamCode))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, rd)
}
