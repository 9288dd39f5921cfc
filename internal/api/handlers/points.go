package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talx-hub/gopher-loyalty/internal/api/dto"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/service/engine"
	pointsengine "github.com/talx-hub/gopher-loyalty/internal/service/points"
)

const ParamAccountID = "accountID"

type PointsService interface {
	OpenAccount(ctx context.Context, accountID, merchantID string, isResident bool) (points.Account, error)
	GetSummary(ctx context.Context, accountID string) (pointsengine.Summary, error)
	GetExpiryForecast(ctx context.Context, accountID string) (pointsengine.Forecast, error)
	History(ctx context.Context, accountID string, limit int) ([]points.Transaction, error)
	EarnPoints(ctx context.Context, req pointsengine.EarnRequest) (pointsengine.EarnResult, error)
	SpendPoints(ctx context.Context,
		accountID string, amount int64, referenceType, referenceID, notes string) (points.Transaction, error)
	Adjust(ctx context.Context, accountID string, delta int64, notes string) (points.Transaction, error)
	AwardSignupBonus(ctx context.Context, accountID string) (pointsengine.EarnResult, error)
	AwardProfileCompletionBonus(ctx context.Context, accountID string) (pointsengine.EarnResult, error)
	AwardReferral(ctx context.Context, accountID, referenceID string) (pointsengine.EarnResult, error)
}

type Overviewer interface {
	Overview(ctx context.Context, accountID string) (engine.Overview, error)
}

type PointsHandler struct {
	logger   *slog.Logger
	service  PointsService
	overview Overviewer
}

func NewPointsHandler(service PointsService, overview Overviewer, log *slog.Logger) *PointsHandler {
	return &PointsHandler{
		logger:   log.With("handler", "points"),
		service:  service,
		overview: overview,
	}
}

func (h *PointsHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenAccountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	acc, err := h.service.OpenAccount(r.Context(), req.AccountID, req.MerchantID, req.IsResident)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, acc)
}

func (h *PointsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSummary(r.Context(), chi.URLParam(r, ParamAccountID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, summary)
}

func (h *PointsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	o, err := h.overview.Overview(r.Context(), chi.URLParam(r, ParamAccountID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, o)
}

func (h *PointsHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.GetExpiryForecast(r.Context(), chi.URLParam(r, ParamAccountID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, f)
}

func (h *PointsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	txns, err := h.service.History(r.Context(), chi.URLParam(r, ParamAccountID), limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, txns)
}

func (h *PointsHandler) EarnPoints(w http.ResponseWriter, r *http.Request) {
	var req dto.EarnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.service.EarnPoints(r.Context(), pointsengine.EarnRequest{
		AccountID:     chi.URLParam(r, ParamAccountID),
		Source:        req.Source,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Notes:         req.Notes,
		BaseAmount:    req.BaseAmount,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, res)
}

func (h *PointsHandler) SpendPoints(w http.ResponseWriter, r *http.Request) {
	var req dto.SpendPointsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	txn, err := h.service.SpendPoints(r.Context(), chi.URLParam(r, ParamAccountID),
		req.Points, req.ReferenceType, req.ReferenceID, req.Notes)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, txn)
}

func (h *PointsHandler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req dto.AdjustRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	txn, err := h.service.Adjust(r.Context(), chi.URLParam(r, ParamAccountID), req.Delta, req.Notes)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, txn)
}

func (h *PointsHandler) AwardSignup(w http.ResponseWriter, r *http.Request) {
	h.award(w, r, h.service.AwardSignupBonus)
}

func (h *PointsHandler) AwardProfileCompletion(w http.ResponseWriter, r *http.Request) {
	h.award(w, r, h.service.AwardProfileCompletionBonus)
}

func (h *PointsHandler) AwardReferral(w http.ResponseWriter, r *http.Request) {
	var req dto.ReferralRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.award(w, r, func(ctx context.Context, accountID string) (pointsengine.EarnResult, error) {
		return h.service.AwardReferral(ctx, accountID, req.ReferenceID)
	})
}

type awardFunc func(ctx context.Context, accountID string) (pointsengine.EarnResult, error)

func (h *PointsHandler) award(w http.ResponseWriter, r *http.Request, fn awardFunc) {
	res, err := fn(r.Context(), chi.URLParam(r, ParamAccountID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, res)
}
