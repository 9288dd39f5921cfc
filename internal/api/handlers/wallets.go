package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talx-hub/gopher-loyalty/internal/api/dto"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	walletengine "github.com/talx-hub/gopher-loyalty/internal/service/wallet"
)

const (
	ParamWalletID  = "walletID"
	ParamSessionID = "sessionID"
)

type WalletService interface {
	OpenWallet(ctx context.Context, accountID, merchantID string) (wallet.Wallet, error)
	GetBalance(ctx context.Context, walletID string) (walletengine.Balance, error)
	Transactions(ctx context.Context, walletID string, limit int) ([]wallet.Transaction, error)
	SpendWallet(ctx context.Context, req walletengine.SpendRequest) (walletengine.Debit, error)
	Refund(ctx context.Context, req walletengine.RefundRequest) (walletengine.Credit, error)
	InitiateTopUp(ctx context.Context, req walletengine.TopUpRequest) (wallet.TopUpSession, error)
	ProcessCashTopUp(ctx context.Context,
		walletID string, amountCents int64, processedBy string) (walletengine.Credit, error)
	GetSession(ctx context.Context, sessionID string) (wallet.TopUpSession, error)
	CompleteTopUp(ctx context.Context, sessionID, externalRef string) (walletengine.Credit, error)
	MarkProcessing(ctx context.Context, sessionID string) (wallet.TopUpSession, error)
	FailTopUp(ctx context.Context, sessionID, reason string) (wallet.TopUpSession, error)
	CancelTopUp(ctx context.Context, sessionID string) (wallet.TopUpSession, error)
}

type WalletHandler struct {
	logger  *slog.Logger
	service WalletService
}

func NewWalletHandler(service WalletService, log *slog.Logger) *WalletHandler {
	return &WalletHandler{
		logger:  log.With("handler", "wallets"),
		service: service,
	}
}

func (h *WalletHandler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenWalletRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	wl, err := h.service.OpenWallet(r.Context(), req.AccountID, req.MerchantID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, wl)
}

func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetBalance(r.Context(), chi.URLParam(r, ParamWalletID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, b)
}

func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	txns, err := h.service.Transactions(r.Context(), chi.URLParam(r, ParamWalletID), limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, txns)
}

func (h *WalletHandler) SpendWallet(w http.ResponseWriter, r *http.Request) {
	var req dto.MoneyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	d, err := h.service.SpendWallet(r.Context(), walletengine.SpendRequest{
		WalletID:      chi.URLParam(r, ParamWalletID),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		AmountCents:   req.AmountCents,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, d)
}

func (h *WalletHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req dto.MoneyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c, err := h.service.Refund(r.Context(), walletengine.RefundRequest{
		WalletID:      chi.URLParam(r, ParamWalletID),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		AmountCents:   req.AmountCents,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, c)
}

func (h *WalletHandler) InitiateTopUp(w http.ResponseWriter, r *http.Request) {
	var req dto.TopUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	s, err := h.service.InitiateTopUp(r.Context(), walletengine.TopUpRequest{
		WalletID:    chi.URLParam(r, ParamWalletID),
		Method:      req.Method,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusCreated, s)
}

func (h *WalletHandler) CashTopUp(w http.ResponseWriter, r *http.Request) {
	var req dto.CashTopUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c, err := h.service.ProcessCashTopUp(r.Context(),
		chi.URLParam(r, ParamWalletID), req.AmountCents, req.ProcessedBy)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, c)
}

func (h *WalletHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSession(r.Context(), chi.URLParam(r, ParamSessionID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, s)
}

func (h *WalletHandler) CompleteTopUp(w http.ResponseWriter, r *http.Request) {
	var req dto.CompleteTopUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c, err := h.service.CompleteTopUp(r.Context(), chi.URLParam(r, ParamSessionID), req.ExternalPaymentRef)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, c)
}

func (h *WalletHandler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkProcessing)
}

func (h *WalletHandler) CancelTopUp(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelTopUp)
}

func (h *WalletHandler) FailTopUp(w http.ResponseWriter, r *http.Request) {
	var req dto.FailTopUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, sessionID string) (wallet.TopUpSession, error) {
		return h.service.FailTopUp(ctx, sessionID, req.Reason)
	})
}

type transitionFunc func(ctx context.Context, sessionID string) (wallet.TopUpSession, error)

func (h *WalletHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	s, err := fn(r.Context(), chi.URLParam(r, ParamSessionID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, s)
}
