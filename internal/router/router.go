package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talx-hub/gopher-loyalty/internal/api/middlewares"
	"github.com/talx-hub/gopher-loyalty/internal/service/config"
)

type CustomRouter struct {
	router  *chi.Mux
	logger  *slog.Logger
	cfg     *config.Config
	limiter middlewares.Limiter
}

func New(cfg *config.Config, log *slog.Logger) *CustomRouter {
	if log == nil {
		log = slog.Default()
	}
	router := &CustomRouter{
		router: chi.NewRouter(),
		logger: log,
		cfg:    cfg,
	}

	return router
}

// WithLimiter enables per-caller rate limiting when the config sets a positive limit.
func (cr *CustomRouter) WithLimiter(l middlewares.Limiter) *CustomRouter {
	cr.limiter = l
	return cr
}

type PointsHandler interface {
	OpenAccount(w http.ResponseWriter, r *http.Request)
	GetSummary(w http.ResponseWriter, r *http.Request)
	GetOverview(w http.ResponseWriter, r *http.Request)
	GetForecast(w http.ResponseWriter, r *http.Request)
	GetHistory(w http.ResponseWriter, r *http.Request)
	EarnPoints(w http.ResponseWriter, r *http.Request)
	SpendPoints(w http.ResponseWriter, r *http.Request)
	AdjustPoints(w http.ResponseWriter, r *http.Request)
	AwardSignup(w http.ResponseWriter, r *http.Request)
	AwardProfileCompletion(w http.ResponseWriter, r *http.Request)
	AwardReferral(w http.ResponseWriter, r *http.Request)
}

type RewardHandler interface {
	SaveReward(w http.ResponseWriter, r *http.Request)
	Redeem(w http.ResponseWriter, r *http.Request)
	ListRedemptions(w http.ResponseWriter, r *http.Request)
	MarkUsed(w http.ResponseWriter, r *http.Request)
}

type WalletHandler interface {
	OpenWallet(w http.ResponseWriter, r *http.Request)
	GetBalance(w http.ResponseWriter, r *http.Request)
	GetTransactions(w http.ResponseWriter, r *http.Request)
	SpendWallet(w http.ResponseWriter, r *http.Request)
	Refund(w http.ResponseWriter, r *http.Request)
	InitiateTopUp(w http.ResponseWriter, r *http.Request)
	CashTopUp(w http.ResponseWriter, r *http.Request)
	GetSession(w http.ResponseWriter, r *http.Request)
	CompleteTopUp(w http.ResponseWriter, r *http.Request)
	MarkProcessing(w http.ResponseWriter, r *http.Request)
	FailTopUp(w http.ResponseWriter, r *http.Request)
	CancelTopUp(w http.ResponseWriter, r *http.Request)
}

type MerchantHandler interface {
	ListMembers(w http.ResponseWriter, r *http.Request)
	GetStats(w http.ResponseWriter, r *http.Request)
}

type SweepHandler interface {
	Sweep(w http.ResponseWriter, r *http.Request)
}

type HealthHandler interface {
	Ping(w http.ResponseWriter, r *http.Request)
}

type Handler interface {
	PointsHandler
	RewardHandler
	WalletHandler
	MerchantHandler
	SweepHandler
	HealthHandler
}

func (cr *CustomRouter) SetRouter(h Handler) {
	cr.router.Use(
		middleware.RequestID,
		middlewares.Logging(cr.logger),
		middleware.Recoverer,
	)
	json := middleware.AllowContentType("application/json")

	cr.router.Route("/api", func(r chi.Router) {
		if cr.cfg != nil && cr.cfg.SecretKey != "" {
			r.Use(middlewares.Authentication([]byte(cr.cfg.SecretKey), cr.logger))
		}
		if cr.limiter != nil && cr.cfg != nil && cr.cfg.RateLimitPerMinute > 0 {
			r.Use(middlewares.RateLimit(cr.limiter, cr.cfg.RateLimitPerMinute, cr.logger))
		}

		r.Route("/accounts", func(r chi.Router) {
			r.With(json).Post("/", h.OpenAccount)
			r.Route("/{accountID}", func(r chi.Router) {
				r.Get("/", h.GetSummary)
				r.Get("/overview", h.GetOverview)
				r.Get("/forecast", h.GetForecast)
				r.Get("/transactions", h.GetHistory)
				r.Group(func(r chi.Router) {
					r.Use(json)
					r.Post("/earn", h.EarnPoints)
					r.Post("/spend", h.SpendPoints)
					r.Post("/adjust", h.AdjustPoints)
					r.Post("/bonuses/referral", h.AwardReferral)
					r.Post("/redemptions", h.Redeem)
				})
				r.Post("/bonuses/signup", h.AwardSignup)
				r.Post("/bonuses/profile", h.AwardProfileCompletion)
				r.Get("/redemptions", h.ListRedemptions)
			})
		})

		r.Route("/merchants/{merchantID}", func(r chi.Router) {
			r.Get("/accounts", h.ListMembers)
			r.Get("/stats", h.GetStats)
		})

		r.With(json).Put("/rewards", h.SaveReward)
		r.Post("/redemptions/{code}/use", h.MarkUsed)

		r.Route("/wallets", func(r chi.Router) {
			r.With(json).Post("/", h.OpenWallet)
			r.Route("/{walletID}", func(r chi.Router) {
				r.Get("/", h.GetBalance)
				r.Get("/transactions", h.GetTransactions)
				r.Group(func(r chi.Router) {
					r.Use(json)
					r.Post("/spend", h.SpendWallet)
					r.Post("/refund", h.Refund)
					r.Post("/top-ups", h.InitiateTopUp)
					r.Post("/cash-top-ups", h.CashTopUp)
				})
			})
		})

		r.Route("/top-ups/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.With(json).Post("/complete", h.CompleteTopUp)
			r.With(json).Post("/fail", h.FailTopUp)
			r.Post("/processing", h.MarkProcessing)
			r.Post("/cancel", h.CancelTopUp)
		})

		r.Post("/sweeps", h.Sweep)
	})
	cr.router.Get("/ping", h.Ping)

	cr.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)
	})
}

func (cr *CustomRouter) GetRouter() *chi.Mux {
	return cr.router
}
