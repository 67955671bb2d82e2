package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"license-billing/internal/domain/model"
	"license-billing/internal/usecase"
)

type SessionCreator interface {
	CreateSession(ctx context.Context, req usecase.SessionRequest) (*usecase.SessionResult, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, userID, orderID string) usecase.ConfirmResult
}

type PromoRedeemer interface {
	Redeem(ctx context.Context, userID, code string) (*model.License, error)
}

// WebhookOptions controls how gateway callbacks are authenticated.
type WebhookOptions struct {
	Secret          string
	VerifySignature bool
}

// Options carries the HTTP-level settings of the server.
type Options struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	Webhook        WebhookOptions

	// DashboardPath is linked from every success page outcome.
	DashboardPath string
}

// Server exposes the billing API: order creation, payment sessions, the gateway
// webhook, the post-checkout confirmation poller, licenses and promo codes.
type Server struct {
	orders   usecase.OrderUseCase
	sessions SessionCreator
	webhooks usecase.StatusApplier
	confirm  Confirmer
	promos   PromoRedeemer
	auth     *Authenticator
	opts     Options
	log      *zerolog.Logger
	now      func() time.Time
}

func NewServer(
	orders usecase.OrderUseCase,
	sessions SessionCreator,
	webhooks usecase.StatusApplier,
	confirm Confirmer,
	promos PromoRedeemer,
	auth *Authenticator,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.DashboardPath == "" {
		opts.DashboardPath = "/dashboard"
	}
	return &Server{
		orders:   orders,
		sessions: sessions,
		webhooks: webhooks,
		confirm:  confirm,
		promos:   promos,
		auth:     auth,
		opts:     opts,
		log:      logger,
		now:      time.Now,
	}
}

// Router builds the chi router with the middleware chain and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.opts.RequestTimeout))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", traceHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.handleListPlans)
		// the gateway authenticates with a signature, not a user token
		r.Post("/webhooks/payment", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require)
			r.Post("/subscriptions", s.handleCreateSubscription)
			r.Post("/credits/purchases", s.handleCreateCreditPurchase)
			r.Get("/orders/{id}", s.handleGetOrder)
			r.Post("/payments/session", s.handleCreateSession)
			r.Get("/payments/confirm", s.handleConfirm)
			r.Get("/licenses", s.handleListLicenses)
			r.Get("/licenses/latest", s.handleLatestLicense)
			r.Post("/promo/redeem", s.handleRedeemPromo)
		})
	})

	r.With(s.auth.Require).Get("/payment/success", s.handleSuccessPage)
	return r
}
