package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"license-billing/internal/config"
	"license-billing/internal/domain/ports/adapter"
	"license-billing/internal/infra/adapters/events"
	"license-billing/internal/infra/adapters/payment"
	"license-billing/internal/infra/api"
	pg "license-billing/internal/infra/db/postgres"
	red "license-billing/internal/infra/redis"
	"license-billing/internal/usecase"
)

// Container composes infrastructure and use cases from config. The server and the
// admin CLI build the same graph.
type Container struct {
	Cfg *config.Config
	Log *zerolog.Logger

	Pool      *pgxpool.Pool
	Redis     *red.Client
	Publisher adapter.EventPublisher
	Gateway   *payment.CashfreeGateway

	Orders    usecase.OrderUseCase
	Sessions  *usecase.SessionUseCase
	Webhooks  *usecase.WebhookUseCase
	Confirm   *usecase.ConfirmUseCase
	Promos    *usecase.PromoUseCase
	Reconcile *usecase.ReconcileUseCase
	Auth      *api.Authenticator
}

func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Container, error) {
	c := &Container{Cfg: cfg, Log: logger}
	built := false
	defer func() {
		if !built {
			_ = c.Close()
		}
	}()

	var err error
	if c.Pool, err = pg.NewPgxPool(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if c.Redis, err = red.NewClient(ctx, cfg.Redis); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if c.Publisher, err = events.New(cfg.Kafka, logger); err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}

	subs := pg.NewSubscriptionRepo(c.Pool)
	txns := pg.NewPaymentTransactionRepo(c.Pool)
	licenses := pg.NewLicenseRepo(c.Pool)
	promos := pg.NewPromoCodeRepo(c.Pool)
	tm := pg.NewTxManager(c.Pool)

	locker := red.NewLocker(c.Redis, 3, 100*time.Millisecond)
	limiter := red.NewRateLimiter(c.Redis)

	c.Gateway = payment.NewCashfreeGateway(cfg.Payment.Cashfree, nil, logger)
	if !c.Gateway.Configured() {
		logger.Warn().Msg("cashfree credentials missing; payment sessions will fail with a configuration error")
	}

	c.Orders = usecase.NewOrderUseCase(subs, txns, licenses, logger)
	c.Sessions = usecase.NewSessionUseCase(c.Gateway, limiter, usecase.SessionOptions{
		Currency:   cfg.Payment.Cashfree.Currency,
		NotifyURL:  cfg.Payment.Cashfree.NotifyURL,
		RateLimit:  cfg.Payment.SessionRateLimit,
		RateWindow: cfg.Payment.SessionRateWindow,
		Dev:        cfg.Runtime.Dev,
	}, logger)
	c.Webhooks = usecase.NewWebhookUseCase(subs, txns, licenses, tm, locker, c.Publisher, usecase.GenerateLicenseKey, cfg.Redis.LockTTL, logger)
	c.Confirm = usecase.NewConfirmUseCase(c.Orders, usecase.ConfirmOptions{
		PollInterval:  cfg.Confirm.PollInterval,
		Timeout:       cfg.Confirm.Timeout,
		SuccessDelay:  cfg.Confirm.SuccessDelay,
		DashboardPath: cfg.Confirm.DashboardPath,
	}, logger)
	c.Promos = usecase.NewPromoUseCase(promos, licenses, tm, usecase.GenerateLicenseKey, logger)
	c.Reconcile = usecase.NewReconcileUseCase(subs, txns, c.Gateway, c.Webhooks, logger).
		WithConcurrency(cfg.Reconciler.Concurrency).
		WithAbandonAfter(*cfg.Reconciler.AbandonAfter)
	c.Auth = api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	built = true
	return c, nil
}

// HTTPServer returns the API server bound to the configured port.
func (c *Container) HTTPServer() *http.Server {
	srv := api.NewServer(c.Orders, c.Sessions, c.Webhooks, c.Confirm, c.Promos, c.Auth, api.Options{
		RequestTimeout: c.Cfg.HTTP.RequestTimeout,
		AllowedOrigins: c.Cfg.HTTP.AllowedOrigins,
		Webhook: api.WebhookOptions{
			Secret:          c.Cfg.Payment.Cashfree.SecretKey,
			VerifySignature: c.Cfg.Payment.Cashfree.VerifySignatures(),
		},
		DashboardPath: c.Cfg.Confirm.DashboardPath,
	}, c.Log)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Close releases every resource that was opened, collecting all errors.
func (c *Container) Close() error {
	var result error
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return result
}
