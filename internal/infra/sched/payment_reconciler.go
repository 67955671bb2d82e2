package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"license-billing/internal/usecase"
)

// StaleReconciler is the part of the reconcile use case the worker drives.
type StaleReconciler interface {
	ReconcileStale(ctx context.Context, staleAfter time.Duration, limit int) (usecase.ReconcileReport, error)
}

// PaymentReconciler periodically re-checks pending orders older than staleAfter with the
// gateway. This covers lost webhooks and crashes between gateway capture and callback.
type PaymentReconciler struct {
	uc         StaleReconciler
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending order must be to retry
	batch      int
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc StaleReconciler, interval, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, interval: interval, staleAfter: staleAfter, batch: batch, log: &compLog}
}

// Run makes one pass immediately, then one per interval. It blocks until ctx is cancelled.
func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting payment reconciler")
	w.tick(ctx)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	rep, err := w.uc.ReconcileStale(ctx, w.staleAfter, w.batch)
	if err != nil {
		w.log.Error().Err(err).Int("failed", rep.Failed).Msg("reconcile pass finished with errors")
	}
	if rep.Scanned > 0 {
		w.log.Info().
			Int("scanned", rep.Scanned).
			Int("applied", rep.Applied).
			Int("pending", rep.Pending).
			Msg("reconcile pass")
	}
}
