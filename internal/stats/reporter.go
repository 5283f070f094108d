package stats

import (
	"context"

	"redgrab/internal/logger"
	"redgrab/internal/settings"
	"redgrab/pkg/metrics"
)

// Reporter accumulates lifetime claim statistics.
type Reporter interface {
	AddGrabbed(ctx context.Context, n int)
	AddAmount(ctx context.Context, amount float64)
	Totals(ctx context.Context) (int, float64, error)
}

// SettingsReporter persists counters into the policy document so they
// survive restarts, and mirrors them to Prometheus. Persistence failures
// are logged and swallowed: statistics never block the pipeline.
type SettingsReporter struct {
	store settings.Store
	log   logger.Logger
}

func NewSettingsReporter(store settings.Store, log logger.Logger) *SettingsReporter {
	return &SettingsReporter{
		store: store,
		log:   log,
	}
}

func (r *SettingsReporter) AddGrabbed(ctx context.Context, n int) {
	if _, err := r.store.Update(ctx, func(pol *settings.Policy) {
		pol.TotalRedBagNum += n
	}); err != nil {
		r.log.WarnwCtx(ctx, "Failed to persist grab count", "error", err)
	}
}

func (r *SettingsReporter) AddAmount(ctx context.Context, amount float64) {
	metrics.ClaimedAmountTotal.Add(amount)
	if _, err := r.store.Update(ctx, func(pol *settings.Policy) {
		pol.TotalAmount += amount
	}); err != nil {
		r.log.WarnwCtx(ctx, "Failed to persist claimed amount", "error", err)
	}
}

func (r *SettingsReporter) Totals(ctx context.Context) (int, float64, error) {
	pol, err := r.store.Load(ctx)
	if err != nil {
		return 0, 0, err
	}
	return pol.TotalRedBagNum, pol.TotalAmount, nil
}
