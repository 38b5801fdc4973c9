package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

const (
	OrderExpirationJobName = "order-expiration"
	defaultSweepBatchSize  = 200
)

type orderExpirer interface {
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	CancelExpired(ctx context.Context, orderID uuid.UUID) (*orders.TransitionResult, error)
}

// OrderExpirationJobParams configure the expiration sweeper. Window must be
// longer than the payment session TTL; config enforces that at startup.
type OrderExpirationJobParams struct {
	Orders    orderExpirer
	Window    time.Duration
	BatchSize int
	Metrics   *metrics.FulfillmentMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// SweepReport tallies one sweep. Err aggregates per-order failures; it is
// reported, never raised for the batch.
type SweepReport struct {
	Candidates int
	Cancelled  int
	Skipped    int
	Failed     int
	Err        error
}

// OrderExpirationJob cancels PENDING orders older than the expiration window
// and releases their reservations.
type OrderExpirationJob struct {
	orders    orderExpirer
	window    time.Duration
	batchSize int
	metrics   *metrics.FulfillmentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewOrderExpirationJob(params OrderExpirationJobParams) (*OrderExpirationJob, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Window <= 0 {
		return nil, fmt.Errorf("expiration window must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &OrderExpirationJob{
		orders:    params.Orders,
		window:    params.Window,
		batchSize: batch,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (j *OrderExpirationJob) Name() string { return OrderExpirationJobName }

// Run sweeps one batch. Only a failure to list candidates fails the job.
func (j *OrderExpirationJob) Run(ctx context.Context) error {
	report, err := j.Sweep(ctx)
	if err != nil {
		return err
	}
	fields := map[string]any{
		"candidates": report.Candidates,
		"cancelled":  report.Cancelled,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}
	logCtx := j.logg.WithFields(ctx, fields)
	if report.Err != nil {
		j.logg.Warn(logCtx, "expiration sweep finished with failures: "+report.Err.Error())
	} else {
		j.logg.Info(logCtx, "expiration sweep finished")
	}
	if report.Candidates == j.batchSize {
		j.logg.Info(logCtx, "expiration batch full; remaining orders roll to the next cycle")
	}
	return nil
}

// Sweep attempts each candidate independently. Orders already settled by a
// concurrent webhook count as skipped.
func (j *OrderExpirationJob) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	cutoff := j.now().UTC().Add(-j.window)
	ids, err := j.orders.ListExpiredPending(ctx, cutoff, j.batchSize)
	if err != nil {
		return report, fmt.Errorf("list expired orders: %w", err)
	}
	report.Candidates = len(ids)

	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Err = multierr.Append(report.Err, ctxErr)
			break
		}
		result, err := j.orders.CancelExpired(ctx, id)
		switch {
		case err != nil:
			report.Failed++
			report.Err = multierr.Append(report.Err, fmt.Errorf("order %s: %w", id, err))
			if pkgerrors.IsFault(err) {
				j.logg.Error(j.logg.WithOrderID(ctx, id.String()), "expire order failed", err)
			}
		case result != nil && result.Applied:
			report.Cancelled++
		default:
			report.Skipped++
		}
	}
	j.metrics.AddSweepResults(report.Cancelled, report.Skipped, report.Failed)
	return report, nil
}
