package cron

import (
	"context"
	"fmt"

	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/metrics"
)

const reservationSweepJobName = "reservation-sweep"

// holdSweeper releases every inventory hold past its expiry.
type holdSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ReservationSweepJobParams configure the reservation sweep job.
type ReservationSweepJobParams struct {
	Logger  *logger.Logger
	Store   holdSweeper
	Metrics *metrics.CronJobMetrics
}

// ReservationSweepJob returns expired inventory holds to available stock.
type ReservationSweepJob struct {
	logg    *logger.Logger
	store   holdSweeper
	metrics *metrics.CronJobMetrics
}

// NewReservationSweepJob builds the sweep job.
func NewReservationSweepJob(params ReservationSweepJobParams) (*ReservationSweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("reservation store required")
	}
	return &ReservationSweepJob{
		logg:    params.Logger,
		store:   params.Store,
		metrics: params.Metrics,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *ReservationSweepJob) Name() string {
	return reservationSweepJobName
}

// Run releases expired holds and records how many rows were swept.
func (j *ReservationSweepJob) Run(ctx context.Context) error {
	released, err := j.store.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired reservations: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddRows(j.Name(), released)
	}
	if released > 0 {
		ctx = j.logg.WithField(ctx, "released", released)
		j.logg.Info(ctx, "expired reservations released")
	}
	return nil
}
