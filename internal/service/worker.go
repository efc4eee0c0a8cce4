package service

import (
	"context"
	"time"

	"medportal/pkg/logger"

	"go.uber.org/zap"
)

type AppointmentCompleter interface {
	CompletePast(ctx context.Context, now time.Time) int
}

// AppointmentSweeper closes scheduled appointments once their slot is over.
type AppointmentSweeper struct {
	practice AppointmentCompleter
	interval time.Duration
	now      func() time.Time
}

func NewAppointmentSweeper(practice AppointmentCompleter, interval time.Duration) *AppointmentSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AppointmentSweeper{
		practice: practice,
		interval: interval,
		now:      time.Now,
	}
}

func (w *AppointmentSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logger.Info("appointment sweeper started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("appointment sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *AppointmentSweeper) sweep(ctx context.Context) {
	if n := w.practice.CompletePast(ctx, w.now()); n > 0 {
		logger.Info("appointments completed", zap.Int("count", n))
	}
}
