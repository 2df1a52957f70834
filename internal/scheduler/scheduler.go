package scheduler

import (
	"context"
	"time"

	"github.com/servorahq/servora/internal/config"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/service"
)

// Scheduler drives the billing lifecycle on a fixed tick. Every job inside a
// run is idempotent, so overlapping with the /cron/billing endpoint is safe.
type Scheduler struct {
	cfg     *config.Configuration
	billing service.BillingService
	logger  *logger.Logger
}

func New(cfg *config.Configuration, billing service.BillingService, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		billing: billing,
		logger:  log,
	}
}

// Run blocks until ctx is cancelled. The first run fires immediately so a
// restarted process catches up on overdue renewals without waiting a full tick.
func (s *Scheduler) Run(ctx context.Context) {
	period := s.cfg.Billing.SchedulerPeriod
	if period <= 0 {
		period = time.Hour
	}

	s.logger.Infow("billing scheduler started", "period", period)
	s.tick(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("billing scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	report, err := s.billing.RunAll(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Errorw("billing run failed", "error", err)
		return
	}

	s.logger.Infow("billing run completed",
		"duration", time.Since(started),
		"renewed", report.Renewed,
		"grace_granted", report.GraceGranted,
		"suspended", report.Suspended,
		"reactivated", report.Reactivated,
		"expired", report.Expired,
		"torn_down", report.TornDown,
		"low_credit_users", report.LowCreditUsers,
		"errors", report.Errors,
	)
}
