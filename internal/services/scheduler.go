package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/caspianpress/stylebridge-backend/internal/config"
	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

// Scheduler owns the periodic jobs: retrain eligibility polling and the
// nightly metrics rollup. Auto-triggering can be disabled so a deployment
// runs manual-trigger-only.
type Scheduler struct {
	log         *logger.Logger
	cron        *cron.Cron
	retrain     RetrainService
	metrics     MetricsService
	autoTrigger bool
}

func NewScheduler(
	log *logger.Logger,
	retrain RetrainService,
	metrics MetricsService,
	policy config.RetrainPolicy,
) (*Scheduler, error) {
	s := &Scheduler{
		log:         log.With("service", "Scheduler"),
		cron:        cron.New(),
		retrain:     retrain,
		metrics:     metrics,
		autoTrigger: utils.GetEnvAsBool("RETRAIN_AUTO_TRIGGER", true, log),
	}

	if _, err := s.cron.AddFunc(policy.CheckEvery, s.checkRetrain); err != nil {
		return nil, fmt.Errorf("schedule retrain check %q: %w", policy.CheckEvery, err)
	}
	rollupSpec := utils.GetEnv("METRICS_ROLLUP_CRON", "5 0 * * *", log)
	if _, err := s.cron.AddFunc(rollupSpec, s.rollupMetrics); err != nil {
		return nil, fmt.Errorf("schedule metrics rollup %q: %w", rollupSpec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "auto_trigger", s.autoTrigger)
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		s.log.Warn("scheduler jobs still running at shutdown deadline")
	}
}

func (s *Scheduler) checkRetrain() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	status, err := s.retrain.Status(ctx)
	if err != nil {
		s.log.Error("retrain eligibility check failed", "error", err)
		return
	}
	if status.State != RetrainStateEligible {
		return
	}
	s.log.Info("retrain eligible", "pending_count", status.PendingCount, "interval_elapsed", status.IntervalElapsed)
	if !s.autoTrigger {
		return
	}

	if _, err := s.retrain.Trigger(ctx, "scheduler"); err != nil {
		// Losing the race to another instance is fine.
		if errors.Is(err, ErrRetrainInProgress) || errors.Is(err, ErrRetrainNotEligible) {
			s.log.Info("scheduled trigger skipped", "reason", err.Error())
			return
		}
		s.log.Error("scheduled retrain trigger failed", "error", err)
	}
}

func (s *Scheduler) rollupMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := s.metrics.RollupToday(ctx); err != nil {
		s.log.Error("metrics rollup failed", "error", err)
	}
}
