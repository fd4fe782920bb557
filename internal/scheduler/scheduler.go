package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/wnt/rewardsync/internal/syncer"
)

// Scheduler fires the orchestrator on a cron schedule: a full sync run at the
// sync spec and a lightweight health check at the health spec.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *syncer.Orchestrator
	notifier     syncer.Notifier
	syncSpec     string
	healthSpec   string
	logger       zerolog.Logger
	ctx          context.Context
}

// New creates a scheduler bound to the given orchestrator. ctx bounds every
// triggered run; cancelling it stops in-flight work at the next batch border.
func New(ctx context.Context, orchestrator *syncer.Orchestrator, notifier syncer.Notifier, syncSpec, healthSpec string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		orchestrator: orchestrator,
		notifier:     notifier,
		syncSpec:     syncSpec,
		healthSpec:   healthSpec,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		ctx:          ctx,
	}
}

// Register adds the sync and health entries to the cron table.
func (s *Scheduler) Register() error {
	if _, err := s.cron.AddFunc(s.syncSpec, s.runSync); err != nil {
		return fmt.Errorf("register sync schedule %q: %w", s.syncSpec, err)
	}
	if _, err := s.cron.AddFunc(s.healthSpec, s.runHealthCheck); err != nil {
		return fmt.Errorf("register health schedule %q: %w", s.healthSpec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("sync_cron", s.syncSpec).
		Str("health_cron", s.healthSpec).
		Msg("Scheduler started")
}

// Stop stops future triggers. A run already in flight keeps going until its
// current batch finishes; the returned context is done when it has.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info().Msg("Scheduler stopping")
	return s.cron.Stop()
}

func (s *Scheduler) runSync() {
	result := s.orchestrator.ExecuteSync(s.ctx, syncer.SourceScheduled)
	if !result.Success {
		s.logger.Warn().Str("message", result.Message).Msg("Scheduled sync did not complete cleanly")
	}
}

func (s *Scheduler) runHealthCheck() {
	health := s.orchestrator.HealthCheck(s.ctx)
	if health.Healthy {
		s.logger.Info().Msg("Health check passed")
		return
	}

	s.logger.Warn().
		Str("ledger", health.Ledger).
		Str("chain", health.Chain).
		Msg("Health check failed")

	if s.notifier != nil {
		if err := s.notifier.Notify(s.ctx, health); err != nil {
			s.logger.Warn().Err(err).Msg("Health alert notification failed")
		}
	}
}
