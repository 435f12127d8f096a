package orchestrator

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"proxynexus/internal/shared/logger"
	"proxynexus/internal/shared/types"
	"proxynexus/pool/model"
)

// Scheduler creates recurring tasks from cron specs: scheduled
// extraction, stale revalidation, and nightly cleanup. An empty spec
// disables that job.
type Scheduler struct {
	cfg  types.SchedulerConf
	orch *Orchestrator
	cron *cron.Cron
}

// NewScheduler builds a scheduler bound to an orchestrator.
func NewScheduler(cfg types.SchedulerConf, orch *Orchestrator) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		orch: orch,
		cron: cron.New(),
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	l := logger.WithComponent("Scheduler")

	jobs := []struct {
		spec     string
		name     string
		kind     model.TaskKind
		priority int
	}{
		{s.cfg.ExtractionSpec, "scheduled-extraction", model.TaskKindExtraction, 5},
		{s.cfg.ValidationSpec, "scheduled-revalidation", model.TaskKindMaintenance, 3},
		{s.cfg.CleanupSpec, "scheduled-cleanup", model.TaskKindCleanup, 1},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		name, kind, priority := job.name, job.kind, job.priority
		_, err := s.cron.AddFunc(job.spec, func() {
			_, err := s.orch.CreateTask(context.Background(), name, kind, model.TaskConfig{Priority: priority})
			if errors.Is(err, ErrQueueFull) {
				l.Warn().Str("name", name).Msg("Queue full; skipping scheduled task this round.")
				return
			}
			if err != nil {
				l.Error().Err(err).Str("name", name).Msg("Failed to create scheduled task.")
			}
		})
		if err != nil {
			return err
		}
		l.Info().Str("name", job.name).Str("spec", job.spec).Msg("Scheduled recurring task.")
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for a running trigger to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
