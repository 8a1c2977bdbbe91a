// Package scheduler drives pipeline runs on a cron schedule. It stands in
// for the external workflow host: one pass per tick, no overlapping ticks,
// and the stale-lock sweeper riding along after every pass inside Run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"driveplane/internal/logger"
	"driveplane/internal/pipeline"
)

// Runner is the slice of the pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context, runID string) (pipeline.RunOutcome, error)
	RunPending(ctx context.Context, runID string) (pipeline.RunOutcome, error)
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cron         *cron.Cron
	runner       Runner
	spec         string
	owner        string
	drainPending bool
	log          *slog.Logger
}

// New builds a scheduler. spec is a standard 5-field cron expression;
// owner seeds the run ids used as lock owners. With drainPending set, each
// tick also drives the oldest pending record after the scheduled pass.
func New(spec, owner string, drainPending bool, runner Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{
		// A tick that outlives its interval is skipped, mirroring a
		// single-active-run workflow host.
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:       runner,
		spec:         spec,
		owner:        owner,
		drainPending: drainPending,
		log:          log,
	}
}

// Start registers the schedule and blocks until the context is cancelled.
// In-flight passes finish before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", s.spec, err)
	}

	s.log.Info("scheduler started", "schedule", s.spec)
	s.cron.Start()

	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

func (s *Scheduler) tick(ctx context.Context) {
	runID := pipeline.NewRunID(s.owner)
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, s.log)

	outcome, err := s.runner.Run(ctx, runID)
	switch {
	case err != nil:
		log.Error("scheduled run failed", "pipeline_id", outcome.PipelineID, "error", err)
	case outcome.Skipped:
		log.Info("scheduled run skipped", "reason", outcome.SkipReason, "swept", outcome.Swept)
	default:
		log.Info("scheduled run finished", "pipeline_id", outcome.PipelineID, "swept", outcome.Swept)
	}

	if !s.drainPending {
		return
	}

	drainID := pipeline.NewRunID(s.owner + "-drain")
	outcome, err = s.runner.RunPending(ctx, drainID)
	switch {
	case err != nil:
		log.Error("backlog run failed", "run_id", drainID, "pipeline_id", outcome.PipelineID, "error", err)
	case !outcome.Skipped:
		log.Info("backlog record processed", "run_id", drainID, "pipeline_id", outcome.PipelineID)
	}
}
