package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunOutcome summarizes one scheduled run for logging and metrics.
type RunOutcome struct {
	RunID      string
	PipelineID string
	Skipped    bool
	SkipReason string
	Swept      int
}

// NewRunID builds the opaque lock owner for a scheduled run.
func NewRunID(owner string) string {
	if owner == "" {
		owner = "scheduled"
	}
	return owner + "__" + uuid.NewString()
}

// Run executes one scheduled pass over the pipeline: generate, validate,
// then the locked phases in order. A skip from the generator or the
// validator bypasses everything downstream without failing the run. The
// stale-lock sweeper runs after every pass, success or not.
func (p *Pipeline) Run(ctx context.Context, runID string) (outcome RunOutcome, err error) {
	outcome.RunID = runID

	defer func() {
		outcome.Swept = p.Sweep(ctx)
	}()

	gen, err := p.Generate(ctx)
	if err != nil {
		return outcome, err
	}

	val, err := p.Validate(ctx, gen)
	if err != nil {
		if IsSkip(err) {
			p.log.Info("run skipped", "run_id", runID, "reason", err.Error())
			outcome.Skipped = true
			outcome.SkipReason = err.Error()
			return outcome, nil
		}
		return outcome, err
	}
	outcome.PipelineID = val.Record.PipelineID

	return outcome, p.runLocked(ctx, val, runID)
}

// RunPending drains the backlog: it picks the oldest PENDING record for the
// identity (typically one reset after a failed phase or by the sweeper) and
// drives the locked phases over it. Records left FAILED by a failed audit are
// not PENDING and are not picked. Records whose window has not started yet are
// not eligible. The sweeper runs after the pass like in Run.
func (p *Pipeline) RunPending(ctx context.Context, runID string) (outcome RunOutcome, err error) {
	outcome.RunID = runID

	defer func() {
		outcome.Swept = p.Sweep(ctx)
	}()

	rec, err := p.store.OldestPending(ctx, p.cfg.Identity, p.cfg.Priority)
	if err != nil {
		return outcome, err
	}
	if rec == nil {
		outcome.Skipped = true
		outcome.SkipReason = "no pending record"
		return outcome, nil
	}
	if rec.WindowStartTime.After(p.clock.Now()) {
		outcome.Skipped = true
		outcome.SkipReason = "oldest pending record starts in the future"
		return outcome, nil
	}
	outcome.PipelineID = rec.PipelineID

	p.log.Info("picked pending record",
		"run_id", runID,
		"pipeline_id", rec.PipelineID,
		"retry_attempt", rec.RetryAttempt,
	)

	return outcome, p.runLocked(ctx, &ValidationResult{Record: rec}, runID)
}

// runLocked drives source-to-stage, stage-to-target and audit, re-entering
// at the first non-completed phase on transient failures, up to the host
// retry budget. Acquire conflicts and audit data verdicts are terminal for
// the run: the first belongs to another run, the second already reset the
// record for a future retry.
func (p *Pipeline) runLocked(ctx context.Context, val *ValidationResult, runID string) error {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.HostRetries; attempt++ {
		lastErr = p.executePhases(ctx, val, runID)
		if lastErr == nil {
			return nil
		}

		var conflict *AcquireConflictError
		var integrity *IntegrityError
		var mismatch *MismatchError
		if errors.As(lastErr, &conflict) || errors.As(lastErr, &integrity) || errors.As(lastErr, &mismatch) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt == p.cfg.HostRetries {
			break
		}

		p.log.Warn("phase sequence failed, re-entering at first non-completed phase",
			"run_id", runID,
			"pipeline_id", val.Record.PipelineID,
			"attempt", attempt,
			"error", lastErr,
		)

		timer := time.NewTimer(p.cfg.HostRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

func (p *Pipeline) executePhases(ctx context.Context, val *ValidationResult, runID string) error {
	pipelineID := val.Record.PipelineID

	if err := p.SourceToStage(ctx, val, runID); err != nil {
		return err
	}
	if err := p.StageToTarget(ctx, pipelineID, runID); err != nil {
		return err
	}
	return p.Audit(ctx, pipelineID, runID, val.SourceEmpty)
}
