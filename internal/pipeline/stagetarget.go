package pipeline

import (
	"context"
	"fmt"
	"time"

	"driveplane/internal/retry"
	"driveplane/internal/store"
)

// StageToTarget triggers the target-side load of the staged data. It
// inherits the lock taken by SourceToStage and refuses to run when the
// prior phase has not completed. The load may be asynchronous on the target
// side; a settle wait inside the phase gives eventual consistency a head
// start before the audit polls, and re-applies on every retry.
func (p *Pipeline) StageToTarget(ctx context.Context, pipelineID, dagRunID string) error {
	rec, err := p.store.Get(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("stage to target: %w", err)
	}

	if rec.StageToTarget.Status == store.StatusCompleted {
		p.log.Info("stage to target already completed, skipping load", "pipeline_id", pipelineID)
		return nil
	}

	if rec.CompletedPhase == nil || rec.CompletedPhase.Order() < store.PhaseSourceToStage.Order() {
		return fmt.Errorf("stage to target: source to stage has not completed for %s", pipelineID)
	}
	if rec.PipelineStatus != store.StatusInProgress || rec.DagRunID == nil || *rec.DagRunID != dagRunID {
		return &AcquireConflictError{PipelineID: pipelineID}
	}

	return p.runPhase(ctx, pipelineID, dagRunID, store.PhaseStageToTarget, func(ctx context.Context) error {
		// A retried load over leftovers of a partial earlier load can
		// double-ingest; the audit detects that as an integrity
		// violation and is the only actor allowed to delete the rows.
		if err := retry.Do(ctx, p.cfg.Retry, p.log, "target.load", func(ctx context.Context) error {
			return p.target.Load(ctx, rec)
		}); err != nil {
			return fmt.Errorf("load: %w", err)
		}

		p.log.Info("load triggered, settling before audit",
			"pipeline_id", pipelineID, "settle", p.cfg.SettleInterval)

		timer := time.NewTimer(p.cfg.SettleInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		return nil
	})
}
