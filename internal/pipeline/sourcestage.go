package pipeline

import (
	"context"
	"fmt"

	"driveplane/internal/store"
)

// SourceToStage acquires the pipeline lock and moves the window's data from
// the source into the stage path. Concurrent runs are not allowed: losing
// the acquire race fails the phase without touching the record.
func (p *Pipeline) SourceToStage(ctx context.Context, val *ValidationResult, dagRunID string) error {
	if val == nil || val.Record == nil {
		return fmt.Errorf("source to stage: no validated record")
	}
	pipelineID := val.Record.PipelineID

	rec, err := p.store.Get(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("source to stage: %w", err)
	}

	// Take the lock unless this run already holds it (re-entry after a
	// downstream failure released and re-pended the record is the common
	// case; the happy path acquires fresh).
	owned := rec.PipelineStatus == store.StatusInProgress && rec.DagRunID != nil && *rec.DagRunID == dagRunID
	if !owned {
		acquired, err := p.store.Acquire(ctx, pipelineID, dagRunID, p.clock.Now())
		if err != nil {
			return fmt.Errorf("source to stage: %w", err)
		}
		if !acquired {
			return &AcquireConflictError{PipelineID: pipelineID}
		}
	}

	if rec.SourceToStage.Status == store.StatusCompleted {
		p.log.Info("source to stage already completed, skipping transfer", "pipeline_id", pipelineID)
		return nil
	}

	return p.runPhase(ctx, pipelineID, dagRunID, store.PhaseSourceToStage, func(ctx context.Context) error {
		// Partial writes from a failed attempt stay behind: retries
		// overwrite them in place, and the audit's failure cleanup is
		// the only actor allowed to delete staged data.
		if err := p.transfer.Transfer(ctx, rec); err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		return nil
	})
}
