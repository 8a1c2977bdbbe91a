package pipeline

import (
	"context"
	"fmt"

	"driveplane/internal/store"
)

// runPhase is the shared lifecycle template for the locked ingestion phases:
// begin-phase, do the work, end-phase on success, reset-phase on failure.
// State writes happen at phase edges only; the work callback does the real
// I/O. The original failure is always the one returned, with the reset
// being best effort on top.
func (p *Pipeline) runPhase(ctx context.Context, pipelineID, dagRunID string, phase store.Phase, work func(context.Context) error) error {
	began, err := p.store.BeginPhase(ctx, pipelineID, dagRunID, phase, p.clock.Now())
	if err != nil {
		return fmt.Errorf("begin %s: %w", phase, err)
	}
	if !began {
		return fmt.Errorf("begin %s: pipeline %s is not in progress under this run", phase, pipelineID)
	}

	p.log.Info("phase started", "pipeline_id", pipelineID, "phase", phase, "run_id", dagRunID)

	if err := work(ctx); err != nil {
		if _, resetErr := p.store.ResetPhase(ctx, pipelineID, phase, p.clock.Now()); resetErr != nil {
			p.log.Error("failed to reset phase after failure",
				"pipeline_id", pipelineID, "phase", phase, "error", resetErr)
		} else {
			p.log.Warn("phase failed, record reset for retry",
				"pipeline_id", pipelineID, "phase", phase, "error", err)
		}
		return err
	}

	ended, err := p.store.EndPhaseOK(ctx, pipelineID, phase, p.clock.Now())
	if err != nil {
		return fmt.Errorf("end %s: %w", phase, err)
	}
	if !ended {
		return fmt.Errorf("end %s: pipeline %s phase was not in progress", phase, pipelineID)
	}

	p.log.Info("phase completed", "pipeline_id", pipelineID, "phase", phase)
	return nil
}
