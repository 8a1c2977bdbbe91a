package pipeline

import (
	"context"
	"fmt"
	"time"

	"driveplane/internal/retry"
	"driveplane/internal/store"
)

// Audit reconciles source and target counts for the window and is the sole
// authority that marks a pipeline COMPLETED. On an integrity violation or an
// exhausted reconciliation budget it deletes the window's staged and loaded
// data, fails the pipeline and readies the record for a fresh retry.
func (p *Pipeline) Audit(ctx context.Context, pipelineID, dagRunID string, sourceEmpty bool) error {
	rec, err := p.store.Get(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	// A completed audit is final; the second invocation is a no-op.
	if rec.Audit.Status == store.StatusCompleted {
		p.log.Info("audit already completed", "pipeline_id", pipelineID)
		return nil
	}

	if rec.CompletedPhase == nil || rec.CompletedPhase.Order() < store.PhaseStageToTarget.Order() {
		return fmt.Errorf("audit: stage to target has not completed for %s", pipelineID)
	}
	if rec.PipelineStatus != store.StatusInProgress || rec.DagRunID == nil || *rec.DagRunID != dagRunID {
		return &AcquireConflictError{PipelineID: pipelineID}
	}

	began, err := p.store.BeginPhase(ctx, pipelineID, dagRunID, store.PhaseAudit, p.clock.Now())
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if !began {
		return fmt.Errorf("audit: pipeline %s is not in progress under this run", pipelineID)
	}

	src, tgt, verdict, err := p.reconcile(ctx, rec, sourceEmpty)
	if err != nil {
		// Adapter trouble, not a data verdict: reset the audit phase and
		// release the lock so a later run retries cleanly. No data is
		// deleted on this path.
		if _, resetErr := p.store.ResetPhase(ctx, pipelineID, store.PhaseAudit, p.clock.Now()); resetErr != nil {
			p.log.Error("failed to reset audit after error", "pipeline_id", pipelineID, "error", resetErr)
		}
		return fmt.Errorf("audit: %w", err)
	}

	if verdict == store.AuditResultSuccess {
		ok, err := p.store.FinalizeOK(ctx, pipelineID, p.clock.Now(), store.Counts(src, tgt))
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		if !ok {
			return fmt.Errorf("audit: finalize refused for %s", pipelineID)
		}
		p.log.Info("audit passed, pipeline completed",
			"pipeline_id", pipelineID, "source_count", src, "target_count", tgt)
		return nil
	}

	// Failure path: the audit is the only place that deletes data.
	p.cleanup(ctx, rec)

	if _, err := p.store.FinalizeFail(ctx, pipelineID, p.clock.Now(), verdict); err != nil {
		p.log.Error("failed to record audit failure", "pipeline_id", pipelineID, "error", err)
	}
	p.log.Error("audit failed, pipeline reset for retry",
		"pipeline_id", pipelineID,
		"result", verdict,
		"source_count", src,
		"target_count", tgt,
	)

	if verdict == store.AuditResultIntegrityViolation {
		return &IntegrityError{SourceCount: src, TargetCount: tgt}
	}
	return &MismatchError{SourceCount: src, TargetCount: tgt}
}

// reconcile polls counts until they settle or the budget runs out. The
// target is allowed to lag (still loading); it is never allowed to lead.
func (p *Pipeline) reconcile(ctx context.Context, rec *store.PipelineRecord, sourceEmpty bool) (src, tgt int64, verdict store.AuditResult, err error) {
	w := p.recordWindow(rec)
	deadline := p.clock.Now().Add(p.cfg.Audit.MaxWait)
	delay := p.cfg.Audit.InitialDelay

	for {
		src, err = retry.DoValue(ctx, p.cfg.Retry, p.log, "source.count", func(ctx context.Context) (int64, error) {
			return p.source.Count(ctx, p.cfg.Identity, w)
		})
		if err != nil {
			return 0, 0, "", fmt.Errorf("source count: %w", err)
		}
		tgt, err = retry.DoValue(ctx, p.cfg.Retry, p.log, "target.count", func(ctx context.Context) (int64, error) {
			return p.target.Count(ctx, p.cfg.Identity, w)
		})
		if err != nil {
			return 0, 0, "", fmt.Errorf("target count: %w", err)
		}

		switch {
		case tgt > src:
			return src, tgt, store.AuditResultIntegrityViolation, nil
		case tgt == src && src > 0:
			return src, tgt, store.AuditResultSuccess, nil
		case tgt == 0 && src == 0 && sourceEmpty:
			// The validator already saw an empty source; an empty
			// window is a legitimate completion.
			return 0, 0, store.AuditResultSuccess, nil
		}

		// Target still behind (or both zero without corroboration):
		// keep polling inside the budget.
		if !p.clock.Now().Add(delay).Before(deadline) {
			return src, tgt, store.AuditResultMismatch, nil
		}

		p.log.Info("target still loading, waiting",
			"pipeline_id", rec.PipelineID,
			"source_count", src,
			"target_count", tgt,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, 0, "", ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.cfg.Audit.Multiplier)
		if delay > p.cfg.Audit.MaxDelay {
			delay = p.cfg.Audit.MaxDelay
		}
	}
}

// cleanup removes the window's staged objects and target rows. Failures are
// logged only; they must not keep the record from being reset.
func (p *Pipeline) cleanup(ctx context.Context, rec *store.PipelineRecord) {
	if err := retry.Do(ctx, p.cfg.Retry, p.log, "stage.delete", func(ctx context.Context) error {
		return p.stage.Delete(ctx, rec.StagePath())
	}); err != nil {
		p.log.Error("stage cleanup failed", "pipeline_id", rec.PipelineID, "error", err)
	}

	if err := retry.Do(ctx, p.cfg.Retry, p.log, "target.delete", func(ctx context.Context) error {
		return p.target.Delete(ctx, p.cfg.Identity, p.recordWindow(rec))
	}); err != nil {
		p.log.Error("target cleanup failed", "pipeline_id", rec.PipelineID, "error", err)
	}
}
