package pipeline

import (
	"context"
)

// Sweep scans for records left IN_PROGRESS beyond the stale threshold and
// selectively resets them: hung or failed phases go back to PENDING, the
// lock is broken, completed phases stay untouched. It runs after every
// scheduled run regardless of outcome, swallows its own errors and returns
// the number of repaired records for monitoring.
func (p *Pipeline) Sweep(ctx context.Context) int {
	now := p.clock.Now()

	stale, err := p.store.SelectStale(ctx, now, p.cfg.StaleThreshold)
	if err != nil {
		p.log.Error("stale lock scan failed", "error", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	cleaned := 0
	for _, rec := range stale {
		ok, err := p.store.ResetStale(ctx, rec, now)
		if err != nil {
			p.log.Error("failed to reset stale record",
				"pipeline_id", rec.PipelineID, "error", err)
			continue
		}
		if !ok {
			// Re-acquired since the scan; leave it alone.
			continue
		}
		cleaned++
		p.log.Warn("stale lock broken",
			"pipeline_id", rec.PipelineID,
			"run_id", rec.DagRunID,
			"held_since", rec.PipelineStartTime,
		)
	}

	if cleaned > 0 {
		p.log.Info("stale lock sweep finished", "cleaned", cleaned)
	}
	return cleaned
}
