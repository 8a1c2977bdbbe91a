package pipeline

import (
	"context"
	"fmt"

	"driveplane/internal/retry"
	"driveplane/internal/store"
	"driveplane/internal/window"
)

// ValidationResult carries the gated record into the locked phases.
type ValidationResult struct {
	Record *store.PipelineRecord
	// SourceEmpty records that the source counted zero rows during
	// validation; the audit uses it to accept an empty window.
	SourceEmpty bool
}

// Validate is the gate between generation and the locked phases. It skips on
// an absent record, on a future window and on an already-processed window.
// Transient count failures never block the run: the audit settles them
// later.
func (p *Pipeline) Validate(ctx context.Context, gen *GeneratorResult) (*ValidationResult, error) {
	if gen == nil || !gen.RecordPresent {
		return nil, Skip("no record generated")
	}

	// Reconstruct the record from the generator's window instead of
	// reading the store; a divergent id would mean the derivation is not
	// deterministic.
	rec := p.buildRecord(&window.Window{
		TargetDay: gen.TargetDay,
		Start:     gen.WindowStart,
		End:       gen.WindowEnd,
		Achieved:  gen.WindowEnd.Sub(gen.WindowStart),
	}, p.clock.Now())
	if rec.PipelineID != gen.PipelineID {
		return nil, fmt.Errorf("validator: reconstructed pipeline id %s does not match generated %s",
			rec.PipelineID, gen.PipelineID)
	}

	now := p.clock.Now()
	if rec.WindowEndTime.After(now) {
		return nil, Skip("window end %s is in the future", rec.WindowEndTime)
	}

	// A completed record covering this exact window means a prior run
	// already audited it.
	stored, err := p.store.CountsByWindow(ctx, p.cfg.Identity, rec.WindowStartTime, rec.WindowEndTime)
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}
	if stored != nil && stored.SourceCount == stored.TargetCount {
		return nil, Skip("window already completed with matching counts (%d)", stored.SourceCount)
	}

	w := p.recordWindow(rec)

	srcCount, srcKnown := p.countQuietly(ctx, "source.count", func(ctx context.Context) (int64, error) {
		return p.source.Count(ctx, p.cfg.Identity, w)
	})
	tgtCount, tgtKnown := p.countQuietly(ctx, "target.count", func(ctx context.Context) (int64, error) {
		return p.target.Count(ctx, p.cfg.Identity, w)
	})

	if srcKnown && tgtKnown && srcCount == tgtCount {
		if srcCount > 0 {
			return nil, Skip("window already processed: source and target both count %d", srcCount)
		}
		// Both empty: nothing will ever arrive for this window.
		return nil, Skip("window has no data in source or target")
	}

	p.log.Info("record validated",
		"pipeline_id", rec.PipelineID,
		"window_start", rec.WindowStartTime,
		"window_end", rec.WindowEndTime,
	)

	return &ValidationResult{
		Record:      rec,
		SourceEmpty: srcKnown && srcCount == 0,
	}, nil
}

// countQuietly runs a count through the retry harness and downgrades
// exhaustion to "unknown". The validator must not fail the run over a
// transient adapter problem.
func (p *Pipeline) countQuietly(ctx context.Context, name string, fn func(context.Context) (int64, error)) (int64, bool) {
	count, err := retry.DoValue(ctx, p.cfg.Retry, p.log, name, fn)
	if err != nil {
		p.log.Warn("count unavailable during validation, continuing", "call", name, "error", err)
		return 0, false
	}
	return count, true
}
