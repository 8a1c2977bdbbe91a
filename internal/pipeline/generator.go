package pipeline

import (
	"context"
	"fmt"
	"time"
)

// GeneratorResult is the small payload the generator hands downstream.
type GeneratorResult struct {
	RecordPresent bool      `json:"record_present"`
	PipelineID    string    `json:"pipeline_id,omitempty"`
	TargetDay     time.Time `json:"target_day,omitempty"`
	WindowStart   time.Time `json:"window_start,omitempty"`
	WindowEnd     time.Time `json:"window_end,omitempty"`
}

// Generate builds or continues the record for the target day. It never
// acquires the pipeline lock and never overwrites an existing record with
// the same id. Re-running it with the same clock is not a no-op: the rerun
// continues from the latest stored window end and inserts the record for the
// next window of the day.
func (p *Pipeline) Generate(ctx context.Context) (*GeneratorResult, error) {
	now := p.clock.Now()

	w, err := p.windows.Next(ctx, p.cfg.Identity, now)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	if w == nil {
		p.log.Info("target day fully covered, nothing to generate",
			"source", p.cfg.Identity.SourceSubCategory)
		return &GeneratorResult{RecordPresent: false}, nil
	}

	rec := p.buildRecord(w, now)

	inserted, err := p.store.UpsertNew(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	if inserted {
		p.log.Info("pipeline record created",
			"pipeline_id", rec.PipelineID,
			"target_day", w.TargetDay.Format("2006-01-02"),
			"window_start", w.Start,
			"window_end", w.End,
			"granularity", rec.Granularity,
		)
	} else {
		// Benign idempotent re-run; the stored record wins.
		p.log.Info("pipeline record already exists", "pipeline_id", rec.PipelineID)
	}

	return &GeneratorResult{
		RecordPresent: true,
		PipelineID:    rec.PipelineID,
		TargetDay:     w.TargetDay,
		WindowStart:   w.Start,
		WindowEnd:     w.End,
	}, nil
}
