package pipeline

import (
	"context"
	"testing"
	"time"

	"driveplane/internal/store"
)

func TestSweep_ResetsHungRun(t *testing.T) {
	e := newTestEnv(t, 0)
	val := e.generateAndValidate(t)

	// Simulate a run that died mid source-to-stage three hours ago.
	rec := e.ms.get(val.Record.PipelineID)
	owner := "run-dead"
	started := e.clock.Now().Add(-3 * time.Hour)
	rec.PipelineStatus = store.StatusInProgress
	rec.DagRunID = &owner
	rec.PipelineStartTime = &started
	rec.SourceToStage = store.PhaseState{Status: store.StatusInProgress, StartTime: &started}
	e.ms.put(rec)

	cleaned := e.pipeline.Sweep(context.Background())
	if cleaned != 1 {
		t.Fatalf("got %d cleaned, want 1", cleaned)
	}

	after := e.ms.get(val.Record.PipelineID)
	if after.PipelineStatus != store.StatusPending {
		t.Errorf("got pipeline status %s, want PENDING", after.PipelineStatus)
	}
	if after.DagRunID != nil {
		t.Errorf("lock not broken: %v", *after.DagRunID)
	}
	if after.SourceToStage.Status != store.StatusPending {
		t.Errorf("got phase status %s, want PENDING", after.SourceToStage.Status)
	}
	if after.RetryAttempt != rec.RetryAttempt+1 {
		t.Errorf("got retry attempt %d, want %d", after.RetryAttempt, rec.RetryAttempt+1)
	}

	// The next run can acquire cleanly.
	acquired, err := e.ms.Acquire(context.Background(), val.Record.PipelineID, "run-next", e.clock.Now())
	if err != nil || !acquired {
		t.Errorf("expected clean acquire after sweep, got acquired=%v err=%v", acquired, err)
	}
}

func TestSweep_PreservesCompletedPhases(t *testing.T) {
	e := newTestEnv(t, 0)
	val := e.generateAndValidate(t)

	rec := e.ms.get(val.Record.PipelineID)
	owner := "run-dead"
	started := e.clock.Now().Add(-3 * time.Hour)
	done := started.Add(10 * time.Minute)
	rec.PipelineStatus = store.StatusInProgress
	rec.DagRunID = &owner
	rec.PipelineStartTime = &started
	rec.SourceToStage = store.PhaseState{Status: store.StatusCompleted, StartTime: &started, EndTime: &done}
	rec.StageToTarget = store.PhaseState{Status: store.StatusInProgress, StartTime: &done}
	e.ms.put(rec)

	if cleaned := e.pipeline.Sweep(context.Background()); cleaned != 1 {
		t.Fatalf("got %d cleaned, want 1", cleaned)
	}

	after := e.ms.get(val.Record.PipelineID)
	if after.SourceToStage.Status != store.StatusCompleted {
		t.Errorf("completed source to stage was reset to %s", after.SourceToStage.Status)
	}
	if after.StageToTarget.Status != store.StatusPending {
		t.Errorf("got stage to target status %s, want PENDING", after.StageToTarget.Status)
	}
	if after.CompletedPhase == nil || *after.CompletedPhase != store.PhaseSourceToStage {
		t.Errorf("got completed phase %v, want source_to_stage_ingestion", after.CompletedPhase)
	}
}

func TestSweep_IgnoresFreshRuns(t *testing.T) {
	e := newTestEnv(t, 0)
	val := e.generateAndValidate(t)

	rec := e.ms.get(val.Record.PipelineID)
	owner := "run-live"
	started := e.clock.Now().Add(-30 * time.Minute)
	rec.PipelineStatus = store.StatusInProgress
	rec.DagRunID = &owner
	rec.PipelineStartTime = &started
	e.ms.put(rec)

	if cleaned := e.pipeline.Sweep(context.Background()); cleaned != 0 {
		t.Errorf("got %d cleaned, want 0 for a run inside the threshold", cleaned)
	}

	after := e.ms.get(val.Record.PipelineID)
	if after.DagRunID == nil || *after.DagRunID != "run-live" {
		t.Error("live lock was broken")
	}
}
