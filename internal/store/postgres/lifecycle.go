package postgres

import (
	"context"
	"fmt"
	"time"

	"driveplane/internal/store"
)

// All lifecycle transitions are single-statement compare-and-set updates.
// The WHERE clause encodes the precondition; zero affected rows means the
// precondition was not met and the caller gets false, not an error.

// Acquire takes the pipeline lock for dagRunID. Only a PENDING or FAILED
// pipeline with no owner can be acquired.
func (s *Store) Acquire(ctx context.Context, pipelineID, dagRunID string, now time.Time) (bool, error) {
	query := `
		UPDATE pipeline_records
		SET pipeline_status = $1,
		    pipeline_start_time = $2,
		    dag_run_id = $3,
		    record_last_updated_time = $2
		WHERE pipeline_id = $4
		  AND pipeline_status IN ($5, $6)
		  AND dag_run_id IS NULL
	`

	res, err := s.db.ExecContext(ctx, query,
		store.StatusInProgress, now, dagRunID,
		pipelineID, store.StatusPending, store.StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire pipeline %s: %w", pipelineID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// BeginPhase marks the phase IN_PROGRESS. The pipeline must be IN_PROGRESS
// and owned by dagRunID.
func (s *Store) BeginPhase(ctx context.Context, pipelineID, dagRunID string, phase store.Phase, now time.Time) (bool, error) {
	prefix, err := phasePrefix(phase)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE pipeline_records
		SET %[1]s_status = $1,
		    %[1]s_start_time = $2,
		    record_last_updated_time = $2
		WHERE pipeline_id = $3
		  AND pipeline_status = $4
		  AND dag_run_id = $5
	`, prefix)

	res, err := s.db.ExecContext(ctx, query,
		store.StatusInProgress, now, pipelineID, store.StatusInProgress, dagRunID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to begin phase %s for %s: %w", phase, pipelineID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EndPhaseOK marks the phase COMPLETED and advances completed_phase.
func (s *Store) EndPhaseOK(ctx context.Context, pipelineID string, phase store.Phase, now time.Time) (bool, error) {
	prefix, err := phasePrefix(phase)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE pipeline_records
		SET %[1]s_status = $1,
		    %[1]s_end_time = $2,
		    completed_phase = $3,
		    record_last_updated_time = $2
		WHERE pipeline_id = $4
		  AND %[1]s_status = $5
	`, prefix)

	res, err := s.db.ExecContext(ctx, query,
		store.StatusCompleted, now, phase, pipelineID, store.StatusInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("failed to end phase %s for %s: %w", phase, pipelineID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResetPhase returns the phase to PENDING, clears its timestamps, releases
// the lock, sets the pipeline back to PENDING and bumps retry_attempt. A
// later run can then acquire cleanly.
func (s *Store) ResetPhase(ctx context.Context, pipelineID string, phase store.Phase, now time.Time) (bool, error) {
	prefix, err := phasePrefix(phase)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE pipeline_records
		SET %[1]s_status = $1,
		    %[1]s_start_time = NULL,
		    %[1]s_end_time = NULL,
		    pipeline_status = $1,
		    pipeline_start_time = NULL,
		    dag_run_id = NULL,
		    retry_attempt = retry_attempt + 1,
		    record_last_updated_time = $2
		WHERE pipeline_id = $3
	`, prefix)

	res, err := s.db.ExecContext(ctx, query, store.StatusPending, now, pipelineID)
	if err != nil {
		return false, fmt.Errorf("failed to reset phase %s for %s: %w", phase, pipelineID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinalizeOK completes the audit and the pipeline in one transition. The
// dag_run_id is preserved so the record shows which run completed it.
func (s *Store) FinalizeOK(ctx context.Context, pipelineID string, now time.Time, counts store.AuditCounts) (bool, error) {
	query := `
		UPDATE pipeline_records
		SET audit_status = $1,
		    audit_end_time = $2,
		    audit_result = $3,
		    pipeline_status = $1,
		    pipeline_end_time = $2,
		    completed_phase = $4,
		    source_count = $5,
		    target_count = $6,
		    count_difference = $7,
		    percentage_difference = $8,
		    record_last_updated_time = $2
		WHERE pipeline_id = $9
		  AND audit_status = $10
	`

	res, err := s.db.ExecContext(ctx, query,
		store.StatusCompleted, now, store.AuditResultSuccess, store.PhaseAudit,
		counts.SourceCount, counts.TargetCount, counts.CountDifference, counts.PercentageDifference,
		pipelineID, store.StatusInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize pipeline %s: %w", pipelineID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinalizeFail fails the audit and the pipeline: the audit keeps its FAILED
// status and result for diagnosis, both ingestion phases reset to PENDING,
// the lock is cleared and retry_attempt is bumped. The record is then ready
// for a fresh retry.
func (s *Store) FinalizeFail(ctx context.Context, pipelineID string, now time.Time, result store.AuditResult) (bool, error) {
	query := `
		UPDATE pipeline_records
		SET audit_status = $1,
		    audit_end_time = $2,
		    audit_result = $3,
		    pipeline_status = $1,
		    pipeline_start_time = NULL,
		    pipeline_end_time = NULL,
		    dag_run_id = NULL,
		    completed_phase = NULL,
		    source_to_stage_ingestion_status = $4,
		    source_to_stage_ingestion_start_time = NULL,
		    source_to_stage_ingestion_end_time = NULL,
		    stage_to_target_ingestion_status = $4,
		    stage_to_target_ingestion_start_time = NULL,
		    stage_to_target_ingestion_end_time = NULL,
		    source_count = NULL,
		    target_count = NULL,
		    count_difference = NULL,
		    percentage_difference = NULL,
		    retry_attempt = retry_attempt + 1,
		    record_last_updated_time = $2
		WHERE pipeline_id = $5
	`

	res, err := s.db.ExecContext(ctx, query,
		store.StatusFailed, now, result, store.StatusPending, pipelineID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to fail pipeline %s: %w", pipelineID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
