package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"driveplane/internal/store"
)

// SelectStale returns records that have been IN_PROGRESS under a lock for
// longer than the threshold. The cutoff is computed in Go so the statement
// stays a plain comparison.
func (s *Store) SelectStale(ctx context.Context, now time.Time, threshold time.Duration) ([]store.StaleRecord, error) {
	query := `
		SELECT pipeline_id, dag_run_id, pipeline_start_time,
		       source_to_stage_ingestion_status,
		       stage_to_target_ingestion_status,
		       audit_status
		FROM pipeline_records
		WHERE pipeline_status = $1
		  AND dag_run_id IS NOT NULL
		  AND pipeline_start_time IS NOT NULL
		  AND pipeline_start_time < $2
	`

	rows, err := s.db.QueryContext(ctx, query, store.StatusInProgress, now.Add(-threshold))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale records: %w", err)
	}
	defer rows.Close()

	var stale []store.StaleRecord
	for rows.Next() {
		var rec store.StaleRecord
		if err := rows.Scan(
			&rec.PipelineID, &rec.DagRunID, &rec.PipelineStartTime,
			&rec.SourceToStageStatus, &rec.StageToTargetStatus, &rec.AuditStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stale record: %w", err)
		}
		stale = append(stale, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stale, nil
}

// ResetStale repairs one stale record. Only phases that did not complete are
// reset; completed work is preserved so the next run skips it, and
// completed_phase is rewound to the last phase that actually completed. The
// WHERE clause re-checks the observed lock owner, so a record that moved on
// since SelectStale is left alone.
func (s *Store) ResetStale(ctx context.Context, stale store.StaleRecord, now time.Time) (bool, error) {
	var completed interface{}
	switch {
	case stale.StageToTargetStatus == store.StatusCompleted:
		completed = string(store.PhaseStageToTarget)
	case stale.SourceToStageStatus == store.StatusCompleted:
		completed = string(store.PhaseSourceToStage)
	}

	sets := []string{
		"pipeline_status = $1",
		"pipeline_start_time = NULL",
		"pipeline_end_time = NULL",
		"dag_run_id = NULL",
		"completed_phase = $6",
		"retry_attempt = retry_attempt + 1",
		"record_last_updated_time = $2",
	}

	if stale.SourceToStageStatus != store.StatusCompleted {
		sets = append(sets,
			"source_to_stage_ingestion_status = $1",
			"source_to_stage_ingestion_start_time = NULL",
			"source_to_stage_ingestion_end_time = NULL",
		)
	}
	if stale.StageToTargetStatus != store.StatusCompleted {
		sets = append(sets,
			"stage_to_target_ingestion_status = $1",
			"stage_to_target_ingestion_start_time = NULL",
			"stage_to_target_ingestion_end_time = NULL",
		)
	}
	if stale.AuditStatus != store.StatusCompleted {
		sets = append(sets,
			"audit_status = $1",
			"audit_start_time = NULL",
			"audit_end_time = NULL",
			"audit_result = NULL",
		)
	}

	query := fmt.Sprintf(`
		UPDATE pipeline_records
		SET %s
		WHERE pipeline_id = $3
		  AND dag_run_id = $4
		  AND pipeline_status = $5
	`, strings.Join(sets, ",\n\t\t    "))

	res, err := s.db.ExecContext(ctx, query,
		store.StatusPending, now, stale.PipelineID, stale.DagRunID, store.StatusInProgress, completed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reset stale record %s: %w", stale.PipelineID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
