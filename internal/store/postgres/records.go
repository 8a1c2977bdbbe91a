package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"driveplane/internal/store"
)

// recordColumns is the canonical column list; scanRecord must stay in sync.
const recordColumns = `pipeline_id,
	source_id, source_name, source_category, source_sub_category,
	stage_id, stage_name, stage_category, stage_sub_category,
	target_id, target_name, target_category, target_sub_category,
	target_day, window_start_time, window_end_time, granularity,
	source_to_stage_ingestion_status, source_to_stage_ingestion_start_time, source_to_stage_ingestion_end_time,
	stage_to_target_ingestion_status, stage_to_target_ingestion_start_time, stage_to_target_ingestion_end_time,
	audit_status, audit_start_time, audit_end_time, audit_result,
	pipeline_status, pipeline_start_time, pipeline_end_time, pipeline_priority,
	dag_run_id,
	source_count, target_count, count_difference, percentage_difference,
	completed_phase, retry_attempt, miscellaneous,
	record_first_created_time, record_last_updated_time`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*store.PipelineRecord, error) {
	var (
		rec        store.PipelineRecord
		s2sStart   sql.NullTime
		s2sEnd     sql.NullTime
		s2tStart   sql.NullTime
		s2tEnd     sql.NullTime
		auditStart sql.NullTime
		auditEnd   sql.NullTime
		auditRes   sql.NullString
		pipeStart  sql.NullTime
		pipeEnd    sql.NullTime
		dagRunID   sql.NullString
		srcCount   sql.NullInt64
		tgtCount   sql.NullInt64
		countDiff  sql.NullInt64
		pctDiff    sql.NullFloat64
		completed  sql.NullString
		misc       []byte
	)

	err := row.Scan(
		&rec.PipelineID,
		&rec.SourceID, &rec.SourceName, &rec.SourceCategory, &rec.SourceSubCategory,
		&rec.StageID, &rec.StageName, &rec.StageCategory, &rec.StageSubCategory,
		&rec.TargetID, &rec.TargetName, &rec.TargetCategory, &rec.TargetSubCategory,
		&rec.TargetDay, &rec.WindowStartTime, &rec.WindowEndTime, &rec.Granularity,
		&rec.SourceToStage.Status, &s2sStart, &s2sEnd,
		&rec.StageToTarget.Status, &s2tStart, &s2tEnd,
		&rec.Audit.Status, &auditStart, &auditEnd, &auditRes,
		&rec.PipelineStatus, &pipeStart, &pipeEnd, &rec.PipelinePriority,
		&dagRunID,
		&srcCount, &tgtCount, &countDiff, &pctDiff,
		&completed, &rec.RetryAttempt, &misc,
		&rec.RecordFirstCreatedTime, &rec.RecordLastUpdatedTime,
	)
	if err != nil {
		return nil, err
	}

	rec.SourceToStage.StartTime = nullTimePtr(s2sStart)
	rec.SourceToStage.EndTime = nullTimePtr(s2sEnd)
	rec.StageToTarget.StartTime = nullTimePtr(s2tStart)
	rec.StageToTarget.EndTime = nullTimePtr(s2tEnd)
	rec.Audit.StartTime = nullTimePtr(auditStart)
	rec.Audit.EndTime = nullTimePtr(auditEnd)
	rec.PipelineStartTime = nullTimePtr(pipeStart)
	rec.PipelineEndTime = nullTimePtr(pipeEnd)
	rec.Miscellaneous = misc

	if dagRunID.Valid {
		rec.DagRunID = &dagRunID.String
	}
	if auditRes.Valid {
		r := store.AuditResult(auditRes.String)
		rec.AuditResult = &r
	}
	if completed.Valid {
		p := store.Phase(completed.String)
		rec.CompletedPhase = &p
	}
	if srcCount.Valid {
		rec.SourceCount = &srcCount.Int64
	}
	if tgtCount.Valid {
		rec.TargetCount = &tgtCount.Int64
	}
	if countDiff.Valid {
		rec.CountDifference = &countDiff.Int64
	}
	if pctDiff.Valid {
		rec.PercentageDifference = &pctDiff.Float64
	}

	return &rec, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// dateArg normalizes a target day for the DATE column.
func dateArg(day time.Time) string {
	return day.Format("2006-01-02")
}

// UpsertNew inserts the record unless a record with the same pipeline_id
// already exists. The existing record is never overwritten.
func (s *Store) UpsertNew(ctx context.Context, rec *store.PipelineRecord) (bool, error) {
	query := `
		INSERT INTO pipeline_records (` + recordColumns + `)
		VALUES ($1,
			$2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, NULL, NULL,
			$19, NULL, NULL,
			$20, NULL, NULL, NULL,
			$21, NULL, NULL, $22,
			NULL,
			NULL, NULL, NULL, NULL,
			NULL, $23, $24,
			$25, $26)
		ON CONFLICT (pipeline_id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		rec.PipelineID,
		rec.SourceID, rec.SourceName, rec.SourceCategory, rec.SourceSubCategory,
		rec.StageID, rec.StageName, rec.StageCategory, rec.StageSubCategory,
		rec.TargetID, rec.TargetName, rec.TargetCategory, rec.TargetSubCategory,
		dateArg(rec.TargetDay), rec.WindowStartTime, rec.WindowEndTime, rec.Granularity,
		rec.SourceToStage.Status,
		rec.StageToTarget.Status,
		rec.Audit.Status,
		rec.PipelineStatus, rec.PipelinePriority,
		rec.RetryAttempt, []byte(rec.Miscellaneous),
		rec.RecordFirstCreatedTime, rec.RecordLastUpdatedTime,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert pipeline record %s: %w", rec.PipelineID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted > 0, nil
}

// Get fetches one record by pipeline_id.
func (s *Store) Get(ctx context.Context, pipelineID string) (*store.PipelineRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM pipeline_records WHERE pipeline_id = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, pipelineID))
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline record %s: %w", pipelineID, err)
	}
	return rec, nil
}

// MaxWindowEnd returns the latest window_end_time among the identity's
// records on the target day, or nil when none exist.
func (s *Store) MaxWindowEnd(ctx context.Context, id store.Identity, targetDay time.Time) (*time.Time, error) {
	query := `
		SELECT MAX(window_end_time)
		FROM pipeline_records
		WHERE source_name = $1
		  AND source_category = $2
		  AND source_sub_category = $3
		  AND target_day = $4
	`

	var maxEnd sql.NullTime
	err := s.db.QueryRowContext(ctx, query,
		id.SourceName, id.SourceCategory, id.SourceSubCategory, dateArg(targetDay),
	).Scan(&maxEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query max window end: %w", err)
	}

	return nullTimePtr(maxEnd), nil
}

// CountsByWindow returns the stored counts of a COMPLETED record covering
// exactly this window, or nil when there is none.
func (s *Store) CountsByWindow(ctx context.Context, id store.Identity, windowStart, windowEnd time.Time) (*store.WindowCounts, error) {
	query := `
		SELECT source_count, target_count
		FROM pipeline_records
		WHERE source_name = $1
		  AND source_category = $2
		  AND source_sub_category = $3
		  AND window_start_time = $4
		  AND window_end_time = $5
		  AND pipeline_status = $6
	`

	var src, tgt sql.NullInt64
	err := s.db.QueryRowContext(ctx, query,
		id.SourceName, id.SourceCategory, id.SourceSubCategory,
		windowStart, windowEnd, store.StatusCompleted,
	).Scan(&src, &tgt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query counts by window: %w", err)
	}
	if !src.Valid || !tgt.Valid {
		return nil, nil
	}

	return &store.WindowCounts{SourceCount: src.Int64, TargetCount: tgt.Int64}, nil
}

// OldestPending returns the oldest PENDING record for the identity at the
// given priority, skipping nothing; callers apply future-window guards.
func (s *Store) OldestPending(ctx context.Context, id store.Identity, priority float64) (*store.PipelineRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM pipeline_records
		WHERE pipeline_status = $1
		  AND source_name = $2
		  AND source_category = $3
		  AND source_sub_category = $4
		  AND pipeline_priority = $5
		ORDER BY window_start_time ASC
		LIMIT 1
	`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query,
		store.StatusPending, id.SourceName, id.SourceCategory, id.SourceSubCategory, priority,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest pending record: %w", err)
	}
	return rec, nil
}

// CountPending returns the number of PENDING records across all identities.
// Feeds the backlog gauge.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pipeline_records WHERE pipeline_status = $1`,
		store.StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return count, nil
}

// ListByTargetDay returns the identity's records on the target day, oldest
// window first.
func (s *Store) ListByTargetDay(ctx context.Context, id store.Identity, targetDay time.Time) ([]*store.PipelineRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM pipeline_records
		WHERE source_name = $1
		  AND source_category = $2
		  AND source_sub_category = $3
		  AND target_day = $4
		ORDER BY window_start_time ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		id.SourceName, id.SourceCategory, id.SourceSubCategory, dateArg(targetDay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for %s: %w", dateArg(targetDay), err)
	}
	defer rows.Close()

	var records []*store.PipelineRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
