package store

import (
	"context"
	"database/sql"
	"time"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// RecordStore is the durable table of pipeline records. Every mutation is a
// single-row compare-and-set: the WHERE clause encodes the precondition and
// an unmet precondition returns false rather than an error.
type RecordStore interface {
	// UpsertNew inserts the record if no record with its pipeline_id
	// exists. An existing record is never overwritten; returns whether a
	// row was inserted.
	UpsertNew(ctx context.Context, rec *PipelineRecord) (bool, error)

	// Acquire takes the pipeline lock: sets IN_PROGRESS, pipeline_start_time
	// and dag_run_id, but only if the pipeline is PENDING or FAILED and
	// unowned. Returns whether the lock was acquired.
	Acquire(ctx context.Context, pipelineID, dagRunID string, now time.Time) (bool, error)

	// BeginPhase marks a phase IN_PROGRESS. Precondition: the pipeline is
	// IN_PROGRESS and owned by dagRunID.
	BeginPhase(ctx context.Context, pipelineID, dagRunID string, phase Phase, now time.Time) (bool, error)

	// EndPhaseOK marks a phase COMPLETED and advances completed_phase.
	EndPhaseOK(ctx context.Context, pipelineID string, phase Phase, now time.Time) (bool, error)

	// ResetPhase returns a phase to PENDING, clears its timestamps,
	// releases the lock, sets the pipeline back to PENDING and increments
	// retry_attempt.
	ResetPhase(ctx context.Context, pipelineID string, phase Phase, now time.Time) (bool, error)

	// FinalizeOK completes the audit and the pipeline in one transition,
	// storing the reconciliation counts. The dag_run_id is preserved for
	// attribution.
	FinalizeOK(ctx context.Context, pipelineID string, now time.Time, counts AuditCounts) (bool, error)

	// FinalizeFail fails the audit and the pipeline: audit status FAILED
	// with the given result, ingestion phases reset to PENDING, lock
	// cleared, retry_attempt incremented.
	FinalizeFail(ctx context.Context, pipelineID string, now time.Time, result AuditResult) (bool, error)

	// MaxWindowEnd returns the latest window_end_time among records of the
	// identity triple on the target day, or nil when none exist.
	MaxWindowEnd(ctx context.Context, id Identity, targetDay time.Time) (*time.Time, error)

	// CountsByWindow returns the stored counts of a COMPLETED record
	// covering exactly this window, or nil when no such record exists.
	CountsByWindow(ctx context.Context, id Identity, windowStart, windowEnd time.Time) (*WindowCounts, error)

	// SelectStale returns records that have been IN_PROGRESS under a lock
	// for longer than the threshold.
	SelectStale(ctx context.Context, now time.Time, threshold time.Duration) ([]StaleRecord, error)

	// ResetStale repairs one stale record: lock cleared, pipeline PENDING,
	// retry_attempt incremented, non-completed phases reset. Completed
	// phases are left untouched so retries skip them.
	ResetStale(ctx context.Context, stale StaleRecord, now time.Time) (bool, error)

	// Get fetches one record by pipeline_id.
	Get(ctx context.Context, pipelineID string) (*PipelineRecord, error)

	// OldestPending returns the oldest PENDING record for the identity
	// triple at the given priority, ordered by window_start_time.
	OldestPending(ctx context.Context, id Identity, priority float64) (*PipelineRecord, error)

	// ListByTargetDay returns all records of the identity triple on the
	// target day, oldest window first.
	ListByTargetDay(ctx context.Context, id Identity, targetDay time.Time) ([]*PipelineRecord, error)
}
