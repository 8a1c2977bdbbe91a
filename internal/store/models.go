// Package store contains the database layer for driveplane.
package store

import (
	"encoding/json"
	"time"
)

// Status represents the state of a pipeline or one of its phases.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Phase identifies one of the locked phases of a pipeline run.
type Phase string

const (
	PhaseSourceToStage Phase = "source_to_stage_ingestion"
	PhaseStageToTarget Phase = "stage_to_target_ingestion"
	PhaseAudit         Phase = "audit"
)

// phaseOrder fixes the linear phase ordering used for resume checks.
var phaseOrder = map[Phase]int{
	PhaseSourceToStage: 1,
	PhaseStageToTarget: 2,
	PhaseAudit:         3,
}

// Order returns the position of the phase in the pipeline's linear order.
// Unknown phases sort before everything.
func (p Phase) Order() int {
	return phaseOrder[p]
}

// AuditResult is the outcome recorded by the audit phase.
type AuditResult string

const (
	AuditResultSuccess            AuditResult = "SUCCESS"
	AuditResultIntegrityViolation AuditResult = "INTEGRITY_VIOLATION"
	AuditResultMismatch           AuditResult = "MISMATCH"
)

// Identity names the (source, stage, target) triple a pipeline moves data
// between. Store queries scope by the source triple; the full set is
// persisted on every record.
type Identity struct {
	SourceName        string
	SourceCategory    string
	SourceSubCategory string

	StageName        string
	StageCategory    string
	StageSubCategory string

	TargetName        string
	TargetCategory    string
	TargetSubCategory string
}

// PhaseState is the per-phase status block of a pipeline record.
type PhaseState struct {
	Status    Status
	StartTime *time.Time
	EndTime   *time.Time
}

// PipelineRecord is one persistent unit of work: a (source, stage, target)
// triple bound to a half-open time window within a target day. Records are
// never deleted; completed records remain as history.
type PipelineRecord struct {
	PipelineID string

	SourceID          string
	SourceName        string
	SourceCategory    string
	SourceSubCategory string

	StageID          string
	StageName        string
	StageCategory    string
	StageSubCategory string

	TargetID          string
	TargetName        string
	TargetCategory    string
	TargetSubCategory string

	TargetDay       time.Time // calendar date in the operating timezone
	WindowStartTime time.Time
	WindowEndTime   time.Time
	Granularity     string // achieved granularity, compound form ("30m")

	SourceToStage PhaseState
	StageToTarget PhaseState
	Audit         PhaseState

	PipelineStatus    Status
	PipelineStartTime *time.Time
	PipelineEndTime   *time.Time
	PipelinePriority  float64

	// DagRunID is the lock: non-null means the record is owned by that run.
	DagRunID *string

	AuditResult          *AuditResult
	SourceCount          *int64
	TargetCount          *int64
	CountDifference      *int64
	PercentageDifference *float64

	// CompletedPhase is the last phase durably recorded as successful.
	CompletedPhase *Phase

	RetryAttempt int

	// Miscellaneous is a semi-structured blob; the generator writes the
	// stage path here.
	Miscellaneous json.RawMessage

	RecordFirstCreatedTime time.Time
	RecordLastUpdatedTime  time.Time
}

// Misc is the known shape of the Miscellaneous blob.
type Misc struct {
	StagePath string `json:"stage_path"`
}

// StagePath decodes the stage path from the miscellaneous blob. Returns ""
// when absent or undecodable.
func (r *PipelineRecord) StagePath() string {
	if len(r.Miscellaneous) == 0 {
		return ""
	}
	var m Misc
	if err := json.Unmarshal(r.Miscellaneous, &m); err != nil {
		return ""
	}
	return m.StagePath
}

// Identity returns the identity triple of the record.
func (r *PipelineRecord) Identity() Identity {
	return Identity{
		SourceName:        r.SourceName,
		SourceCategory:    r.SourceCategory,
		SourceSubCategory: r.SourceSubCategory,
		StageName:         r.StageName,
		StageCategory:     r.StageCategory,
		StageSubCategory:  r.StageSubCategory,
		TargetName:        r.TargetName,
		TargetCategory:    r.TargetCategory,
		TargetSubCategory: r.TargetSubCategory,
	}
}

// Phase returns the status block for the given phase.
func (r *PipelineRecord) Phase(p Phase) PhaseState {
	switch p {
	case PhaseSourceToStage:
		return r.SourceToStage
	case PhaseStageToTarget:
		return r.StageToTarget
	case PhaseAudit:
		return r.Audit
	default:
		return PhaseState{}
	}
}

// AuditCounts carries the reconciliation numbers written by FinalizeOK.
type AuditCounts struct {
	SourceCount          int64
	TargetCount          int64
	CountDifference      int64
	PercentageDifference float64
}

// Counts derives the bookkeeping fields from a source/target pair.
// The percentage is 0 when the source count is 0.
func Counts(source, target int64) AuditCounts {
	diff := target - source
	var pct float64
	if source != 0 {
		pct = float64(diff) / float64(source) * 100
	}
	return AuditCounts{
		SourceCount:          source,
		TargetCount:          target,
		CountDifference:      diff,
		PercentageDifference: pct,
	}
}

// WindowCounts is the stored count pair for an already-audited window.
type WindowCounts struct {
	SourceCount int64
	TargetCount int64
}

// StaleRecord is the slice of a record the sweeper needs to repair it.
type StaleRecord struct {
	PipelineID          string
	DagRunID            string
	PipelineStartTime   time.Time
	SourceToStageStatus Status
	StageToTargetStatus Status
	AuditStatus         Status
}
