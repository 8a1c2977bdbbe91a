// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the orchestrator's HTTP API.
package api

import "time"

// PhaseResponse is one phase's status block in API responses.
type PhaseResponse struct {
	Status    string     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// RecordResponse represents a pipeline record in API responses.
type RecordResponse struct {
	PipelineID string `json:"pipeline_id"`

	SourceName        string `json:"source_name"`
	SourceCategory    string `json:"source_category"`
	SourceSubCategory string `json:"source_sub_category"`

	TargetDay   string    `json:"target_day"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Granularity string    `json:"granularity"`

	SourceToStage PhaseResponse `json:"source_to_stage_ingestion"`
	StageToTarget PhaseResponse `json:"stage_to_target_ingestion"`
	Audit         PhaseResponse `json:"audit"`

	PipelineStatus string     `json:"pipeline_status"`
	PipelineStart  *time.Time `json:"pipeline_start_time,omitempty"`
	PipelineEnd    *time.Time `json:"pipeline_end_time,omitempty"`
	Priority       float64    `json:"pipeline_priority"`

	DagRunID *string `json:"dag_run_id,omitempty"`

	AuditResult          *string  `json:"audit_result,omitempty"`
	SourceCount          *int64   `json:"source_count,omitempty"`
	TargetCount          *int64   `json:"target_count,omitempty"`
	CountDifference      *int64   `json:"count_difference,omitempty"`
	PercentageDifference *float64 `json:"percentage_difference,omitempty"`

	CompletedPhase *string `json:"completed_phase,omitempty"`
	RetryAttempt   int     `json:"retry_attempt"`
	StagePath      string  `json:"stage_path,omitempty"`

	FirstCreated time.Time `json:"record_first_created_time"`
	LastUpdated  time.Time `json:"record_last_updated_time"`
}

// RunResponse is returned by the internal run trigger.
type RunResponse struct {
	RunID      string `json:"run_id"`
	PipelineID string `json:"pipeline_id,omitempty"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
	Swept      int    `json:"swept"`
}

// SweepResponse is returned by the internal sweep trigger.
type SweepResponse struct {
	Cleaned int `json:"cleaned"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
