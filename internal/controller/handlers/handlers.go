// Package handlers contains HTTP handlers for the orchestrator's API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"driveplane/internal/pipeline"
	"driveplane/internal/store"
	"driveplane/pkg/api"
)

// RecordReader is the read-only slice of the record store the API serves.
type RecordReader interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, pipelineID string) (*store.PipelineRecord, error)
	ListByTargetDay(ctx context.Context, id store.Identity, targetDay time.Time) ([]*store.PipelineRecord, error)
}

// Runner triggers pipeline passes on demand; satisfied by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, runID string) (pipeline.RunOutcome, error)
	RunPending(ctx context.Context, runID string) (pipeline.RunOutcome, error)
	Sweep(ctx context.Context) int
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    RecordReader
	runner   Runner
	identity store.Identity
	log      *slog.Logger
}

// New creates a new Handlers instance.
func New(s RecordReader, r Runner, id store.Identity, log *slog.Logger) *Handlers {
	return &Handlers{store: s, runner: r, identity: id, log: log}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func toPhaseResponse(p store.PhaseState) api.PhaseResponse {
	return api.PhaseResponse{
		Status:    string(p.Status),
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
	}
}

func toRecordResponse(rec *store.PipelineRecord) api.RecordResponse {
	resp := api.RecordResponse{
		PipelineID:        rec.PipelineID,
		SourceName:        rec.SourceName,
		SourceCategory:    rec.SourceCategory,
		SourceSubCategory: rec.SourceSubCategory,
		TargetDay:         rec.TargetDay.Format("2006-01-02"),
		WindowStart:       rec.WindowStartTime,
		WindowEnd:         rec.WindowEndTime,
		Granularity:       rec.Granularity,
		SourceToStage:     toPhaseResponse(rec.SourceToStage),
		StageToTarget:     toPhaseResponse(rec.StageToTarget),
		Audit:             toPhaseResponse(rec.Audit),
		PipelineStatus:    string(rec.PipelineStatus),
		PipelineStart:     rec.PipelineStartTime,
		PipelineEnd:       rec.PipelineEndTime,
		Priority:          rec.PipelinePriority,
		DagRunID:          rec.DagRunID,
		SourceCount:       rec.SourceCount,
		TargetCount:       rec.TargetCount,
		CountDifference:   rec.CountDifference,
		RetryAttempt:      rec.RetryAttempt,
		StagePath:         rec.StagePath(),
		FirstCreated:      rec.RecordFirstCreatedTime,
		LastUpdated:       rec.RecordLastUpdatedTime,
	}
	resp.PercentageDifference = rec.PercentageDifference
	if rec.AuditResult != nil {
		s := string(*rec.AuditResult)
		resp.AuditResult = &s
	}
	if rec.CompletedPhase != nil {
		s := string(*rec.CompletedPhase)
		resp.CompletedPhase = &s
	}
	return resp
}
