package handlers

import (
	"net/http"

	"driveplane/internal/pipeline"
	"driveplane/pkg/api"
)

// ---------------------------------------------------------
// Internal operator endpoints.
// These bypass the schedule and should sit behind the
// internal-auth middleware and strict network rules.
// ---------------------------------------------------------

// InternalRun handles POST /internal/run.
// Triggers one full pipeline pass (generate onwards) immediately.
func (h *Handlers) InternalRun(w http.ResponseWriter, r *http.Request) {
	runID := pipeline.NewRunID("manual")

	outcome, err := h.runner.Run(r.Context(), runID)
	if err != nil {
		h.log.Error("manual run failed", "run_id", runID, "error", err)
		h.respondJson(w, http.StatusInternalServerError, api.ErrorResponse{
			Error:   "Run failed",
			Details: err.Error(),
		})
		return
	}

	h.respondJson(w, http.StatusOK, toRunResponse(outcome))
}

// InternalRunPending handles POST /internal/run/pending.
// Drives the oldest pending record through the locked phases.
func (h *Handlers) InternalRunPending(w http.ResponseWriter, r *http.Request) {
	runID := pipeline.NewRunID("manual")

	outcome, err := h.runner.RunPending(r.Context(), runID)
	if err != nil {
		h.log.Error("manual pending run failed", "run_id", runID, "error", err)
		h.respondJson(w, http.StatusInternalServerError, api.ErrorResponse{
			Error:   "Pending run failed",
			Details: err.Error(),
		})
		return
	}

	h.respondJson(w, http.StatusOK, toRunResponse(outcome))
}

// InternalSweep handles POST /internal/sweep.
// Runs the stale-lock sweeper on demand.
func (h *Handlers) InternalSweep(w http.ResponseWriter, r *http.Request) {
	cleaned := h.runner.Sweep(r.Context())
	h.respondJson(w, http.StatusOK, api.SweepResponse{Cleaned: cleaned})
}

func toRunResponse(outcome pipeline.RunOutcome) api.RunResponse {
	return api.RunResponse{
		RunID:      outcome.RunID,
		PipelineID: outcome.PipelineID,
		Skipped:    outcome.Skipped,
		SkipReason: outcome.SkipReason,
		Swept:      outcome.Swept,
	}
}
