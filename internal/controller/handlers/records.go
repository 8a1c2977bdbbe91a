package handlers

import (
	"net/http"
	"time"

	"driveplane/pkg/api"
)

// GetRecord handles GET /pipelines/{id}.
// Returns the full state of one pipeline record.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	pipelineID := r.PathValue("id")
	if pipelineID == "" {
		h.httpError(w, "Missing pipeline id", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Get(r.Context(), pipelineID)
	if err != nil {
		h.httpError(w, "Record not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, toRecordResponse(rec))
}

// ListRecords handles GET /pipelines?target_day=YYYY-MM-DD.
// Returns the identity's records for one target day, oldest window first.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	dayStr := r.URL.Query().Get("target_day")
	if dayStr == "" {
		h.httpError(w, "target_day query parameter is required", http.StatusBadRequest)
		return
	}

	day, err := time.Parse("2006-01-02", dayStr)
	if err != nil {
		h.httpError(w, "Invalid target_day, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	records, err := h.store.ListByTargetDay(r.Context(), h.identity, day)
	if err != nil {
		h.log.Error("failed to list records", "target_day", dayStr, "error", err)
		h.httpError(w, "Failed to list records", http.StatusInternalServerError)
		return
	}

	out := make([]api.RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	h.respondJson(w, http.StatusOK, out)
}
