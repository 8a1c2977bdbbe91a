package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"driveplane/pkg/api"
)

func TestStatusCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/pipelines/abc123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		src, tgt := int64(500), int64(500)
		resp := api.RecordResponse{
			PipelineID:     "abc123",
			TargetDay:      "2025-01-01",
			WindowStart:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			WindowEnd:      time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC),
			Granularity:    "30m",
			PipelineStatus: "COMPLETED",
			SourceCount:    &src,
			TargetCount:    &tgt,
			RetryAttempt:   1,
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)

	out := execute(t, "status", "abc123")
	if !strings.Contains(out, "abc123") {
		t.Errorf("output missing pipeline id: %s", out)
	}
	if !strings.Contains(out, "COMPLETED") {
		t.Errorf("output missing status: %s", out)
	}
	if !strings.Contains(out, "source=500") {
		t.Errorf("output missing counts: %s", out)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Record not found"})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)

	out := execute(t, "status", "missing")
	if !strings.Contains(out, "Failed to fetch record") {
		t.Errorf("expected failure message, got: %s", out)
	}
}
