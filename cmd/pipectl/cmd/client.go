package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"driveplane/pkg/api"
)

// PipeClient handles API calls to the driveplane orchestrator.
type PipeClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewPipeClient creates a new client with the given base URL and token.
func NewPipeClient(baseURL, token string) *PipeClient {
	return &PipeClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			// Manual runs block until the pass finishes.
			Timeout: 10 * time.Minute,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *PipeClient) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// GetRecord sends GET /pipelines/{id}.
func (c *PipeClient) GetRecord(pipelineID string) (*api.RecordResponse, error) {
	var rec api.RecordResponse
	if err := c.do(http.MethodGet, "/pipelines/"+pipelineID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecords sends GET /pipelines?target_day=...
func (c *PipeClient) ListRecords(day string) ([]api.RecordResponse, error) {
	var records []api.RecordResponse
	if err := c.do(http.MethodGet, "/pipelines?target_day="+day, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// TriggerRun sends POST /internal/run (or /internal/run/pending).
func (c *PipeClient) TriggerRun(pending bool) (*api.RunResponse, error) {
	path := "/internal/run"
	if pending {
		path = "/internal/run/pending"
	}

	var run api.RunResponse
	if err := c.do(http.MethodPost, path, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// TriggerSweep sends POST /internal/sweep.
func (c *PipeClient) TriggerSweep() (*api.SweepResponse, error) {
	var sweep api.SweepResponse
	if err := c.do(http.MethodPost, "/internal/sweep", &sweep); err != nil {
		return nil, err
	}
	return &sweep, nil
}
