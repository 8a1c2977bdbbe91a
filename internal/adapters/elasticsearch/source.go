// Package elasticsearch implements the source adapter against an
// Elasticsearch cluster. The identity's sub-category is the index pattern;
// windows map onto a range query over the configured timestamp field.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"golang.org/x/time/rate"

	"driveplane/internal/adapters"
	"driveplane/internal/store"
)

// Config holds connection and query settings for the cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string

	// TimestampField is the document field windows are ranged over.
	TimestampField string

	// RequestsPerSecond caps count/delete traffic against the cluster.
	// Zero means uncapped.
	RequestsPerSecond float64
}

// Source queries and deletes windowed documents.
type Source struct {
	client  *elasticsearch.Client
	field   string
	limiter *rate.Limiter
	log     *slog.Logger
}

// New builds the adapter and verifies the connection.
func New(cfg Config, log *slog.Logger) (*Source, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Source{
		client:  client,
		field:   cfg.TimestampField,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}, nil
}

// RangeQuery renders the window filter shared by count, delete and the
// export in the transfer adapter.
func RangeQuery(field string, w adapters.Window) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"range": map[string]interface{}{
							field: map[string]interface{}{
								"gte": w.Start.Format(time.RFC3339),
								"lt":  w.End.Format(time.RFC3339),
							},
						},
					},
				},
			},
		},
	}
}

func (s *Source) body(w adapters.Window) (*bytes.Reader, error) {
	raw, err := json.Marshal(RangeQuery(s.field, w))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to encode query: %w", err)
	}
	return bytes.NewReader(raw), nil
}

// Count returns the number of documents in the window.
func (s *Source) Count(ctx context.Context, id store.Identity, w adapters.Window) (int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	body, err := s.body(w)
	if err != nil {
		return 0, err
	}

	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(id.SourceSubCategory),
		s.client.Count.WithBody(body),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w: %w", adapters.ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, s.responseError("count", res)
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("elasticsearch count: failed to decode response: %w", err)
	}

	return out.Count, nil
}

// CheckExists reports whether the window holds any documents.
func (s *Source) CheckExists(ctx context.Context, id store.Identity, w adapters.Window) (bool, error) {
	count, err := s.Count(ctx, id, w)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete removes the window's documents. Rarely used in normal operation;
// exposed for operator-driven source cleanup.
func (s *Source) Delete(ctx context.Context, id store.Identity, w adapters.Window) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := s.body(w)
	if err != nil {
		return err
	}

	res, err := s.client.DeleteByQuery(
		[]string{id.SourceSubCategory},
		body,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithWaitForCompletion(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return s.responseError("delete_by_query", res)
	}

	s.log.Info("deleted source documents",
		"index", id.SourceSubCategory,
		"window_start", w.Start,
		"window_end", w.End,
	)
	return nil
}

// responseError classifies an error response: overload and server trouble
// surface as unavailable so the retry harness and the validator treat them
// as transient.
func (s *Source) responseError(op string, res *esapi.Response) error {
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("elasticsearch %s: %w: %s", op, adapters.ErrUnavailable, res.Status())
	}
	return fmt.Errorf("elasticsearch %s: %s", op, res.Status())
}
