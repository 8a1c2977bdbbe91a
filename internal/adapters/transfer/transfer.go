// Package transfer implements the source-to-stage movement: a windowed
// export from Elasticsearch into NDJSON objects under the record's stage
// path. The export is synchronous from the control plane's point of view
// and bounded by a long-transfer timeout.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"driveplane/internal/adapters"
	esadapter "driveplane/internal/adapters/elasticsearch"
	"driveplane/internal/store"
)

// StageWriter is the writing half of the stage, satisfied by the GCS
// adapter.
type StageWriter interface {
	NewWriter(ctx context.Context, objectPath string) io.WriteCloser
}

// Config tunes the export.
type Config struct {
	// TimestampField is the document field windows are ranged over.
	TimestampField string
	// BatchSize is the scroll page size. Default 1000.
	BatchSize int
	// Timeout bounds the whole transfer. Default 4h.
	Timeout time.Duration
	// ProgressEvery controls how often progress is logged, in pages.
	// Default 10.
	ProgressEvery int
}

// ElasticsearchToStage scrolls the window out of the cluster and writes one
// NDJSON object per page under the record's stage path.
type ElasticsearchToStage struct {
	client *es.Client
	stage  StageWriter
	cfg    Config
	log    *slog.Logger
}

// New builds the transfer adapter on its own Elasticsearch client, so the
// long-running export does not share the source adapter's rate limit.
func New(escfg es.Config, stage StageWriter, cfg Config, log *slog.Logger) (*ElasticsearchToStage, error) {
	client, err := es.NewClient(escfg)
	if err != nil {
		return nil, fmt.Errorf("transfer: failed to create client: %w", err)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Hour
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}

	return &ElasticsearchToStage{client: client, stage: stage, cfg: cfg, log: log}, nil
}

type scrollPage struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Transfer exports the record's window into its stage path.
func (t *ElasticsearchToStage) Transfer(ctx context.Context, rec *store.PipelineRecord) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	stagePath := rec.StagePath()
	if stagePath == "" {
		return fmt.Errorf("transfer: record %s has no stage path", rec.PipelineID)
	}

	query := esadapter.RangeQuery(t.cfg.TimestampField, adapters.Window{
		Start: rec.WindowStartTime,
		End:   rec.WindowEndTime,
	})
	raw, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("transfer: failed to encode query: %w", err)
	}

	t.log.Info("starting export",
		"pipeline_id", rec.PipelineID,
		"index", rec.SourceSubCategory,
		"stage_path", stagePath,
		"timeout", t.cfg.Timeout,
	)

	res, err := t.client.Search(
		t.client.Search.WithContext(ctx),
		t.client.Search.WithIndex(rec.SourceSubCategory),
		t.client.Search.WithBody(bytes.NewReader(raw)),
		t.client.Search.WithSort("_doc"),
		t.client.Search.WithSize(t.cfg.BatchSize),
		t.client.Search.WithScroll(5*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("transfer: search failed: %w", err)
	}

	var (
		page     scrollPage
		pages    int
		exported int64
	)
	for {
		if res.IsError() {
			res.Body.Close()
			return fmt.Errorf("transfer: search returned %s", res.Status())
		}

		page = scrollPage{}
		err = json.NewDecoder(res.Body).Decode(&page)
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("transfer: failed to decode page: %w", err)
		}

		if len(page.Hits.Hits) == 0 {
			break
		}

		if err := t.writePage(ctx, stagePath, pages, page); err != nil {
			return err
		}
		exported += int64(len(page.Hits.Hits))
		pages++

		if pages%t.cfg.ProgressEvery == 0 {
			t.log.Info("export progress",
				"pipeline_id", rec.PipelineID,
				"pages", pages,
				"documents", exported,
			)
		}

		res, err = t.client.Scroll(
			t.client.Scroll.WithContext(ctx),
			t.client.Scroll.WithScrollID(page.ScrollID),
			t.client.Scroll.WithScroll(5*time.Minute),
		)
		if err != nil {
			return fmt.Errorf("transfer: scroll failed: %w", err)
		}
	}

	if page.ScrollID != "" {
		// Best effort; the scroll expires on its own.
		if res, err := t.client.ClearScroll(t.client.ClearScroll.WithScrollID(page.ScrollID)); err == nil {
			res.Body.Close()
		}
	}

	t.log.Info("export finished",
		"pipeline_id", rec.PipelineID,
		"pages", pages,
		"documents", exported,
	)
	return nil
}

// writePage stores one scroll page as an NDJSON object.
func (t *ElasticsearchToStage) writePage(ctx context.Context, stagePath string, page int, p scrollPage) error {
	objectPath := fmt.Sprintf("%spart-%05d.ndjson", stagePath, page)

	w := t.stage.NewWriter(ctx, objectPath)
	for _, hit := range p.Hits.Hits {
		if _, err := w.Write(hit.Source); err != nil {
			w.Close()
			return fmt.Errorf("transfer: failed to write %s: %w", objectPath, err)
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			w.Close()
			return fmt.Errorf("transfer: failed to write %s: %w", objectPath, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("transfer: failed to commit %s: %w", objectPath, err)
	}
	return nil
}
