package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// memWriter collects writes per object path.
type memWriter struct {
	objects map[string]*bytes.Buffer
	last    *bytes.Buffer
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (m *memWriter) NewWriter(ctx context.Context, objectPath string) io.WriteCloser {
	buf := &bytes.Buffer{}
	if m.objects == nil {
		m.objects = make(map[string]*bytes.Buffer)
	}
	m.objects[objectPath] = buf
	m.last = buf
	return nopCloser{buf}
}

func TestWritePage_NDJSON(t *testing.T) {
	stage := &memWriter{}
	tr := &ElasticsearchToStage{
		stage: stage,
		cfg:   Config{BatchSize: 2},
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	var page scrollPage
	page.Hits.Hits = []struct {
		Source json.RawMessage `json:"_source"`
	}{
		{Source: json.RawMessage(`{"id":1}`)},
		{Source: json.RawMessage(`{"id":2}`)},
	}

	if err := tr.writePage(context.Background(), "pipelines/app-events/2025-01-01/00-00/1/", 0, page); err != nil {
		t.Fatalf("writePage failed: %v", err)
	}

	want := "pipelines/app-events/2025-01-01/00-00/1/part-00000.ndjson"
	buf, ok := stage.objects[want]
	if !ok {
		t.Fatalf("object %q not written; got %v", want, stage.objects)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if lines[0] != `{"id":1}` || lines[1] != `{"id":2}` {
		t.Errorf("unexpected NDJSON content: %q", buf.String())
	}
}

func TestScrollPage_Decode(t *testing.T) {
	raw := `{"_scroll_id":"abc","hits":{"hits":[{"_source":{"k":"v"}}]}}`

	var page scrollPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if page.ScrollID != "abc" {
		t.Errorf("got scroll id %q, want abc", page.ScrollID)
	}
	if len(page.Hits.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(page.Hits.Hits))
	}
	if string(page.Hits.Hits[0].Source) != `{"k":"v"}` {
		t.Errorf("got source %s", page.Hits.Hits[0].Source)
	}
}
