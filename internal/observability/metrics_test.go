package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitMetrics(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	if handler == nil {
		t.Fatal("expected handler to be non-nil")
	}
	if shutdown == nil {
		t.Fatal("expected shutdown function to be non-nil")
	}

	// Smoke test: verify handler returns 200 and non-empty body
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected non-empty metrics body")
	}
}

func TestRegisterBacklogGauge(t *testing.T) {
	_, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	err = RegisterBacklogGauge("driveplane-test", log, func(ctx context.Context) (int64, error) {
		return 7, nil
	})
	if err != nil {
		t.Errorf("RegisterBacklogGauge failed: %v", err)
	}

	// A failing callback must not error the registration path either.
	err = RegisterBacklogGauge("driveplane-test-failing", log, func(ctx context.Context) (int64, error) {
		return 0, errors.New("store down")
	})
	if err != nil {
		t.Errorf("RegisterBacklogGauge with failing callback failed: %v", err)
	}
}
