package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), testLogger(), "count", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestDo_RecoversAfterFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), testLogger(), "count", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestDo_ReturnsLastErrorAfterExhaustion(t *testing.T) {
	wantErr := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), fastConfig(3), testLogger(), "count", func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got error %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestDoValue_ReturnsValue(t *testing.T) {
	got, err := DoValue(context.Background(), fastConfig(2), testLogger(), "count", func(ctx context.Context) (int64, error) {
		return 1234, nil
	})
	if err != nil {
		t.Fatalf("DoValue failed: %v", err)
	}
	if got != 1234 {
		t.Errorf("got %d, want 1234", got)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{MaxAttempts: 5, BaseDelay: time.Hour, Multiplier: 2}
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, testLogger(), "count", func(ctx context.Context) error {
			return errors.New("transient")
		})
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got error %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDo_ZeroAttemptsNormalizedToOne(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Config{}, testLogger(), "count", func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}
