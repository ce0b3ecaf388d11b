package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeExpirer struct {
	calls []time.Time
	limit int
	n     int
	err   error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, now time.Time, limit int) (int, error) {
	f.calls = append(f.calls, now)
	f.limit = limit
	return f.n, f.err
}

func TestSweep(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	f := &fakeExpirer{n: 2}
	w := NewWorker(f, slog.New(slog.NewJSONHandler(io.Discard, nil)), WorkerConfig{BatchSize: 7, Now: func() time.Time { return now }})

	if got := w.Sweep(context.Background()); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if len(f.calls) != 1 || !f.calls[0].Equal(now) || f.limit != 7 {
		t.Fatalf("unexpected call %+v limit %d", f.calls, f.limit)
	}

	f.err = errors.New("db down")
	f.n = 1
	if got := w.Sweep(context.Background()); got != 1 {
		t.Fatalf("expected partial count 1, got %d", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := &fakeExpirer{}
	w := NewWorker(f, slog.New(slog.NewJSONHandler(io.Discard, nil)), WorkerConfig{Interval: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
