package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trafficlens/metricsync/internal/domain"
	"go.uber.org/zap"
)

func testRange() domain.DateRange {
	return domain.DateRange{Start: "2026-08-01", End: "2026-08-07"}
}

type refreshRecorder struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newRefreshRecorder() *refreshRecorder {
	return &refreshRecorder{calls: make(map[string]int)}
}

func (r *refreshRecorder) refresh(ctx context.Context, propertyID string, _ domain.DateRange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[propertyID]++
	return r.err
}

func (r *refreshRecorder) count(propertyID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[propertyID]
}

func TestScheduler_RefreshesEveryProperty(t *testing.T) {
	rec := newRefreshRecorder()
	s := New(rec.refresh, zap.NewNop())

	if err := s.Start([]string{"p1", "p2"}, testRange(), 20*time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	time.Sleep(70 * time.Millisecond)

	for _, id := range []string{"p1", "p2"} {
		if rec.count(id) < 2 {
			t.Errorf("%s refreshed %d times, want >= 2", id, rec.count(id))
		}
	}
}

func TestScheduler_StopHaltsLoops(t *testing.T) {
	rec := newRefreshRecorder()
	s := New(rec.refresh, zap.NewNop())

	if err := s.Start([]string{"p1"}, testRange(), 15*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	if s.Running() {
		t.Error("Running() = true after Stop")
	}

	n := rec.count("p1")
	time.Sleep(50 * time.Millisecond)
	if rec.count("p1") != n {
		t.Errorf("refresh fired %d more times after Stop", rec.count("p1")-n)
	}

	// Second Stop is a no-op.
	s.Stop()
}

func TestScheduler_StopCancelsInFlightRefresh(t *testing.T) {
	entered := make(chan struct{})
	canceled := make(chan struct{})

	s := New(func(ctx context.Context, _ string, _ domain.DateRange) error {
		close(entered)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	}, zap.NewNop())

	if err := s.Start([]string{"p1"}, testRange(), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("refresh never started")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("in-flight refresh was not canceled")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestScheduler_RefreshErrorsDoNotStopLoop(t *testing.T) {
	rec := newRefreshRecorder()
	rec.err = errors.New("upstream down")
	s := New(rec.refresh, zap.NewNop())

	if err := s.Start([]string{"p1"}, testRange(), 15*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	if rec.count("p1") < 2 {
		t.Errorf("loop stopped after error; refreshed %d times, want >= 2", rec.count("p1"))
	}
}

func TestScheduler_StartValidation(t *testing.T) {
	s := New(newRefreshRecorder().refresh, zap.NewNop())

	if err := s.Start([]string{"p1"}, testRange(), 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Start(interval=0) error = %v, want ErrInvalidInput", err)
	}

	if err := s.Start([]string{"p1"}, testRange(), time.Hour); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.Start([]string{"p2"}, testRange(), time.Hour); err == nil {
		t.Error("second Start on a running scheduler must fail")
	}
}
