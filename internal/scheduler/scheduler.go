package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trafficlens/metricsync/internal/domain"
	"go.uber.org/zap"
)

// RefreshFunc forces a refresh of one property. Called on every tick.
type RefreshFunc func(ctx context.Context, propertyID string, r domain.DateRange) error

// Scheduler runs one periodic refresh loop per property. Loops are
// independent: a slow or failing property never delays the cadence of the
// others. Refresh errors are logged and swallowed.
//
// Stop cancels the scheduler context, which propagates into refreshes
// still in flight, and waits for every loop to exit.
type Scheduler struct {
	refresh RefreshFunc
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(refresh RefreshFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{refresh: refresh, logger: logger}
}

// Start launches one refresh loop per property. Returns an error if the
// scheduler is already running or the interval is not positive.
func (s *Scheduler) Start(propertyIDs []string, r domain.DateRange, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, id := range propertyIDs {
		s.wg.Add(1)
		go s.run(ctx, id, r, interval)
	}

	s.logger.Info("auto-sync started",
		zap.Int("properties", len(propertyIDs)),
		zap.Duration("interval", interval))
	return nil
}

// Stop cancels every loop, including refreshes in flight, and waits for
// them to exit. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("auto-sync stopped")
}

// Running reports whether the scheduler has active loops.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, propertyID string, r domain.DateRange, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refresh(ctx, propertyID, r); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				s.logger.Warn("background refresh failed",
					zap.String("property_id", propertyID),
					zap.Error(err))
			}
		}
	}
}
