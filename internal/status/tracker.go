package status

import (
	"sync"
	"time"

	"github.com/trafficlens/metricsync/internal/domain"
)

// Tracker keeps one SyncStatus record per property, independent of the
// cache. Records are overwritten on every fetch attempt and never deleted.
// Safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]domain.SyncStatus

	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]domain.SyncStatus),
		now:      time.Now,
	}
}

// MarkSyncing records that a fetch attempt for the property has started.
func (t *Tracker) MarkSyncing(propertyID string) {
	t.set(propertyID, domain.SyncStateSyncing, "")
}

// MarkSuccess records that the last fetch attempt succeeded.
func (t *Tracker) MarkSuccess(propertyID string) {
	t.set(propertyID, domain.SyncStateSuccess, "")
}

// MarkError records that the last fetch attempt failed.
func (t *Tracker) MarkError(propertyID string, message string) {
	t.set(propertyID, domain.SyncStateError, message)
}

func (t *Tracker) set(propertyID string, state domain.SyncState, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statuses[propertyID] = domain.SyncStatus{
		PropertyID:   propertyID,
		State:        state,
		LastSyncAt:   t.now(),
		ErrorMessage: message,
	}
}

// Get returns the status records for the given property IDs, or all
// records when no IDs are given. Unknown IDs are omitted.
func (t *Tracker) Get(propertyIDs ...string) map[string]domain.SyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]domain.SyncStatus)
	if len(propertyIDs) == 0 {
		for id, st := range t.statuses {
			out[id] = st
		}
		return out
	}
	for _, id := range propertyIDs {
		if st, ok := t.statuses[id]; ok {
			out[id] = st
		}
	}
	return out
}
