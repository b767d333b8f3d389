package domain

import "time"

// Priority ranks how important a property is to keep warm.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Property describes one analytics property known to the engine.
type Property struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Priority       Priority  `json:"priority"`
	Tags           []string  `json:"tags"`
	Active         bool      `json:"active"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// HasTag reports whether the property carries the given tag.
func (p Property) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FilterCriteria narrows a candidate property set. All fields are
// optional; zero values mean "no constraint". Supplied by consumers
// (or loaded from the preference store) and read-only to the engine.
type FilterCriteria struct {
	Priorities  []Priority `json:"priorities,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	ActiveOnly  bool       `json:"active_only,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	SortBy      string     `json:"sort_by,omitempty"` // "priority", "name" or "recent"
	SearchQuery string     `json:"search_query,omitempty"`
}

// SyncState is the lifecycle state of the last fetch attempt for a property.
type SyncState string

const (
	SyncStateSyncing SyncState = "syncing"
	SyncStateSuccess SyncState = "success"
	SyncStateError   SyncState = "error"
)

// SyncStatus is the per-property fetch status record. One record per
// property, overwritten on every attempt.
type SyncStatus struct {
	PropertyID   string    `json:"property_id"`
	State        SyncState `json:"state"`
	LastSyncAt   time.Time `json:"last_sync_at"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
