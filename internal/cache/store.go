package cache

import (
	"container/heap"
	"sync"
	"time"

	"github.com/trafficlens/metricsync/internal/domain"
)

// Key uniquely identifies a cached dataset: one property over one
// date range.
type Key struct {
	PropertyID string
	Start      string
	End        string
}

// NewKey builds a Key from a property ID and date range.
func NewKey(propertyID string, r domain.DateRange) Key {
	return Key{PropertyID: propertyID, Start: r.Start, End: r.End}
}

func (k Key) String() string {
	return k.PropertyID + "|" + k.Start + ":" + k.End
}

// Range returns the date range part of the key.
func (k Key) Range() domain.DateRange {
	return domain.DateRange{Start: k.Start, End: k.End}
}

// Entry is one cached dataset. Entries are replaced wholesale on refresh,
// never mutated in place.
type Entry struct {
	Key         Key
	Report      *domain.Report
	WrittenAt   time.Time
	Fingerprint uint64
}

// Stats describes the current state of the store.
type Stats struct {
	Size            int       `json:"size"`
	Capacity        int       `json:"capacity"`
	OldestWrittenAt time.Time `json:"oldest_written_at,omitzero"`
	NewestWrittenAt time.Time `json:"newest_written_at,omitzero"`
}

// Store is a capacity-bounded TTL cache of report entries. Inserting past
// capacity evicts the entry with the smallest WrittenAt; the eviction heap
// keeps that better than a full-map scan. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	ttl      time.Duration
	capacity int
	entries  map[Key]*item
	byAge    ageHeap

	now func() time.Time
}

type item struct {
	entry *Entry
	index int // position in byAge
}

// NewStore creates a store with the given TTL and capacity. Capacity must
// be at least 1.
func NewStore(ttl time.Duration, capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[Key]*item),
		now:      time.Now,
	}
}

// Get returns the entry for key, fresh or stale. Pure lookup, no side
// effects.
func (s *Store) Get(key Key) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return it.entry, true
}

// IsFresh reports whether the entry is still within its TTL.
func (s *Store) IsFresh(e *Entry) bool {
	if e == nil {
		return false
	}
	return s.now().Sub(e.WrittenAt) < s.ttl
}

// Put inserts or replaces the entry for its key. When the store is at
// capacity and the key is new, the globally oldest entry is evicted first.
// Returns the evicted entry, or nil.
func (s *Store) Put(e *Entry) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.entries[e.Key]; ok {
		it.entry = e
		heap.Fix(&s.byAge, it.index)
		return nil
	}

	var evicted *Entry
	if len(s.entries) >= s.capacity {
		oldest := s.byAge[0]
		heap.Pop(&s.byAge)
		delete(s.entries, oldest.entry.Key)
		evicted = oldest.entry
	}

	it := &item{entry: e}
	s.entries[e.Key] = it
	heap.Push(&s.byAge, it)
	return evicted
}

// Remove deletes the given keys. Returns the number of entries removed.
func (s *Store) Remove(keys ...Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if it, ok := s.entries[key]; ok {
			heap.Remove(&s.byAge, it.index)
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// RemoveProperties deletes every entry belonging to the given property
// IDs, across all date ranges. Returns the number of entries removed.
func (s *Store) RemoveProperties(propertyIDs ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(propertyIDs))
	for _, id := range propertyIDs {
		ids[id] = struct{}{}
	}

	removed := 0
	for key, it := range s.entries {
		if _, ok := ids[key.PropertyID]; ok {
			heap.Remove(&s.byAge, it.index)
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries. Returns the number removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[Key]*item)
	s.byAge = nil
	return n
}

// Len returns the current number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns size and age bounds of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Size: len(s.entries), Capacity: s.capacity}
	for _, it := range s.entries {
		w := it.entry.WrittenAt
		if st.OldestWrittenAt.IsZero() || w.Before(st.OldestWrittenAt) {
			st.OldestWrittenAt = w
		}
		if w.After(st.NewestWrittenAt) {
			st.NewestWrittenAt = w
		}
	}
	return st
}

// ageHeap is a min-heap of items ordered by WrittenAt.
type ageHeap []*item

func (h ageHeap) Len() int { return len(h) }

func (h ageHeap) Less(i, j int) bool {
	return h[i].entry.WrittenAt.Before(h[j].entry.WrittenAt)
}

func (h ageHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *ageHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *ageHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
