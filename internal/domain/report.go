package domain

import (
	"fmt"
	"time"
)

// MetricSessions is the dominant traffic metric. Batch results are sorted
// by it and the minimum-traffic post-filter compares against it.
const MetricSessions = "sessions"

// DateRange identifies the reporting window of a dataset. Both dates are
// inclusive and formatted as YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks that both bounds parse and are ordered.
func (r DateRange) Validate() error {
	start, err := time.Parse("2006-01-02", r.Start)
	if err != nil {
		return fmt.Errorf("%w: invalid start date %q", ErrInvalidInput, r.Start)
	}
	end, err := time.Parse("2006-01-02", r.End)
	if err != nil {
		return fmt.Errorf("%w: invalid end date %q", ErrInvalidInput, r.End)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidInput, r.End, r.Start)
	}
	return nil
}

func (r DateRange) String() string {
	return r.Start + ":" + r.End
}

// Report is one fetched dataset for a property and date range.
type Report struct {
	PropertyID string             `json:"property_id"`
	Range      DateRange          `json:"range"`
	Totals     map[string]float64 `json:"totals"`
	FetchedAt  time.Time          `json:"fetched_at"`
}

// Sessions returns the dominant metric value, zero if absent.
func (r *Report) Sessions() float64 {
	if r == nil {
		return 0
	}
	return r.Totals[MetricSessions]
}

// FetchOutcome is the per-property result of a batch fetch.
type FetchOutcome struct {
	PropertyID string        `json:"property_id"`
	Report     *Report       `json:"report"`
	Latency    time.Duration `json:"latency"`
	FromCache  bool          `json:"from_cache"`
	Degraded   bool          `json:"degraded"`
}

// FailedFetch records a property whose fetch failed with no fallback.
type FailedFetch struct {
	PropertyID string `json:"property_id"`
	Err        error  `json:"-"`
}

// BatchResult aggregates one batch fetch. Successful and Failed partition
// the requested property set, except for successes dropped by the
// minimum-traffic post-filter.
type BatchResult struct {
	Successful  []FetchOutcome `json:"successful"`
	Failed      []FailedFetch  `json:"failed"`
	Elapsed     time.Duration  `json:"elapsed"`
	CacheHits   int            `json:"cache_hits"`
	CacheMisses int            `json:"cache_misses"`
}
