package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/trafficlens/metricsync/internal/cache"
	"github.com/trafficlens/metricsync/internal/domain"
	"github.com/trafficlens/metricsync/internal/event"
	"github.com/trafficlens/metricsync/internal/filter"
	"github.com/trafficlens/metricsync/internal/metrics"
	"github.com/trafficlens/metricsync/internal/port"
	"github.com/trafficlens/metricsync/internal/scheduler"
	"github.com/trafficlens/metricsync/internal/status"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config contains engine configuration
type Config struct {
	TTL              time.Duration // cache entry freshness window
	Capacity         int           // maximum cached entries
	Concurrency      int           // fetches per batch wave
	WaveDelay        time.Duration // pause between batch waves
	AutoSyncInterval time.Duration // default background refresh interval
	MaxProperties    int           // default working-set bound for optimized fetches
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Capacity <= 0 {
		c.Capacity = 500
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.WaveDelay <= 0 {
		c.WaveDelay = 100 * time.Millisecond
	}
	if c.AutoSyncInterval <= 0 {
		c.AutoSyncInterval = 15 * time.Minute
	}
	if c.MaxProperties <= 0 {
		c.MaxProperties = 20
	}
}

// Engine is the data synchronization and caching engine. It resolves
// report requests through a TTL cache, coordinates bounded-concurrency
// batch fetches against the reporting API, tracks per-property sync
// status, drives background refresh, and notifies update listeners.
type Engine struct {
	cfg     Config
	fetcher port.ReportFetcher
	catalog port.PropertyCatalog
	cache   *cache.Store
	status  *status.Tracker
	bus     *event.Bus
	rec     *metrics.Recorder
	logger  *zap.Logger

	// flight deduplicates concurrent misses for the same key: a second
	// requester awaits the first request instead of hitting upstream.
	flight singleflight.Group

	mu     sync.Mutex
	sched  *scheduler.Scheduler
	closed bool
}

// New creates an engine. catalog and rec may be nil; a nil catalog limits
// FetchOptimized to caller-supplied candidates.
func New(cfg Config, fetcher port.ReportFetcher, catalog port.PropertyCatalog, rec *metrics.Recorder, logger *zap.Logger) *Engine {
	cfg.applyDefaults()

	bus := event.NewBus(logger)
	bus.SetPanicHook(rec.ListenerPanic)

	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		catalog: catalog,
		cache:   cache.NewStore(cfg.TTL, cfg.Capacity),
		status:  status.NewTracker(),
		bus:     bus,
		rec:     rec,
		logger:  logger,
	}
}

// Close stops background refresh and rejects further operations.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sched := e.sched
	e.sched = nil
	e.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	e.logger.Info("engine closed")
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// GetData returns the report for one property and date range, reading
// through the cache. degraded is true when the upstream fetch failed and
// a stale cache entry was served instead; the corresponding Error status
// is still recorded. An error is returned only when the fetch failed and
// no prior entry existed.
func (e *Engine) GetData(ctx context.Context, propertyID string, r domain.DateRange, forceRefresh bool) (*domain.Report, bool, error) {
	if e.isClosed() {
		return nil, false, domain.ErrEngineClosed
	}
	if err := r.Validate(); err != nil {
		return nil, false, err
	}
	if propertyID == "" {
		return nil, false, fmt.Errorf("%w: empty property id", domain.ErrInvalidInput)
	}

	res, err := e.fetchOne(ctx, propertyID, r, forceRefresh)
	if err != nil {
		return nil, false, err
	}
	return res.report, res.degraded, nil
}

// BatchGetData fetches several properties with the default concurrency and
// returns the successful reports keyed by property ID. Individual fetch
// failures are never surfaced as an error; consult SyncStatus for them.
func (e *Engine) BatchGetData(ctx context.Context, propertyIDs []string, r domain.DateRange, forceRefresh bool) (map[string]*domain.Report, error) {
	if e.isClosed() {
		return nil, domain.ErrEngineClosed
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	br := e.fetchBatch(ctx, propertyIDs, r, e.cfg.Concurrency, forceRefresh, 0)

	out := make(map[string]*domain.Report, len(br.Successful))
	for _, o := range br.Successful {
		out[o.PropertyID] = o.Report
	}
	return out, nil
}

// OptimizeOptions tune FetchOptimized.
type OptimizeOptions struct {
	Criteria      *domain.FilterCriteria
	Candidates    []domain.Property // nil means consult the property catalog
	MaxProperties int               // 0 means the engine default
	Concurrency   int               // 0 means the engine default
	MinTraffic    float64           // drop successes below this session count
	UseCache      bool
}

// FetchOptimized narrows the candidate property set to a bounded working
// set and batch-fetches it. The returned result is sorted by the dominant
// traffic metric, descending.
func (e *Engine) FetchOptimized(ctx context.Context, r domain.DateRange, opts OptimizeOptions) (*domain.BatchResult, error) {
	if e.isClosed() {
		return nil, domain.ErrEngineClosed
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	candidates := opts.Candidates
	if candidates == nil {
		if e.catalog == nil {
			return nil, fmt.Errorf("%w: no candidates and no property catalog", domain.ErrInvalidInput)
		}
		var err error
		candidates, err = e.catalog.ListProperties(ctx)
		if err != nil {
			return nil, fmt.Errorf("list properties: %w", err)
		}
	}

	maxProps := opts.MaxProperties
	if maxProps <= 0 {
		maxProps = e.cfg.MaxProperties
	}
	selected := filter.Select(candidates, opts.Criteria, maxProps)

	ids := make([]string, len(selected))
	for i, p := range selected {
		ids[i] = p.ID
	}

	e.logger.Debug("optimized fetch",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(ids)),
		zap.String("range", r.String()))

	br := e.fetchBatch(ctx, ids, r, opts.Concurrency, !opts.UseCache, opts.MinTraffic)
	return &br, nil
}

// StartAutoSync begins periodic forced refresh of the given properties,
// one independent loop per property. Any previously running auto-sync is
// stopped first. interval <= 0 selects the engine default.
func (e *Engine) StartAutoSync(propertyIDs []string, r domain.DateRange, interval time.Duration) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if interval <= 0 {
		interval = e.cfg.AutoSyncInterval
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrEngineClosed
	}
	prev := e.sched
	sched := scheduler.New(e.refreshForSync, e.logger)
	e.sched = sched
	e.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	return sched.Start(propertyIDs, r, interval)
}

// StopAutoSync cancels every refresh loop, including refreshes in flight,
// and waits for them to exit.
func (e *Engine) StopAutoSync() {
	e.mu.Lock()
	sched := e.sched
	e.sched = nil
	e.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}

// refreshForSync is the scheduler tick callback: a forced single fetch
// whose stale-fallback result is discarded.
func (e *Engine) refreshForSync(ctx context.Context, propertyID string, r domain.DateRange) error {
	e.rec.AutoSyncRefresh()
	_, err := e.fetchOne(ctx, propertyID, r, true)
	return err
}

// Subscribe registers an update listener, invoked synchronously after
// every successful fetch whose payload changed.
func (e *Engine) Subscribe(fn event.Listener) *event.Subscription {
	return e.bus.Subscribe(fn)
}

// Unsubscribe removes a previously registered listener.
func (e *Engine) Unsubscribe(sub *event.Subscription) {
	sub.Cancel()
}

// SyncStatus returns per-property status records; no IDs means all.
func (e *Engine) SyncStatus(propertyIDs ...string) map[string]domain.SyncStatus {
	return e.status.Get(propertyIDs...)
}

// ClearCache removes cached entries for the given properties, or all
// entries when none are given. Returns the number removed.
func (e *Engine) ClearCache(propertyIDs ...string) int {
	if len(propertyIDs) == 0 {
		return e.cache.Clear()
	}
	return e.cache.RemoveProperties(propertyIDs...)
}

// CacheStats returns size and age bounds of the cache.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// fetchResult is the outcome of one read-through resolution.
type fetchResult struct {
	report    *domain.Report
	fromCache bool
	degraded  bool
}

// fetchOne resolves one property: fresh cache entry, deduplicated
// upstream fetch, or stale fallback when the fetch fails over an existing
// entry.
func (e *Engine) fetchOne(ctx context.Context, propertyID string, r domain.DateRange, force bool) (fetchResult, error) {
	key := cache.NewKey(propertyID, r)

	if !force {
		if entry, ok := e.cache.Get(key); ok && e.cache.IsFresh(entry) {
			e.rec.CacheHit()
			return fetchResult{report: entry.Report, fromCache: true}, nil
		}
	}

	v, err, _ := e.flight.Do(key.String(), func() (any, error) {
		return e.refresh(ctx, key, propertyID, r)
	})
	if err != nil {
		return fetchResult{}, err
	}

	res := v.(fetchResult)
	if res.fromCache {
		e.rec.CacheHit()
	} else {
		e.rec.CacheMiss()
	}
	return res, nil
}

// refresh performs the upstream fetch and write-back for one key. Runs
// inside the single-flight group.
func (e *Engine) refresh(ctx context.Context, key cache.Key, propertyID string, r domain.DateRange) (fetchResult, error) {
	e.status.MarkSyncing(propertyID)

	start := time.Now()
	report, err := e.fetcher.FetchReport(ctx, propertyID, r)
	e.rec.FetchLatency(time.Since(start))

	if err != nil {
		e.rec.UpstreamError()
		e.status.MarkError(propertyID, err.Error())

		if entry, ok := e.cache.Get(key); ok {
			e.rec.StaleFallback()
			e.logger.Warn("serving stale data after fetch failure",
				zap.String("property_id", propertyID),
				zap.String("range", r.String()),
				zap.Time("written_at", entry.WrittenAt),
				zap.Error(err))
			return fetchResult{report: entry.Report, degraded: true}, nil
		}
		return fetchResult{}, fmt.Errorf("fetch property %s: %w: %w", propertyID, domain.ErrNoCachedData, err)
	}

	fp := fingerprint(report)
	prev, hadPrev := e.cache.Get(key)
	changed := !hadPrev || prev.Fingerprint != fp

	evicted := e.cache.Put(&cache.Entry{
		Key:         key,
		Report:      report,
		WrittenAt:   time.Now(),
		Fingerprint: fp,
	})
	if evicted != nil {
		e.rec.Eviction()
		e.logger.Debug("evicted oldest cache entry",
			zap.String("evicted_key", evicted.Key.String()),
			zap.Time("written_at", evicted.WrittenAt))
	}

	e.status.MarkSuccess(propertyID)

	if changed {
		e.bus.Publish(event.Update{PropertyID: propertyID, Report: report, Range: r})
	}
	return fetchResult{report: report}, nil
}

// fingerprint computes a cheap content hash of a report payload for
// change detection. Map keys are serialized in sorted order, so the hash
// is deterministic.
func fingerprint(report *domain.Report) uint64 {
	totals, err := json.Marshal(report.Totals)
	if err != nil {
		return 0
	}
	d := xxhash.New()
	_, _ = d.WriteString(report.PropertyID)
	_, _ = d.Write(totals)
	return d.Sum64()
}
