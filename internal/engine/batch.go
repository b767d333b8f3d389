package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trafficlens/metricsync/internal/domain"
	"go.uber.org/zap"
)

// waveOutcome carries one property's result out of a wave goroutine.
type waveOutcome struct {
	propertyID string
	report     *domain.Report
	latency    time.Duration
	fromCache  bool
	degraded   bool
	err        error
}

// fetchBatch drives fetches for the given properties in consecutive waves
// of size concurrency, preserving input order. Waves run strictly
// sequentially with a fixed delay between them as an upstream rate
// safeguard; fetches within a wave run concurrently. A failure for one
// property never aborts the batch.
//
// Successes below minTraffic sessions are dropped after fetching (when
// minTraffic > 0), then the successful list is sorted by sessions,
// descending.
func (e *Engine) fetchBatch(ctx context.Context, propertyIDs []string, r domain.DateRange, concurrency int, force bool, minTraffic float64) domain.BatchResult {
	start := time.Now()
	if concurrency <= 0 {
		concurrency = e.cfg.Concurrency
	}

	var result domain.BatchResult

	for lo := 0; lo < len(propertyIDs); lo += concurrency {
		if lo > 0 {
			select {
			case <-ctx.Done():
				for _, id := range propertyIDs[lo:] {
					result.Failed = append(result.Failed, domain.FailedFetch{PropertyID: id, Err: ctx.Err()})
				}
				result.Elapsed = time.Since(start)
				return result
			case <-time.After(e.cfg.WaveDelay):
			}
		}

		hi := lo + concurrency
		if hi > len(propertyIDs) {
			hi = len(propertyIDs)
		}
		wave := propertyIDs[lo:hi]
		outcomes := make([]waveOutcome, len(wave))

		var wg sync.WaitGroup
		for i, id := range wave {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				t0 := time.Now()
				res, err := e.fetchOne(ctx, id, r, force)
				outcomes[i] = waveOutcome{
					propertyID: id,
					report:     res.report,
					latency:    time.Since(t0),
					fromCache:  res.fromCache,
					degraded:   res.degraded,
					err:        err,
				}
			}(i, id)
		}
		wg.Wait()

		for _, o := range outcomes {
			if o.err != nil {
				result.Failed = append(result.Failed, domain.FailedFetch{PropertyID: o.propertyID, Err: o.err})
				continue
			}
			if o.fromCache {
				result.CacheHits++
			} else {
				result.CacheMisses++
			}
			result.Successful = append(result.Successful, domain.FetchOutcome{
				PropertyID: o.propertyID,
				Report:     o.report,
				Latency:    o.latency,
				FromCache:  o.fromCache,
				Degraded:   o.degraded,
			})
		}
	}

	if minTraffic > 0 {
		kept := result.Successful[:0]
		for _, o := range result.Successful {
			if o.Report.Sessions() >= minTraffic {
				kept = append(kept, o)
			}
		}
		if dropped := len(result.Successful) - len(kept); dropped > 0 {
			e.logger.Debug("dropped low-traffic properties",
				zap.Int("dropped", dropped),
				zap.Float64("min_traffic", minTraffic))
		}
		result.Successful = kept
	}

	sort.SliceStable(result.Successful, func(i, j int) bool {
		si, sj := result.Successful[i].Report.Sessions(), result.Successful[j].Report.Sessions()
		if si != sj {
			return si > sj
		}
		return result.Successful[i].PropertyID < result.Successful[j].PropertyID
	})

	result.Elapsed = time.Since(start)

	e.logger.Info("batch fetch completed",
		zap.Int("requested", len(propertyIDs)),
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("cache_misses", result.CacheMisses),
		zap.Duration("elapsed", result.Elapsed))

	return result
}
