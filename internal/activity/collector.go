// Package activity buffers settled mint and claim volume into fixed time
// buckets and flushes closed buckets to the analytics store. Best-effort:
// the engine never reads these rows back for correctness.
package activity

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

// Collector accumulates per-bucket counters in memory. Records always land
// in the current bucket; only buckets strictly older than the current one
// are flushed, so each bucket row is written at most once.
type Collector struct {
	store    storage.ActivityStore
	bucketMs int64
	logger   *log.Logger

	mu      sync.Mutex
	buckets map[int64]*domain.ActivityPoint

	nowMs func() int64
}

// New creates a collector. A non-positive bucket size defaults to one minute.
func New(store storage.ActivityStore, bucketSize time.Duration, logger *log.Logger) *Collector {
	if bucketSize <= 0 {
		bucketSize = time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{
		store:    store,
		bucketMs: bucketSize.Milliseconds(),
		logger:   logger,
		buckets:  make(map[int64]*domain.ActivityPoint),
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

// RecordMint adds one resolved mint event and the units its confirmed legs
// moved. Partially failed events report only the confirmed portion.
func (c *Collector) RecordMint(units int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.bucketLocked(c.nowMs())
	p.MintEvents++
	p.MintedUnits += units
}

// RecordClaim adds one resolved claim. Units is zero unless the claim
// completed and moved funds.
func (c *Collector) RecordClaim(units int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.bucketLocked(c.nowMs())
	p.ClaimsResolved++
	p.ClaimedUnits += units
}

func (c *Collector) bucketLocked(tsMs int64) *domain.ActivityPoint {
	bucket := tsMs - tsMs%c.bucketMs
	p, ok := c.buckets[bucket]
	if !ok {
		p = &domain.ActivityPoint{BucketMs: bucket}
		c.buckets[bucket] = p
	}
	return p
}

// Flush writes all closed buckets to the store. The current bucket stays
// open for further records.
func (c *Collector) Flush(ctx context.Context) error {
	now := c.nowMs()
	return c.flushBefore(ctx, now-now%c.bucketMs)
}

// Close flushes everything, including the open bucket. Call on shutdown.
func (c *Collector) Close(ctx context.Context) error {
	return c.flushBefore(ctx, int64(1)<<62)
}

func (c *Collector) flushBefore(ctx context.Context, cutoff int64) error {
	c.mu.Lock()
	var points []*domain.ActivityPoint
	for bucket, p := range c.buckets {
		if bucket < cutoff {
			points = append(points, p)
			delete(c.buckets, bucket)
		}
	}
	c.mu.Unlock()

	if len(points) == 0 {
		return nil
	}
	sort.Slice(points, func(i, j int) bool { return points[i].BucketMs < points[j].BucketMs })

	if err := c.store.InsertBulk(ctx, points); err != nil {
		c.restore(points)
		return err
	}
	return nil
}

// restore merges unflushed points back so the next flush retries them.
func (c *Collector) restore(points []*domain.ActivityPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range points {
		existing, ok := c.buckets[p.BucketMs]
		if !ok {
			c.buckets[p.BucketMs] = p
			continue
		}
		existing.MintedUnits += p.MintedUnits
		existing.ClaimedUnits += p.ClaimedUnits
		existing.MintEvents += p.MintEvents
		existing.ClaimsResolved += p.ClaimsResolved
	}
}

// Run flushes on the interval until ctx is cancelled, then drains the
// remaining buckets.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Close(drainCtx); err != nil {
				c.logger.Printf("[ACTIVITY] Final flush: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.logger.Printf("[ACTIVITY] Flush: %v", err)
			}
		}
	}
}
