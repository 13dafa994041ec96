package oracle

import (
	"context"
	"errors"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const latestKey = "latest"

// DefaultFinalizationPeriod is the window during which the L1 oracle may still
// delete a proposed output.
const DefaultFinalizationPeriod = 7 * 24 * time.Hour

// Cached memoises oracle lookups. A stale latest checkpoint is safe to serve:
// it only makes block selection more conservative. Checkpoints fetched by
// index are cached only once finalized, since a younger output can be deleted
// and its index reused.
type Cached struct {
	reader       Reader
	cache        *gocache.Cache
	finalization time.Duration
	now          func() time.Time
}

// CacheOption configures a Cached reader.
type CacheOption func(*Cached)

// WithFinalizationPeriod sets how old a checkpoint must be before index
// lookups are cached.
func WithFinalizationPeriod(d time.Duration) CacheOption {
	return func(c *Cached) {
		if d >= 0 {
			c.finalization = d
		}
	}
}

// WithCacheClock overrides the clock used to judge finalization.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cached) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCached wraps reader with a cache whose entries expire after ttl.
func NewCached(reader Reader, ttl time.Duration, opts ...CacheOption) *Cached {
	c := &Cached{
		reader:       reader,
		cache:        gocache.New(ttl, 2*ttl),
		finalization: DefaultFinalizationPeriod,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckpointByIndex implements Reader.
func (c *Cached) CheckpointByIndex(ctx context.Context, index uint64) (Checkpoint, error) {
	key := "index/" + strconv.FormatUint(index, 10)
	if cp, ok := c.cache.Get(key); ok {
		return cp.(Checkpoint), nil
	}
	cp, err := c.reader.CheckpointByIndex(ctx, index)
	if err != nil {
		return Checkpoint{}, err
	}
	if c.finalized(cp) {
		c.cache.SetDefault(key, cp)
	}
	return cp, nil
}

func (c *Cached) finalized(cp Checkpoint) bool {
	proposed := time.Unix(int64(cp.Timestamp), 0)
	return !c.now().Before(proposed.Add(c.finalization))
}

// LatestCheckpoint implements Reader.
func (c *Cached) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	if cp, ok := c.cache.Get(latestKey); ok {
		return cp.(Checkpoint), nil
	}
	cp, err := c.reader.LatestCheckpoint(ctx)
	if err != nil {
		return Checkpoint{}, err
	}
	c.cache.SetDefault(latestKey, cp)
	return cp, nil
}

// LatestCheckpointAtOrBefore implements Reader. Lookups at or beyond the
// cached latest checkpoint are answered from it.
func (c *Cached) LatestCheckpointAtOrBefore(ctx context.Context, l2Block uint64) (Checkpoint, error) {
	latest, err := c.LatestCheckpoint(ctx)
	switch {
	case err == nil && latest.L2BlockNumber <= l2Block:
		return latest, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Checkpoint{}, err
	}
	return c.reader.LatestCheckpointAtOrBefore(ctx, l2Block)
}

// Flush drops every cached entry.
func (c *Cached) Flush() {
	c.cache.Flush()
}
