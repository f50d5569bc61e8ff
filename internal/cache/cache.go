package cache

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/internal/tier"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// Cache is the displacement engine. It owns an ordered list of tiers, tier 0
// being the fastest, and one policy shared by all of them.
//
// Mutating operations hold the write lock for the whole cascade. Size,
// MaxSize, IsFull, Find and Levels share the read lock.
type Cache struct {
	mu     sync.RWMutex
	policy *strategy.Policy
	tiers  []tier.Tier
	closed bool

	logger   *slog.Logger
	recorder types.Recorder
	tracer   trace.Tracer
}

var _ types.Cache = (*Cache)(nil)

// Put inserts e at tier 0, first removing any copy of e.ID from every tier.
// A nil entry is ignored.
func (c *Cache) Put(ctx context.Context, e *types.Entry) (err error) {
	if e == nil {
		return nil
	}

	ctx, span := c.startSpan(ctx, "put", e.ID)
	start := time.Now()
	defer func() { c.endSpan(span, "put", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return closedError("put", e.ID)
	}

	for _, t := range c.tiers {
		if _, err := t.Remove(ctx, e.ID); err != nil {
			return c.fail("put", e.ID, err)
		}
	}
	if err := c.cascadePut(ctx, e.Clone(), 0); err != nil {
		return c.fail("put", e.ID, err)
	}

	c.logger.Debug("Put entry", "id", e.ID)
	c.reportUsage(ctx)
	return nil
}

// Get returns the entry for id and promotes it to tier 0 as the most recent
// entry, cascading a tier-0 victim downward when needed. A miss returns nil
// and changes nothing.
func (c *Cache) Get(ctx context.Context, id int64) (_ *types.Entry, err error) {
	ctx, span := c.startSpan(ctx, "get", id)
	start := time.Now()
	defer func() { c.endSpan(span, "get", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, closedError("get", id)
	}

	for _, t := range c.tiers {
		e, err := t.Pull(ctx, id)
		if err != nil {
			return nil, c.fail("get", id, err)
		}
		if e == nil {
			continue
		}

		if err := c.cascadePut(ctx, *e, 0); err != nil {
			return nil, c.fail("get", id, err)
		}
		c.logger.Debug("Cache hit", "id", id, "tier", t.Index())
		c.reportUsage(ctx)
		return e, nil
	}

	c.logger.Debug("Cache miss", "id", id)
	return nil, nil
}

// Find returns the entry for id without changing its placement or recency.
func (c *Cache) Find(ctx context.Context, id int64) (_ *types.Entry, err error) {
	ctx, span := c.startSpan(ctx, "find", id)
	start := time.Now()
	defer func() { c.endSpan(span, "find", start, err) }()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, closedError("find", id)
	}

	for _, t := range c.tiers {
		e, err := t.Get(ctx, id)
		if err != nil {
			return nil, c.fail("find", id, err)
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

// cascadePut stores e in tier index. When that tier is full its victim is
// pulled first and either discarded (last tier) or cascaded into the next
// tier before e is written, so no tier ever exceeds its capacity.
func (c *Cache) cascadePut(ctx context.Context, e types.Entry, index int) error {
	t := c.tiers[index]

	full, err := t.IsFull(ctx)
	if err != nil {
		return err
	}
	if !full {
		return t.Put(ctx, e)
	}

	victim, err := t.PullVictim(ctx)
	if err != nil {
		if stderr.Is(err, &errors.EmptyTierError{}) {
			c.logger.Error("Victim requested from empty tier", "tier", index, "id", e.ID)
		}
		return err
	}

	if index == len(c.tiers)-1 {
		c.logger.Debug("Discarded victim", "tier", index, "victim", victim.ID, "id", e.ID)
		if c.recorder != nil {
			c.recorder.RecordDiscard(index)
		}
	} else {
		c.logger.Debug("Displacing victim", "from_tier", index, "victim", victim.ID, "id", e.ID)
		if c.recorder != nil {
			c.recorder.RecordDisplacement(index)
		}
		if err := c.cascadePut(ctx, victim, index+1); err != nil {
			return err
		}
	}

	return t.Put(ctx, e)
}

// Size returns the number of entries across all tiers.
func (c *Cache) Size(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, closedError("size", 0)
	}
	return c.size(ctx)
}

func (c *Cache) size(ctx context.Context) (int, error) {
	total := 0
	for _, t := range c.tiers {
		n, err := t.Size(ctx)
		if err != nil {
			return 0, c.fail("size", 0, err)
		}
		total += n
	}
	return total, nil
}

// MaxSize returns the sum of tier capacities.
func (c *Cache) MaxSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, t := range c.tiers {
		total += t.Capacity()
	}
	return total
}

// IsFull reports whether the last tier is full. Earlier tiers can always
// cascade, so only the last one forces a discard.
func (c *Cache) IsFull(ctx context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false, closedError("is_full", 0)
	}

	full, err := c.tiers[len(c.tiers)-1].IsFull(ctx)
	if err != nil {
		return false, c.fail("is_full", 0, err)
	}
	return full, nil
}

// Clear empties every tier. The tier structure is kept.
func (c *Cache) Clear(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "clear", 0)
	start := time.Now()
	defer func() { c.endSpan(span, "clear", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return closedError("clear", 0)
	}

	c.logger.Info("Clearing cache", "tiers", len(c.tiers))
	for _, t := range c.tiers {
		if err := t.Clear(ctx); err != nil {
			return c.fail("clear", 0, err)
		}
	}
	c.reportUsage(ctx)
	return nil
}

// Delete disposes every tier concurrently and closes the cache. Every later
// call fails with CACHE_CLOSED.
func (c *Cache) Delete(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "delete", 0)
	start := time.Now()
	defer func() { c.endSpan(span, "delete", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return closedError("delete", 0)
	}
	c.closed = true

	c.logger.Info("Deleting cache", "tiers", len(c.tiers))
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range c.tiers {
		g.Go(func() error {
			return t.Dispose(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return c.fail("delete", 0, err)
	}
	return nil
}

// Strategy returns the displacement policy.
func (c *Cache) Strategy() *strategy.Policy {
	return c.policy
}

// Tiers returns the tiers in order. The slice is a copy.
func (c *Cache) Tiers() []tier.Tier {
	tiers := make([]tier.Tier, len(c.tiers))
	copy(tiers, c.tiers)
	return tiers
}

// Levels returns a snapshot of every tier.
func (c *Cache) Levels(ctx context.Context) ([]types.LevelInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, closedError("levels", 0)
	}
	return c.levels(ctx)
}

func (c *Cache) levels(ctx context.Context) ([]types.LevelInfo, error) {
	infos := make([]types.LevelInfo, 0, len(c.tiers))
	for _, t := range c.tiers {
		entries, err := t.Entries(ctx)
		if err != nil {
			return nil, c.fail("levels", 0, err)
		}
		ids := make([]int64, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		infos = append(infos, types.LevelInfo{
			Index:    t.Index(),
			Kind:     string(t.Kind()),
			Size:     len(entries),
			Capacity: t.Capacity(),
			IDs:      ids,
		})
	}
	return infos, nil
}

// String summarizes the strategy and per-tier occupancy.
func (c *Cache) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return "Cache closed.\n"
	}

	levels, err := c.levels(context.Background())
	if err != nil {
		return "Cannot describe cache.\n" + err.Error()
	}

	size, maxSize := 0, 0
	var b strings.Builder
	for _, l := range levels {
		size += l.Size
		maxSize += l.Capacity
		fmt.Fprintf(&b, "%d (%s): %d items of %d\n", l.Index+1, l.Kind, l.Size, l.Capacity)
	}
	return fmt.Sprintf("Cache strategy: %s\nCache contains %d items of %d.\n", c.policy, size, maxSize) + b.String()
}

func (c *Cache) fail(op string, id int64, cause error) error {
	err := errors.NewEngineError(op, id, cause)
	c.logger.Error("Cache operation failed", "op", op, "id", id, "tier", err.Tier, "code", err.Code, "category", errors.GetCategory(err.Code), "error", cause)
	return err
}

func closedError(op string, id int64) error {
	return &errors.EngineError{Op: op, ID: id, Tier: -1, Code: errors.ErrCodeCacheClosed, Cause: fmt.Errorf("cache is closed")}
}

// reportUsage pushes tier occupancy to the recorder. Failures are ignored;
// the operation that triggered the report already succeeded.
func (c *Cache) reportUsage(ctx context.Context) {
	if c.recorder == nil {
		return
	}
	for _, t := range c.tiers {
		size, err := t.Size(ctx)
		if err != nil {
			continue
		}
		c.recorder.SetTierUsage(t.Index(), string(t.Kind()), size, t.Capacity())
	}
}
