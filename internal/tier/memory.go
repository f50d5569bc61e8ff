package tier

import (
	"context"
	"sync"

	"github.com/tiercache/tiercache/internal/order"
	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/pkg/types"
)

// Memory is a tier held in process memory.
type Memory struct {
	index    int
	capacity int
	policy   *strategy.Policy

	mu      sync.RWMutex
	entries *order.Map
}

var _ Tier = (*Memory)(nil)

// NewMemory creates an empty in-memory tier.
func NewMemory(index, capacity int, policy *strategy.Policy) (*Memory, error) {
	if err := validate(index, capacity, policy); err != nil {
		return nil, err
	}
	return &Memory{
		index:    index,
		capacity: capacity,
		policy:   policy,
		entries:  order.New(),
	}, nil
}

// Put implements Tier.
func (t *Memory) Put(_ context.Context, e types.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return putEntry(t.entries, t.index, t.capacity, e)
}

// Get implements Tier.
func (t *Memory) Get(_ context.Context, id int64) (*types.Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return getEntry(t.entries, id), nil
}

// Remove implements Tier.
func (t *Memory) Remove(_ context.Context, id int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries.Remove(id)
	return ok, nil
}

// Pull implements Tier.
func (t *Memory) Pull(_ context.Context, id int64) (*types.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pullEntry(t.entries, id), nil
}

// SelectVictimKey implements Tier.
func (t *Memory) SelectVictimKey(_ context.Context) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return selectVictim(t.entries, t.index, t.policy)
}

// PullVictim implements Tier.
func (t *Memory) PullVictim(_ context.Context) (types.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pullVictim(t.entries, t.index, t.policy)
}

// Size implements Tier.
func (t *Memory) Size(_ context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries.Len(), nil
}

// Capacity implements Tier.
func (t *Memory) Capacity() int {
	return t.capacity
}

// IsFull implements Tier.
func (t *Memory) IsFull(ctx context.Context) (bool, error) {
	size, _ := t.Size(ctx)
	return size == t.capacity, nil
}

// Clear implements Tier.
func (t *Memory) Clear(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Clear()
	return nil
}

// Dispose drops every entry; a memory tier holds no external resources.
func (t *Memory) Dispose(ctx context.Context) error {
	return t.Clear(ctx)
}

// Index implements Tier.
func (t *Memory) Index() int {
	return t.index
}

// Kind implements Tier.
func (t *Memory) Kind() Kind {
	return KindMemory
}

// Entries implements Tier.
func (t *Memory) Entries(_ context.Context) ([]types.Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshot(t.entries), nil
}
