// Package tier implements the capacity-bounded storage levels a cache
// cascades entries through.
//
// Every tier keeps its entries in recency order and delegates victim
// selection to the strategy.Policy shared by the whole cache. Put, Pull and
// PullVictim are the only operations that change recency; Get never does.
package tier

import (
	"context"
	stderr "errors"
	"fmt"
	"strings"

	"github.com/tiercache/tiercache/internal/order"
	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// Kind names a tier backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindS3     Kind = "s3"
)

// ParseKind parses a backend name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMemory, KindFile, KindS3:
		return k, nil
	case "mem", "in_memory":
		return KindMemory, nil
	case "disk", "in_file":
		return KindFile, nil
	default:
		return "", fmt.Errorf("unknown tier kind: %q", s)
	}
}

// Persistent reports whether the kind keeps its entries outside the process.
func (k Kind) Persistent() bool {
	return k == KindFile || k == KindS3
}

// Tier is one storage level. Index and Capacity never change after
// construction and Size never exceeds Capacity.
type Tier interface {
	// Put inserts or overwrites e and marks it most recent. Inserting a new
	// id into a full tier fails with TIER_FULL.
	Put(ctx context.Context, e types.Entry) error
	// Get returns a copy of the entry for id, or nil when absent.
	Get(ctx context.Context, id int64) (*types.Entry, error)
	// Remove deletes id and reports whether it was present.
	Remove(ctx context.Context, id int64) (bool, error)
	// Pull removes id and returns its entry, or nil when absent.
	Pull(ctx context.Context, id int64) (*types.Entry, error)
	// SelectVictimKey returns the id the policy would displace.
	SelectVictimKey(ctx context.Context) (int64, error)
	// PullVictim removes and returns the policy's victim.
	PullVictim(ctx context.Context) (types.Entry, error)

	Size(ctx context.Context) (int, error)
	Capacity() int
	IsFull(ctx context.Context) (bool, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Dispose releases external resources such as a backing file.
	Dispose(ctx context.Context) error

	Index() int
	Kind() Kind
	// Entries returns copies of every entry, least recent first.
	Entries(ctx context.Context) ([]types.Entry, error)
}

func validate(index, capacity int, policy *strategy.Policy) error {
	if index < 0 {
		return fmt.Errorf("tier index must be non-negative, got %d", index)
	}
	if capacity <= 0 {
		return fmt.Errorf("tier %d capacity must be positive, got %d", index, capacity)
	}
	if policy == nil {
		return fmt.Errorf("tier %d requires a displacement policy", index)
	}
	return nil
}

// The helpers below hold the operation logic shared by every backend; each
// backend supplies the order.Map and handles persistence around them.

func putEntry(m *order.Map, index, capacity int, e types.Entry) error {
	if !m.Contains(e.ID) && m.Len() >= capacity {
		return errors.NewTierError(errors.ErrCodeTierFull, index, "put").WithID(e.ID)
	}
	m.Put(e.Clone())
	return nil
}

func getEntry(m *order.Map, id int64) *types.Entry {
	e, ok := m.Get(id)
	if !ok {
		return nil
	}
	clone := e.Clone()
	return &clone
}

func pullEntry(m *order.Map, id int64) *types.Entry {
	e, ok := m.Remove(id)
	if !ok {
		return nil
	}
	return &e
}

func selectVictim(m *order.Map, index int, policy *strategy.Policy) (int64, error) {
	id, err := policy.SelectVictim(m)
	if stderr.Is(err, strategy.ErrNoCandidates) {
		return 0, &errors.EmptyTierError{Tier: index}
	}
	if err != nil {
		return 0, errors.NewTierError(errors.ErrCodeInternalError, index, "select_victim").WithCause(err)
	}
	return id, nil
}

func pullVictim(m *order.Map, index int, policy *strategy.Policy) (types.Entry, error) {
	id, err := selectVictim(m, index, policy)
	if err != nil {
		return types.Entry{}, err
	}
	e, _ := m.Remove(id)
	return e, nil
}

func snapshot(m *order.Map) []types.Entry {
	entries := m.Entries()
	for i := range entries {
		entries[i] = entries[i].Clone()
	}
	return entries
}
