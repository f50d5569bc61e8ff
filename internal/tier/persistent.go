package tier

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"

	"github.com/tiercache/tiercache/internal/codec"
	"github.com/tiercache/tiercache/internal/order"
	"github.com/tiercache/tiercache/internal/storage"
	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// Persistent is a tier whose entries live only in a backing store. Every
// operation loads the whole image, applies the change and saves the image
// back; read-only operations skip the save. A missing image is an empty
// tier. The store must not be shared with another tier or process.
type Persistent struct {
	index    int
	capacity int
	kind     Kind
	policy   *strategy.Policy
	store    storage.Store
	codec    *codec.Codec
	logger   *slog.Logger
}

var _ Tier = (*Persistent)(nil)

// PersistentOption configures a Persistent tier.
type PersistentOption func(*Persistent)

// WithCodec sets the image codec. The default is uncompressed.
func WithCodec(c *codec.Codec) PersistentOption {
	return func(t *Persistent) {
		if c != nil {
			t.codec = c
		}
	}
}

// WithLogger sets the tier logger.
func WithLogger(logger *slog.Logger) PersistentOption {
	return func(t *Persistent) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewPersistent creates a tier backed by store. kind is reported by Kind and
// must be a persistent kind.
func NewPersistent(index, capacity int, kind Kind, policy *strategy.Policy, store storage.Store, opts ...PersistentOption) (*Persistent, error) {
	if err := validate(index, capacity, policy); err != nil {
		return nil, err
	}
	if !kind.Persistent() {
		return nil, fmt.Errorf("tier %d: %q is not a persistent kind", index, kind)
	}
	if store == nil {
		return nil, fmt.Errorf("tier %d requires a backing store", index)
	}

	t := &Persistent{
		index:    index,
		capacity: capacity,
		kind:     kind,
		policy:   policy,
		store:    store,
		codec:    codec.New(false),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tier", "tier", index, "kind", string(kind), "location", store.Location())
	return t, nil
}

// Put implements Tier.
func (t *Persistent) Put(ctx context.Context, e types.Entry) error {
	return t.update(ctx, "put", e.ID, true, func(m *order.Map) (bool, error) {
		return true, putEntry(m, t.index, t.capacity, e)
	})
}

// Get implements Tier.
func (t *Persistent) Get(ctx context.Context, id int64) (*types.Entry, error) {
	m, err := t.load(ctx, "get", id, true)
	if err != nil {
		return nil, err
	}
	return getEntry(m, id), nil
}

// Remove implements Tier.
func (t *Persistent) Remove(ctx context.Context, id int64) (bool, error) {
	var removed bool
	err := t.update(ctx, "remove", id, true, func(m *order.Map) (bool, error) {
		_, removed = m.Remove(id)
		return removed, nil
	})
	return removed, err
}

// Pull implements Tier.
func (t *Persistent) Pull(ctx context.Context, id int64) (*types.Entry, error) {
	var pulled *types.Entry
	err := t.update(ctx, "pull", id, true, func(m *order.Map) (bool, error) {
		pulled = pullEntry(m, id)
		return pulled != nil, nil
	})
	return pulled, err
}

// SelectVictimKey implements Tier.
func (t *Persistent) SelectVictimKey(ctx context.Context) (int64, error) {
	m, err := t.load(ctx, "select_victim", 0, false)
	if err != nil {
		return 0, err
	}
	return selectVictim(m, t.index, t.policy)
}

// PullVictim implements Tier.
func (t *Persistent) PullVictim(ctx context.Context) (types.Entry, error) {
	var victim types.Entry
	err := t.update(ctx, "pull_victim", 0, false, func(m *order.Map) (bool, error) {
		var err error
		victim, err = pullVictim(m, t.index, t.policy)
		return err == nil, err
	})
	return victim, err
}

// Size implements Tier.
func (t *Persistent) Size(ctx context.Context) (int, error) {
	m, err := t.load(ctx, "size", 0, false)
	if err != nil {
		return 0, err
	}
	return m.Len(), nil
}

// Capacity implements Tier.
func (t *Persistent) Capacity() int {
	return t.capacity
}

// IsFull implements Tier.
func (t *Persistent) IsFull(ctx context.Context) (bool, error) {
	size, err := t.Size(ctx)
	if err != nil {
		return false, err
	}
	return size == t.capacity, nil
}

// Clear saves an empty image.
func (t *Persistent) Clear(ctx context.Context) error {
	return t.save(ctx, "clear", 0, false, order.New())
}

// Dispose removes the backing object.
func (t *Persistent) Dispose(ctx context.Context) error {
	if err := t.store.Remove(ctx); err != nil {
		return errors.NewTierError(storeCode(err), t.index, "dispose").WithCause(err)
	}
	t.logger.Debug("Disposed tier backing store")
	return nil
}

// Index implements Tier.
func (t *Persistent) Index() int {
	return t.index
}

// Kind implements Tier.
func (t *Persistent) Kind() Kind {
	return t.kind
}

// Location returns where the tier image is stored.
func (t *Persistent) Location() string {
	return t.store.Location()
}

// Entries implements Tier.
func (t *Persistent) Entries(ctx context.Context) ([]types.Entry, error) {
	m, err := t.load(ctx, "entries", 0, false)
	if err != nil {
		return nil, err
	}
	return snapshot(m), nil
}

// update loads the image, applies fn and saves the image when fn reports a
// change.
func (t *Persistent) update(ctx context.Context, op string, id int64, hasID bool, fn func(*order.Map) (bool, error)) error {
	m, err := t.load(ctx, op, id, hasID)
	if err != nil {
		return err
	}
	changed, err := fn(m)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return t.save(ctx, op, id, hasID, m)
}

func (t *Persistent) load(ctx context.Context, op string, id int64, hasID bool) (*order.Map, error) {
	data, err := t.store.Load(ctx)
	if err != nil {
		if stderr.Is(err, storage.ErrNotExist) {
			return order.New(), nil
		}
		return nil, t.tierError(storeCode(err), op, id, hasID, err)
	}

	entries, err := t.codec.Decode(data)
	if err != nil {
		code := errors.ErrCodeTierIO
		if stderr.Is(err, codec.ErrCorrupt) {
			code = errors.ErrCodeTierCorrupt
		}
		return nil, t.tierError(code, op, id, hasID, err)
	}
	if len(entries) > t.capacity {
		return nil, t.tierError(errors.ErrCodeTierCorrupt, op, id, hasID,
			fmt.Errorf("image holds %d entries, capacity is %d", len(entries), t.capacity))
	}
	return order.FromEntries(entries), nil
}

func (t *Persistent) save(ctx context.Context, op string, id int64, hasID bool, m *order.Map) error {
	data, err := t.codec.Encode(m.Entries())
	if err != nil {
		return t.tierError(errors.ErrCodeTierIO, op, id, hasID, err)
	}
	if err := t.store.Save(ctx, data); err != nil {
		return t.tierError(storeCode(err), op, id, hasID, err)
	}
	return nil
}

func (t *Persistent) tierError(code errors.ErrorCode, op string, id int64, hasID bool, cause error) error {
	err := errors.NewTierError(code, t.index, op).WithCause(cause)
	if hasID {
		err.WithID(id)
	}
	return err
}

// storeCode classifies a backing store failure.
func storeCode(err error) errors.ErrorCode {
	if stderr.Is(err, storage.ErrUnavailable) {
		return errors.ErrCodeStoreUnavailable
	}
	return errors.ErrCodeTierIO
}
