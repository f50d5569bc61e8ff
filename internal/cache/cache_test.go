package cache

import (
	"context"
	stderr "errors"
	"io"
	"math/rand/v2"
	"reflect"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tiercache/tiercache/internal/storage"
	"github.com/tiercache/tiercache/internal/storage/file"
	"github.com/tiercache/tiercache/internal/strategy"
	"github.com/tiercache/tiercache/internal/tier"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

func newMemoryCache(t *testing.T, policy *strategy.Policy, capacities ...int) *Cache {
	t.Helper()
	tiers := make([]tier.Tier, 0, len(capacities))
	for i, capacity := range capacities {
		mt, err := tier.NewMemory(i, capacity, policy)
		if err != nil {
			t.Fatalf("NewMemory() error = %v", err)
		}
		tiers = append(tiers, mt)
	}
	c, err := New(policy, tiers)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// newMixedCache builds a memory tier 0 followed by file tiers on memfs.
func newMixedCache(t *testing.T, policy *strategy.Policy, capacities ...int) *Cache {
	t.Helper()
	fs := memfs.New()
	tiers := make([]tier.Tier, 0, len(capacities))
	for i, capacity := range capacities {
		if i == 0 {
			mt, err := tier.NewMemory(i, capacity, policy)
			if err != nil {
				t.Fatalf("NewMemory() error = %v", err)
			}
			tiers = append(tiers, mt)
			continue
		}
		store, err := file.NewTempStore(fs, "tmp")
		if err != nil {
			t.Fatalf("NewTempStore() error = %v", err)
		}
		pt, err := tier.NewPersistent(i, capacity, tier.KindFile, policy, store)
		if err != nil {
			t.Fatalf("NewPersistent() error = %v", err)
		}
		tiers = append(tiers, pt)
	}
	c, err := New(policy, tiers)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func put(t *testing.T, c *Cache, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if err := c.Put(context.Background(), &types.Entry{ID: id, Value: []byte{byte(id)}}); err != nil {
			t.Fatalf("Put(%d) error = %v", id, err)
		}
	}
}

func get(t *testing.T, c *Cache, id int64) *types.Entry {
	t.Helper()
	e, err := c.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%d) error = %v", id, err)
	}
	return e
}

// layout returns the ids of every tier, least recent first.
func layout(t *testing.T, c *Cache) [][]int64 {
	t.Helper()
	levels, err := c.Levels(context.Background())
	if err != nil {
		t.Fatalf("Levels() error = %v", err)
	}
	out := make([][]int64, len(levels))
	for i, l := range levels {
		out[i] = l.IDs
	}
	return out
}

func size(t *testing.T, c *Cache) int {
	t.Helper()
	n, err := c.Size(context.Background())
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	return n
}

// checkInvariants asserts uniqueness across tiers and capacity bounds.
func checkInvariants(t *testing.T, c *Cache) {
	t.Helper()
	levels, err := c.Levels(context.Background())
	if err != nil {
		t.Fatalf("Levels() error = %v", err)
	}
	seen := make(map[int64]int)
	total := 0
	for _, l := range levels {
		if l.Size < 0 || l.Size > l.Capacity {
			t.Errorf("tier %d size %d outside [0, %d]", l.Index, l.Size, l.Capacity)
		}
		for _, id := range l.IDs {
			if prev, dup := seen[id]; dup {
				t.Errorf("id %d in tier %d and tier %d", id, prev, l.Index)
			}
			seen[id] = l.Index
		}
		total += l.Size
	}
	if got := size(t, c); got != total {
		t.Errorf("Size() = %d, sum of tiers = %d", got, total)
	}
}

func TestCache_ScenarioTwoByTwoLRU(t *testing.T) {
	t.Parallel()

	for name, build := range map[string]func(*testing.T, *strategy.Policy, ...int) *Cache{
		"memory": newMemoryCache,
		"mixed":  newMixedCache,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := build(t, strategy.NewPolicy(strategy.LRU), 2, 2)

			put(t, c, 1, 2, 3)
			if got, want := layout(t, c), [][]int64{{2, 3}, {1}}; !reflect.DeepEqual(got, want) {
				t.Errorf("after puts layout = %v, want %v", got, want)
			}
			if got := size(t, c); got != 3 {
				t.Errorf("Size() = %d, want 3", got)
			}

			e := get(t, c, 1)
			if e == nil || e.ID != 1 || e.Value[0] != 1 {
				t.Fatalf("Get(1) = %+v, want entry 1", e)
			}
			if got, want := layout(t, c), [][]int64{{3, 1}, {2}}; !reflect.DeepEqual(got, want) {
				t.Errorf("after get layout = %v, want %v", got, want)
			}
			if got := size(t, c); got != 3 {
				t.Errorf("Size() = %d, want 3", got)
			}
		})
	}
}

func TestCache_ScenarioOneByOneLRU(t *testing.T) {
	t.Parallel()

	for name, build := range map[string]func(*testing.T, *strategy.Policy, ...int) *Cache{
		"memory": newMemoryCache,
		"mixed":  newMixedCache,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			c := build(t, strategy.NewPolicy(strategy.LRU), 1, 1)

			put(t, c, 1)
			if got, want := layout(t, c), [][]int64{{1}, {}}; !reflect.DeepEqual(got, want) {
				t.Errorf("after put(1) layout = %v, want %v", got, want)
			}
			put(t, c, 2)
			if got, want := layout(t, c), [][]int64{{2}, {1}}; !reflect.DeepEqual(got, want) {
				t.Errorf("after put(2) layout = %v, want %v", got, want)
			}
			put(t, c, 3)
			if got, want := layout(t, c), [][]int64{{3}, {2}}; !reflect.DeepEqual(got, want) {
				t.Errorf("after put(3) layout = %v, want %v", got, want)
			}

			if got := size(t, c); got != 2 {
				t.Errorf("Size() = %d, want 2", got)
			}
			if got := c.MaxSize(); got != 2 {
				t.Errorf("MaxSize() = %d, want 2", got)
			}
			full, err := c.IsFull(ctx)
			if err != nil || !full {
				t.Errorf("IsFull() = %v, %v; want true", full, err)
			}
			if e := get(t, c, 1); e != nil {
				t.Errorf("Get(1) = %+v, want discarded", e)
			}
		})
	}
}

func TestCache_LRUOrdering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		kind      strategy.Kind
		access    bool
		relocated int64
	}{
		{"lru first inserted relocates first", strategy.LRU, false, 1},
		{"lru accessed item survives", strategy.LRU, true, 2},
		{"mru most recent relocates first", strategy.MRU, false, 3},
		{"mru accessed item relocates first", strategy.MRU, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newMemoryCache(t, strategy.NewPolicy(tt.kind), 3, 3)

			put(t, c, 1, 2, 3)
			if tt.access {
				get(t, c, 1)
			}
			put(t, c, 4)

			got := layout(t, c)
			if want := []int64{tt.relocated}; !reflect.DeepEqual(got[1], want) {
				t.Errorf("tier 1 = %v, want %v (layout %v)", got[1], want, got)
			}
		})
	}
}

func TestCache_TierZeroGetCountsAsAccess(t *testing.T) {
	t.Parallel()

	c := newMemoryCache(t, strategy.NewPolicy(strategy.LRU), 3, 1)
	put(t, c, 1, 2, 3)
	get(t, c, 1)

	if got, want := layout(t, c)[0], []int64{2, 3, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("tier 0 = %v, want %v", got, want)
	}
}

func TestCache_IdempotentReinsertion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newMemoryCache(t, strategy.NewPolicy(strategy.LRU), 2, 2)
	put(t, c, 1, 2, 3)
	before := size(t, c)

	if err := c.Put(ctx, &types.Entry{ID: 3, Value: []byte("x")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Put(ctx, &types.Entry{ID: 3, Value: []byte("y")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := size(t, c); got != before {
		t.Errorf("Size() = %d after re-insertion, want %d", got, before)
	}

	// re-inserting an id held by tier 1 moves it to tier 0
	put(t, c, 1)
	if got, want := layout(t, c), [][]int64{{3, 1}, {2}}; !reflect.DeepEqual(got, want) {
		t.Errorf("layout = %v, want %v", got, want)
	}
	checkInvariants(t, c)

	e, err := c.Find(ctx, 3)
	if err != nil || e == nil || string(e.Value) != "y" {
		t.Errorf("Find(3) = %+v, %v; want latest value", e, err)
	}
}

func TestCache_Conservation(t *testing.T) {
	t.Parallel()

	c := newMixedCache(t, strategy.NewPolicy(strategy.LRU), 2, 2, 3)

	for id := int64(1); id <= 7; id++ {
		put(t, c, id)
		if got := size(t, c); got != int(id) {
			t.Fatalf("after put(%d) Size() = %d, want %d", id, got, id)
		}
		checkInvariants(t, c)
	}

	put(t, c, 8)
	if got := size(t, c); got != 7 {
		t.Errorf("full cache Size() = %d, want 7", got)
	}
	if e, _ := c.Find(context.Background(), 1); e != nil {
		t.Errorf("oldest entry should be discarded, found %+v", e)
	}
	checkInvariants(t, c)
}

func TestCache_RandomizedInvariants(t *testing.T) {
	t.Parallel()

	for _, kind := range []strategy.Kind{strategy.LRU, strategy.MRU, strategy.Random} {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			rng := rand.New(rand.NewPCG(42, uint64(kind)))
			c := newMixedCache(t, strategy.NewPolicy(kind, strategy.WithRand(rng.IntN)), 3, 4, 5)

			for i := 0; i < 200; i++ {
				id := int64(rng.IntN(25))
				if rng.IntN(3) == 0 {
					get(t, c, id)
				} else {
					put(t, c, id)
					e, err := c.Find(context.Background(), id)
					if err != nil || e == nil {
						t.Fatalf("Find(%d) after put = %+v, %v", id, e, err)
					}
					if got := layout(t, c)[0]; got[len(got)-1] != id {
						t.Fatalf("put(%d) should land most recent in tier 0, tier 0 = %v", id, got)
					}
				}
				checkInvariants(t, c)
			}
		})
	}
}

func TestCache_RandomReproducible(t *testing.T) {
	t.Parallel()

	run := func() [][]int64 {
		rng := rand.New(rand.NewPCG(3, 5))
		c := newMemoryCache(t, strategy.NewPolicy(strategy.Random, strategy.WithRand(rng.IntN)), 2, 3)
		put(t, c, 1, 2, 3, 4, 5, 6, 7, 8)
		get(t, c, 5)
		return layout(t, c)
	}

	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Errorf("same seed produced %v and %v", a, b)
	}
}

func TestCache_NilPutAndMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newMemoryCache(t, strategy.NewPolicy(strategy.LRU), 1, 1)
	put(t, c, 1, 2)
	before := layout(t, c)

	if err := c.Put(ctx, nil); err != nil {
		t.Errorf("Put(nil) error = %v", err)
	}
	if e := get(t, c, 99); e != nil {
		t.Errorf("Get(99) = %+v, want nil", e)
	}
	if got := layout(t, c); !reflect.DeepEqual(got, before) {
		t.Errorf("layout changed to %v, want %v", got, before)
	}
}

func TestCache_FindDoesNotPromote(t *testing.T) {
	t.Parallel()

	c := newMemoryCache(t, strategy.NewPolicy(strategy.LRU), 1, 1)
	put(t, c, 1, 2)

	e, err := c.Find(context.Background(), 1)
	if err != nil || e == nil || e.ID != 1 {
		t.Fatalf("Find(1) = %+v, %v", e, err)
	}
	if got, want := layout(t, c), [][]int64{{2}, {1}}; !reflect.DeepEqual(got, want) {
		t.Errorf("layout = %v, want %v", got, want)
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := newMixedCache(t, strategy.NewPolicy(strategy.LRU), 1, 2)
	put(t, c, 1, 2, 3)

	if err := c.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := size(t, c); got != 0 {
		t.Errorf("Size() = %d after Clear, want 0", got)
	}
	if got := c.MaxSize(); got != 3 {
		t.Errorf("MaxSize() = %d after Clear, want 3", got)
	}
	put(t, c, 4)
	if got := size(t, c); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

func TestCache_DeleteClosesCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fs := memfs.New()
	policy := strategy.NewPolicy(strategy.LRU)
	mt, _ := tier.NewMemory(0, 1, policy)
	store, err := file.NewStore(fs, "level1.img")
	if err != nil {
		t.Fatal(err)
	}
	pt, _ := tier.NewPersistent(1, 1, tier.KindFile, policy, store)
	c, err := New(policy, []tier.Tier{mt, pt})
	if err != nil {
		t.Fatal(err)
	}
	put(t, c, 1, 2)

	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := fs.Stat("level1.img"); err == nil {
		t.Error("Delete() should remove the backing file")
	}

	closed := &errors.EngineError{Code: errors.ErrCodeCacheClosed}
	checks := map[string]error{
		"put":    c.Put(ctx, &types.Entry{ID: 3}),
		"clear":  c.Clear(ctx),
		"delete": c.Delete(ctx),
	}
	_, checks["get"] = c.Get(ctx, 1)
	_, checks["find"] = c.Find(ctx, 1)
	_, checks["size"] = c.Size(ctx)
	_, checks["is_full"] = c.IsFull(ctx)
	_, checks["levels"] = c.Levels(ctx)

	for op, err := range checks {
		if !stderr.Is(err, closed) {
			t.Errorf("%s after Delete error = %v, want CACHE_CLOSED", op, err)
		}
	}
	if got := c.String(); got != "Cache closed.\n" {
		t.Errorf("String() = %q", got)
	}
}

// failingStore fails Save once armed.
type failingStore struct {
	storage.Store
	mu   sync.Mutex
	fail error
}

func (s *failingStore) arm(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *failingStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	err := s.fail
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Save(ctx, data)
}

func TestCache_TierFailureAbortsCascade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	policy := strategy.NewPolicy(strategy.LRU)
	mt, _ := tier.NewMemory(0, 1, policy)
	inner, err := file.NewStore(memfs.New(), "level1.img")
	if err != nil {
		t.Fatal(err)
	}
	store := &failingStore{Store: inner}
	pt, _ := tier.NewPersistent(1, 2, tier.KindFile, policy, store)
	c, err := New(policy, []tier.Tier{mt, pt})
	if err != nil {
		t.Fatal(err)
	}

	put(t, c, 1)
	store.arm(io.ErrShortWrite)

	err = c.Put(ctx, &types.Entry{ID: 2})
	var engineErr *errors.EngineError
	if !stderr.As(err, &engineErr) {
		t.Fatalf("Put() error = %v, want EngineError", err)
	}
	if engineErr.Op != "put" || engineErr.ID != 2 || engineErr.Tier != 1 {
		t.Errorf("EngineError = {Op:%s ID:%d Tier:%d}, want {put 2 1}", engineErr.Op, engineErr.ID, engineErr.Tier)
	}
	if engineErr.Code != errors.ErrCodeTierIO {
		t.Errorf("Code = %s, want TIER_IO", engineErr.Code)
	}
	if !stderr.Is(err, io.ErrShortWrite) {
		t.Errorf("error chain should carry the store failure, got %v", err)
	}

	// no rollback: the victim pulled from tier 0 is gone and 2 was never written
	store.arm(nil)
	if got := size(t, c); got != 0 {
		t.Errorf("Size() = %d after aborted cascade, want 0", got)
	}
}

type recordingRecorder struct {
	mu            sync.Mutex
	operations    map[string]int
	failures      map[string]int
	displacements map[int]int
	discards      map[int]int
	usage         map[int]int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		operations:    make(map[string]int),
		failures:      make(map[string]int),
		displacements: make(map[int]int),
		discards:      make(map[int]int),
		usage:         make(map[int]int),
	}
}

func (r *recordingRecorder) RecordOperation(op string, _ float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[op]++
	if err != nil {
		r.failures[op]++
	}
}

func (r *recordingRecorder) RecordDisplacement(fromTier int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displacements[fromTier]++
}

func (r *recordingRecorder) RecordDiscard(tier int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discards[tier]++
}

func (r *recordingRecorder) SetTierUsage(tier int, _ string, size, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[tier] = size
}

func TestCache_Recorder(t *testing.T) {
	t.Parallel()

	policy := strategy.NewPolicy(strategy.LRU)
	t0, _ := tier.NewMemory(0, 1, policy)
	t1, _ := tier.NewMemory(1, 1, policy)
	rec := newRecordingRecorder()
	c, err := New(policy, []tier.Tier{t0, t1}, WithRecorder(rec))
	if err != nil {
		t.Fatal(err)
	}

	put(t, c, 1, 2, 3)
	get(t, c, 42)

	if rec.operations["put"] != 3 || rec.operations["get"] != 1 {
		t.Errorf("operations = %v", rec.operations)
	}
	if rec.displacements[0] != 2 {
		t.Errorf("displacements from tier 0 = %d, want 2", rec.displacements[0])
	}
	if rec.discards[1] != 1 {
		t.Errorf("discards from tier 1 = %d, want 1", rec.discards[1])
	}
	if rec.usage[0] != 1 || rec.usage[1] != 1 {
		t.Errorf("usage = %v, want both tiers at 1", rec.usage)
	}
}

func TestCache_Spans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	policy := strategy.NewPolicy(strategy.LRU)
	mt, _ := tier.NewMemory(0, 1, policy)
	inner, err := file.NewStore(memfs.New(), "level1.img")
	if err != nil {
		t.Fatal(err)
	}
	store := &failingStore{Store: inner}
	pt, _ := tier.NewPersistent(1, 1, tier.KindFile, policy, store)
	c, err := New(policy, []tier.Tier{mt, pt}, WithTracer(tp.Tracer("test")))
	if err != nil {
		t.Fatal(err)
	}

	put(t, c, 1)
	store.arm(io.ErrClosedPipe)
	if err := c.Put(ctx, &types.Entry{ID: 2}); err == nil {
		t.Fatal("Put() should fail")
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	ok, failed := spans[0], spans[1]
	if ok.Name() != "tiercache.put" || ok.Status().Code != codes.Ok {
		t.Errorf("first span = %s %v", ok.Name(), ok.Status())
	}
	if failed.Status().Code != codes.Error {
		t.Errorf("failed span status = %v, want Error", failed.Status())
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range failed.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["cache.id"].AsInt64() != 2 {
		t.Errorf("cache.id = %v, want 2", attrs["cache.id"])
	}
	if attrs["cache.tier"].AsInt64() != 1 {
		t.Errorf("cache.tier = %v, want 1", attrs["cache.tier"])
	}
	if attrs["cache.error_code"].AsString() != string(errors.ErrCodeTierIO) {
		t.Errorf("cache.error_code = %v", attrs["cache.error_code"])
	}
	if attrs["cache.error_category"].AsString() != string(errors.CategoryTier) {
		t.Errorf("cache.error_category = %v", attrs["cache.error_category"])
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := newMemoryCache(t, strategy.NewPolicy(strategy.LRU), 4, 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := int64((w*7 + i) % 20)
				if i%3 == 0 {
					if _, err := c.Get(ctx, id); err != nil {
						t.Errorf("Get() error = %v", err)
					}
				} else if err := c.Put(ctx, &types.Entry{ID: id}); err != nil {
					t.Errorf("Put() error = %v", err)
				}
				if _, err := c.Size(ctx); err != nil {
					t.Errorf("Size() error = %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	checkInvariants(t, c)
}

func TestCache_String(t *testing.T) {
	t.Parallel()

	c := newMixedCache(t, strategy.NewPolicy(strategy.MRU), 1, 2)
	put(t, c, 1, 2)

	want := "Cache strategy: mru\nCache contains 2 items of 3.\n1 (memory): 1 items of 1\n2 (file): 1 items of 2\n"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
