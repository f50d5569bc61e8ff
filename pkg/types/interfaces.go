package types

import "context"

// Cache defines the multi-level cache contract.
type Cache interface {
	Put(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id int64) (*Entry, error)
	Find(ctx context.Context, id int64) (*Entry, error)
	Size(ctx context.Context) (int, error)
	MaxSize() int
	IsFull(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Recorder receives observability events from the cache engine. A nil
// Recorder is never called.
type Recorder interface {
	RecordOperation(operation string, seconds float64, err error)
	RecordDisplacement(fromTier int)
	RecordDiscard(tier int)
	SetTierUsage(tier int, kind string, size, capacity int)
}
