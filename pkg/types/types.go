package types

// Entry is a cached value and its cache-wide unique identity. The cache never
// inspects Value.
type Entry struct {
	ID    int64  `json:"id"`
	Value []byte `json:"value"`
}

// Clone returns a copy of the entry that shares no memory with e.
func (e Entry) Clone() Entry {
	if e.Value == nil {
		return Entry{ID: e.ID}
	}
	value := make([]byte, len(e.Value))
	copy(value, e.Value)
	return Entry{ID: e.ID, Value: value}
}

// LevelInfo is a point-in-time view of one tier.
type LevelInfo struct {
	Index    int     `json:"index"`
	Kind     string  `json:"kind"`
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	IDs      []int64 `json:"ids"` // least recent first
}

// Full reports whether the tier had no free slot.
func (l LevelInfo) Full() bool {
	return l.Size == l.Capacity
}
