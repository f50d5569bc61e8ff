package types

import (
	"context"
	"testing"
)

// TestInterfaces verifies that the interfaces are properly structured
func TestInterfaces(t *testing.T) {
	var (
		_ Cache    = (*mockCache)(nil)
		_ Recorder = (*mockRecorder)(nil)
	)
}

type mockCache struct{}

func (m *mockCache) Put(ctx context.Context, entry *Entry) error { return nil }
func (m *mockCache) Get(ctx context.Context, id int64) (*Entry, error) { return nil, nil }
func (m *mockCache) Find(ctx context.Context, id int64) (*Entry, error) { return nil, nil }
func (m *mockCache) Size(ctx context.Context) (int, error) { return 0, nil }
func (m *mockCache) MaxSize() int { return 0 }
func (m *mockCache) IsFull(ctx context.Context) (bool, error) { return false, nil }
func (m *mockCache) Clear(ctx context.Context) error { return nil }
func (m *mockCache) Delete(ctx context.Context) error { return nil }

type mockRecorder struct{}

func (m *mockRecorder) RecordOperation(operation string, seconds float64, err error) {}
func (m *mockRecorder) RecordDisplacement(fromTier int) {}
func (m *mockRecorder) RecordDiscard(tier int) {}
func (m *mockRecorder) SetTierUsage(tier int, kind string, size, capacity int) {}

func TestEntryClone(t *testing.T) {
	original := Entry{ID: 5, Value: []byte("payload")}
	clone := original.Clone()

	clone.Value[0] = 'P'
	if string(original.Value) != "payload" {
		t.Errorf("clone shares memory with original: %q", original.Value)
	}
	if clone.ID != original.ID {
		t.Errorf("clone ID = %d, want %d", clone.ID, original.ID)
	}

	empty := Entry{ID: 1}.Clone()
	if empty.Value != nil {
		t.Error("clone of nil value should stay nil")
	}
}

func TestLevelInfoFull(t *testing.T) {
	tests := []struct {
		name string
		info LevelInfo
		want bool
	}{
		{"empty", LevelInfo{Size: 0, Capacity: 2}, false},
		{"partial", LevelInfo{Size: 1, Capacity: 2}, false},
		{"full", LevelInfo{Size: 2, Capacity: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Full(); got != tt.want {
				t.Errorf("Full() = %v, want %v", got, tt.want)
			}
		})
	}
}
