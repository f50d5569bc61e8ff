// Package order provides the recency-ordered id to entry container that every
// tier keeps and every displacement strategy selects victims from.
package order

import (
	"container/list"

	"github.com/tiercache/tiercache/pkg/types"
)

// Map is an id -> entry map that remembers the order in which ids were last
// put. The front of the internal list is the most recent id, the back the
// least recent. Map is not safe for concurrent use.
type Map struct {
	items     map[int64]*list.Element
	evictList *list.List
}

// New creates an empty Map.
func New() *Map {
	return &Map{
		items:     make(map[int64]*list.Element),
		evictList: list.New(),
	}
}

// FromEntries builds a Map from entries ordered least recent first.
func FromEntries(entries []types.Entry) *Map {
	m := New()
	for _, e := range entries {
		m.Put(e)
	}
	return m
}

// Put inserts or overwrites the entry and marks its id most recent.
func (m *Map) Put(e types.Entry) {
	if element, exists := m.items[e.ID]; exists {
		element.Value = e
		m.evictList.MoveToFront(element)
		return
	}
	m.items[e.ID] = m.evictList.PushFront(e)
}

// Get returns the entry for id without touching its recency.
func (m *Map) Get(id int64) (types.Entry, bool) {
	element, exists := m.items[id]
	if !exists {
		return types.Entry{}, false
	}
	return element.Value.(types.Entry), true
}

// Contains reports whether id is present.
func (m *Map) Contains(id int64) bool {
	_, exists := m.items[id]
	return exists
}

// Remove deletes id and returns the removed entry.
func (m *Map) Remove(id int64) (types.Entry, bool) {
	element, exists := m.items[id]
	if !exists {
		return types.Entry{}, false
	}
	m.evictList.Remove(element)
	delete(m.items, id)
	return element.Value.(types.Entry), true
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.items)
}

// Oldest returns the least recently put id.
func (m *Map) Oldest() (int64, bool) {
	element := m.evictList.Back()
	if element == nil {
		return 0, false
	}
	return element.Value.(types.Entry).ID, true
}

// Newest returns the most recently put id.
func (m *Map) Newest() (int64, bool) {
	element := m.evictList.Front()
	if element == nil {
		return 0, false
	}
	return element.Value.(types.Entry).ID, true
}

// At returns the id at position i counting from the least recent end.
func (m *Map) At(i int) (int64, bool) {
	if i < 0 || i >= len(m.items) {
		return 0, false
	}
	element := m.evictList.Back()
	for ; i > 0; i-- {
		element = element.Prev()
	}
	return element.Value.(types.Entry).ID, true
}

// Keys returns the ids least recent first.
func (m *Map) Keys() []int64 {
	keys := make([]int64, 0, len(m.items))
	for element := m.evictList.Back(); element != nil; element = element.Prev() {
		keys = append(keys, element.Value.(types.Entry).ID)
	}
	return keys
}

// Entries returns the entries least recent first. Values are shared with the
// map; callers that hand them out must clone.
func (m *Map) Entries() []types.Entry {
	entries := make([]types.Entry, 0, len(m.items))
	for element := m.evictList.Back(); element != nil; element = element.Prev() {
		entries = append(entries, element.Value.(types.Entry))
	}
	return entries
}

// Clear removes every entry.
func (m *Map) Clear() {
	m.items = make(map[int64]*list.Element)
	m.evictList.Init()
}
