// Package topicindex provides the ordered in-memory multimap mirroring the
// persisted subscription rows of one session: (topic filter, subscription
// id) → descriptor, ordered by filter then id.
package topicindex

import (
	"sort"
)

type entry[V any] struct {
	filter string
	subID  int64
	value  V
}

// Map is an ordered multimap over topic filters. One filter may carry
// several subscription ids. Not safe for concurrent use; each session
// record owns its own Map.
type Map[V any] struct {
	entries []entry[V]
}

func New[V any]() *Map[V] {
	return &Map[V]{}
}

// search returns the insertion point of (filter, subID).
func (m *Map[V]) search(filter string, subID int64) int {
	return sort.Search(len(m.entries), func(i int) bool {
		e := m.entries[i]
		if e.filter != filter {
			return e.filter > filter
		}
		return e.subID >= subID
	})
}

// Insert adds or replaces the value under (filter, subID).
func (m *Map[V]) Insert(filter string, subID int64, value V) {
	i := m.search(filter, subID)
	if i < len(m.entries) && m.entries[i].filter == filter && m.entries[i].subID == subID {
		m.entries[i].value = value
		return
	}
	m.entries = append(m.entries, entry[V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[V]{filter: filter, subID: subID, value: value}
}

// Delete removes the value under (filter, subID) and reports whether an
// entry was present.
func (m *Map[V]) Delete(filter string, subID int64) bool {
	i := m.search(filter, subID)
	if i >= len(m.entries) || m.entries[i].filter != filter || m.entries[i].subID != subID {
		return false
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	return true
}

// Get returns the value under (filter, subID).
func (m *Map[V]) Get(filter string, subID int64) (V, bool) {
	i := m.search(filter, subID)
	if i < len(m.entries) && m.entries[i].filter == filter && m.entries[i].subID == subID {
		return m.entries[i].value, true
	}
	var zero V
	return zero, false
}

// Fold visits every entry in (filter, subID) order until fn returns false.
func (m *Map[V]) Fold(fn func(filter string, subID int64, value V) bool) {
	for _, e := range m.entries {
		if !fn(e.filter, e.subID, e.value) {
			return
		}
	}
}

func (m *Map[V]) Len() int {
	return len(m.entries)
}
