package session

import (
	"context"

	"github.com/streamhive/mqtt-session-store/internal/database"
)

// PMap is a write-back cache over one grouped collection, scoped to one
// owner. Rows load into the clean region; puts buffer in dirty, deletes in
// tombstones, and both flush in a single transaction at commit time.
//
// Invariant: a key lives in at most one of dirty/tombstones, and a key in
// either has been removed from clean. Reads therefore never consult
// tombstones: a tombstoned key is simply absent.
type PMap[K comparable, V any] struct {
	table *database.GroupedTable[K, V]
	clean map[K]V
	dirty map[K]V
	dead  map[K]struct{}
}

func newPMap[K comparable, V any](table *database.GroupedTable[K, V]) *PMap[K, V] {
	return &PMap[K, V]{
		table: table,
		clean: make(map[K]V),
		dirty: make(map[K]V),
		dead:  make(map[K]struct{}),
	}
}

// openPMap loads every row of owner into the clean region. Called inside
// the read transaction of Store.Open.
func openPMap[K comparable, V any](ctx context.Context, d *database.DB, table *database.GroupedTable[K, V], owner string) (*PMap[K, V], error) {
	clean, err := table.LoadGroup(ctx, d, owner)
	if err != nil {
		return nil, err
	}
	m := newPMap(table)
	m.clean = clean
	return m, nil
}

// Get returns the buffered value if one is pending, else the clean value.
func (m *PMap[K, V]) Get(k K) (V, bool) {
	if v, ok := m.dirty[k]; ok {
		return v, true
	}
	v, ok := m.clean[k]
	return v, ok
}

// Put buffers an upsert. A pending delete of the same key is cancelled.
func (m *PMap[K, V]) Put(k K, v V) {
	delete(m.clean, k)
	delete(m.dead, k)
	m.dirty[k] = v
}

// Del buffers a delete. A pending upsert of the same key is cancelled.
func (m *PMap[K, V]) Del(k K) {
	delete(m.clean, k)
	delete(m.dirty, k)
	m.dead[k] = struct{}{}
}

// Range visits dirty entries then clean entries until fn returns false.
// The two regions are disjoint, so no key is visited twice.
func (m *PMap[K, V]) Range(fn func(K, V) bool) {
	for k, v := range m.dirty {
		if !fn(k, v) {
			return
		}
	}
	for k, v := range m.clean {
		if !fn(k, v) {
			return
		}
	}
}

// Format merges clean and dirty for introspection. Tombstoned keys are
// excluded by construction.
func (m *PMap[K, V]) Format() map[K]V {
	out := make(map[K]V, len(m.clean)+len(m.dirty))
	for k, v := range m.clean {
		out[k] = v
	}
	for k, v := range m.dirty {
		out[k] = v
	}
	return out
}

func (m *PMap[K, V]) mutated() bool {
	return len(m.dirty) > 0 || len(m.dead) > 0
}

// flush issues the buffered deltas against the grouped collection: an
// owner+key-scoped delete per tombstone, a delete-then-insert per dirty
// key. Must run inside the commit transaction; the in-memory regions are
// untouched until apply.
func (m *PMap[K, V]) flush(ctx context.Context, d *database.DB, owner string) (int, error) {
	rows := 0
	for k := range m.dead {
		if err := m.table.DeleteKey(ctx, d, owner, k); err != nil {
			return rows, err
		}
		rows++
	}
	for k, v := range m.dirty {
		if err := m.table.Replace(ctx, d, owner, k, v); err != nil {
			return rows, err
		}
		rows++
	}
	return rows, nil
}

// apply merges dirty into clean and drops the tombstones. Called only once
// the commit transaction has succeeded.
func (m *PMap[K, V]) apply() {
	for k, v := range m.dirty {
		m.clean[k] = v
	}
	m.dirty = make(map[K]V)
	m.dead = make(map[K]struct{})
}
