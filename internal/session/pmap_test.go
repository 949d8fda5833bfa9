package session

import (
	"reflect"
	"testing"
)

func testPMap() *PMap[SeqnoKey, int64] {
	m := newPMap[SeqnoKey, int64](nil)
	m.clean[SeqnoKey{CounterNext, 1}] = 10
	m.clean[SeqnoKey{CounterDup, 1}] = 4
	return m
}

func TestPMapDirtyShadowsClean(t *testing.T) {
	m := testPMap()
	k := SeqnoKey{CounterNext, 1}

	m.Put(k, 11)
	if v, ok := m.Get(k); !ok || v != 11 {
		t.Fatalf("Expected 11, got %d (present=%v)", v, ok)
	}
	if _, stillClean := m.clean[k]; stillClean {
		t.Fatal("Expected key to leave the clean region on put")
	}
}

func TestPMapDelHidesKey(t *testing.T) {
	m := testPMap()
	k := SeqnoKey{CounterDup, 1}

	m.Del(k)
	if _, ok := m.Get(k); ok {
		t.Fatal("Expected tombstoned key to read as absent")
	}
	if !m.mutated() {
		t.Fatal("Expected map to be mutated after del")
	}
}

// put then del (and the reverse) on the same key must leave only the last
// operation pending, with no residual entry in the other region.
func TestPMapPutDelCancellation(t *testing.T) {
	k := SeqnoKey{CounterCommitted, 2}

	m := newPMap[SeqnoKey, int64](nil)
	m.Put(k, 5)
	m.Del(k)
	if len(m.dirty) != 0 {
		t.Fatalf("Expected no dirty entry after put+del, got %d", len(m.dirty))
	}
	if _, dead := m.dead[k]; !dead {
		t.Fatal("Expected tombstone after put+del")
	}

	m = newPMap[SeqnoKey, int64](nil)
	m.Del(k)
	m.Put(k, 5)
	if len(m.dead) != 0 {
		t.Fatalf("Expected no tombstone after del+put, got %d", len(m.dead))
	}
	if v, ok := m.dirty[k]; !ok || v != 5 {
		t.Fatal("Expected dirty entry after del+put")
	}
}

func TestPMapRangeVisitsEachKeyOnce(t *testing.T) {
	m := testPMap()
	m.Put(SeqnoKey{CounterNext, 1}, 11)
	m.Put(SeqnoKey{CounterNext, 2}, 1)

	seen := map[SeqnoKey]int{}
	m.Range(func(k SeqnoKey, v int64) bool {
		seen[k]++
		return true
	})

	if len(seen) != 3 {
		t.Fatalf("Expected 3 distinct keys, got %d", len(seen))
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("Key %v visited %d times", k, n)
		}
	}
}

func TestPMapFormatMergesRegions(t *testing.T) {
	m := testPMap()
	m.Put(SeqnoKey{CounterNext, 1}, 11)
	m.Del(SeqnoKey{CounterDup, 1})

	got := m.Format()
	want := map[SeqnoKey]int64{
		{CounterNext, 1}: 11,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}

func TestPMapApplyMergesDirtyIntoClean(t *testing.T) {
	m := testPMap()
	m.Put(SeqnoKey{CounterNext, 1}, 11)
	m.Del(SeqnoKey{CounterDup, 1})

	m.apply()

	if m.mutated() {
		t.Fatal("Expected map to be clean after apply")
	}
	if v, ok := m.clean[SeqnoKey{CounterNext, 1}]; !ok || v != 11 {
		t.Fatal("Expected dirty value merged into clean")
	}
	if _, ok := m.clean[SeqnoKey{CounterDup, 1}]; ok {
		t.Fatal("Expected tombstoned key to stay absent after apply")
	}
}
