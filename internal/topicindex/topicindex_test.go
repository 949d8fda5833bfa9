package topicindex

import "testing"

func TestInsertOrdering(t *testing.T) {
	m := New[string]()
	m.Insert("t/b", 2, "b2")
	m.Insert("t/a", 7, "a7")
	m.Insert("t/b", 1, "b1")
	m.Insert("t/a", 3, "a3")

	var got []string
	m.Fold(func(filter string, subID int64, value string) bool {
		got = append(got, value)
		return true
	})

	want := []string{"a3", "a7", "b1", "b2"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestInsertReplacesSameKey(t *testing.T) {
	m := New[string]()
	m.Insert("t/#", 1, "old")
	m.Insert("t/#", 1, "new")

	if m.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", m.Len())
	}
	v, ok := m.Get("t/#", 1)
	if !ok || v != "new" {
		t.Fatalf("Expected new, got %v (present=%v)", v, ok)
	}
}

func TestDelete(t *testing.T) {
	m := New[string]()
	m.Insert("t/#", 1, "sub")
	m.Insert("t/#", 2, "sub")

	if !m.Delete("t/#", 1) {
		t.Fatal("Expected delete of existing entry to report true")
	}
	if m.Delete("t/#", 1) {
		t.Fatal("Expected delete of missing entry to report false")
	}
	if _, ok := m.Get("t/#", 1); ok {
		t.Fatal("Expected deleted entry to be absent")
	}
	if _, ok := m.Get("t/#", 2); !ok {
		t.Fatal("Expected sibling entry to survive")
	}
}

func TestFoldEarlyStop(t *testing.T) {
	m := New[int]()
	m.Insert("a", 1, 1)
	m.Insert("b", 1, 2)
	m.Insert("c", 1, 3)

	visited := 0
	m.Fold(func(string, int64, int) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Fatalf("Expected fold to stop after 2 entries, visited %d", visited)
	}
}
