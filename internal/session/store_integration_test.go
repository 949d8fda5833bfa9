package session

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/streamhive/mqtt-session-store/internal/database"
)

// Integration tests against a real replica set. Transactions require a
// replica set, so these are skipped unless SESSION_STORE_TEST_URI points
// at one, e.g. mongodb://localhost:27017/?replicaSet=rs0.
func integrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	uri := os.Getenv("SESSION_STORE_TEST_URI")
	if uri == "" {
		t.Skip("SESSION_STORE_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	db, err := database.ConnectURI(ctx, uri, "session_store_test")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Disconnect(context.Background()) })

	store := NewStore(db)
	if err := store.EnsureCollections(ctx); err != nil {
		t.Fatalf("Failed to ensure collections: %v", err)
	}
	return store, ctx
}

func mustCreate(t *testing.T, store *Store, ctx context.Context, id string) *Record {
	t.Helper()
	rec, err := store.CreateNew(ctx, id)
	if err != nil {
		t.Fatalf("Failed to create session %s: %v", id, err)
	}
	t.Cleanup(func() { _ = store.Delete(ctx, id) })
	return rec
}

// commit then reopen must reproduce the record structurally.
func TestCommitReopenRoundTrip(t *testing.T) {
	store, ctx := integrationStore(t)
	rec := mustCreate(t, store, ctx, "it-roundtrip")

	// bson datetimes carry millisecond precision
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec.SetCreatedAt(now)
	rec.SetConnInfo([]byte("peer=10.0.0.7:1883"))
	rec.PutSeqno(SeqnoKey{CounterNext, 1}, 10)
	rec.PutSeqno(SeqnoKey{CounterCommitted, 2}, 3)
	rec.PutStream(StreamKey{1, "s1"}, []byte("cursor=42"))
	rec.PutRank(RankKey{1, "shard-a"}, 2)

	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if rec.Dirty() {
		t.Fatal("Expected record clean after commit")
	}

	reopened, err := store.Open(ctx, "it-roundtrip")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !reflect.DeepEqual(rec.Format(), reopened.Format()) {
		t.Fatalf("Snapshot mismatch:\n%+v\nvs\n%+v", rec.Format(), reopened.Format())
	}
}

func TestCommitIdempotent(t *testing.T) {
	store, ctx := integrationStore(t)
	rec := mustCreate(t, store, ctx, "it-idempotent")
	rec.PutSeqno(SeqnoKey{CounterNext, 1}, 1)

	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}
	before := rec.Format()

	// second commit with no mutation in between is a no-op
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("Second commit failed: %v", err)
	}
	if !reflect.DeepEqual(before, rec.Format()) {
		t.Fatal("Expected identical snapshot after idempotent commit")
	}
}

// deleting one session's rows must not touch another session's rows even
// when sub-keys collide.
func TestScopedIsolation(t *testing.T) {
	store, ctx := integrationStore(t)
	a := mustCreate(t, store, ctx, "it-iso-a")
	b := mustCreate(t, store, ctx, "it-iso-b")

	for _, rec := range []*Record{a, b} {
		rec.PutStream(StreamKey{1, "s1"}, []byte("state-"+rec.ID))
		rec.PutSeqno(SeqnoKey{CounterNext, 1}, 5)
		if err := store.Commit(ctx, rec); err != nil {
			t.Fatalf("Commit %s failed: %v", rec.ID, err)
		}
	}

	if err := store.Delete(ctx, "it-iso-a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	reopened, err := store.Open(ctx, "it-iso-b")
	if err != nil {
		t.Fatalf("Open b failed: %v", err)
	}
	if v, ok := reopened.GetStream(StreamKey{1, "s1"}); !ok || string(v) != "state-it-iso-b" {
		t.Fatal("Expected session b rows to survive deletion of session a")
	}
}

func TestDeleteThenOpenNotFound(t *testing.T) {
	store, ctx := integrationStore(t)
	rec := mustCreate(t, store, ctx, "it-delete")
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := store.Delete(ctx, "it-delete"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Open(ctx, "it-delete"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

// subscriptions bypass the record buffer: a put followed by a del with no
// commit in between must leave nothing behind on reopen.
func TestSubscriptionWriteThrough(t *testing.T) {
	store, ctx := integrationStore(t)
	rec := mustCreate(t, store, ctx, "it-subs")
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := store.PutSubscription(ctx, rec, "t/#", 1, []byte("qos1")); err != nil {
		t.Fatalf("PutSubscription failed: %v", err)
	}
	if v, ok := rec.GetSubscription("t/#", 1); !ok || string(v) != "qos1" {
		t.Fatal("Expected subscription visible in the index immediately")
	}

	reopened, err := store.Open(ctx, "it-subs")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := reopened.GetSubscription("t/#", 1); !ok {
		t.Fatal("Expected subscription persisted without a commit")
	}

	if err := store.DelSubscription(ctx, rec, "t/#", 1); err != nil {
		t.Fatalf("DelSubscription failed: %v", err)
	}
	reopened, err = store.Open(ctx, "it-subs")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := reopened.GetSubscription("t/#", 1); ok {
		t.Fatal("Expected subscription gone after write-through delete")
	}
}

func TestCreateNewOverwritesStaleRows(t *testing.T) {
	store, ctx := integrationStore(t)
	rec := mustCreate(t, store, ctx, "it-overwrite")
	rec.PutSeqno(SeqnoKey{CounterNext, 1}, 99)
	if err := store.Commit(ctx, rec); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	fresh, err := store.CreateNew(ctx, "it-overwrite")
	if err != nil {
		t.Fatalf("CreateNew failed: %v", err)
	}
	if !fresh.Dirty() {
		t.Fatal("Expected fresh record to be dirty")
	}
	if _, ok := fresh.GetSeqno(SeqnoKey{CounterNext, 1}); ok {
		t.Fatal("Expected fresh record to be empty")
	}
	if err := store.Commit(ctx, fresh); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	reopened, err := store.Open(ctx, "it-overwrite")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := reopened.GetSeqno(SeqnoKey{CounterNext, 1}); ok {
		t.Fatal("Expected stale seqno row gone after CreateNew")
	}
}

func TestListSessions(t *testing.T) {
	store, ctx := integrationStore(t)
	for _, id := range []string{"it-list-c1", "it-list-c2", "it-list-c3"} {
		rec := mustCreate(t, store, ctx, id)
		if err := store.Commit(ctx, rec); err != nil {
			t.Fatalf("Commit %s failed: %v", id, err)
		}
	}
	if err := store.Delete(ctx, "it-list-c2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ids, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	var got []string
	for _, id := range ids {
		if id == "it-list-c1" || id == "it-list-c2" || id == "it-list-c3" {
			got = append(got, id)
		}
	}
	sort.Strings(got)
	want := []string{"it-list-c1", "it-list-c3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}
