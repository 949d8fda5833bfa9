package session

import (
	"time"

	"github.com/streamhive/mqtt-session-store/internal/topicindex"
)

// Metadata holds the optional per-session scalars of the singleton row.
type Metadata struct {
	CreatedAt   *time.Time
	LastAliveAt *time.Time
	ConnInfo    []byte
	LastSubID   *int64
}

// Record is the in-memory image of one session's durable state. A record
// is privately owned by whatever goroutine manages that session, so none
// of its methods lock. Mutations either buffer in the write-back maps
// until Store.Commit, or — for subscriptions — go through the store
// directly and update the index here in the same call.
type Record struct {
	ID string

	meta    Metadata
	subs    *topicindex.Map[[]byte]
	streams *PMap[StreamKey, []byte]
	seqnos  *PMap[SeqnoKey, int64]
	ranks   *PMap[RankKey, int64]

	dirty bool
}

// Dirty reports whether the record carries uncommitted mutations.
func (r *Record) Dirty() bool {
	return r.dirty
}

// Metadata accessors. Setters mark the record dirty; nothing reaches the
// store before the next Commit.

func (r *Record) CreatedAt() (time.Time, bool) {
	if r.meta.CreatedAt == nil {
		return time.Time{}, false
	}
	return *r.meta.CreatedAt, true
}

func (r *Record) SetCreatedAt(t time.Time) {
	r.meta.CreatedAt = &t
	r.dirty = true
}

func (r *Record) LastAliveAt() (time.Time, bool) {
	if r.meta.LastAliveAt == nil {
		return time.Time{}, false
	}
	return *r.meta.LastAliveAt, true
}

func (r *Record) SetLastAliveAt(t time.Time) {
	r.meta.LastAliveAt = &t
	r.dirty = true
}

func (r *Record) ConnInfo() ([]byte, bool) {
	if r.meta.ConnInfo == nil {
		return nil, false
	}
	return r.meta.ConnInfo, true
}

func (r *Record) SetConnInfo(info []byte) {
	r.meta.ConnInfo = info
	r.dirty = true
}

// NewSubID returns the next session-local subscription id and advances the
// counter. Ids start at 0 for a fresh record and never repeat, even across
// calls before a commit.
func (r *Record) NewSubID() int64 {
	var id int64
	if r.meta.LastSubID != nil {
		id = *r.meta.LastSubID
	}
	next := id + 1
	r.meta.LastSubID = &next
	r.dirty = true
	return id
}

// Stream replay state: deferred writes, flushed at Commit.

func (r *Record) GetStream(k StreamKey) ([]byte, bool) {
	return r.streams.Get(k)
}

func (r *Record) PutStream(k StreamKey, state []byte) {
	r.streams.Put(k, state)
	r.dirty = true
}

func (r *Record) DelStream(k StreamKey) {
	r.streams.Del(k)
	r.dirty = true
}

// RangeStreams visits every live stream entry, e.g. for replay recovery.
func (r *Record) RangeStreams(fn func(StreamKey, []byte) bool) {
	r.streams.Range(fn)
}

// Per-QoS sequence counters: deferred writes, flushed at Commit.

func (r *Record) GetSeqno(k SeqnoKey) (int64, bool) {
	return r.seqnos.Get(k)
}

func (r *Record) PutSeqno(k SeqnoKey, v int64) {
	r.seqnos.Put(k, v)
	r.dirty = true
}

// Partition ranks: deferred writes, flushed at Commit.

func (r *Record) GetRank(k RankKey) (int64, bool) {
	return r.ranks.Get(k)
}

func (r *Record) PutRank(k RankKey, v int64) {
	r.ranks.Put(k, v)
	r.dirty = true
}

func (r *Record) DelRank(k RankKey) {
	r.ranks.Del(k)
	r.dirty = true
}

func (r *Record) RangeRanks(fn func(RankKey, int64) bool) {
	r.ranks.Range(fn)
}

// GetSubscription reads from the in-memory index, which the write-through
// subscription operations keep in lock-step with storage.
func (r *Record) GetSubscription(filter string, subID int64) ([]byte, bool) {
	return r.subs.Get(filter, subID)
}

// RangeSubscriptions visits subscriptions in (filter, id) order.
func (r *Record) RangeSubscriptions(fn func(filter string, subID int64, descriptor []byte) bool) {
	r.subs.Fold(fn)
}
