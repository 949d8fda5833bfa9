package session

import (
	"context"
	"sort"
	"time"
)

// Snapshot is the structural image of a record for diagnostics: metadata
// plus flattened, deterministically ordered subscription/stream/seqno/rank
// entries. Two records with the same logical state format identically.
type Snapshot struct {
	ID          string     `json:"id"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	LastAliveAt *time.Time `json:"last_alive_at,omitempty"`
	ConnInfo    []byte     `json:"conn_info,omitempty"`
	LastSubID   *int64     `json:"last_sub_id,omitempty"`

	Subscriptions []SubscriptionSnapshot `json:"subscriptions"`
	Streams       []StreamSnapshot       `json:"streams"`
	Seqnos        []SeqnoSnapshot        `json:"seqnos"`
	Ranks         []RankSnapshot         `json:"ranks"`
}

type SubscriptionSnapshot struct {
	Filter     string `json:"filter"`
	SubID      int64  `json:"sub_id"`
	Descriptor []byte `json:"descriptor"`
}

type StreamSnapshot struct {
	SubID    int64  `json:"sub_id"`
	StreamID string `json:"stream_id"`
	State    []byte `json:"state"`
}

type SeqnoSnapshot struct {
	Kind  CounterKind `json:"kind"`
	QoS   byte        `json:"qos"`
	Value int64       `json:"value"`
}

type RankSnapshot struct {
	SubID  int64  `json:"sub_id"`
	Domain string `json:"domain"`
	Rank   int64  `json:"rank"`
}

// Format flattens the record. Pending dirty values shadow clean ones and
// tombstoned keys are absent, so the snapshot reflects what a commit plus
// reopen would yield.
func (r *Record) Format() *Snapshot {
	snap := &Snapshot{
		ID:            r.ID,
		CreatedAt:     r.meta.CreatedAt,
		LastAliveAt:   r.meta.LastAliveAt,
		ConnInfo:      r.meta.ConnInfo,
		LastSubID:     r.meta.LastSubID,
		Subscriptions: []SubscriptionSnapshot{},
		Streams:       []StreamSnapshot{},
		Seqnos:        []SeqnoSnapshot{},
		Ranks:         []RankSnapshot{},
	}

	r.subs.Fold(func(filter string, subID int64, descriptor []byte) bool {
		snap.Subscriptions = append(snap.Subscriptions, SubscriptionSnapshot{
			Filter:     filter,
			SubID:      subID,
			Descriptor: descriptor,
		})
		return true
	})

	for k, v := range r.streams.Format() {
		snap.Streams = append(snap.Streams, StreamSnapshot{SubID: k.SubID, StreamID: k.StreamID, State: v})
	}
	sort.Slice(snap.Streams, func(i, j int) bool {
		a, b := snap.Streams[i], snap.Streams[j]
		if a.SubID != b.SubID {
			return a.SubID < b.SubID
		}
		return a.StreamID < b.StreamID
	})

	for k, v := range r.seqnos.Format() {
		snap.Seqnos = append(snap.Seqnos, SeqnoSnapshot{Kind: k.Kind, QoS: k.QoS, Value: v})
	}
	sort.Slice(snap.Seqnos, func(i, j int) bool {
		a, b := snap.Seqnos[i], snap.Seqnos[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.QoS < b.QoS
	})

	for k, v := range r.ranks.Format() {
		snap.Ranks = append(snap.Ranks, RankSnapshot{SubID: k.SubID, Domain: k.Domain, Rank: v})
	}
	sort.Slice(snap.Ranks, func(i, j int) bool {
		a, b := snap.Ranks[i], snap.Ranks[j]
		if a.SubID != b.SubID {
			return a.SubID < b.SubID
		}
		return a.Domain < b.Domain
	})

	return snap
}

// PrintSession opens the session and returns its snapshot. Recent results
// are served from a short-lived cache; like ListSessions this is an
// administrative surface and tolerates slightly stale views.
func (s *Store) PrintSession(ctx context.Context, id string) (*Snapshot, error) {
	if snap, ok := s.printCache.Get(id); ok {
		return snap, nil
	}
	rec, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := rec.Format()
	s.printCache.Add(id, snap)
	return snap, nil
}
