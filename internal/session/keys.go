package session

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/streamhive/mqtt-session-store/internal/database"
)

// CounterKind selects one of the per-QoS delivery counters.
type CounterKind string

const (
	CounterNext      CounterKind = "next"
	CounterDup       CounterKind = "dup"
	CounterCommitted CounterKind = "committed"
)

// StreamKey addresses the replay state of one stream of one subscription.
type StreamKey struct {
	SubID    int64
	StreamID string
}

// SeqnoKey addresses one delivery counter, e.g. {next, qos1}.
type SeqnoKey struct {
	Kind CounterKind
	QoS  byte
}

// RankKey addresses the rank of one subscription within a rank domain.
type RankKey struct {
	SubID  int64
	Domain string
}

// SubKey addresses one subscription row: a topic filter may carry several
// subscription ids.
type SubKey struct {
	Filter string
	SubID  int64
}

// Row documents of the grouped collections.

type streamRow struct {
	Owner    string `bson:"owner"`
	SubID    int64  `bson:"sub_id"`
	StreamID string `bson:"stream_id"`
	State    []byte `bson:"state"`
}

type seqnoRow struct {
	Owner string `bson:"owner"`
	Kind  string `bson:"kind"`
	QoS   int32  `bson:"qos"`
	Value int64  `bson:"value"`
}

type rankRow struct {
	Owner  string `bson:"owner"`
	SubID  int64  `bson:"sub_id"`
	Domain string `bson:"domain"`
	Rank   int64  `bson:"rank"`
}

type subscriptionRow struct {
	Owner       string `bson:"owner"`
	TopicFilter string `bson:"topic_filter"`
	SubID       int64  `bson:"sub_id"`
	Descriptor  []byte `bson:"descriptor"`
}

// metaRow is the singleton metadata document, keyed by session id. All
// scalars are optional.
type metaRow struct {
	ID          string     `bson:"_id"`
	CreatedAt   *time.Time `bson:"created_at,omitempty"`
	LastAliveAt *time.Time `bson:"last_alive_at,omitempty"`
	ConnInfo    []byte     `bson:"conn_info,omitempty"`
	LastSubID   *int64     `bson:"last_sub_id,omitempty"`
}

// newStreamTable binds the streams collection. The codec runs on the opaque
// replay state in both directions.
func newStreamTable(codec Codec) *database.GroupedTable[StreamKey, []byte] {
	return &database.GroupedTable[StreamKey, []byte]{
		Name: database.StreamCollectionName,
		KeyFilter: func(k StreamKey) bson.D {
			return bson.D{{Key: "sub_id", Value: k.SubID}, {Key: "stream_id", Value: k.StreamID}}
		},
		EncodeRow: func(owner string, k StreamKey, v []byte) (bson.D, error) {
			stored, err := codec.Encode(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode stream state: %w", err)
			}
			return bson.D{
				{Key: "owner", Value: owner},
				{Key: "sub_id", Value: k.SubID},
				{Key: "stream_id", Value: k.StreamID},
				{Key: "state", Value: stored},
			}, nil
		},
		DecodeRow: func(raw bson.Raw) (StreamKey, []byte, error) {
			var row streamRow
			if err := bson.Unmarshal(raw, &row); err != nil {
				return StreamKey{}, nil, err
			}
			state, err := codec.Decode(row.State)
			if err != nil {
				return StreamKey{}, nil, fmt.Errorf("failed to decode stream state: %w", err)
			}
			return StreamKey{SubID: row.SubID, StreamID: row.StreamID}, state, nil
		},
	}
}

func newSeqnoTable() *database.GroupedTable[SeqnoKey, int64] {
	return &database.GroupedTable[SeqnoKey, int64]{
		Name: database.SeqnoCollectionName,
		KeyFilter: func(k SeqnoKey) bson.D {
			return bson.D{{Key: "kind", Value: string(k.Kind)}, {Key: "qos", Value: int32(k.QoS)}}
		},
		EncodeRow: func(owner string, k SeqnoKey, v int64) (bson.D, error) {
			return bson.D{
				{Key: "owner", Value: owner},
				{Key: "kind", Value: string(k.Kind)},
				{Key: "qos", Value: int32(k.QoS)},
				{Key: "value", Value: v},
			}, nil
		},
		DecodeRow: func(raw bson.Raw) (SeqnoKey, int64, error) {
			var row seqnoRow
			if err := bson.Unmarshal(raw, &row); err != nil {
				return SeqnoKey{}, 0, err
			}
			return SeqnoKey{Kind: CounterKind(row.Kind), QoS: byte(row.QoS)}, row.Value, nil
		},
	}
}

func newRankTable() *database.GroupedTable[RankKey, int64] {
	return &database.GroupedTable[RankKey, int64]{
		Name: database.RankCollectionName,
		KeyFilter: func(k RankKey) bson.D {
			return bson.D{{Key: "sub_id", Value: k.SubID}, {Key: "domain", Value: k.Domain}}
		},
		EncodeRow: func(owner string, k RankKey, v int64) (bson.D, error) {
			return bson.D{
				{Key: "owner", Value: owner},
				{Key: "sub_id", Value: k.SubID},
				{Key: "domain", Value: k.Domain},
				{Key: "rank", Value: v},
			}, nil
		},
		DecodeRow: func(raw bson.Raw) (RankKey, int64, error) {
			var row rankRow
			if err := bson.Unmarshal(raw, &row); err != nil {
				return RankKey{}, 0, err
			}
			return RankKey{SubID: row.SubID, Domain: row.Domain}, row.Rank, nil
		},
	}
}

func newSubscriptionTable(codec Codec) *database.GroupedTable[SubKey, []byte] {
	return &database.GroupedTable[SubKey, []byte]{
		Name: database.SubscriptionCollectionName,
		KeyFilter: func(k SubKey) bson.D {
			return bson.D{{Key: "topic_filter", Value: k.Filter}, {Key: "sub_id", Value: k.SubID}}
		},
		EncodeRow: func(owner string, k SubKey, v []byte) (bson.D, error) {
			stored, err := codec.Encode(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode subscription descriptor: %w", err)
			}
			return bson.D{
				{Key: "owner", Value: owner},
				{Key: "topic_filter", Value: k.Filter},
				{Key: "sub_id", Value: k.SubID},
				{Key: "descriptor", Value: stored},
			}, nil
		},
		DecodeRow: func(raw bson.Raw) (SubKey, []byte, error) {
			var row subscriptionRow
			if err := bson.Unmarshal(raw, &row); err != nil {
				return SubKey{}, nil, err
			}
			desc, err := codec.Decode(row.Descriptor)
			if err != nil {
				return SubKey{}, nil, fmt.Errorf("failed to decode subscription descriptor: %w", err)
			}
			return SubKey{Filter: row.TopicFilter, SubID: row.SubID}, desc, nil
		},
	}
}
