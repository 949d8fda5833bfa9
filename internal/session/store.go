package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/streamhive/mqtt-session-store/internal/database"
	"github.com/streamhive/mqtt-session-store/internal/logger"
	"github.com/streamhive/mqtt-session-store/internal/topicindex"
)

// ErrNotFound is returned by Open when no metadata row exists for the id.
var ErrNotFound = errors.New("session not found")

// Codec transforms opaque payloads (stream state, subscription descriptors,
// connection info) on their way to and from storage. The default is the
// identity; the hook exists for future versioned-payload migration.
type Codec interface {
	Encode(payload []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

type identityCodec struct{}

func (identityCodec) Encode(payload []byte) ([]byte, error) { return payload, nil }
func (identityCodec) Decode(stored []byte) ([]byte, error)  { return stored, nil }

// Store persists session records. It holds the storage capability and the
// grouped-table bindings; records themselves stay private to their owning
// goroutine and independent sessions commit concurrently.
type Store struct {
	db    *database.DB
	codec Codec

	streams *database.GroupedTable[StreamKey, []byte]
	seqnos  *database.GroupedTable[SeqnoKey, int64]
	ranks   *database.GroupedTable[RankKey, int64]
	subs    *database.GroupedTable[SubKey, []byte]

	// read cache for the admin print path only; Open always reads fresh
	printCache *expirable.LRU[string, *Snapshot]
}

type Option func(*Store)

// WithCodec replaces the identity payload codec.
func WithCodec(codec Codec) Option {
	return func(s *Store) {
		s.codec = codec
	}
}

func NewStore(d *database.DB, opts ...Option) *Store {
	s := &Store{
		db:         d,
		codec:      identityCodec{},
		printCache: expirable.NewLRU[string, *Snapshot](256, nil, 10*time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams = newStreamTable(s.codec)
	s.seqnos = newSeqnoTable()
	s.ranks = newRankTable()
	s.subs = newSubscriptionTable(s.codec)
	return s
}

// EnsureCollections creates the backing collections and indexes. Idempotent;
// blocks until the schema is acknowledged across the replica set.
func (s *Store) EnsureCollections(ctx context.Context) error {
	return s.db.EnsureCollections(ctx)
}

func (s *Store) sessions() *mongo.Collection {
	return s.db.Collection(database.SessionCollectionName)
}

// Open loads the full session state for id inside one snapshot read
// transaction: metadata, the subscription index and the three write-back
// maps. An absent metadata row means the session does not exist.
func (s *Store) Open(ctx context.Context, id string) (*Record, error) {
	var rec *Record
	err := s.db.ReadOnly(ctx, func(sc mongo.SessionContext) error {
		var row metaRow
		if err := s.sessions().FindOne(sc, bson.D{{Key: "_id", Value: id}}).Decode(&row); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to read session metadata: %w", err)
		}
		meta, err := s.decodeMeta(&row)
		if err != nil {
			return err
		}

		subRows, err := s.subs.LoadGroup(sc, s.db, id)
		if err != nil {
			return err
		}
		subs := topicindex.New[[]byte]()
		for k, v := range subRows {
			subs.Insert(k.Filter, k.SubID, v)
		}

		streams, err := openPMap(sc, s.db, s.streams, id)
		if err != nil {
			return err
		}
		seqnos, err := openPMap(sc, s.db, s.seqnos, id)
		if err != nil {
			return err
		}
		ranks, err := openPMap(sc, s.db, s.ranks, id)
		if err != nil {
			return err
		}

		rec = &Record{
			ID:      id,
			meta:    meta,
			subs:    subs,
			streams: streams,
			seqnos:  seqnos,
			ranks:   ranks,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		metricTxnAborts.Inc()
		return nil, err
	}
	metricOpens.Inc()
	return rec, nil
}

// CreateNew deletes any stale rows for id and returns an all-empty, dirty
// record. Safe to call for an id that never existed.
func (s *Store) CreateNew(ctx context.Context, id string) (*Record, error) {
	err := s.db.ReadWrite(ctx, func(sc mongo.SessionContext) error {
		return s.deleteRows(sc, id)
	})
	if err != nil {
		metricTxnAborts.Inc()
		return nil, err
	}
	metricCreates.Inc()
	logger.DebugF("Session created: id=%s", id)
	return &Record{
		ID:      id,
		subs:    topicindex.New[[]byte](),
		streams: newPMap(s.streams),
		seqnos:  newPMap(s.seqnos),
		ranks:   newPMap(s.ranks),
		dirty:   true,
	}, nil
}

// Delete removes the metadata row and every grouped row of id in one
// transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.ReadWrite(ctx, func(sc mongo.SessionContext) error {
		return s.deleteRows(sc, id)
	})
	if err != nil {
		metricTxnAborts.Inc()
		return err
	}
	metricDeletes.Inc()
	logger.InfoF("Session deleted: id=%s", id)
	return nil
}

func (s *Store) deleteRows(sc mongo.SessionContext, id string) error {
	if _, err := s.sessions().DeleteOne(sc, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("failed to delete session metadata: %w", err)
	}
	if err := s.streams.DeleteGroup(sc, s.db, id); err != nil {
		return err
	}
	if err := s.seqnos.DeleteGroup(sc, s.db, id); err != nil {
		return err
	}
	if err := s.ranks.DeleteGroup(sc, s.db, id); err != nil {
		return err
	}
	return s.subs.DeleteGroup(sc, s.db, id)
}

// Commit persists the metadata and flushes the buffered deltas of all
// three write-back maps in one atomic transaction, then merges the dirty
// regions into clean. A clean record is a no-op. After a failed commit the
// record keeps its buffered state and no partial write is observable.
func (s *Store) Commit(ctx context.Context, rec *Record) error {
	if !rec.dirty {
		return nil
	}

	rows := 0
	err := s.db.ReadWrite(ctx, func(sc mongo.SessionContext) error {
		rows = 0
		row, err := s.encodeMeta(rec)
		if err != nil {
			return err
		}
		opts := options.Replace().SetUpsert(true)
		if _, err := s.sessions().ReplaceOne(sc, bson.D{{Key: "_id", Value: rec.ID}}, row, opts); err != nil {
			return fmt.Errorf("failed to persist session metadata: %w", err)
		}

		n, err := rec.streams.flush(sc, s.db, rec.ID)
		rows += n
		if err != nil {
			return err
		}
		n, err = rec.seqnos.flush(sc, s.db, rec.ID)
		rows += n
		if err != nil {
			return err
		}
		n, err = rec.ranks.flush(sc, s.db, rec.ID)
		rows += n
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		metricTxnAborts.Inc()
		return err
	}

	rec.streams.apply()
	rec.seqnos.apply()
	rec.ranks.apply()
	rec.dirty = false
	metricCommits.Inc()
	metricCommittedRows.Add(rows)
	logger.DebugF("Session committed: id=%s rows=%d", rec.ID, rows)
	return nil
}

// PutSubscription writes through: the row is replaced in its own
// transaction and the in-memory index is updated in the same call, so the
// subscription is visible to routing before the next checkpoint.
func (s *Store) PutSubscription(ctx context.Context, rec *Record, filter string, subID int64, descriptor []byte) error {
	err := s.db.ReadWrite(ctx, func(sc mongo.SessionContext) error {
		return s.subs.Replace(sc, s.db, rec.ID, SubKey{Filter: filter, SubID: subID}, descriptor)
	})
	if err != nil {
		metricTxnAborts.Inc()
		return err
	}
	rec.subs.Insert(filter, subID, descriptor)
	return nil
}

// DelSubscription removes one subscription row write-through and drops it
// from the in-memory index.
func (s *Store) DelSubscription(ctx context.Context, rec *Record, filter string, subID int64) error {
	err := s.db.ReadWrite(ctx, func(sc mongo.SessionContext) error {
		return s.subs.DeleteKey(sc, s.db, rec.ID, SubKey{Filter: filter, SubID: subID})
	})
	if err != nil {
		metricTxnAborts.Inc()
		return err
	}
	rec.subs.Delete(filter, subID)
	return nil
}

// ListSessions enumerates all known session ids with a plain scan, outside
// any transaction. Best effort: concurrent commits or deletes may or may
// not be reflected. Administrative use only.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.db.OperationTimeout())
	defer cancel()

	values, err := s.sessions().Distinct(ctx, "_id", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) decodeMeta(row *metaRow) (Metadata, error) {
	meta := Metadata{
		CreatedAt:   row.CreatedAt,
		LastAliveAt: row.LastAliveAt,
		LastSubID:   row.LastSubID,
	}
	if row.ConnInfo != nil {
		info, err := s.codec.Decode(row.ConnInfo)
		if err != nil {
			return Metadata{}, fmt.Errorf("failed to decode conn info: %w", err)
		}
		meta.ConnInfo = info
	}
	return meta, nil
}

func (s *Store) encodeMeta(rec *Record) (*metaRow, error) {
	row := &metaRow{
		ID:          rec.ID,
		CreatedAt:   rec.meta.CreatedAt,
		LastAliveAt: rec.meta.LastAliveAt,
		LastSubID:   rec.meta.LastSubID,
	}
	if rec.meta.ConnInfo != nil {
		info, err := s.codec.Encode(rec.meta.ConnInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to encode conn info: %w", err)
		}
		row.ConnInfo = info
	}
	return row, nil
}
