package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// GroupedTable describes one grouped collection: many rows share an owner
// (the session id), each distinguished by its own sub-key fields. The three
// callbacks declare how a typed key and value map onto a bson document.
type GroupedTable[K comparable, V any] struct {
	Name string

	// KeyFilter returns the sub-key fields of k; the owner field is
	// prepended by the helpers so every filter stays owner-scoped.
	KeyFilter func(k K) bson.D

	// EncodeRow builds the full document for one row.
	EncodeRow func(owner string, k K, v V) (bson.D, error)

	// DecodeRow parses one stored document back into key and value.
	DecodeRow func(raw bson.Raw) (K, V, error)
}

func (t *GroupedTable[K, V]) ownerFilter(owner string) bson.D {
	return bson.D{{Key: "owner", Value: owner}}
}

func (t *GroupedTable[K, V]) rowFilter(owner string, k K) bson.D {
	return append(bson.D{{Key: "owner", Value: owner}}, t.KeyFilter(k)...)
}

// LoadGroup reads every row belonging to owner into a map.
func (t *GroupedTable[K, V]) LoadGroup(ctx context.Context, d *DB, owner string) (map[K]V, error) {
	cur, err := d.Collection(t.Name).Find(ctx, t.ownerFilter(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s rows: %w", t.Name, err)
	}
	defer cur.Close(ctx)

	out := make(map[K]V)
	for cur.Next(ctx) {
		k, v, err := t.DecodeRow(cur.Current)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", t.Name, err)
		}
		out[k] = v
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to load %s rows: %w", t.Name, err)
	}
	return out, nil
}

// DeleteKey removes the rows for exactly one owner+key. The filter carries
// both the owner and the full sub-key, so rows of other sessions are never
// touched even when sub-keys collide.
func (t *GroupedTable[K, V]) DeleteKey(ctx context.Context, d *DB, owner string, k K) error {
	_, err := d.Collection(t.Name).DeleteMany(ctx, t.rowFilter(owner, k))
	if err != nil {
		return fmt.Errorf("failed to delete %s row: %w", t.Name, err)
	}
	return nil
}

// Replace writes the single physical row for owner+key: the old row is
// deleted first because the grouping structure permits duplicate rows per
// sub-key.
func (t *GroupedTable[K, V]) Replace(ctx context.Context, d *DB, owner string, k K, v V) error {
	doc, err := t.EncodeRow(owner, k, v)
	if err != nil {
		return fmt.Errorf("failed to encode %s row: %w", t.Name, err)
	}
	coll := d.Collection(t.Name)
	if _, err := coll.DeleteMany(ctx, t.rowFilter(owner, k)); err != nil {
		return fmt.Errorf("failed to replace %s row: %w", t.Name, err)
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to replace %s row: %w", t.Name, err)
	}
	return nil
}

// DeleteGroup removes every row belonging to owner.
func (t *GroupedTable[K, V]) DeleteGroup(ctx context.Context, d *DB, owner string) error {
	_, err := d.Collection(t.Name).DeleteMany(ctx, t.ownerFilter(owner))
	if err != nil {
		return fmt.Errorf("failed to delete %s group: %w", t.Name, err)
	}
	return nil
}
