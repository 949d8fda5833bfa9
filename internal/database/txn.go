package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Transaction gateway. Logical nesting is collapsed into one physical
// transaction: when the incoming context already carries a transactional
// session, fn runs inline on it; otherwise a fresh session and transaction
// are started. The driver may retry fn on transient errors, so fn must not
// have externally irreversible side effects.

// ReadWrite runs fn inside a read-write transaction with majority read and
// write concern. Writes performed by fn are invisible to other transactions
// until fn returns and the transaction commits; a failed commit surfaces as
// an error with nothing applied.
func (d *DB) ReadWrite(ctx context.Context, fn func(mongo.SessionContext) error) error {
	if sess := mongo.SessionFromContext(ctx); sess != nil {
		return fn(mongo.NewSessionContext(ctx, sess))
	}

	sess, err := d.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.Primary())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	if err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	return nil
}

// ReadOnly runs fn inside a snapshot read transaction so a multi-collection
// read observes one consistent point in time.
func (d *DB) ReadOnly(ctx context.Context, fn func(mongo.SessionContext) error) error {
	if sess := mongo.SessionFromContext(ctx); sess != nil {
		return fn(mongo.NewSessionContext(ctx, sess))
	}

	sess, err := d.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetReadPreference(readpref.Primary())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	if err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	return nil
}
