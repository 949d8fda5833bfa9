package database

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	c "github.com/streamhive/mqtt-session-store/internal/config"
	event2 "github.com/streamhive/mqtt-session-store/internal/event"
	"github.com/streamhive/mqtt-session-store/internal/logger"
	"github.com/streamhive/mqtt-session-store/internal/utils"
)

// Collection names. The sessions collection holds one metadata document per
// session id; the other four are grouped collections whose documents carry
// an owner field (the session id) plus their own sub-key fields.
const (
	SessionCollectionName      = "sessions"
	StreamCollectionName       = "streams"
	SeqnoCollectionName        = "seqnos"
	RankCollectionName         = "ranks"
	SubscriptionCollectionName = "subscriptions"
)

var groupedCollections = []string{
	StreamCollectionName,
	SeqnoCollectionName,
	RankCollectionName,
	SubscriptionCollectionName,
}

// DB wraps the replicated store connection. All session-state reads and
// writes go through it; it is handed to the session store as a capability
// rather than accessed through package globals.
type DB struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
}

type DBCloseCallback struct {
	db *DB
}

func (dc *DBCloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := context.WithTimeout(context.Background(), dc.db.opTimeout)
	defer cancel()
	return dc.db.client.Disconnect(ctx)
}

// Connect dials the replica set configured in config.json and returns the
// storage capability. A disconnect callback is registered with the cleaner.
func Connect() (*DB, error) {
	logger.DebugF("Connecting to database...")
	config, err := c.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %v", err)
	}

	encodedUser := url.QueryEscape(config.Database.Username)
	encodedPass := url.QueryEscape(config.Database.Password)
	databaseUrl := fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		config.Database.Host,
		config.Database.Port,
	)

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(config.AppName)
	if config.Database.ReplicaSet != "" {
		clientOptions.SetReplicaSet(config.Database.ReplicaSet)
	}
	clientOptions.SetMinPoolSize(config.Database.MinPoolSize)
	clientOptions.SetMaxPoolSize(config.Database.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.ParseStringTime(config.Database.ConnectIdleTimeout))
	clientOptions.SetConnectTimeout(utils.ParseStringTime(config.Database.ConnectTimeout))
	clientOptions.SetSocketTimeout(utils.ParseStringTime(config.Database.SocketTimeout))
	clientOptions.SetHeartbeatInterval(utils.ParseStringTime(config.Database.Heartbeat))
	if config.Database.UseTLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
		}
		clientOptions.SetTLSConfig(tlsConfig)
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %+v", evt)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %+v", evt)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %v", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %v", err)
	}

	d := &DB{
		client: client,
		// Majority read/write concern so committed session state is visible
		// across the replica set before calls return.
		db: client.Database(config.Database.Database,
			options.Database().
				SetWriteConcern(writeconcern.Majority()).
				SetReadConcern(readconcern.Majority())),
		opTimeout: utils.ParseStringTime(config.Database.OperationTimeout),
	}

	event2.NewCleaner().Add(&DBCloseCallback{db: d})
	return d, nil
}

// ConnectURI dials uri directly, bypassing config.json. Used by the
// integration tests and one-off tooling.
func ConnectURI(ctx context.Context, uri, dbName string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %v", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %v", err)
	}
	return &DB{
		client: client,
		db: client.Database(dbName,
			options.Database().
				SetWriteConcern(writeconcern.Majority()).
				SetReadConcern(readconcern.Majority())),
		opTimeout: 10 * time.Second,
	}, nil
}

// Disconnect closes the connection without going through the cleaner.
func (d *DB) Disconnect(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Collection returns a handle bound to the majority-concern database.
func (d *DB) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

// OperationTimeout is the per-call deadline for non-transactional operations.
func (d *DB) OperationTimeout() time.Duration {
	return d.opTimeout
}

// EnsureCollections creates the session-state collections and their lookup
// indexes. It is idempotent and, because every command runs against the
// majority-write-concern database handle, it returns only once the schema
// is acknowledged by the required member set. A failure here is fatal at
// node startup.
func (d *DB) EnsureCollections(ctx context.Context) error {
	all := append([]string{SessionCollectionName}, groupedCollections...)
	for _, name := range all {
		if err := d.db.CreateCollection(ctx, name); err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("error occured while creating collection %s: %w", name, err)
		}
	}

	// Non-unique compound indexes: the grouping structure itself permits
	// duplicate rows per sub-key, single-row-per-key is enforced by the
	// delete-then-insert writes in GroupedTable.Replace.
	indexes := map[string]bson.D{
		StreamCollectionName:       {{Key: "owner", Value: 1}, {Key: "sub_id", Value: 1}, {Key: "stream_id", Value: 1}},
		SeqnoCollectionName:        {{Key: "owner", Value: 1}, {Key: "kind", Value: 1}, {Key: "qos", Value: 1}},
		RankCollectionName:         {{Key: "owner", Value: 1}, {Key: "sub_id", Value: 1}, {Key: "domain", Value: 1}},
		SubscriptionCollectionName: {{Key: "owner", Value: 1}, {Key: "topic_filter", Value: 1}, {Key: "sub_id", Value: 1}},
	}
	for name, keys := range indexes {
		_, err := d.db.Collection(name).Indexes().CreateOne(
			ctx,
			mongo.IndexModel{
				Keys:    keys,
				Options: options.Index().SetName(name + "_owner_key"),
			},
		)
		if err != nil {
			return fmt.Errorf("error occured while creating index on %s: %w", name, err)
		}
	}

	logger.DebugF("Session-state collections ready")
	return nil
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists"
}
