package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"stintflow/config"
	"stintflow/logging"
)

// Connection parameters suited to a desktop application talking to a
// nearby MongoDB.
const (
	connectTimeout         = 5 * time.Second
	serverSelectionTimeout = 5 * time.Second
	maxPoolSize            = 10
)

// Sentinel errors surfaced by store operations.
var (
	// ErrNameConflict indicates an agent name collision on registration.
	ErrNameConflict = errors.New("agent name already registered")

	// ErrInvalidSessionID indicates a session id that is not a valid
	// object id.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrNotFound indicates a document lookup with no match.
	ErrNotFound = errors.New("document not found")
)

// Store wraps the MongoDB client and the StintFlow collections.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logging.Logger
}

// Connect builds a client from the user settings and verifies the
// connection with a ping. The URI takes precedence over the host-based
// fields when both are configured.
func Connect(ctx context.Context, settings config.Settings, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Discard()
	}

	opts := options.Client().
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetMaxPoolSize(maxPoolSize)

	mongoCfg := settings.Mongo
	if mongoCfg.URI != "" {
		log.WithAction("database", "connect").Info("connecting to MongoDB using connection string")
		opts.ApplyURI(mongoCfg.URI)
	} else {
		log.WithAction("database", "connect").Infof("connecting to MongoDB at %s", mongoCfg.Host)
		opts.ApplyURI("mongodb://" + mongoCfg.Host)
		if mongoCfg.Username != "" && mongoCfg.Password != "" {
			cred := options.Credential{
				Username: mongoCfg.Username,
				Password: mongoCfg.Password,
			}
			if mongoCfg.AuthSource != "" {
				cred.AuthSource = mongoCfg.AuthSource
			}
			opts.SetAuth(cred)
		}
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	log.WithAction("database", "connect").Info("MongoDB connection established")
	return &Store{
		client: client,
		db:     client.Database(mongoCfg.Database),
		log:    log,
	}, nil
}

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from the store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// EnsureIndexes creates the indexes the dedup and registry designs rely
// on. Safe to call on every startup; index creation is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	stintIndexes := []mongo.IndexModel{
		{
			// Uniqueness is enforced only for official records so user
			// edits can coexist with tracker observations.
			Keys: bson.D{{Key: "stint_key", Value: 1}, {Key: "official", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"official": true}),
		},
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
	}
	if _, err := s.collection(CollectionStints).Indexes().CreateMany(ctx, stintIndexes); err != nil {
		return fmt.Errorf("create stint indexes: %w", err)
	}

	agentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "last_heartbeat", Value: 1}}},
	}
	if _, err := s.collection(CollectionAgents).Indexes().CreateMany(ctx, agentIndexes); err != nil {
		return fmt.Errorf("create agent indexes: %w", err)
	}

	sessionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "race_id", Value: 1}}},
	}
	if _, err := s.collection(CollectionSessions).Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}

	strategyIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
	}
	if _, err := s.collection(CollectionStrategies).Indexes().CreateMany(ctx, strategyIndexes); err != nil {
		return fmt.Errorf("create strategy indexes: %w", err)
	}

	return nil
}
