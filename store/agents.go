package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Agent liveness parameters. Any tracker may run the cleanup; the single
// atomic delete keeps concurrent cleanups race-free.
const (
	// StaleAgentGrace is how long an agent may go without a heartbeat
	// before peers remove its registration.
	StaleAgentGrace = 60 * time.Second

	// CleanupInterval bounds how often a tracker attempts the cleanup.
	CleanupInterval = 5 * time.Second
)

// Stale reports whether the agent's last heartbeat is older than the
// grace period at the given instant. Views use this to badge agents
// before cleanup has removed them.
func (a Agent) Stale(now time.Time, grace time.Duration) bool {
	return now.Sub(a.LastHeartbeat) > grace
}

// RegisterAgent inserts a new agent document. Registration is not
// idempotent: a name collision returns ErrNameConflict and the caller
// must surface it rather than continue with a duplicate identity.
func (s *Store) RegisterAgent(ctx context.Context, name string) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	now := time.Now().UTC()
	agent := &Agent{
		Name:          name,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}

	if _, err := s.collection(CollectionAgents).InsertOne(ctx, agent); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.log.WithAction("database", "register_agent").
				Warnf("agent already exists: %q", name)
			return nil, fmt.Errorf("%w: %q", ErrNameConflict, name)
		}
		return nil, fmt.Errorf("register agent %q: %w", name, err)
	}

	s.log.WithAction("database", "register_agent").Debugf("registered agent %q", name)
	return agent, nil
}

// Heartbeat refreshes the agent's last_heartbeat to the current UTC
// time. A missing agent document is logged, not an error: cleanup may
// have removed it and re-registration is the caller's decision.
func (s *Store) Heartbeat(ctx context.Context, name string) error {
	res, err := s.collection(CollectionAgents).UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{"last_heartbeat": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("update heartbeat for %q: %w", name, err)
	}
	if res.MatchedCount == 0 {
		s.log.WithAction("database", "update_agent_heartbeat").
			Warnf("heartbeat update for unknown agent %q", name)
	}
	return nil
}

// CleanStaleAgents deletes every agent whose last heartbeat is older
// than the grace period. Idempotent and safe to run from any tracker
// concurrently: it is a single atomic delete query.
func (s *Store) CleanStaleAgents(ctx context.Context, grace time.Duration) (int64, error) {
	if grace <= 0 {
		return 0, fmt.Errorf("grace period must be positive")
	}

	cutoff := time.Now().UTC().Add(-grace)
	res, err := s.collection(CollectionAgents).DeleteMany(ctx,
		bson.M{"last_heartbeat": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("clean stale agents: %w", err)
	}

	if res.DeletedCount > 0 {
		s.log.WithAction("database", "clean_stale_agents").
			Infof("removed %d stale agent(s)", res.DeletedCount)
	}
	return res.DeletedCount, nil
}

// DeleteAgent removes an agent's registration on clean shutdown.
// Deleting an already-removed agent is not an error.
func (s *Store) DeleteAgent(ctx context.Context, name string) error {
	_, err := s.collection(CollectionAgents).DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("delete agent %q: %w", name, err)
	}
	return nil
}

// Agents lists all registered agents, newest heartbeat first.
func (s *Store) Agents(ctx context.Context) ([]Agent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_heartbeat", Value: -1}})
	cursor, err := s.collection(CollectionAgents).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}

	var agents []Agent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return agents, nil
}
