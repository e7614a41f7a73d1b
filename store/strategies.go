package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateStrategy inserts a strategy document and returns its id.
func (s *Store) CreateStrategy(ctx context.Context, strategy *Strategy) (string, error) {
	res, err := s.collection(CollectionStrategies).InsertOne(ctx, strategy)
	if err != nil {
		return "", fmt.Errorf("create strategy: %w", err)
	}
	oid := res.InsertedID.(primitive.ObjectID)
	strategy.ID = oid
	return oid.Hex(), nil
}

// Strategies lists all strategies of a session.
func (s *Store) Strategies(ctx context.Context, sessionID string) ([]Strategy, error) {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	cursor, err := s.collection(CollectionStrategies).Find(ctx, bson.M{"session_id": oid})
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}

	var strategies []Strategy
	if err := cursor.All(ctx, &strategies); err != nil {
		return nil, fmt.Errorf("decode strategies: %w", err)
	}
	return strategies, nil
}

// UpdateStrategy replaces every user-editable field of a strategy.
func (s *Store) UpdateStrategy(ctx context.Context, strategy *Strategy) error {
	if strategy.ID.IsZero() {
		return fmt.Errorf("strategy id is required")
	}

	res, err := s.collection(CollectionStrategies).UpdateOne(ctx,
		bson.M{"_id": strategy.ID},
		bson.M{"$set": bson.M{
			"name":                    strategy.Name,
			"model_data":              strategy.ModelData,
			"mean_stint_time_seconds": strategy.MeanStintTimeSeconds,
			"lock_completed_stints":   strategy.LockCompletedStints,
		}})
	if err != nil {
		return fmt.Errorf("update strategy: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStrategyModel replaces only the serialized table state of a
// strategy, leaving name and settings untouched.
func (s *Store) UpdateStrategyModel(ctx context.Context, strategyID string, model ModelData) error {
	oid, err := primitive.ObjectIDFromHex(strategyID)
	if err != nil {
		return fmt.Errorf("invalid strategy id %q", strategyID)
	}

	res, err := s.collection(CollectionStrategies).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"model_data": model}})
	if err != nil {
		return fmt.Errorf("update strategy model: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStrategy removes a strategy by id.
func (s *Store) DeleteStrategy(ctx context.Context, strategyID string) error {
	oid, err := primitive.ObjectIDFromHex(strategyID)
	if err != nil {
		return fmt.Errorf("invalid strategy id %q", strategyID)
	}

	res, err := s.collection(CollectionStrategies).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete strategy: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
