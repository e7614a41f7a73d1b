package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Event returns a race definition by id.
func (s *Store) Event(ctx context.Context, eventID string) (*Event, error) {
	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, fmt.Errorf("invalid event id %q", eventID)
	}

	var event Event
	if err := s.collection(CollectionEvents).FindOne(ctx, bson.M{"_id": oid}).Decode(&event); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query event: %w", err)
	}
	return &event, nil
}

// Events lists all race definitions.
func (s *Store) Events(ctx context.Context) ([]Event, error) {
	cursor, err := s.collection(CollectionEvents).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// CreateEvent inserts a race definition and returns its id.
func (s *Store) CreateEvent(ctx context.Context, event *Event) (string, error) {
	res, err := s.collection(CollectionEvents).InsertOne(ctx, event)
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	oid := res.InsertedID.(primitive.ObjectID)
	event.ID = oid
	return oid.Hex(), nil
}

// UpdateEvent replaces the mutable fields of a race definition.
func (s *Store) UpdateEvent(ctx context.Context, event *Event) error {
	if event.ID.IsZero() {
		return fmt.Errorf("event id is required")
	}

	res, err := s.collection(CollectionEvents).UpdateOne(ctx,
		bson.M{"_id": event.ID},
		bson.M{"$set": bson.M{
			"name":       event.Name,
			"tires":      event.Tires,
			"length":     event.Length,
			"start_time": event.StartTime,
		}})
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Session returns a session by id.
func (s *Store) Session(ctx context.Context, sessionID string) (*Session, error) {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	var session Session
	if err := s.collection(CollectionSessions).FindOne(ctx, bson.M{"_id": oid}).Decode(&session); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &session, nil
}

// Sessions lists the sessions of an event.
func (s *Store) Sessions(ctx context.Context, eventID string) ([]Session, error) {
	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, fmt.Errorf("invalid event id %q", eventID)
	}

	cursor, err := s.collection(CollectionSessions).Find(ctx, bson.M{"race_id": oid})
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	var sessions []Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession inserts a session for an event and returns its id.
func (s *Store) CreateSession(ctx context.Context, session *Session) (string, error) {
	res, err := s.collection(CollectionSessions).InsertOne(ctx, session)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	oid := res.InsertedID.(primitive.ObjectID)
	session.ID = oid
	return oid.Hex(), nil
}

// Team returns a team document by id.
func (s *Store) Team(ctx context.Context, teamID string) (*Team, error) {
	oid, err := primitive.ObjectIDFromHex(teamID)
	if err != nil {
		return nil, fmt.Errorf("invalid team id %q", teamID)
	}

	var team Team
	if err := s.collection(CollectionTeams).FindOne(ctx, bson.M{"_id": oid}).Decode(&team); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query team: %w", err)
	}
	return &team, nil
}

// UpdateTeamDrivers replaces the driver roster of a team.
func (s *Store) UpdateTeamDrivers(ctx context.Context, teamID string, drivers []string) error {
	oid, err := primitive.ObjectIDFromHex(teamID)
	if err != nil {
		return fmt.Errorf("invalid team id %q", teamID)
	}

	res, err := s.collection(CollectionTeams).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"drivers": drivers}})
	if err != nil {
		return fmt.Errorf("update team drivers: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
