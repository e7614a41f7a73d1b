package store

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stintflow/timeutil"
	"stintflow/tires"
)

// DedupWindowSeconds is the bucket width used on the persistence path.
// Two seconds tolerates sub-second observation skew between agents
// watching the same pit-out.
const DedupWindowSeconds = 2

// StintPersister is the write path for official stints. Implemented by
// Store and by the in-memory dry-run persister.
type StintPersister interface {
	// UpsertOfficial inserts the stint if no official record exists for
	// its stint key, enriching the existing record's Unknown incoming
	// compounds otherwise. Returns the canonical document id and
	// whether this call inserted it. Store errors yield ("", false, err).
	UpsertOfficial(ctx context.Context, stint *Stint) (string, bool, error)
}

// NewOfficialStint assembles the canonical stint document for a pit-out
// observation: bucketed pit-end time, dedup key, tire payload and the
// per-position changed flags. Returns ErrInvalidSessionID when the
// session id is not a valid object id.
func NewOfficialStint(sessionID, driver, pitEndTime string, incoming, outgoing tires.Snapshot) (*Stint, error) {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	bucket, err := timeutil.Bucket(pitEndTime, DedupWindowSeconds)
	if err != nil {
		// Preserve the observation as-is rather than dropping it; the
		// dedup key degrades to the raw string.
		bucket = pitEndTime
	}

	stint := &Stint{
		SessionID:        oid,
		Driver:           driver,
		PitEndTime:       pitEndTime,
		PitEndTimeBucket: bucket,
		StintKey:         StintKey(sessionID, bucket),
		Official:         true,
		TireData:         BuildTireData(incoming, outgoing),
	}
	return stint, nil
}

// StintKey builds the dedup key for a session and bucketed pit-end time.
func StintKey(sessionID, bucket string) string {
	return sessionID + ":" + bucket
}

// BuildTireData pairs incoming and outgoing snapshots into the persisted
// tire payload, detecting changes from the outgoing wear.
func BuildTireData(incoming, outgoing tires.Snapshot) TireData {
	if incoming == nil {
		incoming = tires.EmptySnapshot()
	}
	if outgoing == nil {
		outgoing = tires.EmptySnapshot()
	}

	td := TireData{TiresChanged: make(map[tires.Position]bool, len(tires.Positions))}
	changes := tires.DetectChanges(outgoing)
	for _, pos := range tires.Positions {
		*td.Position(pos) = TireChange{
			Incoming: wheelRecord(incoming[pos]),
			Outgoing: wheelRecord(outgoing[pos]),
		}
		td.TiresChanged[pos] = changes[pos]
	}
	return td
}

func wheelRecord(w tires.Wheel) WheelRecord {
	return WheelRecord{
		Wear:     w.Wear,
		Flat:     w.Flat,
		Detached: w.Detached,
		Compound: w.Compound,
	}
}

// enrichmentUpdates returns the field paths an observation with real
// compound data would set on an already-persisted record. Only incoming
// compounds that are not "Unknown" (case-insensitive) qualify; outgoing
// values and all other fields are never overwritten on a dedup hit.
func enrichmentUpdates(td TireData) map[string]string {
	updates := make(map[string]string)
	for _, pos := range tires.Positions {
		compound := td.Position(pos).Incoming.Compound
		if compound == "" || strings.EqualFold(strings.TrimSpace(compound), tires.CompoundUnknown) {
			continue
		}
		updates[fmt.Sprintf("tire_data.%s.incoming.compound", pos)] = compound
	}
	return updates
}

// UpsertOfficial implements StintPersister against MongoDB.
//
// The insert-if-absent is a single atomic upsert keyed on
// (stint_key, official:true); concurrent agents observing the same
// pit-out race on it and exactly one wins. The loser enriches the
// winner's Unknown incoming compounds when it has better data.
func (s *Store) UpsertOfficial(ctx context.Context, stint *Stint) (string, bool, error) {
	col := s.collection(CollectionStints)
	filter := bson.M{"stint_key": stint.StintKey, "official": true}

	res, err := col.UpdateOne(ctx, filter,
		bson.M{"$setOnInsert": stint},
		options.Update().SetUpsert(true))
	if err != nil {
		// A duplicate-key error means another agent inserted between
		// our match phase and upsert; fall through to the dedup path.
		if !mongo.IsDuplicateKeyError(err) {
			s.log.WithAction("database", "upsert_official_stint").
				Errorf("upsert failed for %s: %v", stint.StintKey, err)
			return "", false, err
		}
	} else if res.UpsertedID != nil {
		if oid, ok := res.UpsertedID.(primitive.ObjectID); ok {
			return oid.Hex(), true, nil
		}
		return fmt.Sprint(res.UpsertedID), true, nil
	}

	// Dedup hit: enrich Unknown incoming compounds on the existing
	// record when this observation saw real ones.
	if updates := enrichmentUpdates(stint.TireData); len(updates) > 0 {
		set := bson.M{}
		for path, compound := range updates {
			set[path] = compound
		}
		if _, err := col.UpdateOne(ctx, filter, bson.M{"$set": set}); err != nil {
			s.log.WithAction("database", "upsert_official_stint").
				Errorf("failed to enrich stint %s: %v", stint.StintKey, err)
		}
	}

	var existing struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := col.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing); err != nil {
		s.log.WithAction("database", "upsert_official_stint").
			Errorf("upsert succeeded but no document found for %s: %v", stint.StintKey, err)
		return "", false, err
	}
	return existing.ID.Hex(), false, nil
}

// Stints returns all stints for a session, unsorted.
func (s *Store) Stints(ctx context.Context, sessionID string) ([]Stint, error) {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	cursor, err := s.collection(CollectionStints).Find(ctx, bson.M{"session_id": oid})
	if err != nil {
		return nil, fmt.Errorf("query stints: %w", err)
	}

	var stints []Stint
	if err := cursor.All(ctx, &stints); err != nil {
		return nil, fmt.Errorf("decode stints: %w", err)
	}
	return stints, nil
}

// LatestStint returns the most recent official stint of a session by
// descending pit_end_time_bucket (zero-padded HH:MM:SS sorts
// chronologically when compared lexicographically). Returns ErrNotFound
// when the session has no stints.
func (s *Store) LatestStint(ctx context.Context, sessionID string) (*Stint, error) {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	filter := bson.M{
		"session_id": oid,
		"$or": bson.A{
			bson.M{"official": true},
			bson.M{"official": bson.M{"$exists": false}},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "pit_end_time_bucket", Value: -1}})

	var stint Stint
	if err := s.collection(CollectionStints).FindOne(ctx, filter, opts).Decode(&stint); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query latest stint: %w", err)
	}
	return &stint, nil
}

// DeleteStint removes a stint by id. Explicit user action only.
func (s *Store) DeleteStint(ctx context.Context, stintID string) error {
	oid, err := primitive.ObjectIDFromHex(stintID)
	if err != nil {
		return fmt.Errorf("invalid stint id %q", stintID)
	}

	res, err := s.collection(CollectionStints).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete stint: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStintTireData replaces the tire payload of a stint. Used when
// the user edits tire changes on a recorded row.
func (s *Store) UpdateStintTireData(ctx context.Context, stintID string, td TireData) error {
	oid, err := primitive.ObjectIDFromHex(stintID)
	if err != nil {
		return fmt.Errorf("invalid stint id %q", stintID)
	}

	res, err := s.collection(CollectionStints).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"tire_data": td}})
	if err != nil {
		return fmt.Errorf("update stint tire data: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStintExcluded flips the flag that removes a stint from the mean
// computation while keeping the row visible.
func (s *Store) SetStintExcluded(ctx context.Context, stintID string, excluded bool) error {
	oid, err := primitive.ObjectIDFromHex(stintID)
	if err != nil {
		return fmt.Errorf("invalid stint id %q", stintID)
	}

	res, err := s.collection(CollectionStints).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"excluded": excluded}})
	if err != nil {
		return fmt.Errorf("update stint excluded flag: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
