// Package store is the document-store layer shared by every StintFlow
// agent and UI process.
//
// All cross-workstation coordination happens through these collections:
// trackers write stints and heartbeats, UIs read stints and own
// strategies. Atomicity per operation is delegated to the store; the
// dedup design deliberately needs no transactions.
package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"stintflow/tires"
)

// Collection names.
const (
	CollectionEvents     = "events"
	CollectionSessions   = "sessions"
	CollectionStints     = "stints"
	CollectionStrategies = "strategies"
	CollectionTeams      = "teams"
	CollectionAgents     = "agents"
)

// WheelRecord is the persisted state of a single tire.
type WheelRecord struct {
	Wear     float64 `bson:"wear" json:"wear"`
	Flat     bool    `bson:"flat" json:"flat"`
	Detached bool    `bson:"detached" json:"detached"`
	Compound string  `bson:"compound" json:"compound"`
}

// TireChange pairs the tire state observed at pit-in with the state
// observed at pit-out for one position.
type TireChange struct {
	Incoming WheelRecord `bson:"incoming" json:"incoming"`
	Outgoing WheelRecord `bson:"outgoing" json:"outgoing"`
}

// TireData is the full per-stint tire payload: one change record per
// position plus the per-position changed flags.
type TireData struct {
	FL           TireChange              `bson:"fl" json:"fl"`
	FR           TireChange              `bson:"fr" json:"fr"`
	RL           TireChange              `bson:"rl" json:"rl"`
	RR           TireChange              `bson:"rr" json:"rr"`
	TiresChanged map[tires.Position]bool `bson:"tires_changed" json:"tires_changed"`
}

// Position returns the change record for a wheel position, or nil for
// an unknown position.
func (td *TireData) Position(pos tires.Position) *TireChange {
	switch pos {
	case tires.FrontLeft:
		return &td.FL
	case tires.FrontRight:
		return &td.FR
	case tires.RearLeft:
		return &td.RL
	case tires.RearRight:
		return &td.RR
	}
	return nil
}

// Stint is one observed pit-out event.
type Stint struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	SessionID        primitive.ObjectID `bson:"session_id"`
	Driver           string             `bson:"driver"`
	PitEndTime       string             `bson:"pit_end_time"`
	PitEndTimeBucket string             `bson:"pit_end_time_bucket"`
	StintKey         string             `bson:"stint_key"`
	Official         bool               `bson:"official"`
	Excluded         bool               `bson:"excluded,omitempty"`
	TireData         TireData           `bson:"tire_data"`
}

// Agent is a running tracker process registered in the store.
type Agent struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Name          string             `bson:"name"`
	ConnectedAt   time.Time          `bson:"connected_at"`
	LastHeartbeat time.Time          `bson:"last_heartbeat"`
}

// Event is a race definition.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Tires     int                `bson:"tires"`
	Length    string             `bson:"length"`
	StartTime string             `bson:"start_time"`
}

// Session is one practice or race run of an event.
type Session struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	RaceID primitive.ObjectID `bson:"race_id"`
	Name   string             `bson:"name"`
}

// Team groups the drivers tracked during a session.
type Team struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Name    string             `bson:"name"`
	Drivers []string           `bson:"drivers"`
}

// StrategyRow is one persisted table row of a strategy's model data.
type StrategyRow struct {
	StintType        string `bson:"stint_type" json:"stint_type"`
	Name             string `bson:"name" json:"name"`
	Status           bool   `bson:"status" json:"status"` // true = completed
	PitEndTime       string `bson:"pit_end_time" json:"pit_end_time"`
	TiresChanged     int    `bson:"tires_changed" json:"tires_changed"`
	TiresLeft        int    `bson:"tires_left" json:"tires_left"`
	StintTimeSeconds int    `bson:"stint_time_seconds" json:"stint_time_seconds"`
}

// ModelData is the serialized table state of a strategy.
type ModelData struct {
	Rows  []StrategyRow `bson:"rows" json:"rows"`
	Tires []TireData    `bson:"tires" json:"tires"`
}

// Strategy is a user-owned projection of how the remainder of a session
// should unfold.
type Strategy struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	SessionID            primitive.ObjectID `bson:"session_id"`
	Name                 string             `bson:"name"`
	ModelData            ModelData          `bson:"model_data"`
	MeanStintTimeSeconds int                `bson:"mean_stint_time_seconds"`
	LockCompletedStints  bool               `bson:"lock_completed_stints"`
}
