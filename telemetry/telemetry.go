// Package telemetry reads the simulator's shared-memory telemetry region
// and exposes a snapshot of the player vehicle and session scoring state.
//
// The region is a fixed-layout structure owned by the simulator process.
// Reads are scoped: the mapping is acquired, copied, and released on
// every poll so a crashed simulator never leaves the tracker holding a
// dangling view. Values are never cached between reads.
package telemetry

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the shared-memory mapping could not be
// acquired, typically because the simulator is not running. Callers are
// expected to retry on the next poll tick.
var ErrUnavailable = errors.New("telemetry shared memory unavailable")

// ErrPlayerNotFound indicates the mapping was readable but none of the
// configured driver names matched a vehicle in the session.
var ErrPlayerNotFound = errors.New("no matching driver in session")

// WheelSnapshot is the per-wheel state read from the player vehicle.
type WheelSnapshot struct {
	Wear     float64
	Flat     bool
	Detached bool
}

// Snapshot is a single read of the player's telemetry and scoring state.
type Snapshot struct {
	// DriverName is the session driver that matched the tracked names.
	DriverName string

	// Wheels holds per-wheel wear state in fl, fr, rl, rr order.
	Wheels [4]WheelSnapshot

	// PitState is the raw pit-state code from the simulator.
	PitState int

	// InGarageStall reports whether the vehicle sits in its assigned
	// garage stall.
	InGarageStall bool

	// NumPenalties is the vehicle's outstanding penalty count.
	NumPenalties int

	// CurrentET and EndET are the session's elapsed and scheduled end
	// times in seconds.
	CurrentET float64
	EndET     float64
}

// Reader yields telemetry snapshots for a set of tracked driver names.
type Reader interface {
	// Read acquires the shared-memory region and returns the current
	// snapshot for the first vehicle whose driver name matches one of
	// the given names. Returns ErrUnavailable when the mapping cannot
	// be opened and ErrPlayerNotFound when no vehicle matches.
	Read(ctx context.Context, drivers []string) (*Snapshot, error)

	// Close releases any resources held by the reader.
	Close() error
}
