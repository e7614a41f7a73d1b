// Package strategy is the projection engine that turns a session's
// completed stints into a full race timeline.
//
// Everything here is pure computation over its inputs: completed rows
// are historical fact, the mean stint time is an arithmetic mean over
// the non-excluded completed durations, and the pending tail is
// regenerated from the mean until the projection reaches the start of
// the race at midnight. Persistence is the caller's concern.
package strategy

import (
	"time"

	"stintflow/store"
)

// Status marks a row as an observed stint or a projected one.
type Status string

// Row statuses. Completed rows always precede pending rows.
const (
	StatusCompleted Status = "Completed"
	StatusPending   Status = "Pending"
)

// Tire-change counts used by the projection.
const (
	// FullTireSet is a four-tire change.
	FullTireSet = 4

	// NoTireChange marks a stint that carried its tires over.
	NoTireChange = 0
)

// Row is one line of the strategy table: an observed or projected stint.
type Row struct {
	StintType    string
	Driver       string
	Status       Status
	PitEndTime   string
	TiresChanged int
	TiresLeft    int
	StintTime    time.Duration
}

// Completed reports whether the row is an observed stint.
func (r Row) Completed() bool {
	return r.Status == StatusCompleted
}

// Projection is the full output of the engine: rows, a parallel tire
// sequence and the mean stint time the pending tail was generated from.
type Projection struct {
	Rows  []Row
	Tires []store.TireData
	Mean  time.Duration
}

var stintTypeNames = map[int]string{
	1:  "Single",
	2:  "Double",
	3:  "Triple",
	4:  "Quadruple",
	5:  "Quintuple",
	6:  "Sextuple",
	7:  "Septuple",
	8:  "Octuple",
	9:  "Nonuple",
	10: "Decuple",
}

var stintTypeLengths = func() map[string]int {
	m := make(map[string]int, len(stintTypeNames))
	for k, name := range stintTypeNames {
		m[name] = k
	}
	return m
}()

// StintTypeName returns the label for a run of k stints sharing one
// tire set: 1 is "Single", 2 is "Double", up to 10 ("Decuple").
// Anything longer is "Unknown".
func StintTypeName(k int) string {
	if name, ok := stintTypeNames[k]; ok {
		return name
	}
	return "Unknown"
}

// StintLength is the inverse of StintTypeName. Empty or unknown labels
// count as a single stint.
func StintLength(name string) int {
	if k, ok := stintTypeLengths[name]; ok {
		return k
	}
	return 1
}
