// Package tires produces canonical per-wheel tire snapshots for stint
// records.
//
// Wear, flat and detached state come straight from telemetry; compound
// identity is fetched from the simulator's local garage REST endpoint.
// Compound data is nice-to-have: any failure on that path yields
// "Unknown" compounds and never fails the caller.
package tires

// Position identifies one of the four wheel positions.
type Position string

// Canonical wheel positions, in the simulator's wheel-array order.
const (
	FrontLeft  Position = "fl"
	FrontRight Position = "fr"
	RearLeft   Position = "rl"
	RearRight  Position = "rr"
)

// Positions lists the wheel positions in wheel-array order (index 0..3).
var Positions = [4]Position{FrontLeft, FrontRight, RearLeft, RearRight}

// Compound names. The simulator exposes compounds as small integer
// codes; anything outside the known set maps to Unknown.
const (
	CompoundMedium  = "Medium"
	CompoundWet     = "Wet"
	CompoundUnknown = "Unknown"
)

var compoundNames = map[int]string{
	0: CompoundMedium,
	1: CompoundWet,
}

// CompoundName maps a simulator compound code to its display name.
func CompoundName(code int) string {
	if name, ok := compoundNames[code]; ok {
		return name
	}
	return CompoundUnknown
}

// WearEpsilon is the tolerance used when deciding whether an outgoing
// wear value signals a freshly fitted tire.
const WearEpsilon = 0.01

// Wheel is the canonical state of a single tire.
type Wheel struct {
	Wear     float64
	Flat     bool
	Detached bool
	Compound string
}

// Snapshot maps each wheel position to its canonical state.
type Snapshot map[Position]Wheel

// EmptySnapshot returns the safe zero-filled snapshot used when
// telemetry is missing or malformed: zero wear and Unknown compound for
// every position.
func EmptySnapshot() Snapshot {
	snap := make(Snapshot, len(Positions))
	for _, pos := range Positions {
		snap[pos] = Wheel{Compound: CompoundUnknown}
	}
	return snap
}

// IsNewTire reports whether a wear value indicates a freshly fitted
// tire (wear within WearEpsilon of 1.0).
func IsNewTire(wear float64) bool {
	return wear >= 1.0-WearEpsilon
}

// DetectChanges reports, per position, whether the outgoing tire was
// replaced during the pit stop.
func DetectChanges(outgoing Snapshot) map[Position]bool {
	changes := make(map[Position]bool, len(Positions))
	for _, pos := range Positions {
		changes[pos] = IsNewTire(outgoing[pos].Wear)
	}
	return changes
}
