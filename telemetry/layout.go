package telemetry

import (
	"strings"
)

// Fixed memory layout of the simulator's shared data region. Field order
// and sizes mirror the structure the simulator publishes; changing them
// breaks the cast in the platform readers.

const (
	// mappingName identifies the shared-memory region on the host.
	mappingName = "$LMU_SMMP_Data$"

	// maxVehicles is the capacity of the per-vehicle arrays.
	maxVehicles = 104

	driverNameLen = 32
)

// rawWheel mirrors the simulator's per-wheel telemetry entry.
type rawWheel struct {
	Wear     float64 // 0.0 (worn) .. 1.0 (new)
	Flat     uint8
	Detached uint8
	_        [6]byte // alignment padding
}

// rawVehTelemetry mirrors one entry of telemInfo[].
type rawVehTelemetry struct {
	Wheels [4]rawWheel // fl, fr, rl, rr
}

// rawScoringInfo mirrors the session-wide scoring header.
type rawScoringInfo struct {
	CurrentET float64 // mCurrentET
	EndET     float64 // mEndET
}

// rawVehScoring mirrors one entry of vehScoringInfo[].
type rawVehScoring struct {
	DriverName    [driverNameLen]byte // NUL-terminated
	PitState      uint8               // mPitState
	InGarageStall uint8               // mInGarageStall
	_             [2]byte
	NumPenalties  int32 // mNumPenalties
}

// sharedData is the full region: a telemetry block followed by a
// scoring block.
type sharedData struct {
	PlayerVehicleIdx int32
	ActiveVehicles   int32
	TelemInfo        [maxVehicles]rawVehTelemetry
	ScoringInfo      rawScoringInfo
	VehScoringInfo   [maxVehicles]rawVehScoring
}

// decodeDriverName extracts a driver name from its NUL-terminated fixed
// buffer. Undecodable or empty buffers yield "".
func decodeDriverName(buf [driverNameLen]byte) string {
	end := len(buf)
	for i, b := range buf {
		if b == 0 {
			end = i
			break
		}
	}
	return strings.TrimSpace(string(buf[:end]))
}

// findPlayer scans the active portion of the scoring list for the first
// vehicle whose driver name matches one of the tracked names
// (case-insensitive). Returns the vehicle index or -1.
func findPlayer(data *sharedData, drivers []string) (int, string) {
	wanted := make(map[string]struct{}, len(drivers))
	for _, d := range drivers {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			wanted[d] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return -1, ""
	}

	active := int(data.ActiveVehicles)
	if active < 0 {
		active = 0
	}
	if active > maxVehicles {
		active = maxVehicles
	}

	for i := 0; i < active; i++ {
		name := decodeDriverName(data.VehScoringInfo[i].DriverName)
		if name == "" {
			continue
		}
		if _, ok := wanted[strings.ToLower(name)]; ok {
			return i, name
		}
	}
	return -1, ""
}

// buildSnapshot assembles the caller-facing snapshot for a matched
// vehicle. Wheel telemetry comes from the player vehicle slot; scoring
// comes from the matched scoring slot.
func buildSnapshot(data *sharedData, scoringIdx int, driverName string) *Snapshot {
	telemIdx := int(data.PlayerVehicleIdx)
	if telemIdx < 0 || telemIdx >= maxVehicles {
		telemIdx = scoringIdx
	}

	snap := &Snapshot{
		DriverName:    driverName,
		PitState:      int(data.VehScoringInfo[scoringIdx].PitState),
		InGarageStall: data.VehScoringInfo[scoringIdx].InGarageStall != 0,
		NumPenalties:  int(data.VehScoringInfo[scoringIdx].NumPenalties),
		CurrentET:     data.ScoringInfo.CurrentET,
		EndET:         data.ScoringInfo.EndET,
	}

	for i, w := range data.TelemInfo[telemIdx].Wheels {
		snap.Wheels[i] = WheelSnapshot{
			Wear:     w.Wear,
			Flat:     w.Flat != 0,
			Detached: w.Detached != 0,
		}
	}
	return snap
}

// snapshotFrom resolves the player and builds a snapshot, shared by the
// platform readers and the tests.
func snapshotFrom(data *sharedData, drivers []string) (*Snapshot, error) {
	idx, name := findPlayer(data, drivers)
	if idx < 0 {
		return nil, ErrPlayerNotFound
	}
	return buildSnapshot(data, idx, name), nil
}
