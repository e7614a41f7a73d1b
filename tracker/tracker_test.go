package tracker

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"stintflow/store"
	"stintflow/telemetry"
	"stintflow/tires"
)

const testSessionID = "65a1b2c3d4e5f6a7b8c9d0e1"

// scriptReader replays a fixed sequence of snapshots, holding the last
// one once the script runs out.
type scriptReader struct {
	snaps []*telemetry.Snapshot
	pos   int
}

func (r *scriptReader) Read(ctx context.Context, drivers []string) (*telemetry.Snapshot, error) {
	if len(r.snaps) == 0 {
		return nil, telemetry.ErrUnavailable
	}
	snap := r.snaps[r.pos]
	if r.pos < len(r.snaps)-1 {
		r.pos++
	}
	return snap, nil
}

func (r *scriptReader) Close() error { return nil }

// staticTires returns a fixed snapshot regardless of telemetry, like an
// extractor whose compound endpoint always answers the same way.
type staticTires struct {
	snap tires.Snapshot
}

func (s *staticTires) Snapshot(ctx context.Context, wheels [4]telemetry.WheelSnapshot) tires.Snapshot {
	if s.snap != nil {
		return s.snap
	}
	out := make(tires.Snapshot)
	for i, pos := range tires.Positions {
		out[pos] = tires.Wheel{Wear: wheels[i].Wear, Compound: tires.CompoundMedium}
	}
	return out
}

// countingRegistry records heartbeat and cleanup calls.
type countingRegistry struct {
	heartbeats int
	cleanups   int
}

func (c *countingRegistry) Heartbeat(ctx context.Context, name string) error {
	c.heartbeats++
	return nil
}

func (c *countingRegistry) CleanStaleAgents(ctx context.Context, grace time.Duration) (int64, error) {
	c.cleanups++
	return 0, nil
}

// fixedSessions serves the practice baseline.
type fixedSessions struct {
	latest *store.Stint
	event  *store.Event
}

func (f *fixedSessions) LatestStint(ctx context.Context, sessionID string) (*store.Stint, error) {
	if f.latest == nil {
		return nil, store.ErrNotFound
	}
	return f.latest, nil
}

func (f *fixedSessions) Session(ctx context.Context, sessionID string) (*store.Session, error) {
	return &store.Session{ID: primitive.NewObjectID(), RaceID: primitive.NewObjectID()}, nil
}

func (f *fixedSessions) Event(ctx context.Context, eventID string) (*store.Event, error) {
	if f.event == nil {
		return nil, store.ErrNotFound
	}
	return f.event, nil
}

func snap(state PitState, inGarage bool, endET, currentET float64, penalties int, wear float64) *telemetry.Snapshot {
	s := &telemetry.Snapshot{
		DriverName:    "Jane Driver",
		PitState:      int(state),
		InGarageStall: inGarage,
		NumPenalties:  penalties,
		CurrentET:     currentET,
		EndET:         endET,
	}
	for i := range s.Wheels {
		s.Wheels[i] = telemetry.WheelSnapshot{Wear: wear}
	}
	return s
}

func newTestTracker(cfg Config, reader telemetry.Reader, mem *store.MemoryStintStore, sessions SessionSource, out *strings.Builder) *Tracker {
	if out == nil {
		out = &strings.Builder{}
	}
	return New(cfg, reader, &staticTires{}, mem, nil, sessions, NewEmitter(out), nil, nil)
}

func runTicks(t *Tracker, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		t.Tick(ctx)
	}
}

func TestRaceModeSingleStint(t *testing.T) {
	// Simulator transitions on-track -> coming-in -> pitting -> leaving
	// -> on-track. At leaving: 3600s remaining, four fresh tires.
	reader := &scriptReader{snaps: []*telemetry.Snapshot{
		snap(PitOnTrack, false, 7200, 0, 0, 0.5),
		snap(PitComingIn, false, 7200, 3590, 0, 0.5),
		snap(PitPitting, false, 7200, 3595, 0, 0.5),
		snap(PitLeaving, false, 7200, 3600, 0, 1.0),
		snap(PitOnTrack, false, 7200, 3610, 0, 1.0),
	}}
	mem := store.NewMemoryStintStore()
	out := &strings.Builder{}
	tr := newTestTracker(Config{SessionID: testSessionID, Drivers: []string{"Jane Driver"}}, reader, mem, nil, out)

	runTicks(tr, 5)

	if mem.Len() != 1 {
		t.Fatalf("expected exactly one stint, got %d", mem.Len())
	}
	stint := mem.Stint(testSessionID + ":01:00:00")
	if stint == nil {
		t.Fatalf("stint not recorded under expected key")
	}
	if stint.PitEndTime != "01:00:00" || stint.PitEndTimeBucket != "01:00:00" {
		t.Errorf("pit times = %q / %q", stint.PitEndTime, stint.PitEndTimeBucket)
	}
	if stint.Driver != "Jane Driver" {
		t.Errorf("driver = %q", stint.Driver)
	}
	for _, pos := range tires.Positions {
		if !stint.TireData.TiresChanged[pos] {
			t.Errorf("position %s should be marked changed", pos)
		}
	}
	if !strings.Contains(out.String(), "__event__:stint_tracker:stint_created") {
		t.Errorf("stint_created event not emitted: %q", out.String())
	}
}

func TestLeaveWithoutSecondStint(t *testing.T) {
	// Holding the leaving state across several ticks must not record
	// the stint twice.
	reader := &scriptReader{snaps: []*telemetry.Snapshot{
		snap(PitComingIn, false, 7200, 3590, 0, 0.5),
		snap(PitLeaving, false, 7200, 3600, 0, 1.0),
		snap(PitLeaving, false, 7200, 3601, 0, 1.0),
		snap(PitLeaving, false, 7200, 3602, 0, 1.0),
	}}
	mem := store.NewMemoryStintStore()
	tr := newTestTracker(Config{SessionID: testSessionID, Drivers: []string{"Jane Driver"}}, reader, mem, nil, nil)

	runTicks(tr, 4)
	if mem.Len() != 1 {
		t.Errorf("expected one stint despite repeated leaving ticks, got %d", mem.Len())
	}
}

func TestGarageVisitSuppressesStint(t *testing.T) {
	// A garage dwell flags the cycle, so the subsequent leave is not a
	// pit-out.
	reader := &scriptReader{snaps: []*telemetry.Snapshot{
		snap(PitInGarage, true, 7200, 3600, 0, 0.5),
		snap(PitLeaving, false, 7200, 3650, 0, 1.0),
		snap(PitOnTrack, false, 7200, 3700, 0, 1.0),
	}}
	mem := store.NewMemoryStintStore()
	out := &strings.Builder{}
	tr := newTestTracker(Config{SessionID: testSessionID, Drivers: []string{"Jane Driver"}}, reader, mem, nil, out)

	runTicks(tr, 3)

	if mem.Len() != 0 {
		t.Errorf("garage exit must not record a stint, got %d", mem.Len())
	}
	if !strings.Contains(out.String(), "__info__:stint_tracker:player_in_garage") {
		t.Errorf("player_in_garage not emitted: %q", out.String())
	}
}

func TestPenaltyServedSkipsStint(t *testing.T) {
	// Baseline of one pending penalty; after the stop the counter
	// dropped to zero, so the cycle was a penalty service.
	reader := &scriptReader{snaps: []*telemetry.Snapshot{
		// Establish penalty baseline: a full cycle ending on-track with
		// one pending penalty.
		snap(PitComingIn, false, 7200, 1000, 1, 0.5),
		snap(PitLeaving, false, 7200, 1010, 1, 1.0),
		snap(PitOnTrack, false, 7200, 1020, 1, 1.0),
		// Penalty-serving cycle: counter decrements to zero.
		snap(PitComingIn, false, 7200, 3590, 1, 0.5),
		snap(PitLeaving, false, 7200, 3600, 0, 0.5),
		snap(PitOnTrack, false, 7200, 3610, 0, 0.5),
	}}
	mem := store.NewMemoryStintStore()
	tr := newTestTracker(Config{SessionID: testSessionID, Drivers: []string{"Jane Driver"}}, reader, mem, nil, nil)

	runTicks(tr, 6)

	// Only the first pit-out (before the baseline existed) records.
	if mem.Len() != 1 {
		t.Errorf("penalty-served cycle must be skipped, got %d stints", mem.Len())
	}
	if mem.Stint(testSessionID+":01:00:00") != nil {
		t.Error("the penalty cycle's stint key must not exist")
	}
}

func TestPracticeResume(t *testing.T) {
	// Session has one prior stint at 05:30:00. Garage snapshot reads
	// 05:45:00; simulator remaining at pit-out is 06:00:00. Expected
	// recorded time: 06:00:00 - 05:45:00 + 05:30:00 = 05:45:00.
	sessions := &fixedSessions{latest: &store.Stint{PitEndTime: "05:30:00"}}
	reader := &scriptReader{snaps: []*telemetry.Snapshot{
		snap(PitInGarage, true, 20700, 0, 0, 0.5), // remaining 05:45:00
		snap(PitOnTrack, false, 20800, 0, 0, 0.5),
		snap(PitComingIn, false, 21500, 0, 0, 0.5),
		snap(PitLeaving, false, 21600, 0, 0, 1.0), // remaining 06:00:00
		snap(PitOnTrack, false, 21700, 0, 0, 1.0),
	}}
	mem := store.NewMemoryStintStore()
	tr := newTestTracker(Config{
		SessionID: testSessionID,
		Drivers:   []string{"Jane Driver"},
		Practice:  true,
	}, reader, mem, sessions, nil)

	ctx := context.Background()
	tr.practiceBaseline = tr.resolvePracticeBaseline(ctx)
	if tr.practiceBaseline != "05:30:00" {
		t.Fatalf("baseline = %q, want 05:30:00", tr.practiceBaseline)
	}

	runTicks(tr, 5)

	stint := mem.Stint(testSessionID + ":05:45:00")
	if stint == nil {
		t.Fatalf("practice stint not recorded; store has %d", mem.Len())
	}
	if stint.PitEndTime != "05:45:00" {
		t.Errorf("pit_end_time = %q, want 05:45:00", stint.PitEndTime)
	}
	if tr.practiceBaseline != "05:45:00" {
		t.Errorf("baseline should advance to 05:45:00, got %q", tr.practiceBaseline)
	}
}

func TestPracticeBaselineFallsBackToEventLength(t *testing.T) {
	sessions := &fixedSessions{event: &store.Event{Length: "24:00:00"}}
	tr := newTestTracker(Config{SessionID: testSessionID, Practice: true}, &scriptReader{}, store.NewMemoryStintStore(), sessions, nil)

	if got := tr.resolvePracticeBaseline(context.Background()); got != "24:00:00" {
		t.Errorf("baseline = %q, want event length", got)
	}
}

func TestPracticeIgnoresPitOutBeforeGarage(t *testing.T) {
	// Before the first garage entry the tracker must ignore pit-outs
	// entirely and ask the player to return to the garage.
	reader := &scriptReader{snaps: []*telemetry.Snapshot{
		snap(PitComingIn, false, 21500, 0, 0, 0.5),
		snap(PitLeaving, false, 21600, 0, 0, 1.0),
		snap(PitOnTrack, false, 21700, 0, 0, 1.0),
	}}
	mem := store.NewMemoryStintStore()
	out := &strings.Builder{}
	tr := newTestTracker(Config{
		SessionID: testSessionID,
		Drivers:   []string{"Jane Driver"},
		Practice:  true,
	}, reader, mem, nil, out)

	runTicks(tr, 3)

	if mem.Len() != 0 {
		t.Errorf("pit-out before garage entry must be ignored, got %d stints", mem.Len())
	}
	if !strings.Contains(out.String(), "__info__:stint_tracker:return_to_garage") {
		t.Errorf("return_to_garage not emitted: %q", out.String())
	}
}

func TestHousekeepingHeartbeatAndCleanup(t *testing.T) {
	reg := &countingRegistry{}
	reader := &scriptReader{}
	tr := New(Config{
		SessionID: testSessionID,
		AgentName: "host-1",
		DryRun:    true,
	}, reader, &staticTires{}, store.NewMemoryStintStore(), reg, nil, NewEmitter(&strings.Builder{}), nil, nil)

	runTicks(tr, 3)

	if reg.heartbeats != 3 {
		t.Errorf("heartbeats = %d, want one per tick", reg.heartbeats)
	}
	// lastCleanup starts at zero, so the first tick cleans; the next
	// two fall inside the 5s interval.
	if reg.cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", reg.cleanups)
	}
}

func TestDryRunSkipsTelemetry(t *testing.T) {
	// A dry-run tracker with an unavailable reader must keep ticking
	// without errors or stints.
	mem := store.NewMemoryStintStore()
	tr := newTestTracker(Config{SessionID: testSessionID, DryRun: true}, &scriptReader{}, mem, nil, nil)

	runTicks(tr, 5)
	if mem.Len() != 0 {
		t.Errorf("dry run recorded %d stints", mem.Len())
	}
}

func TestRemainingTimeClampsNegative(t *testing.T) {
	tr := newTestTracker(Config{SessionID: testSessionID}, &scriptReader{}, store.NewMemoryStintStore(), nil, nil)

	s := snap(PitOnTrack, false, 100, 200, 0, 0.5)
	if got := tr.remainingTime(s, "", ""); got != "00:00:00" {
		t.Errorf("negative remaining time = %q, want 00:00:00", got)
	}

	// Malformed adjustments degrade to the zero clock.
	if got := tr.remainingTime(s, "bogus", ""); got != "00:00:00" {
		t.Errorf("malformed adjustment = %q, want 00:00:00", got)
	}
}

func TestPitStateFromRaw(t *testing.T) {
	tests := []struct {
		raw  int
		want PitState
	}{
		{0, PitOnTrack},
		{1, PitInGarage},
		{2, PitComingIn},
		{4, PitPitting},
		{5, PitLeaving},
		{3, PitOnTrack},  // unused code
		{99, PitOnTrack}, // unknown code
	}
	for _, tt := range tests {
		if got := PitStateFromRaw(tt.raw); got != tt.want {
			t.Errorf("PitStateFromRaw(%d) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestEmitterFormat(t *testing.T) {
	out := &strings.Builder{}
	e := NewEmitter(out)
	e.Event(EventStintCreated)
	e.Info(EventPlayerInGarage)
	e.Error(EventRegistrationConflict)

	want := "__event__:stint_tracker:stint_created\n" +
		"__info__:stint_tracker:player_in_garage\n" +
		"__error__:stint_tracker:registration_conflict\n"
	if out.String() != want {
		t.Errorf("emitter output:\n%q\nwant:\n%q", out.String(), want)
	}
}
