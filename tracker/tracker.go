// Package tracker is the long-running agent that watches the simulator
// for pit activity and records stints.
//
// The tracker is a single cooperative loop at 1 Hz: heartbeat and
// stale-agent cleanup are interleaved with the telemetry poll, and no
// internal concurrency exists on the hot path. Every tick-level error
// is logged and the loop continues; only an agent-name conflict at
// startup is fatal.
package tracker

import (
	"context"
	"errors"
	"math"
	"time"

	"stintflow/logging"
	"stintflow/metrics"
	"stintflow/store"
	"stintflow/telemetry"
	"stintflow/timeutil"
	"stintflow/tires"
)

// DefaultPollInterval is the tracker's polling rate.
const DefaultPollInterval = time.Second

// TireSource produces canonical tire snapshots from wheel telemetry.
// Implemented by tires.Extractor.
type TireSource interface {
	Snapshot(ctx context.Context, wheels [4]telemetry.WheelSnapshot) tires.Snapshot
}

// Registry is the agent-liveness slice of the store.
type Registry interface {
	Heartbeat(ctx context.Context, name string) error
	CleanStaleAgents(ctx context.Context, grace time.Duration) (int64, error)
}

// SessionSource resolves the practice-mode baseline: the latest
// persisted stint, or the session's configured race length.
type SessionSource interface {
	LatestStint(ctx context.Context, sessionID string) (*store.Stint, error)
	Session(ctx context.Context, sessionID string) (*store.Session, error)
	Event(ctx context.Context, eventID string) (*store.Event, error)
}

// Config holds the tracker's run parameters.
type Config struct {
	// SessionID is the session stints are recorded into.
	SessionID string

	// Drivers are the names that identify the player vehicle.
	Drivers []string

	// Practice enables garage-gated tracking with a moving baseline.
	Practice bool

	// AgentName is this tracker's registry identity.
	AgentName string

	// DryRun keeps housekeeping but skips shared-memory access.
	DryRun bool

	// PollInterval defaults to DefaultPollInterval when zero.
	PollInterval time.Duration
}

// Tracker runs the pit state machine over telemetry polls.
type Tracker struct {
	cfg      Config
	reader   telemetry.Reader
	tireSrc  TireSource
	stints   store.StintPersister
	registry Registry
	sessions SessionSource
	events   *Emitter
	log      *logging.Logger
	metrics  *metrics.Metrics

	// Pit-cycle state.
	pitStopInProgress  bool
	numPenalties       int
	garageTimeSnapshot string
	trackingEnabled    bool
	trackedDriver      string
	tiresComingIn      tires.Snapshot
	practiceBaseline   string
	lastCleanup        time.Time
}

// New assembles a tracker. reader and stints are required; registry,
// sessions and metrics may be nil (the respective housekeeping is
// skipped), and a nil emitter writes to stdout.
func New(cfg Config, reader telemetry.Reader, tireSrc TireSource, stints store.StintPersister,
	registry Registry, sessions SessionSource, events *Emitter, log *logging.Logger, m *metrics.Metrics) *Tracker {

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if events == nil {
		events = NewEmitter(nil)
	}
	if log == nil {
		log = logging.Discard()
	}

	return &Tracker{
		cfg:      cfg,
		reader:   reader,
		tireSrc:  tireSrc,
		stints:   stints,
		registry: registry,
		sessions: sessions,
		events:   events,
		log:      log,
		metrics:  m,
		// Race mode tracks from the first tick; practice waits for the
		// garage.
		trackingEnabled: !cfg.Practice,
	}
}

// Run executes the polling loop until the context is cancelled. A
// cancelled context is a clean shutdown, not an error.
func (t *Tracker) Run(ctx context.Context) error {
	if t.cfg.Practice {
		t.practiceBaseline = t.resolvePracticeBaseline(ctx)
		t.log.WithAction("stint_tracker", "track_session").
			Debugf("practice mode baseline time: %q", t.practiceBaseline)
	}

	t.log.WithAction("stint_tracker", "track_session").
		Infof("tracking session %s (dry run: %v)", t.cfg.SessionID, t.cfg.DryRun)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick runs one iteration of the loop: housekeeping, then a telemetry
// poll through the pit state machine. Exported for tests; Run calls it
// once per poll interval.
func (t *Tracker) Tick(ctx context.Context) {
	t.metrics.IncTick()
	t.housekeeping(ctx)

	if t.cfg.DryRun {
		return
	}

	snap, err := t.reader.Read(ctx, t.cfg.Drivers)
	if err != nil {
		switch {
		case errors.Is(err, telemetry.ErrUnavailable):
			t.metrics.IncTelemetryError()
			t.log.WithAction("stint_tracker", "track_session").
				Debugf("telemetry unavailable: %v", err)
		case errors.Is(err, telemetry.ErrPlayerNotFound):
			t.log.WithAction("stint_tracker", "find_player").
				Debugf("no matching driver this tick")
		case errors.Is(err, context.Canceled):
			// shutting down
		default:
			t.log.WithAction("stint_tracker", "track_session").
				Warnf("telemetry read failed: %v", err)
		}
		return
	}

	t.processSnapshot(ctx, snap)
}

// processSnapshot advances the pit state machine for one telemetry
// snapshot.
func (t *Tracker) processSnapshot(ctx context.Context, snap *telemetry.Snapshot) {
	state := PitStateFromRaw(snap.PitState)

	// Capture the incoming tire state on the first coming-in tick of a
	// pit cycle, along with whichever driver is in the car.
	if state == PitComingIn && !t.pitStopInProgress {
		t.log.WithAction("stint_tracker", "track_session").
			Debugf("driver %s entering pits", snap.DriverName)
		t.tiresComingIn = t.tireSrc.Snapshot(ctx, snap.Wheels)
		t.trackedDriver = snap.DriverName
	}

	// Practice sessions may resume from an arbitrary mid-lap state; the
	// user must re-enter the garage once to establish a baseline before
	// pit-outs are honored.
	if t.cfg.Practice && !t.trackingEnabled {
		if snap.InGarageStall {
			t.log.WithAction("stint_tracker", "track_session").
				Info("player in garage - tracking enabled")
			t.trackingEnabled = true
		} else {
			t.events.Info(EventReturnToGarage)
			return
		}
	}

	// Garage dwell: flag the cycle and snapshot the clock for the
	// practice stint-time reconstruction.
	if snap.InGarageStall {
		t.events.Info(EventPlayerInGarage)
		t.pitStopInProgress = true
		t.garageTimeSnapshot = t.remainingTime(snap, "", "")
	}

	// Pit-out: a leave with no garage dwell and no earlier leave in
	// this cycle ends the previous stint.
	if !t.pitStopInProgress && state == PitLeaving {
		t.log.WithAction("stint_tracker", "track_session").
			Infof("driver %s leaving pits - creating stint", t.trackedDriver)
		t.pitStopInProgress = true

		var remaining string
		if t.cfg.Practice && t.practiceBaseline != "" {
			remaining = t.remainingTime(snap, t.garageTimeSnapshot, t.practiceBaseline)
			t.log.WithAction("stint_tracker", "track_session").
				Debugf("practice stint time: %s (baseline: %s, garage: %s)",
					remaining, t.practiceBaseline, t.garageTimeSnapshot)
		} else {
			remaining = t.remainingTime(snap, "", "")
		}

		t.recordStint(ctx, snap, remaining)
	}

	// Back on track: reset the cycle and re-baseline the penalty count.
	if state == PitOnTrack && t.pitStopInProgress {
		t.log.WithAction("stint_tracker", "track_session").
			Debugf("driver %s back on track", t.trackedDriver)
		t.numPenalties = snap.NumPenalties
		t.pitStopInProgress = false
	}
}

// recordStint assembles and persists the stint document for a pit-out.
func (t *Tracker) recordStint(ctx context.Context, snap *telemetry.Snapshot, remaining string) {
	// Serving a penalty uses the same pit mechanics as a service stop;
	// the pending-penalty counter decreases when one is served, and
	// those cycles must not produce stints.
	if t.numPenalties > snap.NumPenalties {
		t.log.WithAction("stint_tracker", "create_stint").
			Info("penalty served - skipping stint creation")
		return
	}

	driver := t.trackedDriver
	if driver == "" {
		driver = snap.DriverName
	}

	outgoing := t.tireSrc.Snapshot(ctx, snap.Wheels)
	stint, err := store.NewOfficialStint(t.cfg.SessionID, driver, remaining, t.tiresComingIn, outgoing)
	if err != nil {
		t.log.WithAction("stint_tracker", "create_stint").
			Errorf("invalid stint: %v", err)
		return
	}

	id, inserted, err := t.stints.UpsertOfficial(ctx, stint)
	if err != nil || id == "" {
		// Logged by the persister; the next pit cycle tries again.
		return
	}

	if inserted {
		t.metrics.IncStintCreated()
		t.log.WithAction("stint_tracker", "create_stint").
			Infof("created stint %s for driver %s", id, driver)
	} else {
		t.metrics.IncDedupHit()
		t.log.WithAction("stint_tracker", "create_stint").
			Infof("deduped stint %s for driver %s", id, driver)
	}
	t.events.Event(EventStintCreated)

	if t.cfg.Practice {
		t.practiceBaseline = remaining
		t.log.WithAction("stint_tracker", "track_session").
			Debugf("updated practice baseline to %s", t.practiceBaseline)
	}
}

// remainingTime renders the session's remaining time as HH:MM:SS, with
// the optional practice adjustments: startTime is subtracted (time
// spent in the garage), offsetTime is added back (the moving baseline).
// Malformed adjustments degrade to the zero clock.
func (t *Tracker) remainingTime(snap *telemetry.Snapshot, startTime, offsetTime string) string {
	base := int(math.Ceil(snap.EndET - snap.CurrentET))

	adjusted, err := timeutil.AdjustSeconds(base, startTime, offsetTime)
	if err != nil {
		t.log.WithAction("stint_tracker", "calculate_remaining_time").
			Warnf("malformed time adjustment: %v", err)
		return timeutil.ZeroTime
	}
	return timeutil.FormatHHMMSS(adjusted)
}

// housekeeping updates the agent heartbeat every tick and runs the
// stale-agent cleanup at most every CleanupInterval.
func (t *Tracker) housekeeping(ctx context.Context) {
	if t.registry == nil || t.cfg.AgentName == "" {
		return
	}

	if err := t.registry.Heartbeat(ctx, t.cfg.AgentName); err != nil {
		t.log.WithAction("stint_tracker", "heartbeat_update").
			Debugf("failed to update heartbeat: %v", err)
	} else {
		t.metrics.IncHeartbeat()
	}

	if time.Since(t.lastCleanup) < store.CleanupInterval {
		return
	}
	t.lastCleanup = time.Now()

	removed, err := t.registry.CleanStaleAgents(ctx, store.StaleAgentGrace)
	if err != nil {
		t.log.WithAction("stint_tracker", "cleanup_stale_agents").
			Debugf("stale-agent cleanup failed: %v", err)
		return
	}
	t.metrics.AddStaleAgentsRemoved(removed)
}

// resolvePracticeBaseline prefers the latest persisted stint for the
// session, falling back to the event's configured race length. An empty
// result disables the baseline adjustments until the first recorded
// pit-out.
func (t *Tracker) resolvePracticeBaseline(ctx context.Context) string {
	if t.sessions == nil {
		return ""
	}

	latest, err := t.sessions.LatestStint(ctx, t.cfg.SessionID)
	if err == nil && latest != nil {
		return latest.PitEndTime
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		t.log.WithAction("stint_tracker", "get_practice_baseline_time").
			Warnf("failed to fetch latest stint: %v", err)
	}

	session, err := t.sessions.Session(ctx, t.cfg.SessionID)
	if err != nil {
		t.log.WithAction("stint_tracker", "get_practice_baseline_time").
			Warnf("failed to load session %s: %v", t.cfg.SessionID, err)
		return ""
	}

	event, err := t.sessions.Event(ctx, session.RaceID.Hex())
	if err != nil {
		t.log.WithAction("stint_tracker", "get_practice_baseline_time").
			Warnf("failed to load event for session %s: %v", t.cfg.SessionID, err)
		return ""
	}
	return event.Length
}
