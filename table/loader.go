package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stintflow/store"
	"stintflow/strategy"
)

// ErrConnectionFailed marks a load that never reached the document
// store. The UI routes this case to the settings view instead of
// showing an empty table.
var ErrConnectionFailed = errors.New("document store connection failed")

// Source is the read-side of the store the loader needs.
type Source interface {
	Ping(ctx context.Context) error
	Event(ctx context.Context, eventID string) (*store.Event, error)
	Events(ctx context.Context) ([]store.Event, error)
	Sessions(ctx context.Context, eventID string) ([]store.Session, error)
	Stints(ctx context.Context, sessionID string) ([]store.Stint, error)
}

// LoadResult is the immutable tuple a background load delivers: the
// fully-constructed table state plus the navigation data, or an error.
type LoadResult struct {
	Rows     []strategy.Row
	Tires    []store.TireData
	Meta     []Meta
	Mean     time.Duration
	Events   []store.Event
	Sessions []store.Session
	Err      error
}

// LoadAsync runs Load in a worker goroutine and delivers exactly one
// result on the returned channel. The caller applies the result on its
// own goroutine; the worker never mutates model state.
func LoadAsync(ctx context.Context, src Source, eventID, sessionID string) <-chan LoadResult {
	results := make(chan LoadResult, 1)
	go func() {
		defer close(results)
		results <- Load(ctx, src, eventID, sessionID)
	}()
	return results
}

// Load fetches everything the initial view needs: connectivity check,
// navigation data (events plus the sessions of the first event), and
// the projected table for the selected session.
func Load(ctx context.Context, src Source, eventID, sessionID string) LoadResult {
	if err := src.Ping(ctx); err != nil {
		return LoadResult{Err: fmt.Errorf("%w: %v", ErrConnectionFailed, err)}
	}

	var result LoadResult

	events, err := src.Events(ctx)
	if err == nil {
		result.Events = events
		if len(events) > 0 {
			if sessions, err := src.Sessions(ctx, events[0].ID.Hex()); err == nil {
				result.Sessions = sessions
			}
		}
	}

	if eventID == "" || sessionID == "" {
		// Nothing selected yet; navigation data alone is a valid result.
		return result
	}

	event, err := src.Event(ctx, eventID)
	if err != nil {
		result.Err = fmt.Errorf("load event %s: %w", eventID, err)
		return result
	}

	stints, err := src.Stints(ctx, sessionID)
	if err != nil {
		result.Err = fmt.Errorf("load stints for session %s: %w", sessionID, err)
		return result
	}

	ordered := strategy.SortStints(stints)
	projection := strategy.BuildTable(ordered, event.Tires, event.Length)

	meta := make([]Meta, len(projection.Rows))
	for i, stint := range ordered {
		meta[i] = Meta{ID: stint.ID.Hex(), Excluded: stint.Excluded}
	}

	result.Rows = projection.Rows
	result.Tires = projection.Tires
	result.Meta = meta
	result.Mean = projection.Mean
	return result
}

// Apply installs a load result into a model. Call from the goroutine
// that owns the model.
func (m *Model) Apply(result LoadResult) {
	m.rows = result.Rows
	m.tireData = result.Tires
	m.meta = result.Meta
	m.mean = result.Mean
	m.strategyBacked = false
}
