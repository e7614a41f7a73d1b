// Package table is the in-memory row model consumed by every strategy
// view.
//
// The model owns three parallel sequences: display rows, per-row tire
// payloads and per-row metadata (document id, excluded flag). Edits are
// routed through the strategy engine so the row invariants (run labels,
// inventory, completed-before-pending ordering) always hold after a
// mutation. All model mutation is expected to happen on a single
// goroutine; background loads deliver immutable results instead of
// touching the model directly.
package table

import (
	"context"
	"fmt"
	"time"

	"stintflow/logging"
	"stintflow/store"
	"stintflow/strategy"
	"stintflow/timeutil"
)

// Column indexes the display columns of the stint table.
type Column int

// Display columns, in table order.
const (
	ColumnStintType Column = iota
	ColumnDriver
	ColumnStatus
	ColumnPitEndTime
	ColumnTiresChanged
	ColumnTiresLeft
	ColumnStintTime
)

// ColumnCount is the number of display columns.
const ColumnCount = 7

// Meta is the per-row document metadata: the backing stint id (empty
// for pending rows) and the excluded flag.
type Meta struct {
	ID       string
	Excluded bool
}

// StintWriter is the slice of the store the model needs to persist row
// edits. A nil writer turns the model read-only with respect to the
// store; in-memory state still updates (strategy tabs persist through
// the whole model document instead).
type StintWriter interface {
	DeleteStint(ctx context.Context, stintID string) error
	UpdateStintTireData(ctx context.Context, stintID string, td store.TireData) error
	SetStintExcluded(ctx context.Context, stintID string, excluded bool) error
}

// Model holds the table state for one session or strategy.
type Model struct {
	rows     []strategy.Row
	tireData []store.TireData
	meta     []Meta
	mean     time.Duration

	totalTires int
	raceLength string

	// strategyBacked marks a model loaded from a strategy document,
	// whose pending rows are authoritative and must not be regenerated
	// on mean updates.
	strategyBacked bool

	writer StintWriter
	log    *logging.Logger
}

// NewModel creates an empty model for an event with the given tire
// allocation and race length.
func NewModel(totalTires int, raceLength string, writer StintWriter, log *logging.Logger) *Model {
	if log == nil {
		log = logging.Discard()
	}
	return &Model{
		totalTires: totalTires,
		raceLength: raceLength,
		writer:     writer,
		log:        log,
	}
}

// LoadStints replaces the model state with a projection built from the
// session's stints.
func (m *Model) LoadStints(stints []store.Stint) {
	ordered := strategy.SortStints(stints)
	projection := strategy.BuildTable(ordered, m.totalTires, m.raceLength)

	meta := make([]Meta, len(projection.Rows))
	for i, stint := range ordered {
		meta[i] = Meta{ID: stint.ID.Hex(), Excluded: stint.Excluded}
	}

	m.rows = projection.Rows
	m.tireData = projection.Tires
	m.meta = meta
	m.mean = projection.Mean
	m.strategyBacked = false
}

// LoadStrategy replaces the model state with a strategy document's
// persisted rows. Pending rows of a strategy are authoritative.
func (m *Model) LoadStrategy(s *store.Strategy) {
	m.rows = strategy.RowsFromDocs(s.ModelData.Rows)
	m.tireData = append([]store.TireData(nil), s.ModelData.Tires...)
	for len(m.tireData) < len(m.rows) {
		m.tireData = append(m.tireData, strategy.DefaultTireData(false))
	}
	m.meta = make([]Meta, len(m.rows))
	m.mean = time.Duration(s.MeanStintTimeSeconds) * time.Second
	m.strategyBacked = true
}

// RowCount returns the number of rows.
func (m *Model) RowCount() int { return len(m.rows) }

// Row returns a copy of the row at index i.
func (m *Model) Row(i int) strategy.Row {
	return m.rows[i]
}

// Rows returns a copy of all rows.
func (m *Model) Rows() []strategy.Row {
	out := make([]strategy.Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// Mean returns the current mean stint time.
func (m *Model) Mean() time.Duration { return m.mean }

// ValueAt renders the cell at (row, col) for display.
func (m *Model) ValueAt(row int, col Column) string {
	if row < 0 || row >= len(m.rows) {
		return ""
	}
	r := m.rows[row]
	switch col {
	case ColumnStintType:
		return r.StintType
	case ColumnDriver:
		return r.Driver
	case ColumnStatus:
		return string(r.Status)
	case ColumnPitEndTime:
		return r.PitEndTime
	case ColumnTiresChanged:
		return fmt.Sprintf("%d", r.TiresChanged)
	case ColumnTiresLeft:
		return fmt.Sprintf("%d", r.TiresLeft)
	case ColumnStintTime:
		return timeutil.FormatDuration(r.StintTime)
	}
	return ""
}

// TireAt returns the tire payload of a row.
func (m *Model) TireAt(row int) store.TireData {
	if row < 0 || row >= len(m.tireData) {
		return store.TireData{}
	}
	return m.tireData[row]
}

// MetaAt returns the metadata of a row.
func (m *Model) MetaAt(row int) Meta {
	if row < 0 || row >= len(m.meta) {
		return Meta{}
	}
	return m.meta[row]
}

// RowTinted reports whether the row should be painted as excluded.
func (m *Model) RowTinted(row int) bool {
	return m.MetaAt(row).Excluded
}

// ModelData serializes the current state for persistence on a strategy
// document.
func (m *Model) ModelData() store.ModelData {
	return strategy.SanitizeRows(m.rows, m.tireData)
}

// SetStintType applies a stint-type edit: the surrounding run extends
// or shrinks, the tire change moves to the new run end, and inventory
// and labels are recomputed. Completed rows backed by documents have
// their tire payloads persisted.
func (m *Model) SetStintType(ctx context.Context, row int, newType string) error {
	if row < 0 || row >= len(m.rows) {
		return fmt.Errorf("row %d out of range", row)
	}

	oldType := m.rows[row].StintType
	if oldType == newType {
		return nil
	}

	m.rows[row].StintType = newType
	strategy.MoveTireChange(m.rows, m.tireData, row, oldType)
	strategy.RecalculateTiresLeft(m.rows, m.tireData, m.totalTires)
	strategy.RecalculateStintTypes(m.rows)

	return m.persistTireData(ctx)
}

// SetTires replaces a row's tire payload from the per-position editor,
// recomputing the change count, the inventory from row zero, and the
// run labels.
func (m *Model) SetTires(ctx context.Context, row int, td store.TireData) error {
	if row < 0 || row >= len(m.rows) {
		return fmt.Errorf("row %d out of range", row)
	}

	m.tireData[row] = td
	changed := 0
	for _, flag := range td.TiresChanged {
		if flag {
			changed++
		}
	}
	m.rows[row].TiresChanged = changed

	strategy.RecalculateTiresLeft(m.rows, m.tireData, m.totalTires)
	strategy.RecalculateStintTypes(m.rows)

	if id := m.MetaAt(row).ID; id != "" && m.writer != nil {
		if err := m.writer.UpdateStintTireData(ctx, id, td); err != nil {
			m.log.WithAction("table_model", "set_tires").
				Errorf("failed to persist tire data for %s: %v", id, err)
			return err
		}
	}
	return nil
}

// SetExcluded flips a row's excluded flag, persists it, and recomputes
// the mean and the pending tail. Completed pit times are untouched; the
// row stays in the table and is reported tinted.
func (m *Model) SetExcluded(ctx context.Context, row int, excluded bool) error {
	if row < 0 || row >= len(m.meta) {
		return fmt.Errorf("row %d out of range", row)
	}

	m.meta[row].Excluded = excluded

	if id := m.meta[row].ID; id != "" && m.writer != nil {
		if err := m.writer.SetStintExcluded(ctx, id, excluded); err != nil {
			m.log.WithAction("table_model", "set_excluded").
				Errorf("failed to persist excluded flag for %s: %v", id, err)
			return err
		}
	}

	m.UpdateMean()
	return nil
}

// DeleteRow removes a row from all three sequences, deletes the backing
// document, and recomputes the mean and pending tail.
func (m *Model) DeleteRow(ctx context.Context, row int) error {
	if row < 0 || row >= len(m.rows) {
		return fmt.Errorf("row %d out of range", row)
	}

	if id := m.MetaAt(row).ID; id != "" && m.writer != nil {
		if err := m.writer.DeleteStint(ctx, id); err != nil {
			// The row is still removed from the view; the document
			// will resurface on the next full reload if it survived.
			m.log.WithAction("table_model", "delete_stint").
				Errorf("failed to delete stint %s: %v", id, err)
		}
	}

	m.rows = append(m.rows[:row], m.rows[row+1:]...)
	if row < len(m.tireData) {
		m.tireData = append(m.tireData[:row], m.tireData[row+1:]...)
	}
	if row < len(m.meta) {
		m.meta = append(m.meta[:row], m.meta[row+1:]...)
	}

	m.UpdateMean()
	return nil
}

// UpdateMean recomputes the mean from the non-excluded completed rows
// and regenerates the pending tail. Strategy-backed models keep their
// pending rows; only the mean is refreshed.
func (m *Model) UpdateMean() {
	completed := m.completedCount()
	if completed == 0 {
		m.mean = 0
		return
	}

	durations := make([]time.Duration, completed)
	excluded := make([]bool, completed)
	for i := 0; i < completed; i++ {
		durations[i] = m.rows[i].StintTime
		excluded[i] = m.MetaAt(i).Excluded
	}
	m.mean = strategy.MeanStintTime(durations, excluded)

	if m.strategyBacked {
		return
	}

	rows, tireData := strategy.Realign(m.rows[:completed], m.tireData[:completed], m.mean)
	m.rows = rows
	m.tireData = tireData

	meta := make([]Meta, len(rows))
	copy(meta, m.meta[:completed])
	m.meta = meta
}

// SetMean overrides the mean stint time (a user edit on a strategy) and
// realigns the pending tail against it.
func (m *Model) SetMean(mean time.Duration) {
	m.mean = mean
	completed := m.completedCount()

	rows, tireData := strategy.Realign(m.rows[:completed], m.tireData[:completed], mean)
	m.rows = rows
	m.tireData = tireData

	meta := make([]Meta, len(rows))
	copy(meta, m.meta[:completed])
	m.meta = meta
}

// completedCount counts the leading completed rows.
func (m *Model) completedCount() int {
	for i, row := range m.rows {
		if !row.Completed() {
			return i
		}
	}
	return len(m.rows)
}

// persistTireData writes every document-backed row's tire payload. Run
// after edits that may move tire changes across rows.
func (m *Model) persistTireData(ctx context.Context) error {
	if m.writer == nil {
		return nil
	}

	var firstErr error
	for i := range m.rows {
		id := m.MetaAt(i).ID
		if id == "" {
			continue
		}
		if err := m.writer.UpdateStintTireData(ctx, id, m.tireData[i]); err != nil {
			m.log.WithAction("table_model", "persist_tire_data").
				Errorf("failed to persist tire data for %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
