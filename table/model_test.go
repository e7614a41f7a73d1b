package table

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"stintflow/store"
	"stintflow/strategy"
)

// fakeWriter records persistence calls without a live store.
type fakeWriter struct {
	deleted      []string
	tireUpdates  map[string]store.TireData
	excludedSets map[string]bool
	failAll      bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		tireUpdates:  make(map[string]store.TireData),
		excludedSets: make(map[string]bool),
	}
}

func (f *fakeWriter) DeleteStint(ctx context.Context, id string) error {
	if f.failAll {
		return context.DeadlineExceeded
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeWriter) UpdateStintTireData(ctx context.Context, id string, td store.TireData) error {
	if f.failAll {
		return context.DeadlineExceeded
	}
	f.tireUpdates[id] = td
	return nil
}

func (f *fakeWriter) SetStintExcluded(ctx context.Context, id string, excluded bool) error {
	if f.failAll {
		return context.DeadlineExceeded
	}
	f.excludedSets[id] = excluded
	return nil
}

func sessionStints() []store.Stint {
	mk := func(pit string) store.Stint {
		return store.Stint{
			ID:               primitive.NewObjectID(),
			Driver:           "Jane Driver",
			PitEndTime:       pit,
			PitEndTimeBucket: pit,
			Official:         true,
			TireData:         strategy.DefaultTireData(true),
		}
	}
	return []store.Stint{mk("23:00:00"), mk("22:00:00"), mk("21:00:00")}
}

func loadedModel(t *testing.T, w StintWriter) *Model {
	t.Helper()
	m := NewModel(32, "24:00:00", w, nil)
	m.LoadStints(sessionStints())
	if m.RowCount() < 3 {
		t.Fatalf("expected at least 3 rows after load, got %d", m.RowCount())
	}
	return m
}

func TestLoadStintsBuildsProjection(t *testing.T) {
	m := loadedModel(t, nil)

	if m.Mean() != time.Hour {
		t.Errorf("mean = %v, want 1h", m.Mean())
	}
	if got := m.ValueAt(0, ColumnPitEndTime); got != "23:00:00" {
		t.Errorf("row 0 pit = %q", got)
	}
	if got := m.ValueAt(0, ColumnStatus); got != "Completed" {
		t.Errorf("row 0 status = %q", got)
	}
	if got := m.ValueAt(3, ColumnStatus); got != "Pending" {
		t.Errorf("row 3 status = %q", got)
	}
	if got := m.ValueAt(0, ColumnStintTime); got != "01:00:00" {
		t.Errorf("row 0 stint_time = %q", got)
	}
	// Completed rows carry their document ids; pending rows do not.
	if m.MetaAt(0).ID == "" {
		t.Error("completed row missing document id")
	}
	if m.MetaAt(3).ID != "" {
		t.Error("pending row should not carry a document id")
	}
}

func TestSetExcludedRecomputes(t *testing.T) {
	w := newFakeWriter()
	m := loadedModel(t, w)
	rowsBefore := m.RowCount()
	pitBefore := m.ValueAt(1, ColumnPitEndTime)
	id := m.MetaAt(1).ID

	if err := m.SetExcluded(context.Background(), 1, true); err != nil {
		t.Fatalf("SetExcluded: %v", err)
	}

	if !m.RowTinted(1) {
		t.Error("excluded row must be tinted")
	}
	if got := m.ValueAt(1, ColumnPitEndTime); got != pitBefore {
		t.Error("completed pit time changed by exclusion")
	}
	if excluded, ok := w.excludedSets[id]; !ok || !excluded {
		t.Error("excluded flag not persisted")
	}
	// All three durations are equal here, so the mean is unchanged but
	// the pending tail is regenerated to the same shape.
	if m.Mean() != time.Hour {
		t.Errorf("mean = %v", m.Mean())
	}
	if m.RowCount() != rowsBefore {
		t.Errorf("row count changed: %d -> %d", rowsBefore, m.RowCount())
	}
}

func TestSetExcludedChangesMean(t *testing.T) {
	mk := func(pit string) store.Stint {
		return store.Stint{
			ID:               primitive.NewObjectID(),
			Driver:           "Jane Driver",
			PitEndTime:       pit,
			PitEndTimeBucket: pit,
			TireData:         strategy.DefaultTireData(true),
		}
	}
	// Durations 1h, 1h30m, 1h.
	m := NewModel(32, "24:00:00", newFakeWriter(), nil)
	m.LoadStints([]store.Stint{mk("23:00:00"), mk("21:30:00"), mk("20:30:00")})

	if m.Mean() != 70*time.Minute {
		t.Fatalf("mean = %v, want 70m", m.Mean())
	}
	if err := m.SetExcluded(context.Background(), 1, true); err != nil {
		t.Fatal(err)
	}
	if m.Mean() != time.Hour {
		t.Errorf("mean after exclusion = %v, want 1h", m.Mean())
	}
}

func TestDeleteRowPersistsAndRecomputes(t *testing.T) {
	w := newFakeWriter()
	m := loadedModel(t, w)
	id := m.MetaAt(1).ID

	if err := m.DeleteRow(context.Background(), 1); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}

	if len(w.deleted) != 1 || w.deleted[0] != id {
		t.Errorf("deleted ids = %v, want [%s]", w.deleted, id)
	}
	// Two completed rows remain at the front.
	if m.Row(0).PitEndTime != "23:00:00" || m.Row(1).PitEndTime != "21:00:00" {
		t.Errorf("unexpected completed rows after delete: %q, %q",
			m.Row(0).PitEndTime, m.Row(1).PitEndTime)
	}
	// Sequences stay parallel.
	if m.RowCount() != len(m.meta) || m.RowCount() != len(m.tireData) {
		t.Errorf("sequences out of step: rows=%d meta=%d tires=%d",
			m.RowCount(), len(m.meta), len(m.tireData))
	}
}

func TestSetTiresRecomputesInventory(t *testing.T) {
	w := newFakeWriter()
	m := loadedModel(t, w)
	id := m.MetaAt(1).ID

	// Row 1 had a full medium change; the user corrects it to no change.
	if err := m.SetTires(context.Background(), 1, strategy.DefaultTireData(false)); err != nil {
		t.Fatalf("SetTires: %v", err)
	}

	if got := m.Row(1).TiresChanged; got != 0 {
		t.Errorf("tires_changed = %d, want 0", got)
	}
	// Inventory recomputed from row 0: 32-4 = 28 for row 0, unchanged
	// at 28 for row 1, 24 for row 2.
	if m.Row(1).TiresLeft != 28 || m.Row(2).TiresLeft != 24 {
		t.Errorf("tires_left = %d, %d; want 28, 24", m.Row(1).TiresLeft, m.Row(2).TiresLeft)
	}
	if _, ok := w.tireUpdates[id]; !ok {
		t.Error("tire payload not persisted")
	}
	// Rows 1 and 2 now share a tire set: row 1 starts a Double run.
	if got := m.Row(1).StintType; got != "Double" {
		t.Errorf("row 1 stint_type = %q, want Double", got)
	}
	if got := m.Row(2).StintType; got != "" {
		t.Errorf("row 2 stint_type = %q, want empty", got)
	}
}

func TestSetStintTypeMovesChange(t *testing.T) {
	w := newFakeWriter()
	m := loadedModel(t, w)

	if err := m.SetStintType(context.Background(), 0, "Double"); err != nil {
		t.Fatalf("SetStintType: %v", err)
	}

	if m.Row(0).TiresChanged != 0 {
		t.Errorf("row 0 should lose its change, got %d", m.Row(0).TiresChanged)
	}
	if m.Row(1).TiresChanged != strategy.FullTireSet {
		t.Errorf("row 1 should carry the moved change, got %d", m.Row(1).TiresChanged)
	}
	if m.Row(0).StintType != "Double" {
		t.Errorf("row 0 stint_type = %q", m.Row(0).StintType)
	}
	if len(w.tireUpdates) == 0 {
		t.Error("edited tire payloads not persisted")
	}
}

func TestStrategyBackedModelKeepsPending(t *testing.T) {
	base := loadedModel(t, nil)
	model := base.ModelData()

	s := &store.Strategy{
		ModelData:            model,
		MeanStintTimeSeconds: 3600,
	}

	m := NewModel(32, "24:00:00", nil, nil)
	m.LoadStrategy(s)
	rowsBefore := m.RowCount()

	// Excluding a completed row on a strategy refreshes the mean but
	// must not regenerate the authoritative pending rows.
	if err := m.SetExcluded(context.Background(), 0, true); err != nil {
		t.Fatal(err)
	}
	if m.RowCount() != rowsBefore {
		t.Errorf("strategy pending rows regenerated: %d -> %d", rowsBefore, m.RowCount())
	}
}

func TestSetMeanRealigns(t *testing.T) {
	m := loadedModel(t, nil)
	before := m.RowCount()

	m.SetMean(30 * time.Minute)

	if m.RowCount() <= before {
		t.Errorf("halving the mean should grow the tail: %d -> %d", before, m.RowCount())
	}
	last := m.Row(m.RowCount() - 1)
	if last.PitEndTime != "00:00:00" {
		t.Errorf("tail must end at midnight, got %q", last.PitEndTime)
	}
	for i := 3; i < m.RowCount()-1; i++ {
		if m.Row(i).StintTime != 30*time.Minute {
			t.Errorf("pending row %d stint_time = %v", i, m.Row(i).StintTime)
		}
	}
}

func TestModelDataRoundTrip(t *testing.T) {
	m := loadedModel(t, nil)
	model := m.ModelData()

	if len(model.Rows) != m.RowCount() || len(model.Tires) != m.RowCount() {
		t.Fatalf("model data lengths: rows=%d tires=%d want %d",
			len(model.Rows), len(model.Tires), m.RowCount())
	}

	back := strategy.RowsFromDocs(model.Rows)
	for i, row := range back {
		if row.PitEndTime != m.Row(i).PitEndTime || row.Status != m.Row(i).Status {
			t.Errorf("row %d changed in round trip: %+v vs %+v", i, row, m.Row(i))
		}
	}
}
