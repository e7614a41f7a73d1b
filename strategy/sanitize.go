package strategy

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"stintflow/store"
	"stintflow/timeutil"
)

// BuildStrategyDocument assembles a persistable strategy from a
// projection. The caller owns naming and the completed-row lock.
func BuildStrategyDocument(sessionID primitive.ObjectID, name string, p Projection, lockCompleted bool) *store.Strategy {
	return &store.Strategy{
		SessionID:            sessionID,
		Name:                 name,
		ModelData:            SanitizeRows(p.Rows, p.Tires),
		MeanStintTimeSeconds: int(p.Mean.Seconds()),
		LockCompletedStints:  lockCompleted,
	}
}

// SanitizeRows converts in-memory table state into the persisted
// model_data form: integer stint seconds, boolean status, zero-padded
// times. Rows without tire data inherit the last seen tire set so the
// persisted sequences stay parallel.
func SanitizeRows(rows []Row, tireData []store.TireData) store.ModelData {
	model := store.ModelData{
		Rows:  make([]store.StrategyRow, 0, len(rows)),
		Tires: make([]store.TireData, 0, len(rows)),
	}

	for _, row := range rows {
		model.Rows = append(model.Rows, store.StrategyRow{
			StintType:        row.StintType,
			Name:             row.Driver,
			Status:           row.Completed(),
			PitEndTime:       normalizeClock(row.PitEndTime),
			TiresChanged:     row.TiresChanged,
			TiresLeft:        row.TiresLeft,
			StintTimeSeconds: int(row.StintTime.Seconds()),
		})
	}

	lastWithTires := 0
	for i := range rows {
		if i < len(tireData) && tireData[i].TiresChanged != nil {
			model.Tires = append(model.Tires, tireData[i])
			lastWithTires = i
			continue
		}
		if lastWithTires < len(tireData) {
			model.Tires = append(model.Tires, tireData[lastWithTires])
		} else {
			model.Tires = append(model.Tires, DefaultTireData(false))
		}
	}

	return model
}

// RowsFromDocs converts persisted strategy rows back into table rows.
func RowsFromDocs(docs []store.StrategyRow) []Row {
	rows := make([]Row, 0, len(docs))
	for _, doc := range docs {
		status := StatusPending
		if doc.Status {
			status = StatusCompleted
		}
		rows = append(rows, Row{
			StintType:    doc.StintType,
			Driver:       doc.Name,
			Status:       status,
			PitEndTime:   doc.PitEndTime,
			TiresChanged: doc.TiresChanged,
			TiresLeft:    doc.TiresLeft,
			StintTime:    time.Duration(doc.StintTimeSeconds) * time.Second,
		})
	}
	return rows
}

// normalizeClock re-renders a clock value zero-padded, tolerating
// shortened forms like "1:23". Unparseable values pass through
// untouched; they were display strings to begin with.
func normalizeClock(s string) string {
	parts := strings.Split(s, ":")
	for len(parts) < 3 {
		parts = append([]string{"0"}, parts...)
	}
	if secs, err := timeutil.ParseHHMMSS(strings.Join(parts, ":")); err == nil {
		return timeutil.FormatHHMMSS(secs)
	}
	return s
}
