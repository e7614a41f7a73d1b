package strategy

import (
	"stintflow/store"
	"stintflow/tires"
)

// RecalculateStintTypes relabels every row from its tire changes. A run
// is a maximal sequence of rows sharing one tire set: it starts after a
// change and ends at the row that carries the next change. The first
// row of each run gets the run-length label, every other row of the run
// is blank.
func RecalculateStintTypes(rows []Row) {
	startOfRun := 0

	for i := range rows {
		length := i - startOfRun + 1

		if rows[i].TiresChanged > 0 {
			if startOfRun == i {
				rows[i].StintType = StintTypeName(1)
			} else {
				rows[startOfRun].StintType = StintTypeName(length)
				rows[i].StintType = ""
			}
			startOfRun = i + 1
			continue
		}

		if length > 1 {
			// Run still open; keep the first row's label current.
			rows[startOfRun].StintType = StintTypeName(length)
			rows[i].StintType = ""
		} else {
			rows[i].StintType = StintTypeName(1)
		}
	}
}

// MoveTireChange redistributes tire changes after a stint-type edit.
//
// Changing a label extends or shrinks the surrounding run; the tire
// change that closed the old run moves to the new end of the run, and
// changes after the run shift by the length delta. Every annotation is
// cleared before remapping, so the forced change at the new run end can
// never duplicate an existing one.
//
// The caller is expected to follow up with RecalculateTiresLeft and
// RecalculateStintTypes.
func MoveTireChange(rows []Row, tireData []store.TireData, row int, oldType string) {
	if row < 0 || row >= len(rows) {
		return
	}

	oldLen := StintLength(oldType)
	newLen := StintLength(rows[row].StintType)
	delta := newLen - oldLen

	type changeRecord struct {
		row   int
		value int
		tires store.TireData
	}

	var existing []changeRecord
	for i := range rows {
		if rows[i].TiresChanged > 0 {
			existing = append(existing, changeRecord{row: i, value: rows[i].TiresChanged, tires: tireData[i]})
		}
	}

	for i := range rows {
		rows[i].TiresChanged = NoTireChange
		tireData[i] = DefaultTireData(false)
	}

	remapped := make(map[int]changeRecord)
	for _, rec := range existing {
		newRow := rec.row
		switch {
		case rec.row >= row && rec.row < row+oldLen:
			// Change inside the edited run moves to the run's new end.
			newRow = row + newLen - 1
			if newRow > len(rows)-1 {
				newRow = len(rows) - 1
			}
		case rec.row >= row+oldLen:
			newRow = rec.row + delta
		}
		if newRow >= 0 && newRow < len(rows) {
			remapped[newRow] = rec
		}
	}

	for newRow, rec := range remapped {
		rows[newRow].TiresChanged = rec.value
		tireData[newRow] = rec.tires
	}

	forced := row + newLen - 1
	if forced > len(rows)-1 {
		forced = len(rows) - 1
	}
	rows[forced].TiresChanged = FullTireSet
	tireData[forced] = DefaultTireData(true)
}

// RecalculateTiresLeft rebuilds the inventory column from row zero,
// subtracting the medium changes recorded in each row's tire data.
func RecalculateTiresLeft(rows []Row, tireData []store.TireData, totalTires int) {
	tiresLeft := totalTires
	for i := range rows {
		if i < len(tireData) {
			_, medium := CountTireChanges(tireData[i])
			tiresLeft -= medium
		}
		rows[i].TiresLeft = tiresLeft
	}
}

// DefaultTireData is the synthetic tire payload attached to projected
// rows and to rows whose real payload was cleared by an edit. All four
// positions run mediums; outgoing wear reads as fresh when the row
// represents a change.
func DefaultTireData(changed bool) store.TireData {
	incomingWear := map[tires.Position]float64{
		tires.FrontLeft:  0.97,
		tires.FrontRight: 0.95,
		tires.RearLeft:   0.94,
		tires.RearRight:  0.93,
	}

	outgoingWear := 0.95
	if changed {
		outgoingWear = 1.0
	}

	td := store.TireData{TiresChanged: make(map[tires.Position]bool, len(tires.Positions))}
	for _, pos := range tires.Positions {
		*td.Position(pos) = store.TireChange{
			Incoming: store.WheelRecord{Wear: incomingWear[pos], Compound: tires.CompoundMedium},
			Outgoing: store.WheelRecord{Wear: outgoingWear, Compound: tires.CompoundMedium},
		}
		td.TiresChanged[pos] = changed
	}
	return td
}
