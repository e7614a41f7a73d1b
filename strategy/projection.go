package strategy

import (
	"sort"
	"strings"
	"time"

	"stintflow/store"
	"stintflow/timeutil"
)

// BuildTable converts a session's stints into the full projected
// timeline: completed rows in race order, the mean stint time over the
// non-excluded completed durations, and a pending tail generated from
// the mean down to the start of the race.
//
// totalTires is the team's medium-set allocation at race start;
// raceStart is the race length as a time-of-day clock value (the
// remaining-time display counts down from it).
func BuildTable(stints []store.Stint, totalTires int, raceStart string) Projection {
	ordered := SortStints(stints)

	rows, durations, excluded := completedRows(ordered, totalTires, raceStart)
	mean := MeanStintTime(durations, excluded)

	tireData := make([]store.TireData, len(rows))
	for i, stint := range ordered {
		tireData[i] = stint.TireData
	}

	if len(rows) > 0 {
		last := rows[len(rows)-1]
		pending := GeneratePending(last.PitEndTime, last.TiresChanged, last.TiresLeft, mean)
		rows = append(rows, pending...)
		for _, p := range pending {
			tireData = append(tireData, DefaultTireData(p.TiresChanged == FullTireSet))
		}
	}

	RecalculateStintTypes(rows)
	return Projection{Rows: rows, Tires: tireData, Mean: mean}
}

// SortStints orders stints descending by pit_end_time_bucket. Remaining
// time counts down during a race, so descending bucket order is
// chronological pit-lane order. Ties fall back to the raw pit time.
func SortStints(stints []store.Stint) []store.Stint {
	ordered := make([]store.Stint, len(stints))
	copy(ordered, stints)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].PitEndTimeBucket != ordered[j].PitEndTimeBucket {
			return ordered[i].PitEndTimeBucket > ordered[j].PitEndTimeBucket
		}
		return ordered[i].PitEndTime > ordered[j].PitEndTime
	})
	return ordered
}

// completedRows walks the ordered stints and produces one Completed row
// per stint, tracking the medium-tire inventory as it goes. Returns the
// rows, the per-row durations and the per-row excluded flags.
func completedRows(ordered []store.Stint, totalTires int, raceStart string) ([]Row, []time.Duration, []bool) {
	rows := make([]Row, 0, len(ordered))
	durations := make([]time.Duration, 0, len(ordered))
	excluded := make([]bool, 0, len(ordered))

	prevPit := raceStart
	tiresLeft := totalTires

	for _, stint := range ordered {
		duration, err := timeutil.ClockDistance(prevPit, stint.PitEndTime)
		if err != nil {
			// Malformed times degrade to a zero duration rather than
			// dropping the observed row.
			duration = 0
		}

		total, medium := CountTireChanges(stint.TireData)
		tiresLeft -= medium

		rows = append(rows, Row{
			Driver:       stint.Driver,
			Status:       StatusCompleted,
			PitEndTime:   stint.PitEndTime,
			TiresChanged: total,
			TiresLeft:    tiresLeft,
			StintTime:    duration,
		})
		durations = append(durations, duration)
		excluded = append(excluded, stint.Excluded)

		prevPit = stint.PitEndTime
	}

	return rows, durations, excluded
}

// MeanStintTime is the arithmetic mean of the durations whose excluded
// flag is unset. A nil excluded slice counts every duration. Returns 0
// when nothing qualifies.
func MeanStintTime(durations []time.Duration, excluded []bool) time.Duration {
	var sum time.Duration
	var n int
	for i, d := range durations {
		if excluded != nil && i < len(excluded) && excluded[i] {
			continue
		}
		sum += d
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// GeneratePending produces the projected tail from the last completed
// row down to the start of the race.
//
// The tire-change toggle starts at the opposite of the last observed
// change and alternates: a fresh set is assumed to last two stints. Each
// full change decrements the medium inventory by four. When the next
// subtraction would cross midnight the final row is synthesized at
// exactly "00:00:00" with the truncated remainder as its stint time
// (suppressed when the remainder is zero), and the projection stops.
func GeneratePending(lastPit string, lastChanged, tiresLeft int, mean time.Duration) []Row {
	if mean <= 0 {
		return nil
	}

	var rows []Row
	current := lastPit
	changed := lastChanged

	for {
		next, crossed, err := timeutil.SubtractClock(current, mean)
		if err != nil {
			return rows
		}

		if crossed {
			remainder, err := timeutil.ParseHHMMSS(current)
			if err != nil || remainder == 0 {
				return rows
			}
			nextChange := toggleChange(changed)
			if nextChange == FullTireSet {
				tiresLeft -= FullTireSet
			}
			rows = append(rows, Row{
				StintType:    StintTypeName(1),
				Status:       StatusPending,
				PitEndTime:   timeutil.ZeroTime,
				TiresChanged: nextChange,
				TiresLeft:    tiresLeft,
				StintTime:    time.Duration(remainder) * time.Second,
			})
			return rows
		}

		nextChange := toggleChange(changed)
		if nextChange == FullTireSet {
			tiresLeft -= FullTireSet
		}
		rows = append(rows, Row{
			StintType:    StintTypeName(1),
			Status:       StatusPending,
			PitEndTime:   next,
			TiresChanged: nextChange,
			TiresLeft:    tiresLeft,
			StintTime:    mean,
		})

		current = next
		changed = nextChange
	}
}

// toggleChange alternates the pending tire-change value: a stint on a
// fresh set is followed by one with no change, and vice versa.
func toggleChange(lastChanged int) int {
	if lastChanged == NoTireChange {
		return FullTireSet
	}
	return NoTireChange
}

// Realign rebuilds the pending tail after a mean edit. Completed rows
// keep their pit times (they are historical fact); every pending row is
// regenerated from the new mean, truncating or extending the tail until
// the midnight invariant holds again.
func Realign(completed []Row, completedTires []store.TireData, mean time.Duration) ([]Row, []store.TireData) {
	rows := make([]Row, len(completed))
	copy(rows, completed)
	tireData := make([]store.TireData, len(completedTires))
	copy(tireData, completedTires)

	if len(rows) > 0 {
		last := rows[len(rows)-1]
		pending := GeneratePending(last.PitEndTime, last.TiresChanged, last.TiresLeft, mean)
		rows = append(rows, pending...)
		for _, p := range pending {
			tireData = append(tireData, DefaultTireData(p.TiresChanged == FullTireSet))
		}
	}

	RecalculateStintTypes(rows)
	return rows, tireData
}

// CountTireChanges counts the changed positions in a stint's tire
// payload, and the subset whose outgoing compound is medium. Inventory
// tracks only mediums; wet sets are effectively unlimited under
// endurance rules.
func CountTireChanges(td store.TireData) (total, medium int) {
	for pos, changed := range td.TiresChanged {
		if !changed {
			continue
		}
		total++
		tc := td.Position(pos)
		if tc != nil && strings.EqualFold(tc.Outgoing.Compound, "medium") {
			medium++
		}
	}
	return total, medium
}
