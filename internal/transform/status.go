package transform

import (
	"time"

	"github.com/liverty-music/actcache/internal/entity"
)

const (
	onTourWindow      = 90 * 24 * time.Hour
	tourPlannedWindow = 270 * 24 * time.Hour
)

const (
	StatusOnTour      = "on tour"
	StatusTourPlanned = "tour planned"
)

// DeriveStatus computes an act's status from its (already-filtered,
// future-or-today) events and the upstream-supplied status. All
// comparisons are in UTC at day granularity.
//
//   - No events → the upstream status, unchanged.
//   - Earliest event within 90 days → "on tour".
//   - Earliest event within 91..270 days → "tour planned".
//   - Earliest event beyond 270 days → the upstream status, unchanged.
func DeriveStatus(events []entity.Event, upstreamStatus string, now time.Time) string {
	if len(events) == 0 {
		return upstreamStatus
	}

	earliest, ok := earliestDate(events)
	if !ok {
		return upstreamStatus
	}

	today := now.UTC().Truncate(24 * time.Hour)
	until := earliest.Sub(today)

	switch {
	case until <= onTourWindow:
		return StatusOnTour
	case until <= tourPlannedWindow:
		return StatusTourPlanned
	default:
		return upstreamStatus
	}
}

// earliestDate returns the earliest parseable event date.
func earliestDate(events []entity.Event) (time.Time, bool) {
	var earliest time.Time
	found := false

	for _, e := range events {
		d, err := time.Parse(dateLayout, e.Date)
		if err != nil {
			continue
		}
		d = d.UTC()
		if !found || d.Before(earliest) {
			earliest = d
			found = true
		}
	}

	return earliest, found
}
