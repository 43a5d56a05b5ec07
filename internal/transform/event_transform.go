package transform

import (
	"time"

	"github.com/liverty-music/actcache/internal/entity"
)

// RejectionReason is a machine-readable tag explaining why a raw event was
// discarded. Diagnostic only — never returned to clients.
type RejectionReason string

const (
	ReasonMissingName     RejectionReason = "missing_name"
	ReasonMissingDate     RejectionReason = "missing_date"
	ReasonUnparseableDate RejectionReason = "unparseable_date"
	ReasonPastEvent       RejectionReason = "past_event"
)

// Rejection records one discarded raw event together with its reason.
type Rejection struct {
	Event  entity.RawEvent
	Reason RejectionReason
}

// EventResult is the output of Events: the accepted events in input order,
// plus every rejection for observability.
type EventResult struct {
	Events   []entity.Event
	Rejected []Rejection
}

const dateLayout = "2006-01-02"

// Events maps raw Bandsintown JSON-LD event documents onto canonical
// event records, accepting only events with a non-empty name and a
// parseable ISO date of today or later (UTC, day granularity).
//
// Events is pure: calling it twice on the same input yields the same
// EventResult.
func Events(raw []entity.RawEvent, now time.Time) EventResult {
	today := now.UTC().Truncate(24 * time.Hour)

	var result EventResult
	for _, r := range raw {
		if r.Name == "" {
			result.Rejected = append(result.Rejected, Rejection{Event: r, Reason: ReasonMissingName})
			continue
		}
		if r.Date == "" {
			result.Rejected = append(result.Rejected, Rejection{Event: r, Reason: ReasonMissingDate})
			continue
		}

		date, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{Event: r, Reason: ReasonUnparseableDate})
			continue
		}
		date = date.UTC()

		if date.Before(today) {
			result.Rejected = append(result.Rejected, Rejection{Event: r, Reason: ReasonPastEvent})
			continue
		}

		result.Events = append(result.Events, entity.Event{
			Name:      r.Name,
			Date:      date.Format(dateLayout),
			LocalTime: r.LocalTime,
			URL:       r.URL,
			Location: entity.Location{
				Address: r.Address,
				Geo:     r.Geo,
			},
		})
	}

	return result
}
