package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/yogisync/internal/event"
)

// DefaultDuration is the length given to events with a known start time.
const DefaultDuration = 60 * time.Minute

// Body is the payload written to the remote store.
//
// For all-day bodies Start and End are midnights and End is exclusive.
type Body struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"time_zone,omitempty"`
}

// BuildBody renders e into a remote body. fallback names the zone used when
// the event time carries no named zone.
func BuildBody(e *event.Event, duration time.Duration, fallback *time.Location) Body {
	body := Body{
		Summary:     Summary(e),
		Description: Description(e),
		Location:    Location(e),
	}

	if e.TimeUnknown {
		body.AllDay = true
		body.Start = e.Date()
		body.End = body.Start.AddDate(0, 0, 1)
		return body
	}

	body.Start = e.OccursAt
	body.End = e.OccursAt.Add(duration)
	body.TimeZone = zoneName(e.OccursAt.Location(), fallback)
	return body
}

// Summary is "[PROVIDER] title", with " - instructor" when known.
func Summary(e *event.Event) string {
	s := "[" + strings.ToUpper(string(e.Provider)) + "] " + e.Title
	if e.Instructor != "" {
		s += " - " + e.Instructor
	}
	return s
}

// Description lists the event's provenance, one "key: value" per line.
// The event_uid line is the identity marker.
func Description(e *event.Event) string {
	lines := []string{
		"provider: " + string(e.Provider),
		e.Marker(),
		"reservation_id: " + e.ReservationID,
		"source_url: " + e.SourceURL,
		fmt.Sprintf("confidence: %.2f", e.Confidence),
	}
	if e.TimeUnknown {
		lines = append(lines, "time_unknown: true (needs confirmation)")
	}
	return strings.Join(lines, "\n")
}

// Location joins venue name and address as "name / address".
func Location(e *event.Event) string {
	switch {
	case e.LocationName != "" && e.Address != "":
		return e.LocationName + " / " + e.Address
	case e.LocationName != "":
		return e.LocationName
	default:
		return e.Address
	}
}

func zoneName(loc, fallback *time.Location) string {
	if loc != nil && loc != time.Local && loc.String() != "" && loc.String() != "Local" {
		return loc.String()
	}
	if fallback != nil {
		return fallback.String()
	}
	return "UTC"
}
