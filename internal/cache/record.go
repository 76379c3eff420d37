package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/yogisync/internal/event"
)

// ErrNotFound is returned when no row exists for an identity key.
var ErrNotFound = errors.New("cache: record not found")

// Action is the outcome of Upsert.
type Action string

const (
	// ActionCreated means the identity key was seen for the first time.
	ActionCreated Action = "created"
	// ActionUpdated means the remote side must be reconciled, either because
	// content changed or because no remote ref is known yet.
	ActionUpdated Action = "updated"
	// ActionSkipped means content is unchanged and a remote ref is known.
	ActionSkipped Action = "skipped"
)

// Record is one cached row.
type Record struct {
	IdentityKey   string
	Provider      event.Provider
	OccursAt      time.Time
	Title         string
	LocationName  string
	TimeUnknown   bool
	ReservationID string
	SourceURL     string
	RemoteRef     string
	Fingerprint   string
	LastUpdated   time.Time
}

// Event rebuilds an Event from the cached columns. Address, instructor and
// confidence are not cached, so the result's fingerprint differs from the
// original event's.
func (r Record) Event() *event.Event {
	return &event.Event{
		Provider:      r.Provider,
		Title:         r.Title,
		OccursAt:      r.OccursAt,
		TimeUnknown:   r.TimeUnknown,
		LocationName:  r.LocationName,
		ReservationID: r.ReservationID,
		SourceURL:     r.SourceURL,
		RemoteRef:     r.RemoteRef,
	}
}

// Timestamps in earlier databases were written without an offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.999999999-07:00")
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
