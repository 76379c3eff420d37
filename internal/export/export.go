// Package export renders cached events as an iCalendar feed.
//
// Each VEVENT carries the same summary, description and location the
// remote calendar receives, so the description holds the event_uid marker
// line. UIDs are name-based UUIDs of the identity key and stay stable
// across exports.
package export

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/roach88/yogisync/internal/cache"
	"github.com/roach88/yogisync/internal/remote"
)

const productID = "-//yogisync//yogisync//EN"

// Options controls rendering.
type Options struct {
	// Name becomes X-WR-CALNAME when set.
	Name string
	// Duration of timed events. Zero means remote.DefaultDuration.
	Duration time.Duration
	// Location names the zone for event times without one.
	Location *time.Location
	// Now stamps DTSTAMP. Zero means time.Now().
	Now time.Time
}

// UID returns the VEVENT UID for an identity key.
func UID(identityKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("yogisync:"+identityKey)).String() + "@yogisync"
}

// Calendar builds the calendar for records.
func Calendar(records []cache.Record, opts Options) *ical.Calendar {
	if opts.Duration <= 0 {
		opts.Duration = remote.DefaultDuration
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, rec := range records {
		e := rec.Event()
		body := remote.BuildBody(e, opts.Duration, opts.Location)

		ev := cal.AddEvent(UID(rec.IdentityKey))
		ev.SetDtStampTime(opts.Now)
		if !rec.LastUpdated.IsZero() {
			ev.SetModifiedAt(rec.LastUpdated)
		}
		ev.SetSummary(body.Summary)
		ev.SetDescription(body.Description)
		if body.Location != "" {
			ev.SetLocation(body.Location)
		}
		if rec.SourceURL != "" {
			ev.SetURL(rec.SourceURL)
		}
		if body.AllDay {
			ev.SetAllDayStartAt(body.Start)
			ev.SetAllDayEndAt(body.End)
		} else {
			ev.SetStartAt(body.Start)
			ev.SetEndAt(body.End)
		}
	}
	return cal
}

// Write serialises the calendar for records to w.
func Write(w io.Writer, records []cache.Record, opts Options) error {
	if err := Calendar(records, opts).SerializeTo(w); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
