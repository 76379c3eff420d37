package event

import (
	"fmt"
	"time"
	_ "time/tzdata" // Asia/Tokyo must resolve on hosts without zoneinfo
)

// Provider identifies the booking service an event was extracted from.
type Provider string

const (
	ProviderMosh       Provider = "mosh"
	ProviderPeatix     Provider = "peatix"
	ProviderBonne      Provider = "bonne"
	ProviderYesTokyo   Provider = "yes_tokyo"
	ProviderLifeTuning Provider = "life_tuning"
)

// Providers lists every known provider in detection order.
var Providers = []Provider{
	ProviderPeatix,
	ProviderMosh,
	ProviderBonne,
	ProviderYesTokyo,
	ProviderLifeTuning,
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProvider converts a stored provider tag back into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// Event is a calendar-worthy fact extracted from a source message.
//
// OccursAt carries the civil time zone of the event. When TimeUnknown is
// true only the date is meaningful; OccursAt is then a synthetic midday
// timestamp kept for ordering.
//
// IdentityKey and Fingerprint are memoized on first call. Mutating fields
// afterwards does not refresh them; build a new Event instead.
type Event struct {
	Provider      Provider
	Title         string
	OccursAt      time.Time
	TimeUnknown   bool
	LocationName  string
	Address       string
	Instructor    string
	ReservationID string
	SourceURL     string
	Confidence    float64

	// RemoteRef is the last known remote record id, if any. It is not part
	// of the identity or the fingerprint.
	RemoteRef string

	identityKey string
	fingerprint string
}

// Date returns the civil date of the event at midnight in its own zone.
func (e *Event) Date() time.Time {
	y, m, d := e.OccursAt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.OccursAt.Location())
}

// Excerpt returns a short human-readable summary for log lines.
func (e *Event) Excerpt() string {
	return truncateRunes(e.Title, 80)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
