package event

import (
	"strings"
	"time"
)

// MarkerPrefix introduces the identity key inside a remote record description.
const MarkerPrefix = "event_uid: "

const (
	dateLayout    = "2006-01-02"
	minuteLayout  = "2006-01-02T15:04:05-07:00"
	instantLayout = "2006-01-02T15:04:05.999999999-07:00"
)

// IdentityKey returns provider:dateKey:title[:location].
//
// dateKey is the ISO date when the time is unknown, otherwise the instant
// truncated to the minute and rendered with its UTC offset.
func (e *Event) IdentityKey() string {
	if e.identityKey != "" {
		return e.identityKey
	}
	e.identityKey = deriveIdentity(e)
	return e.identityKey
}

func deriveIdentity(e *Event) string {
	var dateKey string
	if e.TimeUnknown {
		dateKey = e.OccursAt.Format(dateLayout)
	} else {
		dateKey = e.OccursAt.Truncate(time.Minute).Format(minuteLayout)
	}

	key := string(e.Provider) + ":" + dateKey + ":" + strings.TrimSpace(e.Title)
	if e.LocationName != "" {
		key += ":" + strings.TrimSpace(e.LocationName)
	}
	return key
}

// Marker returns the searchable rendering of the identity key that is
// embedded in remote record descriptions.
func (e *Event) Marker() string {
	return MarkerFor(e.IdentityKey())
}

// MarkerFor renders the identity marker for a key.
func MarkerFor(identityKey string) string {
	return MarkerPrefix + identityKey
}

// HasMarker reports whether text contains marker followed by the end of the
// text, a line break or an HTML tag. A longer key that merely starts with
// marker does not match.
func HasMarker(text, marker string) bool {
	if marker == "" {
		return false
	}
	for i := 0; ; {
		j := strings.Index(text[i:], marker)
		if j < 0 {
			return false
		}
		end := i + j + len(marker)
		if end == len(text) || markerEnd(text[end]) {
			return true
		}
		i += j + 1
	}
}

func markerEnd(c byte) bool {
	return c == '\n' || c == '\r' || c == '<'
}
