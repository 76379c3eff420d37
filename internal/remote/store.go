package remote

import (
	"context"
	"errors"
	"time"
)

// ErrNoDestination is returned before any remote call when no target
// calendar is configured. It is a configuration error, not a per-event one.
var ErrNoDestination = errors.New("remote: no destination calendar configured")

// ErrRecordNotFound is returned by stores when a record id does not exist.
var ErrRecordNotFound = errors.New("remote: record not found")

// Store is the remote calendar as seen by the reconciler.
//
// Search must page through all results transparently. Its matching may be
// looser than an exact marker match; the reconciler post-filters.
type Store interface {
	// Destination names the target calendar; empty means unconfigured.
	Destination() string
	Search(ctx context.Context, marker string, window TimeWindow) ([]RecordView, error)
	Create(ctx context.Context, body Body) (string, error)
	Update(ctx context.Context, id string, body Body) (string, error)
	Delete(ctx context.Context, id string) error
}

// RecordView is the part of a remote record the reconciler inspects.
type RecordView struct {
	ID           string
	LastModified time.Time
	Description  string
}

// After reports whether v orders after w by (LastModified, ID).
func (v RecordView) After(w RecordView) bool {
	if !v.LastModified.Equal(w.LastModified) {
		return v.LastModified.After(w.LastModified)
	}
	return v.ID > w.ID
}

// TimeWindow is a half-open search range [Min, Max).
type TimeWindow struct {
	Min time.Time
	Max time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Min) && t.Before(w.Max)
}

// WindowAround returns the window covering days whole days on either side
// of date, including date itself.
func WindowAround(date time.Time, days int) TimeWindow {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return TimeWindow{
		Min: day.AddDate(0, 0, -days),
		Max: day.AddDate(0, 0, days+1),
	}
}
