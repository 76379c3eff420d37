package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/testutil"
)

var testEpoch = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir with a fake clock.
func createTestStore(t *testing.T) (*Store, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testEpoch)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

// createTestEvent builds the canonical "Yoga Flow" event.
func createTestEvent(t *testing.T) *event.Event {
	t.Helper()
	return &event.Event{
		Provider:   event.ProviderPeatix,
		Title:      "Yoga Flow",
		OccursAt:   time.Date(2024, 5, 1, 19, 0, 0, 0, tokyo(t)),
		Confidence: 1.0,
	}
}
