package remote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/metrics"
	"github.com/roach88/yogisync/internal/testutil"
)

var modEpoch = time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)

func yogaFlow(t *testing.T) *event.Event {
	return &event.Event{
		Provider:   event.ProviderPeatix,
		Title:      "Yoga Flow",
		OccursAt:   time.Date(2024, 5, 1, 19, 0, 0, 0, tokyo(t)),
		Confidence: 1.0,
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *MemoryStore, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(modEpoch.Add(24 * time.Hour))
	store := NewMemoryStore("test-calendar", func() time.Time { return clock.Tick(time.Second) })
	return NewReconciler(store, WithTimeZone(tokyo(t))), store, clock
}

// seedDuplicate stores a record carrying e's marker with a stale summary.
func seedDuplicate(t *testing.T, store *MemoryStore, id string, e *event.Event, modified time.Time) {
	t.Helper()
	body := BuildBody(e, DefaultDuration, time.UTC)
	body.Summary = "stale " + id
	store.Seed(id, body, modified)
}

func TestReconcile_NoDestination(t *testing.T) {
	store := NewMemoryStore("", nil)
	r := NewReconciler(store)

	_, err := r.Reconcile(context.Background(), yogaFlow(t), "", true, true)
	assert.ErrorIs(t, err, ErrNoDestination)
	assert.Equal(t, MemoryCalls{}, store.Calls(), "no remote call before the precondition")
}

func TestReconcile_ZeroMatchesCreates(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)

	id, err := r.Reconcile(context.Background(), e, "", true, true)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "[PEATIX] Yoga Flow", rec.Body.Summary)
	assert.True(t, event.HasMarker(rec.Body.Description, e.Marker()))
	assert.Equal(t, 1, store.Calls().Create)
}

func TestReconcile_ZeroMatchesWithoutCreate(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	id, err := r.Reconcile(context.Background(), yogaFlow(t), "R1", false, true)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, store.Records())
	assert.Equal(t, 0, store.Calls().Create)
	assert.Equal(t, 0, store.Calls().Update)
}

func TestReconcile_OneMatchUpdatesIt(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "R1", e, modEpoch)

	id, err := r.Reconcile(context.Background(), e, "", true, true)
	require.NoError(t, err)
	assert.Equal(t, "R1", id)

	rec, _ := store.Get("R1")
	assert.Equal(t, "[PEATIX] Yoga Flow", rec.Body.Summary)
	assert.Equal(t, 0, store.Calls().Create)
}

func TestReconcile_FindsMarkerInHTMLDescription(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)

	// The calendar web UI re-saves descriptions with <br> between lines.
	body := BuildBody(e, DefaultDuration, tokyo(t))
	body.Description = strings.ReplaceAll(body.Description, "\n", "<br>")
	require.Contains(t, body.Description, e.Marker())
	store.Seed("R1", body, modEpoch)

	id, err := r.Reconcile(context.Background(), e, "", true, true)
	require.NoError(t, err)
	assert.Equal(t, "R1", id)
	assert.Len(t, store.Records(), 1)
	assert.Equal(t, 0, store.Calls().Create)
}

func TestReconcile_OneMatchPrefersHint(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "R1", e, modEpoch)
	// The hinted record exists but search has not indexed it yet.
	store.Seed("R-hint", Body{Summary: "unindexed"}, modEpoch)

	id, err := r.Reconcile(context.Background(), e, "R-hint", true, true)
	require.NoError(t, err)
	assert.Equal(t, "R-hint", id)

	rec, _ := store.Get("R-hint")
	assert.Equal(t, "[PEATIX] Yoga Flow", rec.Body.Summary)
}

func TestReconcile_OneMatchStaleHintFails(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "R1", e, modEpoch)

	_, err := r.Reconcile(context.Background(), e, "gone", true, true)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestReconcile_DuplicatesConvergeToNewest(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "A", e, modEpoch)
	seedDuplicate(t, store, "B", e, modEpoch.Add(2*time.Hour))
	seedDuplicate(t, store, "C", e, modEpoch.Add(time.Hour))

	id, err := r.Reconcile(context.Background(), e, "", true, true)
	require.NoError(t, err)
	assert.Equal(t, "B", id)

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "B", records[0].ID)
	assert.Equal(t, "[PEATIX] Yoga Flow", records[0].Body.Summary)
	assert.Equal(t, 2, store.Calls().Delete)
	assert.Equal(t, 0, store.Calls().Create)
}

func TestReconcile_DuplicatesTieBreakOnID(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	for _, id := range []string{"a1", "c3", "b2"} {
		seedDuplicate(t, store, id, e, modEpoch)
	}

	id, err := r.Reconcile(context.Background(), e, "", true, true)
	require.NoError(t, err)
	assert.Equal(t, "c3", id)
}

func TestReconcile_DuplicatesPreferHintInMatches(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "old", e, modEpoch)
	seedDuplicate(t, store, "new", e, modEpoch.Add(time.Hour))

	id, err := r.Reconcile(context.Background(), e, "old", true, true)
	require.NoError(t, err)
	assert.Equal(t, "old", id)

	_, ok := store.Get("new")
	assert.False(t, ok)
}

func TestReconcile_DuplicatesIgnoreHintOutsideMatches(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "x", e, modEpoch)
	seedDuplicate(t, store, "y", e, modEpoch.Add(time.Hour))

	id, err := r.Reconcile(context.Background(), e, "elsewhere", true, true)
	require.NoError(t, err)
	assert.Equal(t, "y", id)
}

func TestReconcile_DuplicatesWithoutCleanup(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "A", e, modEpoch)
	seedDuplicate(t, store, "B", e, modEpoch.Add(time.Hour))

	id, err := r.Reconcile(context.Background(), e, "", true, false)
	require.NoError(t, err)
	assert.Equal(t, "B", id)
	assert.Len(t, store.Records(), 2)
	assert.Equal(t, 0, store.Calls().Delete)
}

func TestReconcile_NoCreateStillCleansDuplicates(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)
	seedDuplicate(t, store, "A", e, modEpoch)
	seedDuplicate(t, store, "B", e, modEpoch.Add(time.Hour))
	seedDuplicate(t, store, "C", e, modEpoch.Add(2*time.Hour))

	id, err := r.Reconcile(context.Background(), e, "", false, true)
	require.NoError(t, err)
	assert.Equal(t, "C", id)
	assert.Len(t, store.Records(), 1)
}

func TestReconcile_FailedDeleteStillUpdatesSurvivor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := testutil.NewFakeClock(modEpoch.Add(24 * time.Hour))
	store := NewMemoryStore("cal", clock.Now)
	r := NewReconciler(store, WithMetrics(m))
	e := yogaFlow(t)
	seedDuplicate(t, store, "A", e, modEpoch)
	seedDuplicate(t, store, "B", e, modEpoch.Add(time.Hour))
	seedDuplicate(t, store, "C", e, modEpoch.Add(2*time.Hour))
	store.FailNext("delete", errors.New("transient"))

	id, err := r.Reconcile(context.Background(), e, "", true, true)
	require.NoError(t, err)
	assert.Equal(t, "C", id)

	rec, _ := store.Get("C")
	assert.Equal(t, "[PEATIX] Yoga Flow", rec.Body.Summary)
	assert.Len(t, store.Records(), 2, "one duplicate left for a later run")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.DuplicatesRemoved))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RemoteCalls.WithLabelValues("delete", "error")))

	// The next pass heals the leftover.
	id, err = r.Reconcile(context.Background(), e, id, false, true)
	require.NoError(t, err)
	assert.Equal(t, "C", id)
	assert.Len(t, store.Records(), 1)
}

func TestReconcile_SearchFailure(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.FailNext("search", errors.New("network down"))

	_, err := r.Reconcile(context.Background(), yogaFlow(t), "", true, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
	assert.Equal(t, 0, store.Calls().Create)
}

func TestReconcile_CreateFailure(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.FailNext("create", errors.New("quota"))

	_, err := r.Reconcile(context.Background(), yogaFlow(t), "", true, true)
	assert.Error(t, err)
	assert.Empty(t, store.Records())
}

func TestReconcile_IgnoresLooseMatches(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)

	// Same key plus a location: contains e's marker as a substring only.
	located := yogaFlow(t)
	located.LocationName = "Studio"
	seedDuplicate(t, store, "located", located, modEpoch)

	id, err := r.Reconcile(context.Background(), e, "", true, true)
	require.NoError(t, err)
	assert.NotEqual(t, "located", id)
	assert.Len(t, store.Records(), 2, "the located record is a different event")
}

func TestReconcile_OutsideWindowNotFound(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	e := yogaFlow(t)

	body := BuildBody(e, DefaultDuration, time.UTC)
	body.Start = body.Start.AddDate(0, 1, 0)
	body.End = body.End.AddDate(0, 1, 0)
	store.Seed("far", body, modEpoch)

	id, err := r.Reconcile(context.Background(), e, "", false, true)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestReconcile_ScenarioRepeatRun(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	r1, err := r.Reconcile(ctx, yogaFlow(t), "", true, true)
	require.NoError(t, err)

	again, err := r.Reconcile(ctx, yogaFlow(t), r1, false, true)
	require.NoError(t, err)
	assert.Equal(t, r1, again)
	assert.Len(t, store.Records(), 1)

	rescheduled := yogaFlow(t)
	rescheduled.Title = "Yoga Flow (Rescheduled)"
	// A new title is a new identity, so it does not find R1 by marker.
	id, err := r.Reconcile(ctx, rescheduled, "", true, true)
	require.NoError(t, err)
	assert.NotEqual(t, r1, id)
}

func TestChooseSurvivor(t *testing.T) {
	matches := []RecordView{
		{ID: "a", LastModified: modEpoch.Add(time.Hour)},
		{ID: "b", LastModified: modEpoch},
		{ID: "c", LastModified: modEpoch.Add(time.Hour)},
	}
	assert.Equal(t, "c", chooseSurvivor(matches, ""))
	assert.Equal(t, "b", chooseSurvivor(matches, "b"))
	assert.Equal(t, "c", chooseSurvivor(matches, "zzz"))
}
