package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/yogisync/internal/cache"
	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/metrics"
	"github.com/roach88/yogisync/internal/parse"
	"github.com/roach88/yogisync/internal/remote"
	"github.com/roach88/yogisync/internal/source"
	"github.com/roach88/yogisync/internal/testutil"
)

var testEpoch = time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)

type harness struct {
	orch    *Orchestrator
	cache   *cache.Store
	remote  *remote.MemoryStore
	metrics *metrics.Sync
	clock   *testutil.FakeClock
}

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

func newHarness(t *testing.T, destination string, opts ...Option) *harness {
	t.Helper()
	clock := testutil.NewFakeClock(testEpoch)

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), cache.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	store := remote.NewMemoryStore(destination, func() time.Time { return clock.Tick(time.Second) })
	m := metrics.New(prometheus.NewRegistry())
	rec := remote.NewReconciler(store, remote.WithTimeZone(tokyo(t)), remote.WithMetrics(m))

	base := []Option{
		WithMetrics(m),
		WithClock(clock.Now),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("")),
	}
	return &harness{
		orch:    New(c, rec, append(base, opts...)...),
		cache:   c,
		remote:  store,
		metrics: m,
		clock:   clock,
	}
}

func yogaFlow(t *testing.T) *event.Event {
	return &event.Event{
		Provider:   event.ProviderPeatix,
		Title:      "Yoga Flow",
		OccursAt:   time.Date(2024, 5, 1, 19, 0, 0, 0, tokyo(t)),
		Confidence: 1.0,
	}
}

func (h *harness) cachedRef(t *testing.T, key string) string {
	t.Helper()
	rec, err := h.cache.Get(context.Background(), key)
	require.NoError(t, err)
	return rec.RemoteRef
}

func TestSyncEvents_RepeatRunIsStable(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()

	res, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	assert.Equal(t, Result{RunID: "test-run-default", Created: 1}, res)

	records := h.remote.Records()
	require.Len(t, records, 1)
	r1 := records[0].ID
	key := yogaFlow(t).IdentityKey()
	assert.Equal(t, r1, h.cachedRef(t, key))

	res, err = h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Created+res.Updated+res.Errors)

	assert.Len(t, h.remote.Records(), 1)
	assert.Equal(t, 1, h.remote.Calls().Create)
	assert.Equal(t, 1, h.remote.Calls().Update, "skip still converges the one match")
	assert.Equal(t, r1, h.cachedRef(t, key))
}

func TestSyncEvents_ChangedContentUpdatesSameRecord(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()

	_, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	r1 := h.remote.Records()[0].ID

	changed := yogaFlow(t)
	changed.Instructor = "Aiko"
	res, err := h.orch.SyncEvents(ctx, []*event.Event{changed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	records := h.remote.Records()
	require.Len(t, records, 1)
	assert.Equal(t, r1, records[0].ID)
	assert.Equal(t, "[PEATIX] Yoga Flow - Aiko", records[0].Body.Summary)
	assert.Equal(t, r1, changed.RemoteRef)
}

func TestSyncEvents_TitleWhitespaceKeepsIdentity(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()

	_, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	r1 := h.remote.Records()[0].ID

	padded := yogaFlow(t)
	padded.Title = "Yoga Flow "
	require.Equal(t, yogaFlow(t).IdentityKey(), padded.IdentityKey())

	res, err := h.orch.SyncEvents(ctx, []*event.Event{padded})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Len(t, h.remote.Records(), 1)
	assert.Equal(t, r1, h.cachedRef(t, padded.IdentityKey()))
}

func TestSyncEvents_RenamedEventIsNewIdentity(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()

	_, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)

	renamed := yogaFlow(t)
	renamed.Title = "Yoga Flow (Rescheduled)"
	res, err := h.orch.SyncEvents(ctx, []*event.Event{renamed})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	// The old record is not deleted: events that vanish upstream are kept.
	assert.Len(t, h.remote.Records(), 2)
}

func TestSyncEvents_SkipCleansRemoteDuplicates(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()
	e := yogaFlow(t)

	_, err := h.orch.SyncEvents(ctx, []*event.Event{e})
	require.NoError(t, err)
	r1 := h.remote.Records()[0].ID

	dup := remote.BuildBody(e, remote.DefaultDuration, tokyo(t))
	h.remote.Seed("manual-copy", dup, h.clock.Advance(time.Hour))

	res, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	records := h.remote.Records()
	require.Len(t, records, 1)
	assert.Equal(t, r1, records[0].ID, "the cached ref survives even though the copy is newer")
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.DuplicatesRemoved))
}

func TestSyncEvents_SkipRecordsMovedSurvivor(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()
	e := yogaFlow(t)
	key := e.IdentityKey()

	_, err := h.orch.SyncEvents(ctx, []*event.Event{e})
	require.NoError(t, err)
	r1 := h.remote.Records()[0].ID
	require.NoError(t, h.cache.RecordRemoteRef(ctx, key, "stale-id"))

	body := remote.BuildBody(e, remote.DefaultDuration, tokyo(t))
	h.remote.Seed("newer-copy", body, h.clock.Advance(time.Hour))

	res, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	records := h.remote.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "newer-copy", records[0].ID)
	assert.NotEqual(t, r1, records[0].ID)
	assert.Equal(t, "newer-copy", h.cachedRef(t, key))
}

func TestSyncEvents_SkipWithoutRemoteRecordCreatesNothing(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()

	_, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	require.NoError(t, h.remote.Delete(ctx, h.remote.Records()[0].ID))

	res, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, h.remote.Records())
	assert.Equal(t, 1, h.remote.Calls().Create)
}

func TestSyncEvents_FailureDoesNotStopRun(t *testing.T) {
	h := newHarness(t, "cal")
	ctx := context.Background()

	other := yogaFlow(t)
	other.Title = "Hatha"
	h.remote.FailNext("search", errors.New("network down"))

	res, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t), other})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.EventErrors))

	// The failed event was cached without a ref, so the next run retries it.
	res, err = h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Len(t, h.remote.Records(), 2)
}

func TestSyncEvents_NoDestinationAborts(t *testing.T) {
	h := newHarness(t, "")

	res, err := h.orch.SyncEvents(context.Background(), []*event.Event{yogaFlow(t)})
	assert.ErrorIs(t, err, remote.ErrNoDestination)
	assert.Equal(t, Result{}, res)

	n, err := h.cache.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "cache untouched")
	assert.Equal(t, remote.MemoryCalls{}, h.remote.Calls())
}

func TestSyncEvents_CancelledContext(t *testing.T) {
	h := newHarness(t, "cal")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.SyncEvents(ctx, []*event.Event{yogaFlow(t)})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingCache struct {
	Cache
	fail bool
}

func (f *failingCache) Upsert(ctx context.Context, e *event.Event) (cache.Action, string, error) {
	if f.fail {
		f.fail = false
		return "", "", errors.New("disk I/O error")
	}
	return f.Cache.Upsert(ctx, e)
}

func TestSyncEvents_CacheFailureIsPerEvent(t *testing.T) {
	h := newHarness(t, "cal")
	fc := &failingCache{Cache: h.cache, fail: true}
	rec := remote.NewReconciler(h.remote)
	orch := New(fc, rec, WithRunIDGenerator(testutil.NewFixedRunIDGenerator("r")))

	other := yogaFlow(t)
	other.Title = "Hatha"
	res, err := orch.SyncEvents(context.Background(), []*event.Event{yogaFlow(t), other})
	require.NoError(t, err)
	assert.Equal(t, Result{RunID: "r", Created: 1, Errors: 1}, res)
	assert.Equal(t, 1, h.remote.Calls().Search, "the failed event never reached the remote store")
}

func TestProcessEvent(t *testing.T) {
	h := newHarness(t, "cal")
	e := yogaFlow(t)

	action, err := h.orch.ProcessEvent(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, cache.ActionCreated, action)
	assert.NotEmpty(t, e.RemoteRef)
}

func peatixMessage(id string) source.Message {
	return source.Message{
		ID:      id,
		From:    "Peatix <noreply@peatix.com>",
		Subject: "【Peatix】Yoga Flow のチケットお申し込み詳細",
		TextHTML: `<p>日時：2024年5月1日(水) 19:00〜20:00</p>` +
			`<a href="https://peatix.com/event/1">event</a>`,
	}
}

func TestRun_ParsesAndSkips(t *testing.T) {
	registry := parse.NewRegistry(
		parse.WithLocation(tokyo(t)),
		parse.WithClock(func() time.Time { return testEpoch }),
	)
	registry.Register(event.ProviderMosh, nil)
	h := newHarness(t, "cal", WithRegistry(registry))

	messages := []source.Message{
		peatixMessage("m1"),
		{ID: "m2", Subject: "newsletter", From: "shop@example.com"},
		{ID: "m3", From: "noreply@peatix.com", TextPlain: "no html"},
		{ID: "m4", From: "info@mosh.jp", TextPlain: "2024/05/10 08:00"},
	}

	res, err := h.orch.Run(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, Result{RunID: "test-run-default", Created: 1, Skipped: 3}, res)

	records := h.remote.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "[PEATIX] Yoga Flow", records[0].Body.Summary)
	assert.True(t, strings.Contains(records[0].Body.Description, "source_url: https://peatix.com/event/1"))

	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.MessagesSkipped.WithLabelValues(SkipUndetected)))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.MessagesSkipped.WithLabelValues(SkipUnparsed)))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.MessagesSkipped.WithLabelValues(SkipNoParser)))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.EventsProcessed.WithLabelValues("created")))
}

func TestRun_SameMailTwiceIsOneRecord(t *testing.T) {
	h := newHarness(t, "cal", WithRegistry(parse.NewRegistry(parse.WithLocation(tokyo(t)))))

	res, err := h.orch.Run(context.Background(), []source.Message{peatixMessage("a"), peatixMessage("b")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, h.remote.Records(), 1)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
