package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/metrics"
)

// DefaultWindowDays is how far either side of the event date Search looks.
// Wide enough to absorb time zone and all-day rounding skew.
const DefaultWindowDays = 3

// Reconciler converges the remote store to exactly one record per identity.
type Reconciler struct {
	store      Store
	logger     *slog.Logger
	metrics    *metrics.Sync
	duration   time.Duration
	windowDays int
	fallback   *time.Location
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithDuration sets the length of timed events.
func WithDuration(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.duration = d
		}
	}
}

// WithWindowDays sets the search half-width in days.
func WithWindowDays(days int) ReconcilerOption {
	return func(r *Reconciler) {
		if days > 0 {
			r.windowDays = days
		}
	}
}

// WithTimeZone sets the zone named on timed bodies whose event time has no
// named zone of its own.
func WithTimeZone(loc *time.Location) ReconcilerOption {
	return func(r *Reconciler) {
		r.fallback = loc
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithMetrics records remote call outcomes on m.
func WithMetrics(m *metrics.Sync) ReconcilerOption {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:      store,
		logger:     slog.Default(),
		duration:   DefaultDuration,
		windowDays: DefaultWindowDays,
		fallback:   time.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ready returns ErrNoDestination when the store has no target calendar.
func (r *Reconciler) Ready() error {
	if r.store == nil || r.store.Destination() == "" {
		return ErrNoDestination
	}
	return nil
}

// Reconcile makes the store hold exactly one record carrying e's identity
// marker with e's current content, and returns that record's id.
//
// hint is the remote id the local cache believes in; it may be empty or
// stale. With allowCreate false and no match, nothing is written and ""
// is returned. With cleanupDuplicates true every match except the survivor
// is deleted; a failed delete is logged and does not stop the survivor's
// update.
func (r *Reconciler) Reconcile(ctx context.Context, e *event.Event, hint string, allowCreate, cleanupDuplicates bool) (string, error) {
	if err := r.Ready(); err != nil {
		return "", err
	}

	body := BuildBody(e, r.duration, r.fallback)
	marker := e.Marker()

	matches, err := r.search(ctx, e, marker)
	if err != nil {
		return "", err
	}

	log := r.logger.With("identity_key", e.IdentityKey(), "hint", hint, "matches", len(matches))

	switch len(matches) {
	case 0:
		if !allowCreate {
			log.Debug("reconcile: no remote record, create not allowed")
			return "", nil
		}
		id, err := r.store.Create(ctx, body)
		r.metrics.ObserveRemoteCall("create", err)
		if err != nil {
			return "", fmt.Errorf("reconcile: create: %w", err)
		}
		log.Info("reconcile: created remote record", "remote_id", id)
		return id, nil

	case 1:
		// The hint wins over the search result: search indexes can lag writes.
		target := hint
		if target == "" {
			target = matches[0].ID
		}
		return r.update(ctx, log, target, body)

	default:
		survivor := chooseSurvivor(matches, hint)
		log.Info("reconcile: duplicate remote records", "survivor", survivor)
		if cleanupDuplicates {
			r.removeDuplicates(ctx, log, matches, survivor)
		}
		return r.update(ctx, log, survivor, body)
	}
}

// search returns the distinct records whose description carries marker
// (see event.HasMarker).
func (r *Reconciler) search(ctx context.Context, e *event.Event, marker string) ([]RecordView, error) {
	window := WindowAround(e.Date(), r.windowDays)
	views, err := r.store.Search(ctx, marker, window)
	r.metrics.ObserveRemoteCall("search", err)
	if err != nil {
		return nil, fmt.Errorf("reconcile: search: %w", err)
	}

	seen := make(map[string]bool, len(views))
	matches := make([]RecordView, 0, len(views))
	for _, v := range views {
		if seen[v.ID] || !event.HasMarker(v.Description, marker) {
			continue
		}
		seen[v.ID] = true
		matches = append(matches, v)
	}
	return matches, nil
}

func (r *Reconciler) update(ctx context.Context, log *slog.Logger, id string, body Body) (string, error) {
	updated, err := r.store.Update(ctx, id, body)
	r.metrics.ObserveRemoteCall("update", err)
	if err != nil {
		return "", fmt.Errorf("reconcile: update %s: %w", id, err)
	}
	if updated == "" {
		updated = id
	}
	log.Debug("reconcile: updated remote record", "remote_id", updated)
	return updated, nil
}

func (r *Reconciler) removeDuplicates(ctx context.Context, log *slog.Logger, matches []RecordView, survivor string) {
	for _, m := range matches {
		if m.ID == survivor {
			continue
		}
		err := r.store.Delete(ctx, m.ID)
		r.metrics.ObserveRemoteCall("delete", err)
		if err != nil {
			// A later run's search will find the leftover again.
			log.Warn("reconcile: delete duplicate failed", "remote_id", m.ID, "error", err)
			continue
		}
		r.metrics.ObserveDuplicateRemoved()
		log.Info("reconcile: deleted duplicate", "remote_id", m.ID)
	}
}

// chooseSurvivor returns hint when it is among matches, otherwise the id of
// the match with the greatest (LastModified, ID). matches must be non-empty.
func chooseSurvivor(matches []RecordView, hint string) string {
	if hint != "" {
		for _, m := range matches {
			if m.ID == hint {
				return hint
			}
		}
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.After(best) {
			best = m
		}
	}
	return best.ID
}
