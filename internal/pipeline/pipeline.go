package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/yogisync/internal/cache"
	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/metrics"
	"github.com/roach88/yogisync/internal/parse"
	"github.com/roach88/yogisync/internal/remote"
	"github.com/roach88/yogisync/internal/source"
)

// Skip reasons for messages that produce no event.
const (
	SkipUndetected = "undetected"
	SkipNoParser   = "no_parser"
	SkipUnparsed   = "unparsed"
)

// Cache is the local cache as used by the orchestrator.
// Implemented by *cache.Store.
type Cache interface {
	Upsert(ctx context.Context, e *event.Event) (cache.Action, string, error)
	RecordRemoteRef(ctx context.Context, identityKey, remoteID string) error
}

// Reconciler converges the remote store for one event.
// Implemented by *remote.Reconciler.
type Reconciler interface {
	Ready() error
	Reconcile(ctx context.Context, e *event.Event, hint string, allowCreate, cleanupDuplicates bool) (string, error)
}

// Result tallies one run. Messages skipped before parsing and events the
// cache reported unchanged both count as Skipped.
type Result struct {
	RunID   string `json:"run_id,omitempty"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

func (r *Result) count(action cache.Action) {
	switch action {
	case cache.ActionCreated:
		r.Created++
	case cache.ActionUpdated:
		r.Updated++
	case cache.ActionSkipped:
		r.Skipped++
	}
}

// Orchestrator drives events through the cache and the reconciler, one at
// a time.
type Orchestrator struct {
	cache      Cache
	reconciler Reconciler
	registry   *parse.Registry
	logger     *slog.Logger
	metrics    *metrics.Sync
	runIDs     RunIDGenerator
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry sets the parsers used by Run. Defaults to
// parse.NewRegistry().
func WithRegistry(r *parse.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *metrics.Sync) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRunIDGenerator sets the run id source. Defaults to UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(o *Orchestrator) {
		o.runIDs = g
	}
}

// WithClock sets the clock used to time runs.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator.
func New(c Cache, r Reconciler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:      c,
		reconciler: r,
		logger:     slog.Default(),
		runIDs:     UUIDv7Generator{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = parse.NewRegistry()
	}
	return o
}

// SyncEvents processes events in order. Per-event failures are tallied in
// the Result; the returned error is non-nil only for configuration-class
// failures, in which case the Result covers the events handled so far.
func (o *Orchestrator) SyncEvents(ctx context.Context, events []*event.Event) (Result, error) {
	run, err := o.begin()
	if err != nil {
		return Result{}, err
	}
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return run.finish(), fmt.Errorf("sync events: %w", err)
		}
		if err := run.event(ctx, e); err != nil {
			return run.finish(), err
		}
	}
	return run.finish(), nil
}

// Run parses messages with the registry and syncs the resulting events.
func (o *Orchestrator) Run(ctx context.Context, messages []source.Message) (Result, error) {
	run, err := o.begin()
	if err != nil {
		return Result{}, err
	}
	for i := range messages {
		if err := ctx.Err(); err != nil {
			return run.finish(), fmt.Errorf("run: %w", err)
		}
		msg := &messages[i]
		run.log.Debug("pipeline: processing message", "message_id", msg.ID, "subject", msg.Subject)

		e, ok := run.parse(msg)
		if !ok {
			continue
		}
		if err := run.event(ctx, e); err != nil {
			return run.finish(), err
		}
	}
	return run.finish(), nil
}

// ProcessEvent runs one event through cache and reconciliation and returns
// the cache action. Any error means the event was not fully synced.
func (o *Orchestrator) ProcessEvent(ctx context.Context, e *event.Event) (cache.Action, error) {
	return o.process(ctx, o.logger, e)
}

func (o *Orchestrator) process(ctx context.Context, log *slog.Logger, e *event.Event) (cache.Action, error) {
	key := e.IdentityKey()

	action, hint, err := o.cache.Upsert(ctx, e)
	if err != nil {
		return "", fmt.Errorf("process %s: %w", key, err)
	}

	allowCreate := action != cache.ActionSkipped
	kept, err := o.reconciler.Reconcile(ctx, e, hint, allowCreate, true)
	if err != nil {
		return action, fmt.Errorf("process %s: %w", key, err)
	}

	// On a skip, the cache already holds hint; only a moved survivor is
	// worth a write.
	if kept != "" && (allowCreate || kept != hint) {
		if err := o.cache.RecordRemoteRef(ctx, key, kept); err != nil {
			return action, fmt.Errorf("process %s: %w", key, err)
		}
		if !allowCreate {
			log.Info("pipeline: remote ref moved after reconcile",
				"identity_key", key, "old", hint, "new", kept)
		}
	}

	e.RemoteRef = kept
	return action, nil
}

// runState accumulates one run's Result.
type runState struct {
	o       *Orchestrator
	log     *slog.Logger
	started time.Time
	result  Result
}

// begin starts a run. A reconciler that is not ready fails the run before
// the cache or the remote store is touched.
func (o *Orchestrator) begin() (*runState, error) {
	id := o.runIDs.Generate()
	log := o.logger.With("run_id", id)
	if err := o.reconciler.Ready(); err != nil {
		log.Error("pipeline: remote destination not configured", "error", err)
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &runState{
		o:       o,
		log:     log,
		started: o.now(),
		result:  Result{RunID: id},
	}, nil
}

// event processes e and returns an error only when the run must stop.
func (s *runState) event(ctx context.Context, e *event.Event) error {
	action, err := s.o.process(ctx, s.log, e)
	if err != nil {
		if errors.Is(err, remote.ErrNoDestination) {
			return fmt.Errorf("pipeline: %w", err)
		}
		s.result.Errors++
		s.o.metrics.ObserveError()
		s.log.Error("pipeline: event failed",
			"identity_key", e.IdentityKey(),
			"provider", e.Provider,
			"excerpt", e.Excerpt(),
			"error", err)
		return nil
	}

	s.result.count(action)
	s.o.metrics.ObserveAction(string(action))
	s.log.Info("pipeline: event synced",
		"identity_key", e.IdentityKey(),
		"action", action,
		"remote_id", e.RemoteRef)
	return nil
}

// parse returns the message's event, or false after counting the skip.
func (s *runState) parse(msg *source.Message) (*event.Event, bool) {
	provider, ok := parse.Detect(msg)
	if !ok {
		s.skip(msg, SkipUndetected, "")
		return nil, false
	}
	parser, ok := s.o.registry.Lookup(provider)
	if !ok {
		s.skip(msg, SkipNoParser, provider)
		return nil, false
	}
	e, ok := parser.Parse(msg)
	if !ok {
		s.skip(msg, SkipUnparsed, provider)
		return nil, false
	}
	return e, true
}

func (s *runState) skip(msg *source.Message, reason string, provider event.Provider) {
	s.result.Skipped++
	s.o.metrics.ObserveSkippedMessage(reason)
	s.log.Info("pipeline: message skipped",
		"reason", reason,
		"provider", provider,
		"message_id", msg.ID,
		"subject", msg.Subject,
		"from", msg.From,
		"excerpt", msg.Excerpt(),
		"plain_len", len(msg.TextPlain),
		"html_len", len(msg.TextHTML))
}

func (s *runState) finish() Result {
	finished := s.o.now()
	s.o.metrics.ObserveRun(finished.Sub(s.started), finished)
	s.log.Info("pipeline: run finished",
		"created", s.result.Created,
		"updated", s.result.Updated,
		"skipped", s.result.Skipped,
		"errors", s.result.Errors)
	return s.result
}
