package parse

import (
	"time"

	"github.com/roach88/yogisync/internal/event"
	"github.com/roach88/yogisync/internal/source"
)

// Parser extracts an event from one message.
type Parser interface {
	Parse(msg *source.Message) (*event.Event, bool)
}

// Env carries what every parser needs besides the message itself.
type Env struct {
	// Location is the civil zone the provider's mail times are written in.
	Location *time.Location
	// Now supplies the year for dates written without one.
	Now func() time.Time
}

func (e Env) referenceYear() int {
	return e.Now().In(e.Location).Year()
}

// ParseFunc is a provider parser before it is bound to an Env.
type ParseFunc func(msg *source.Message, env Env) (*event.Event, bool)

type boundParser struct {
	fn  ParseFunc
	env Env
}

func (b boundParser) Parse(msg *source.Message) (*event.Event, bool) {
	return b.fn(msg, b.env)
}

// Registry maps providers to parsers.
type Registry struct {
	env     Env
	parsers map[event.Provider]ParseFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithLocation sets the zone mail times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) {
		if loc != nil {
			r.env.Location = loc
		}
	}
}

// WithClock sets the clock used to default missing years.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.env.Now = now
		}
	}
}

// NewRegistry returns a registry holding the parser of every known
// provider. The default zone is UTC; callers normally pass the configured
// timezone.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		env:     Env{Location: time.UTC, Now: time.Now},
		parsers: make(map[event.Provider]ParseFunc),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Register(event.ProviderPeatix, ParsePeatix)
	r.Register(event.ProviderMosh, ParseMosh)
	r.Register(event.ProviderBonne, ParseBonne)
	r.Register(event.ProviderYesTokyo, ParseYesTokyo)
	r.Register(event.ProviderLifeTuning, ParseLifeTuning)
	return r
}

// Register sets the parser for p, replacing any previous one. A nil fn
// removes it.
func (r *Registry) Register(p event.Provider, fn ParseFunc) {
	if fn == nil {
		delete(r.parsers, p)
		return
	}
	r.parsers[p] = fn
}

// Lookup returns the parser for p.
func (r *Registry) Lookup(p event.Provider) (Parser, bool) {
	fn, ok := r.parsers[p]
	if !ok {
		return nil, false
	}
	return boundParser{fn: fn, env: r.env}, true
}
