package signup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/metrics"
)

// ErrAnnouncementNotFound is returned by an AnnouncementSource when the
// message is gone.
var ErrAnnouncementNotFound = errors.New("announcement not found")

// AnnouncementSource fetches the current text of an announcement.
type AnnouncementSource interface {
	FetchAnnouncement(ctx context.Context, ref EventRef) (string, error)
}

// DescriptorExtractor parses announcement text.
type DescriptorExtractor interface {
	Extract(text string) (extract.Descriptor, error)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRoster replaces DefaultRoster.
func WithRoster(roster *Roster) RegistryOption {
	return func(r *Registry) { r.roster = roster }
}

// WithOverrides sets the override user set.
func WithOverrides(o *Overrides) RegistryOption {
	return func(r *Registry) { r.overrides = o }
}

// Registry maps announcement keys to live events. Events missing from
// memory are rebuilt from their announcement with an empty roster.
type Registry struct {
	source    AnnouncementSource
	extractor DescriptorExtractor
	roster    *Roster
	overrides *Overrides
	now       func() time.Time
	logger    zerolog.Logger

	mu     sync.Mutex
	events map[string]*Event
	group  singleflight.Group
}

// NewRegistry creates a registry backed by source and extractor.
func NewRegistry(source AnnouncementSource, extractor DescriptorExtractor, opts ...RegistryOption) *Registry {
	r := &Registry{
		source:    source,
		extractor: extractor,
		roster:    DefaultRoster(),
		overrides: NewOverrides(),
		now:       time.Now,
		logger:    applog.WithComponent("registry"),
		events:    make(map[string]*Event),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roster returns the roster new events are created with.
func (r *Registry) Roster() *Roster { return r.roster }

// Overrides returns the live override set.
func (r *Registry) Overrides() *Overrides { return r.overrides }

// Register records a freshly published announcement. An existing entry for
// the same key is returned unchanged.
func (r *Registry) Register(ref EventRef, desc extract.Descriptor) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(ref, desc)
}

// Get returns the event for ref, rehydrating it from the announcement if
// it is not in memory. Concurrent rehydrations of one key share a single
// fetch, and all callers receive the same *Event.
func (r *Registry) Get(ctx context.Context, ref EventRef) (*Event, error) {
	key := ref.Key()
	if key == "" {
		return nil, fmt.Errorf("%w: empty message id", ErrEventNotActive)
	}

	r.mu.Lock()
	ev, ok := r.events[key]
	if ok {
		// EvictIdle holds r.mu, so a touched event survives the sweep.
		ev.touch()
	}
	r.mu.Unlock()
	if ok {
		return ev, nil
	}

	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		return r.rehydrate(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug().Str(applog.FieldEventKey, key).Msg("joined in-flight rehydration")
	}
	return v.(*Event), nil
}

func (r *Registry) rehydrate(ctx context.Context, ref EventRef) (*Event, error) {
	key := ref.Key()
	text, err := r.source.FetchAnnouncement(ctx, ref)
	if err != nil {
		metrics.IncRehydration("not_active")
		r.logger.Warn().Err(err).Str(applog.FieldEventKey, key).Msg("announcement unavailable")
		return nil, fmt.Errorf("%w: %v", ErrEventNotActive, err)
	}
	desc, err := r.extractor.Extract(text)
	if err != nil {
		metrics.IncRehydration("malformed")
		r.logger.Warn().Err(err).Str(applog.FieldEventKey, key).Msg("announcement could not be parsed")
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ev := r.insertLocked(ref, desc)
	ev.touch()
	metrics.IncRehydration("ok")
	r.logger.Info().
		Str(applog.FieldEventKey, key).
		Str(applog.FieldRunID, desc.RunID).
		Str(applog.FieldActivity, desc.Activity).
		Msg("event rehydrated")
	return ev, nil
}

func (r *Registry) insertLocked(ref EventRef, desc extract.Descriptor) *Event {
	if ev, ok := r.events[ref.Key()]; ok {
		return ev
	}
	ev := newEvent(ref, desc, r.roster, r.overrides, r.now)
	r.events[ref.Key()] = ev
	metrics.SetActiveEvents(len(r.events))
	return ev
}

// Lookup returns the in-memory event for key without rehydrating.
func (r *Registry) Lookup(key string) (*Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[key]
	return ev, ok
}

// Snapshot returns the state of the in-memory event for key.
func (r *Registry) Snapshot(key string) (Snapshot, bool) {
	ev, ok := r.Lookup(key)
	if !ok {
		return Snapshot{}, false
	}
	return ev.Snapshot(), true
}

// Evict forgets key. Later access rehydrates it with an empty roster.
func (r *Registry) Evict(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[key]; !ok {
		return false
	}
	delete(r.events, key)
	metrics.SetActiveEvents(len(r.events))
	return true
}

// EvictIdle forgets every event untouched for longer than maxIdle and
// returns their keys.
func (r *Registry) EvictIdle(maxIdle time.Duration) []string {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for key, ev := range r.events {
		if ev.lastTouched().Before(cutoff) {
			delete(r.events, key)
			evicted = append(evicted, key)
		}
	}
	if len(evicted) > 0 {
		metrics.SetActiveEvents(len(r.events))
		r.logger.Info().Int("count", len(evicted)).Dur("max_idle", maxIdle).Msg("evicted idle events")
	}
	return evicted
}

// Len returns the number of events in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Snapshots returns a copy of every in-memory event.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	events := make([]*Event, 0, len(r.events))
	for _, ev := range r.events {
		events = append(events, ev)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Snapshot())
	}
	return out
}
