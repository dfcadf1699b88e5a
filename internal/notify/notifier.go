// Package notify announces a group once every role of a run is filled.
//
// Arming starts a debounce timer keyed by run id. Any release for the run
// disarms it in O(1); a stale timer that fires after being disarmed or
// re-armed finds its token superseded and does nothing.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/metrics"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// DefaultDelay is the debounce window between fill and announcement.
const DefaultDelay = 5 * time.Second

// Poster delivers a notice to the announcement destination.
type Poster interface {
	PostNotice(ctx context.Context, n Notice) error
}

// Recorder mirrors a formed group into the ledger.
type Recorder interface {
	RecordFormed(ctx context.Context, runID string, names []string) error
}

// Timer is the subset of *time.Timer the notifier needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// FiredFunc observes the outcome of every fired notification.
type FiredFunc func(runID string, posted bool, err error)

// Config wires the notifier's collaborators.
type Config struct {
	Delay    time.Duration
	Store    NotifiedStore
	Forms    FormReader
	Poster   Poster
	Recorder Recorder
	Roster   *signup.Roster
	// Timeout bounds the I/O done when a timer fires.
	Timeout time.Duration
	// OnFired is optional.
	OnFired FiredFunc
	// AfterFunc replaces time.AfterFunc in tests.
	AfterFunc AfterFunc
}

type pending struct {
	token    uint64
	timer    Timer
	snapshot signup.Snapshot
	armedAt  time.Time
}

// Notifier owns every pending notification.
type Notifier struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pending
	known   map[string]struct{}
	nextTok uint64
	closed  bool
	wg      sync.WaitGroup
}

// New returns a notifier. Store defaults to a MemoryStore.
func New(cfg Config) *Notifier {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Roster == nil {
		cfg.Roster = signup.DefaultRoster()
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = realAfterFunc
	}
	return &Notifier{
		cfg:     cfg,
		logger:  applog.WithComponent("notifier"),
		pending: make(map[string]*pending),
		known:   make(map[string]struct{}),
	}
}

// Arm schedules a notice for a complete snapshot. It is a no-op for an
// incomplete snapshot or a run already announced. When a notification is
// already pending only its snapshot is refreshed; the timer is not reset.
func (n *Notifier) Arm(snap signup.Snapshot) bool {
	runID := snap.Descriptor.RunID
	if !snap.Complete || runID == "" {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	if _, done := n.known[runID]; done {
		return false
	}
	if p, ok := n.pending[runID]; ok {
		if snap.Version > p.snapshot.Version || snap.Ref != p.snapshot.Ref {
			p.snapshot = snap
		}
		return false
	}

	n.nextTok++
	token := n.nextTok
	p := &pending{token: token, snapshot: snap, armedAt: time.Now()}
	n.wg.Add(1)
	p.timer = n.cfg.AfterFunc(n.cfg.Delay, func() { n.fire(runID, token) })
	n.pending[runID] = p

	metrics.IncNotifier("armed")
	metrics.SetNotifierPending(len(n.pending))
	n.logger.Info().Str(applog.FieldRunID, runID).Dur("delay", n.cfg.Delay).Msg("group complete; notification armed")
	return true
}

// Disarm cancels the pending notification for runID. It is idempotent.
func (n *Notifier) Disarm(runID string) bool {
	n.mu.Lock()
	p, ok := n.pending[runID]
	if ok {
		delete(n.pending, runID)
		metrics.SetNotifierPending(len(n.pending))
	}
	n.mu.Unlock()
	if !ok {
		return false
	}

	if p.timer.Stop() {
		n.wg.Done()
	}
	metrics.IncNotifier("cancelled")
	n.logger.Info().Str(applog.FieldRunID, runID).Msg("roster changed; notification cancelled")
	return true
}

// Pending reports whether a notification for runID is waiting.
func (n *Notifier) Pending(runID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.pending[runID]
	return ok
}

// Reset cancels any pending notification and clears the notified mark so
// the run can be announced again.
func (n *Notifier) Reset(ctx context.Context, runID string) error {
	n.Disarm(runID)
	n.mu.Lock()
	delete(n.known, runID)
	n.mu.Unlock()
	return n.cfg.Store.Unmark(ctx, runID)
}

// Close stops every timer and waits for in-flight notifications.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	timers := make([]Timer, 0, len(n.pending))
	for runID, p := range n.pending {
		timers = append(timers, p.timer)
		delete(n.pending, runID)
	}
	metrics.SetNotifierPending(0)
	n.mu.Unlock()

	for _, t := range timers {
		if t.Stop() {
			n.wg.Done()
		}
	}
	n.wg.Wait()
}

func (n *Notifier) fire(runID string, token uint64) {
	defer n.wg.Done()

	n.mu.Lock()
	p, ok := n.pending[runID]
	if !ok || p.token != token {
		n.mu.Unlock()
		return
	}
	delete(n.pending, runID)
	metrics.SetNotifierPending(len(n.pending))
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()

	posted, err := n.deliver(ctx, p.snapshot)
	if n.cfg.OnFired != nil {
		n.cfg.OnFired(runID, posted, err)
	}
}

func (n *Notifier) deliver(ctx context.Context, snap signup.Snapshot) (bool, error) {
	runID := snap.Descriptor.RunID
	logger := n.logger.With().Str(applog.FieldRunID, runID).Logger()

	fresh, err := n.cfg.Store.MarkNotified(ctx, runID)
	if err != nil {
		metrics.IncNotifier("failed")
		logger.Error().Err(err).Msg("could not record notification; notice not posted")
		return false, err
	}
	n.remember(runID)
	if !fresh {
		metrics.IncNotifier("skipped")
		logger.Debug().Msg("run already announced")
		return false, nil
	}

	var form FormResponse
	if n.cfg.Forms != nil {
		var found bool
		form, found, err = n.cfg.Forms.LookupForm(ctx, runID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("form lookup failed; posting without details")
		case !found:
			logger.Info().Msg("no form response for run; posting without details")
		}
	}

	notice := Compose(snap, n.cfg.Roster, form)
	if err := n.cfg.Poster.PostNotice(ctx, notice); err != nil {
		metrics.IncNotifier("failed")
		logger.Error().Err(err).Msg("posting group notice failed")
		n.forget(runID)
		if uerr := n.cfg.Store.Unmark(ctx, runID); uerr != nil {
			logger.Error().Err(uerr).Msg("could not clear notified mark after failed post")
		}
		return false, err
	}
	metrics.IncNotifier("posted")
	logger.Info().Str(applog.FieldEvent, "group.formed").Msg("group notice posted")

	if n.cfg.Recorder != nil {
		if err := n.cfg.Recorder.RecordFormed(ctx, runID, RosterNames(snap, n.cfg.Roster)); err != nil {
			logger.Warn().Err(err).Msg("formed row not written")
		}
	}
	return true, nil
}

func (n *Notifier) remember(runID string) {
	n.mu.Lock()
	n.known[runID] = struct{}{}
	n.mu.Unlock()
}

func (n *Notifier) forget(runID string) {
	n.mu.Lock()
	delete(n.known, runID)
	n.mu.Unlock()
}
