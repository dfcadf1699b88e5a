package controls

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/metrics"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// ErrReconcile marks a failed control refresh. It never affects the
// committed signup state.
var ErrReconcile = errors.New("control reconciliation failed")

// Renderer replaces the controls shown under an announcement.
type Renderer interface {
	RenderControls(ctx context.Context, ref signup.EventRef, controls []Control) error
}

type renderState struct {
	mu      sync.Mutex
	version uint64
	applied bool
}

// Reconciler applies projections in version order per event, dropping any
// snapshot older than the last one rendered.
type Reconciler struct {
	renderer Renderer
	roster   *signup.Roster
	logger   zerolog.Logger

	mu     sync.Mutex
	states map[string]*renderState
}

// NewReconciler returns a reconciler drawing through renderer.
func NewReconciler(renderer Renderer, roster *signup.Roster) *Reconciler {
	if roster == nil {
		roster = signup.DefaultRoster()
	}
	return &Reconciler{
		renderer: renderer,
		roster:   roster,
		logger:   applog.WithComponent("controls"),
		states:   make(map[string]*renderState),
	}
}

func (r *Reconciler) state(key string) *renderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[key]
	if !ok {
		st = &renderState{}
		r.states[key] = st
	}
	return st
}

// Reconcile renders the projection of snap. Failures are logged and
// returned wrapped in ErrReconcile for callers that want to count them.
func (r *Reconciler) Reconcile(ctx context.Context, snap signup.Snapshot) error {
	key := snap.Ref.Key()
	st := r.state(key)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.applied && snap.Version < st.version {
		r.logger.Debug().
			Str(applog.FieldEventKey, key).
			Uint64("version", snap.Version).
			Uint64("applied", st.version).
			Msg("skipping stale control refresh")
		return nil
	}

	err := r.renderer.RenderControls(ctx, snap.Ref, Project(snap, r.roster))
	metrics.IncControlReconcile(err)
	if err != nil {
		logger := applog.WithContext(ctx, r.logger)
		logger.Warn().
			Err(err).
			Str(applog.FieldEventKey, key).
			Str(applog.FieldMessageID, snap.Ref.MessageID).
			Msg("could not refresh announcement controls")
		return fmt.Errorf("%w: %v", ErrReconcile, err)
	}
	st.version = snap.Version
	st.applied = true
	return nil
}

// Forget drops version tracking for key.
func (r *Reconciler) Forget(key string) {
	r.mu.Lock()
	delete(r.states, key)
	r.mu.Unlock()
}
