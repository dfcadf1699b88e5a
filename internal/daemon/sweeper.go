package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Evictor drops idle events.
type Evictor interface {
	EvictIdle(maxIdle time.Duration) []string
}

// Forgetter drops per-event bookkeeping held outside the registry.
type Forgetter interface {
	Forget(key string)
}

// sweeper evicts idle events on a cron schedule.
type sweeper struct {
	evictor Evictor
	forget  Forgetter
	idle    time.Duration
	logger  zerolog.Logger
}

func (s *sweeper) sweep() int {
	keys := s.evictor.EvictIdle(s.idle)
	if s.forget != nil {
		for _, k := range keys {
			s.forget.Forget(k)
		}
	}
	if len(keys) > 0 {
		s.logger.Info().Int("evicted", len(keys)).Msg("idle sweep completed")
	}
	return len(keys)
}

// run schedules the sweep and blocks until ctx is done.
func (s *sweeper) run(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.sweep() }); err != nil {
		return fmt.Errorf("eviction schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info().Str("schedule", spec).Dur("idle_ttl", s.idle).Msg("idle sweeper started")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
