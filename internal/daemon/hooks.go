package daemon

import (
	"context"
	"errors"
	"fmt"
)

// ShutdownHook releases a resource during graceful shutdown.
// Hooks run in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

func (a *App) registerShutdownHook(name string, hook ShutdownHook) {
	a.hooks = append(a.hooks, namedHook{name: name, hook: hook})
}

func (a *App) runShutdownHooks(ctx context.Context) error {
	var errs []error
	for i := len(a.hooks) - 1; i >= 0; i-- {
		h := a.hooks[i]
		if err := h.hook(ctx); err != nil {
			a.logger.Warn().Err(err).Str("hook", h.name).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		a.logger.Debug().Str("hook", h.name).Msg("shutdown hook completed")
	}
	a.hooks = nil
	return errors.Join(errs...)
}
