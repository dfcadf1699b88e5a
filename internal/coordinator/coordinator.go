// Package coordinator runs one signup request end to end: resolve the event,
// commit the transition, then mirror the outcome to the ledger, the visible
// controls, the group notifier and the event bus.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/galdahar56/raid-logger-bot-2/internal/controls"
	"github.com/galdahar56/raid-logger-bot-2/internal/events"
	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/metrics"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
	"github.com/galdahar56/raid-logger-bot-2/internal/telemetry"
)

// Ledger mirrors committed transitions.
type Ledger interface {
	RecordClaim(ctx context.Context, e ledger.Entry, displaced *signup.Claimant) error
	RecordRelease(ctx context.Context, e ledger.Entry) error
}

// ControlReconciler refreshes the announcement's controls.
type ControlReconciler interface {
	Reconcile(ctx context.Context, snap signup.Snapshot) error
}

// GroupNotifier schedules and cancels group-formed notices.
type GroupNotifier interface {
	Arm(snap signup.Snapshot) bool
	Disarm(runID string) bool
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Limiter throttles requests per user.
type Limiter interface {
	Allow(userID string) bool
}

// Status classifies an Outcome.
type Status int

const (
	StatusClaimed Status = iota
	StatusReleased
	StatusRejected
	StatusNotActive
	StatusMalformed
	StatusRateLimited
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusClaimed:
		return "claimed"
	case StatusReleased:
		return "released"
	case StatusRejected:
		return "rejected"
	case StatusNotActive:
		return "not_active"
	case StatusMalformed:
		return "malformed"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Request is one press of a signup or undo control.
type Request struct {
	Ref      signup.EventRef
	Action   controls.Action
	Role     signup.RoleID
	Claimant signup.Claimant
}

// Outcome is what the requester is told, plus the committed state.
type Outcome struct {
	Status Status
	Role   signup.RoleID
	Reply  string
	// Err is the rejection or failure, nil on success.
	Err error
	// LedgerErr is set when the transition committed but the ledger
	// could not be updated.
	LedgerErr error
	Snapshot  *signup.Snapshot
}

// Config wires the coordinator's collaborators. Registry and Ledger are
// required; the rest are optional.
type Config struct {
	Registry *signup.Registry
	Ledger   Ledger
	Controls ControlReconciler
	Notifier GroupNotifier
	Events   Publisher
	Limiter  Limiter
	Clock    func() time.Time
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	registry *signup.Registry
	ledger   Ledger
	controls ControlReconciler
	notifier GroupNotifier
	events   Publisher
	limiter  Limiter
	now      func() time.Time
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// New validates cfg and returns a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("coordinator: registry is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("coordinator: ledger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Coordinator{
		registry: cfg.Registry,
		ledger:   cfg.Ledger,
		controls: cfg.Controls,
		notifier: cfg.Notifier,
		events:   cfg.Events,
		limiter:  cfg.Limiter,
		now:      cfg.Clock,
		tracer:   telemetry.Tracer("raidbot/coordinator"),
		logger:   applog.WithComponent("coordinator"),
	}, nil
}

// Registry exposes the event registry.
func (c *Coordinator) Registry() *signup.Registry { return c.registry }

// SetOverrides replaces the override allow-list.
func (c *Coordinator) SetOverrides(ids []string) {
	c.registry.Overrides().Replace(ids)
	c.logger.Info().Int("count", len(ids)).Msg("override list updated")
}

// Handle processes req. The returned Outcome always carries a reply.
func (c *Coordinator) Handle(ctx context.Context, req Request) Outcome {
	if applog.RequestIDFromContext(ctx) == "" {
		ctx = applog.ContextWithRequestID(ctx, uuid.NewString())
	}
	ctx = applog.ContextWithEventKey(ctx, req.Ref.Key())
	ctx = applog.ContextWithUserID(ctx, req.Claimant.UserID)

	ctx, span := c.tracer.Start(ctx, "signup."+string(req.Action))
	out := c.handle(ctx, req)
	runID := ""
	if out.Snapshot != nil {
		runID = out.Snapshot.Descriptor.RunID
	}
	span.SetAttributes(telemetry.SignupAttributes(req.Ref.Key(), runID, string(req.Action), string(out.Role))...)
	if out.Status == StatusFailed {
		telemetry.EndSpan(span, out.Err)
	} else {
		telemetry.EndSpan(span, nil)
	}
	return out
}

func (c *Coordinator) handle(ctx context.Context, req Request) Outcome {
	logger := applog.WithContext(ctx, c.logger)

	if c.limiter != nil && !c.limiter.Allow(req.Claimant.UserID) {
		logger.Debug().Msg("request rate limited")
		return Outcome{Status: StatusRateLimited, Role: req.Role, Reply: ReplyRateLimited}
	}

	ev, err := c.registry.Get(ctx, req.Ref)
	if err != nil {
		metrics.IncSignupRejection(string(req.Action), reason(err))
		switch {
		case errors.Is(err, signup.ErrEventNotActive):
			logger.Debug().Err(err).Msg("event not active")
			return Outcome{Status: StatusNotActive, Role: req.Role, Reply: ReplyNotActive, Err: err}
		case errors.Is(err, signup.ErrMalformedEvent):
			logger.Info().Err(err).Msg("announcement could not be parsed")
			return Outcome{Status: StatusMalformed, Role: req.Role, Reply: ReplyMalformed, Err: err}
		default:
			logger.Error().Err(err).Msg("event lookup failed")
			return Outcome{Status: StatusFailed, Role: req.Role, Reply: ReplyFailed, Err: err}
		}
	}

	switch req.Action {
	case controls.ActionSignup:
		return c.claim(ctx, ev, req)
	case controls.ActionUndo:
		return c.release(ctx, ev, req)
	default:
		err := fmt.Errorf("coordinator: unknown action %q", req.Action)
		return Outcome{Status: StatusFailed, Role: req.Role, Reply: ReplyFailed, Err: err}
	}
}

func (c *Coordinator) claim(ctx context.Context, ev *signup.Event, req Request) Outcome {
	logger := applog.WithContext(ctx, c.logger)

	res, err := ev.Claim(req.Claimant, req.Role)
	if err != nil {
		return c.rejected(ctx, req, err)
	}
	metrics.IncSignupTransition("claim", string(res.Role.ID))
	logger.Info().
		Str(applog.FieldRole, string(res.Role.ID)).
		Str(applog.FieldRunID, res.Snapshot.Descriptor.RunID).
		Bool("complete", res.Snapshot.Complete).
		Msg("role claimed")

	out := Outcome{Status: StatusClaimed, Role: res.Role.ID, Reply: claimedReply(res.Role.ID), Snapshot: &res.Snapshot}
	entry := ledger.Entry{Claimant: res.Claimant, Role: res.Role, Descriptor: res.Snapshot.Descriptor}
	if err := c.ledger.RecordClaim(ctx, entry, res.Displaced); err != nil {
		out.LedgerErr = err
		out.Reply += ledgerWarning
	}

	c.reconcile(ctx, res.Snapshot)
	// Arm also refreshes a pending notice after an override displacement.
	if c.notifier != nil && res.Snapshot.Complete {
		c.notifier.Arm(res.Snapshot)
	}
	c.publish(ctx, events.TopicClaimed, events.RoleChange{
		EventKey:  req.Ref.Key(),
		RunID:     res.Snapshot.Descriptor.RunID,
		Activity:  res.Snapshot.Descriptor.Activity,
		Role:      res.Role.ID,
		Claimant:  res.Claimant,
		Displaced: res.Displaced,
		Complete:  res.Snapshot.Complete,
		Version:   res.Snapshot.Version,
		At:        c.now(),
	})
	return out
}

func (c *Coordinator) release(ctx context.Context, ev *signup.Event, req Request) Outcome {
	logger := applog.WithContext(ctx, c.logger)

	res, err := ev.Release(req.Claimant, req.Role)
	if err != nil {
		return c.rejected(ctx, req, err)
	}
	metrics.IncSignupTransition("release", string(res.Role.ID))
	logger.Info().
		Str(applog.FieldRole, string(res.Role.ID)).
		Str(applog.FieldRunID, res.Snapshot.Descriptor.RunID).
		Msg("role released")

	// Cancel before any I/O so a pending notice cannot fire on a stale fill.
	if c.notifier != nil {
		c.notifier.Disarm(res.Snapshot.Descriptor.RunID)
	}

	out := Outcome{Status: StatusReleased, Role: res.Role.ID, Reply: releasedReply(res.Role.ID), Snapshot: &res.Snapshot}
	entry := ledger.Entry{Claimant: res.Claimant, Role: res.Role, Descriptor: res.Snapshot.Descriptor}
	if err := c.ledger.RecordRelease(ctx, entry); err != nil {
		out.LedgerErr = err
		out.Reply += ledgerWarning
	}

	c.reconcile(ctx, res.Snapshot)
	c.publish(ctx, events.TopicReleased, events.RoleChange{
		EventKey: req.Ref.Key(),
		RunID:    res.Snapshot.Descriptor.RunID,
		Activity: res.Snapshot.Descriptor.Activity,
		Role:     res.Role.ID,
		Claimant: res.Claimant,
		Complete: res.Snapshot.Complete,
		Version:  res.Snapshot.Version,
		At:       c.now(),
	})
	return out
}

func (c *Coordinator) rejected(ctx context.Context, req Request, err error) Outcome {
	metrics.IncSignupRejection(string(req.Action), reason(err))
	logger := applog.WithContext(ctx, c.logger)
	logger.Debug().Err(err).Str(applog.FieldRole, string(req.Role)).Msg("request rejected")
	return Outcome{Status: StatusRejected, Role: req.Role, Reply: rejectionReply(err, req.Role), Err: err}
}

// reconcile errors are already logged by the reconciler.
func (c *Coordinator) reconcile(ctx context.Context, snap signup.Snapshot) {
	if c.controls == nil {
		return
	}
	_ = c.controls.Reconcile(ctx, snap)
}

func (c *Coordinator) publish(ctx context.Context, topic string, payload any) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, topic, payload); err != nil {
		logger := applog.WithContext(ctx, c.logger)
		logger.Warn().Err(err).Str("topic", topic).Msg("could not publish signup event")
	}
}
