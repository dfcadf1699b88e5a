package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galdahar56/raid-logger-bot-2/internal/controls"
	"github.com/galdahar56/raid-logger-bot-2/internal/events"
	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
	"github.com/galdahar56/raid-logger-bot-2/internal/notify"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

const announcement = "**Activity:** Halls of Valor\n**Date/Time:** 2025-03-14 20:00\n**Run ID:** R1"

var (
	alice = signup.Claimant{UserID: "u-a", DisplayName: "Alice"}
	bob   = signup.Claimant{UserID: "u-b", DisplayName: "Bob"}
	carol = signup.Claimant{UserID: "u-c", DisplayName: "Carol"}
	dave  = signup.Claimant{UserID: "u-d", DisplayName: "Dave"}
	erin  = signup.Claimant{UserID: "u-e", DisplayName: "Erin"}
	frank = signup.Claimant{UserID: "u-f", DisplayName: "Frank"}

	ref = signup.EventRef{ChannelID: "c1", MessageID: "m1"}
)

type staticSource map[string]string

func (s staticSource) FetchAnnouncement(_ context.Context, r signup.EventRef) (string, error) {
	text, ok := s[r.MessageID]
	if !ok {
		return "", signup.ErrAnnouncementNotFound
	}
	return text, nil
}

type recordingRenderer struct {
	mu   sync.Mutex
	last []controls.Control
	n    int
}

func (r *recordingRenderer) RenderControls(_ context.Context, _ signup.EventRef, cs []controls.Control) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = cs
	r.n++
	return nil
}

func (r *recordingRenderer) control(id signup.RoleID) controls.Control {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.last {
		if c.Role == id && c.Action == controls.ActionSignup {
			return c
		}
	}
	return controls.Control{}
}

type manualTimer struct {
	mu    *sync.Mutex
	f     func()
	fired bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired {
		return false
	}
	t.fired = true
	return true
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) notify.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{mu: &c.mu, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) elapse() {
	c.mu.Lock()
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type posterFunc func(ctx context.Context, n notify.Notice) error

func (f posterFunc) PostNotice(ctx context.Context, n notify.Notice) error { return f(ctx, n) }

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type harness struct {
	coord    *Coordinator
	table    *ledger.MemoryTable
	renderer *recordingRenderer
	clock    *manualClock
	notifier *notify.Notifier
	bus      *events.Publisher

	mu      sync.Mutex
	notices []notify.Notice
}

func newHarness(t *testing.T, overrides ...string) *harness {
	t.Helper()
	h := &harness{
		table:    ledger.NewMemoryTable(),
		renderer: &recordingRenderer{},
		clock:    &manualClock{},
		bus:      events.NewMemoryPublisher(),
	}
	t.Cleanup(func() { _ = h.bus.Close() })
	h.table.Seed("Run_Schedule", [][]string{
		{"Run ID", "Dungeon", "Date", "", "", "Tank", "Healer", "DPS 1", "DPS 2", "", "Key"},
		{"R1", "Halls of Valor"},
	})

	syncer := ledger.NewSynchronizer(h.table, ledger.DefaultLayout())
	registry := signup.NewRegistry(
		staticSource{"m1": announcement, "bad": "hello there"},
		extract.New(extract.Options{}),
		signup.WithOverrides(signup.NewOverrides(overrides...)),
	)
	h.notifier = notify.New(notify.Config{
		Delay: time.Second,
		Poster: posterFunc(func(_ context.Context, n notify.Notice) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notices = append(h.notices, n)
			return nil
		}),
		Recorder:  &FormedRecorder{Ledger: syncer, Events: h.bus},
		AfterFunc: h.clock.AfterFunc,
	})
	t.Cleanup(h.notifier.Close)

	coord, err := New(Config{
		Registry: registry,
		Ledger:   syncer,
		Controls: controls.NewReconciler(h.renderer, registry.Roster()),
		Notifier: h.notifier,
		Events:   h.bus,
	})
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) noticeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notices)
}

func (h *harness) signup(c signup.Claimant, role signup.RoleID) Outcome {
	return h.coord.Handle(context.Background(), Request{Ref: ref, Action: controls.ActionSignup, Role: role, Claimant: c})
}

func (h *harness) undo(c signup.Claimant) Outcome {
	return h.coord.Handle(context.Background(), Request{Ref: ref, Action: controls.ActionUndo, Role: signup.RoleAny, Claimant: c})
}

func (h *harness) cell(t *testing.T, column string) string {
	t.Helper()
	v, err := h.table.ReadCell(context.Background(), "Run_Schedule", column, 2)
	require.NoError(t, err)
	return v
}

func (h *harness) fill(t *testing.T) {
	t.Helper()
	for _, step := range []struct {
		c    signup.Claimant
		role signup.RoleID
	}{
		{alice, signup.RoleTank},
		{bob, signup.RoleHealer},
		{carol, signup.RoleDPS},
		{dave, signup.RoleDPS},
		{erin, signup.RoleKeyholder},
	} {
		out := h.signup(step.c, step.role)
		require.Equal(t, StatusClaimed, out.Status, out.Reply)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Registry: signup.NewRegistry(nil, nil)})
	assert.Error(t, err)
}

func TestHandle_TankKeyholderUndo(t *testing.T) {
	h := newHarness(t)

	out := h.signup(alice, signup.RoleTank)
	require.Equal(t, StatusClaimed, out.Status)
	assert.Equal(t, "✅ You signed up as **TANK**.", out.Reply)
	assert.Equal(t, "Halls of Valor", out.Snapshot.Descriptor.Activity)
	assert.Equal(t, "Alice", h.cell(t, "F"))
	assert.True(t, h.renderer.control(signup.RoleTank).Disabled)

	out = h.signup(bob, signup.RoleTank)
	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Err, signup.ErrRoleTaken)
	assert.Equal(t, "❌ **TANK** is already taken.", out.Reply)

	out = h.signup(alice, signup.RoleKeyholder)
	require.Equal(t, StatusClaimed, out.Status)
	assert.Equal(t, "Alice", h.cell(t, "K"))

	out = h.undo(alice)
	require.Equal(t, StatusReleased, out.Status)
	assert.Equal(t, signup.RoleTank, out.Role)
	assert.Equal(t, "❌ Your signup for **TANK** has been removed.", out.Reply)

	require.Len(t, out.Snapshot.Claims, 1)
	holder, ok := out.Snapshot.Holder(signup.RoleKeyholder)
	require.True(t, ok)
	assert.Equal(t, alice, holder)

	assert.Empty(t, h.cell(t, "F"))
	assert.Equal(t, "Alice", h.cell(t, "K"))
	log, err := h.table.ReadRows(context.Background(), "Signup Log")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "KEYHOLDER", log[0][ledger.LogColRole])
	assert.False(t, h.renderer.control(signup.RoleTank).Disabled)
}

func TestHandle_ReleaseInsideWindowCancelsNotice(t *testing.T) {
	h := newHarness(t, erin.UserID)

	h.fill(t)
	assert.True(t, h.notifier.Pending("R1"))

	out := h.undo(carol)
	require.Equal(t, StatusReleased, out.Status)
	assert.Equal(t, signup.RoleDPS1, out.Role)
	assert.False(t, h.notifier.Pending("R1"))

	h.clock.elapse()
	assert.Zero(t, h.noticeCount())
}

func TestHandle_FillPostsOnce(t *testing.T) {
	h := newHarness(t, erin.UserID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	formed, err := h.bus.Subscriber().Subscribe(ctx, events.TopicFormed)
	require.NoError(t, err)

	h.fill(t)
	h.clock.elapse()
	require.Equal(t, 1, h.noticeCount())
	assert.Equal(t, "✅ Group Formed: Halls of Valor", h.notices[0].Title)

	select {
	case msg := <-formed:
		msg.Ack()
		var got events.GroupFormed
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "R1", got.RunID)
		assert.Equal(t, []string{"Alice", "Bob", "Carol", "Dave", "Erin"}, got.Members)
	case <-ctx.Done():
		t.Fatal("group formed event not published")
	}

	schedule, err := h.table.ReadRows(context.Background(), "Run_Schedule")
	require.NoError(t, err)
	assert.Equal(t, "Formed: R1", schedule[len(schedule)-1][0])

	// Refilling after the notice went out never posts again.
	require.Equal(t, StatusReleased, h.undo(carol).Status)
	require.Equal(t, StatusClaimed, h.signup(carol, signup.RoleDPS).Status)
	assert.False(t, h.notifier.Pending("R1"))
	h.clock.elapse()
	assert.Equal(t, 1, h.noticeCount())
}

func TestHandle_OverrideDisplacementRefreshesPendingNotice(t *testing.T) {
	h := newHarness(t, erin.UserID, frank.UserID)

	h.fill(t)
	require.True(t, h.notifier.Pending("R1"))

	out := h.signup(frank, signup.RoleTank)
	require.Equal(t, StatusClaimed, out.Status, out.Reply)
	assert.True(t, out.Snapshot.Complete)
	assert.True(t, h.notifier.Pending("R1"))
	assert.Equal(t, "Frank", h.cell(t, "F"))

	h.clock.elapse()
	require.Equal(t, 1, h.noticeCount())
	var names []string
	for _, f := range h.notices[0].Fields {
		names = append(names, f.Value)
	}
	assert.Contains(t, names, "Frank")
	assert.NotContains(t, names, "Alice")
}

func TestHandle_PublishesRoleChanges(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	claimed, err := h.bus.Subscriber().Subscribe(ctx, events.TopicClaimed)
	require.NoError(t, err)

	reqCtx := context.Background()
	out := h.coord.Handle(reqCtx, Request{Ref: ref, Action: controls.ActionSignup, Role: signup.RoleHealer, Claimant: bob})
	require.Equal(t, StatusClaimed, out.Status)

	select {
	case msg := <-claimed:
		msg.Ack()
		assert.NotEmpty(t, msg.Metadata.Get(events.MetadataRequestID))
		var got events.RoleChange
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, signup.RoleHealer, got.Role)
		assert.Equal(t, bob, got.Claimant)
		assert.Equal(t, "R1", got.RunID)
	case <-ctx.Done():
		t.Fatal("claim event not published")
	}
}

func TestHandle_Rejections(t *testing.T) {
	h := newHarness(t)

	out := h.signup(alice, signup.RoleKeyholder)
	assert.ErrorIs(t, out.Err, signup.ErrIneligibleForAuxiliary)
	assert.Equal(t, "❌ Sign up for a main role before taking **KEYHOLDER**.", out.Reply)

	out = h.undo(alice)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReplyNotSignedUp, out.Reply)

	require.Equal(t, StatusClaimed, h.signup(alice, signup.RoleTank).Status)
	out = h.signup(alice, signup.RoleHealer)
	assert.ErrorIs(t, out.Err, signup.ErrAlreadySignedUp)
	assert.Equal(t, ReplyAlready, out.Reply)

	out = h.signup(bob, "bard")
	assert.ErrorIs(t, out.Err, signup.ErrUnknownRole)
	assert.Equal(t, ReplyUnknownRole, out.Reply)

	log, err := h.table.ReadRows(context.Background(), "Signup Log")
	require.NoError(t, err)
	assert.Len(t, log, 1, "rejections never reach the ledger")
}

func TestHandle_EventResolution(t *testing.T) {
	h := newHarness(t)

	out := h.coord.Handle(context.Background(), Request{
		Ref: signup.EventRef{ChannelID: "c1", MessageID: "gone"}, Action: controls.ActionUndo, Claimant: alice,
	})
	assert.Equal(t, StatusNotActive, out.Status)
	assert.Equal(t, ReplyNotActive, out.Reply)

	out = h.coord.Handle(context.Background(), Request{
		Ref: signup.EventRef{ChannelID: "c1", MessageID: "bad"}, Action: controls.ActionSignup, Role: signup.RoleTank, Claimant: alice,
	})
	assert.Equal(t, StatusMalformed, out.Status)
	assert.ErrorIs(t, out.Err, signup.ErrMalformedEvent)
}

func TestHandle_RateLimited(t *testing.T) {
	registry := signup.NewRegistry(staticSource{"m1": announcement}, extract.New(extract.Options{}))
	coord, err := New(Config{
		Registry: registry,
		Ledger:   ledger.NewSynchronizer(ledger.NewMemoryTable(), ledger.DefaultLayout()),
		Limiter:  denyAll{},
	})
	require.NoError(t, err)

	out := coord.Handle(context.Background(), Request{Ref: ref, Action: controls.ActionSignup, Role: signup.RoleTank, Claimant: alice})
	assert.Equal(t, StatusRateLimited, out.Status)
	assert.Equal(t, ReplyRateLimited, out.Reply)
	assert.Zero(t, registry.Len(), "throttled requests do not touch the registry")
}

type brokenLedger struct{}

func (brokenLedger) RecordClaim(context.Context, ledger.Entry, *signup.Claimant) error {
	return &ledger.StepError{Step: "append log record", Err: errors.New("quota exceeded")}
}

func (brokenLedger) RecordRelease(context.Context, ledger.Entry) error {
	return &ledger.StepError{Step: "delete log record", Err: errors.New("quota exceeded")}
}

func TestHandle_LedgerFailureKeepsCommit(t *testing.T) {
	registry := signup.NewRegistry(staticSource{"m1": announcement}, extract.New(extract.Options{}))
	coord, err := New(Config{Registry: registry, Ledger: brokenLedger{}})
	require.NoError(t, err)

	out := coord.Handle(context.Background(), Request{Ref: ref, Action: controls.ActionSignup, Role: signup.RoleTank, Claimant: alice})
	require.Equal(t, StatusClaimed, out.Status)
	assert.ErrorIs(t, out.LedgerErr, ledger.ErrLedgerSync)
	assert.True(t, strings.HasSuffix(out.Reply, ledgerWarning))

	ev, ok := registry.Lookup("m1")
	require.True(t, ok)
	holder, ok := ev.Snapshot().Holder(signup.RoleTank)
	require.True(t, ok)
	assert.Equal(t, alice, holder)

	out = coord.Handle(context.Background(), Request{Ref: ref, Action: controls.ActionUndo, Claimant: alice})
	require.Equal(t, StatusReleased, out.Status)
	assert.ErrorIs(t, out.LedgerErr, ledger.ErrLedgerSync)
	assert.Empty(t, ev.Snapshot().Claims)
}

func TestSetOverrides(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, StatusClaimed, h.signup(alice, signup.RoleTank).Status)
	assert.ErrorIs(t, h.signup(bob, signup.RoleTank).Err, signup.ErrRoleTaken)

	h.coord.SetOverrides([]string{bob.UserID})
	out := h.signup(bob, signup.RoleTank)
	require.Equal(t, StatusClaimed, out.Status)
	holder, _ := out.Snapshot.Holder(signup.RoleTank)
	assert.Equal(t, bob, holder)
}

func TestHandle_ConcurrentClaimsSingleWinner(t *testing.T) {
	h := newHarness(t)
	claimants := []signup.Claimant{alice, bob, carol, dave, erin}

	var wg sync.WaitGroup
	results := make([]Outcome, len(claimants))
	for i, c := range claimants {
		wg.Add(1)
		go func(i int, c signup.Claimant) {
			defer wg.Done()
			results[i] = h.signup(c, signup.RoleHealer)
		}(i, c)
	}
	wg.Wait()

	winners := 0
	for _, out := range results {
		switch out.Status {
		case StatusClaimed:
			winners++
		case StatusRejected:
			assert.ErrorIs(t, out.Err, signup.ErrRoleTaken)
		default:
			t.Fatalf("unexpected status %s", out.Status)
		}
	}
	assert.Equal(t, 1, winners)
	log, err := h.table.ReadRows(context.Background(), "Signup Log")
	require.NoError(t, err)
	assert.Len(t, log, 1)
}
