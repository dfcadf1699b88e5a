package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
	"github.com/galdahar56/raid-logger-bot-2/internal/ledger"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTimer struct {
	sched *fakeScheduler
	f     func()
	done  bool
	// racing makes Stop report that the callback already started.
	racing bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.done || t.racing {
		return false
	}
	t.done = true
	return true
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
	racing bool
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, f: f, racing: s.racing}
	s.timers = append(s.timers, t)
	return t
}

// run fires t by hand, as the runtime would after a lost Stop race.
func (t *fakeTimer) run() {
	t.sched.mu.Lock()
	t.done = true
	t.sched.mu.Unlock()
	t.f()
}

// FireAll runs every live timer synchronously.
func (s *fakeScheduler) FireAll() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.done {
			t.done = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type fakePoster struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (p *fakePoster) PostNotice(_ context.Context, n Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.notices = append(p.notices, n)
	return nil
}

func (p *fakePoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.notices)
}

type harness struct {
	notifier *Notifier
	sched    *fakeScheduler
	poster   *fakePoster
	table    *ledger.MemoryTable
	registry *signup.Registry
}

func newHarness(t *testing.T, store NotifiedStore, overrides ...string) *harness {
	t.Helper()
	h := &harness{
		sched:  &fakeScheduler{},
		poster: &fakePoster{},
		table:  ledger.NewMemoryTable(),
	}
	h.table.Seed("Form Responses 1", [][]string{
		{"Timestamp", "Contact", "Dungeon", "Key", "Notes", "Time", "Run"},
		{"t", "Org#1", "Halls of Valor", "+12", "bring flasks", "8pm", "R1"},
	})
	h.registry = signup.NewRegistry(nil, nil, signup.WithOverrides(signup.NewOverrides(overrides...)))
	h.notifier = New(Config{
		Delay:     time.Second,
		Store:     store,
		Forms:     NewSheetFormReader(h.table, ""),
		Poster:    h.poster,
		Recorder:  ledger.NewSynchronizer(h.table, ledger.DefaultLayout()),
		AfterFunc: h.sched.AfterFunc,
	})
	t.Cleanup(h.notifier.Close)
	return h
}

func (h *harness) event(runID string) *signup.Event {
	return h.registry.Register(
		signup.EventRef{ChannelID: "c", MessageID: "m-" + runID},
		extract.Descriptor{Activity: "HoV", RunID: runID},
	)
}

var (
	tank   = signup.Claimant{UserID: "1", DisplayName: "Tanky"}
	healer = signup.Claimant{UserID: "2", DisplayName: "Heals"}
	dps1   = signup.Claimant{UserID: "3", DisplayName: "Stabby"}
	dps2   = signup.Claimant{UserID: "4", DisplayName: "Zappy"}
	keyer  = signup.Claimant{UserID: "5", DisplayName: "Keys"}
)

// fill claims every role; keyer is an override user so it can take the
// key holder slot without a primary role.
func fill(t *testing.T, ev *signup.Event) signup.Snapshot {
	t.Helper()
	var res signup.ClaimResult
	var err error
	for _, step := range []struct {
		c    signup.Claimant
		role signup.RoleID
	}{
		{tank, signup.RoleTank},
		{healer, signup.RoleHealer},
		{dps1, signup.RoleDPS},
		{dps2, signup.RoleDPS},
		{keyer, signup.RoleKeyholder},
	} {
		res, err = ev.Claim(step.c, step.role)
		require.NoError(t, err)
	}
	require.True(t, res.Completed)
	return res.Snapshot
}

func TestNotifier_ReleaseInsideWindowCancels(t *testing.T) {
	h := newHarness(t, NewMemoryStore(), keyer.UserID)
	ev := h.event("R1")

	snap := fill(t, ev)
	require.True(t, h.notifier.Arm(snap))
	require.True(t, h.notifier.Pending("R1"))

	rel, err := ev.Release(dps1, signup.RoleAny)
	require.NoError(t, err)
	assert.Equal(t, signup.RoleDPS1, rel.Role.ID)
	assert.True(t, h.notifier.Disarm("R1"))
	assert.False(t, h.notifier.Disarm("R1"), "disarm is idempotent")

	h.sched.FireAll()
	assert.Zero(t, h.poster.count())
	assert.False(t, h.notifier.Pending("R1"))
}

func TestNotifier_PostsOnceAfterWindow(t *testing.T) {
	h := newHarness(t, NewMemoryStore(), keyer.UserID)
	ev := h.event("R1")

	snap := fill(t, ev)
	require.True(t, h.notifier.Arm(snap))
	assert.False(t, h.notifier.Arm(snap), "second arm only refreshes")

	h.sched.FireAll()
	require.Equal(t, 1, h.poster.count())

	n := h.poster.notices[0]
	assert.Equal(t, "✅ Group Formed: Halls of Valor", n.Title)
	assert.Equal(t, "Run ID: R1", n.Footer)
	assert.Equal(t, NoticeColor, n.Color)
	assert.Equal(t, Field{Name: "Key Level", Value: "+12", Inline: true}, n.Fields[0])
	assert.Equal(t, Field{Name: "🛡 Tank", Value: "Tanky", Inline: true}, n.Fields[4])

	rows, err := h.table.ReadRows(context.Background(), "Run_Schedule")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Formed: R1", "Tanky", "Heals", "Stabby", "Zappy", "Keys"}, rows[0])

	// Release and refill after the notice: no second announcement.
	_, err = ev.Release(dps2, signup.RoleAny)
	require.NoError(t, err)
	h.notifier.Disarm("R1")
	res, err := ev.Claim(dps2, signup.RoleDPS)
	require.NoError(t, err)
	assert.False(t, h.notifier.Arm(res.Snapshot))
	h.sched.FireAll()
	assert.Equal(t, 1, h.poster.count())
}

func TestNotifier_IncompleteSnapshotIgnored(t *testing.T) {
	h := newHarness(t, NewMemoryStore())
	ev := h.event("R2")
	res, err := ev.Claim(tank, signup.RoleTank)
	require.NoError(t, err)

	assert.False(t, h.notifier.Arm(res.Snapshot))
	assert.False(t, h.notifier.Pending("R2"))
}

func TestNotifier_StaleTimerIgnored(t *testing.T) {
	h := newHarness(t, NewMemoryStore(), keyer.UserID)
	snap := fill(t, h.event("R1"))

	// The first timer loses the race with Disarm: Stop fails, so its
	// callback still runs, but after a re-arm with a newer token.
	h.sched.racing = true
	require.True(t, h.notifier.Arm(snap))
	stale := h.sched.timers[0]
	h.notifier.Disarm("R1")
	h.sched.racing = false

	require.True(t, h.notifier.Arm(snap))
	stale.run()
	assert.Zero(t, h.poster.count(), "stale callback must not post")
	assert.True(t, h.notifier.Pending("R1"))

	h.sched.FireAll()
	assert.Equal(t, 1, h.poster.count())
}

func TestNotifier_PostFailureAllowsRetry(t *testing.T) {
	store := NewMemoryStore()
	h := newHarness(t, store, keyer.UserID)
	snap := fill(t, h.event("R1"))

	var fired []error
	h.notifier.cfg.OnFired = func(_ string, _ bool, err error) { fired = append(fired, err) }

	h.poster.err = errors.New("missing access")
	require.True(t, h.notifier.Arm(snap))
	h.sched.FireAll()
	require.Len(t, fired, 1)
	assert.Error(t, fired[0])

	notified, err := store.IsNotified(context.Background(), "R1")
	require.NoError(t, err)
	assert.False(t, notified)

	h.poster.err = nil
	require.True(t, h.notifier.Arm(snap))
	h.sched.FireAll()
	assert.Equal(t, 1, h.poster.count())
}

func TestNotifier_Reset(t *testing.T) {
	h := newHarness(t, NewMemoryStore(), keyer.UserID)
	snap := fill(t, h.event("R1"))

	require.True(t, h.notifier.Arm(snap))
	h.sched.FireAll()
	require.False(t, h.notifier.Arm(snap))

	require.NoError(t, h.notifier.Reset(context.Background(), "R1"))
	require.True(t, h.notifier.Arm(snap))
	h.sched.FireAll()
	assert.Equal(t, 2, h.poster.count())
}

func TestNotifier_MissingFormStillPosts(t *testing.T) {
	h := newHarness(t, NewMemoryStore(), keyer.UserID)
	snap := fill(t, h.event("R7"))

	require.True(t, h.notifier.Arm(snap))
	h.sched.FireAll()
	require.Equal(t, 1, h.poster.count())
	n := h.poster.notices[0]
	assert.Equal(t, "✅ Group Formed: HoV", n.Title)
	assert.Equal(t, "N/A", n.Fields[0].Value)
	assert.Equal(t, "None", n.Fields[3].Value)
}

func TestNotifier_RealTimerAndClose(t *testing.T) {
	poster := &fakePoster{}
	registry := signup.NewRegistry(nil, nil, signup.WithOverrides(signup.NewOverrides(keyer.UserID)))
	n := New(Config{Delay: 10 * time.Millisecond, Poster: poster})

	ev := registry.Register(signup.EventRef{MessageID: "m"}, extract.Descriptor{Activity: "A", RunID: "R1"})
	require.True(t, n.Arm(fill(t, ev)))
	require.Eventually(t, func() bool { return poster.count() == 1 }, time.Second, 5*time.Millisecond)

	ev2 := registry.Register(signup.EventRef{MessageID: "m2"}, extract.Descriptor{Activity: "A", RunID: "R2"})
	n2 := New(Config{Delay: time.Hour, Poster: poster})
	require.True(t, n2.Arm(fill(t, ev2)))

	n.Close()
	n2.Close()
	assert.False(t, n2.Pending("R2"))
	assert.False(t, n2.Arm(fill(t, registry.Register(signup.EventRef{MessageID: "m3"}, extract.Descriptor{Activity: "A", RunID: "R3"}))))
}
