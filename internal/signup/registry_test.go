package signup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galdahar56/raid-logger-bot-2/internal/extract"
)

type fakeSource struct {
	mu    sync.Mutex
	texts map[string]string
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeSource) FetchAnnouncement(ctx context.Context, ref EventRef) (string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[ref.MessageID]
	if !ok {
		return "", ErrAnnouncementNotFound
	}
	return text, nil
}

const announcement = "Dungeon: Halls of Valor\nTime: soon\nRun ID: R1"

func newTestRegistry(src *fakeSource, opts ...RegistryOption) *Registry {
	return NewRegistry(src, extract.New(extract.Options{}), opts...)
}

func TestRegistry_RehydratesEmptyRoster(t *testing.T) {
	src := &fakeSource{texts: map[string]string{"m1": announcement}}
	reg := newTestRegistry(src)
	ref := EventRef{ChannelID: "c1", MessageID: "m1"}

	ev, err := reg.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "R1", ev.Descriptor().RunID)
	assert.Empty(t, ev.Snapshot().Claims)

	_, err = ev.Claim(alice, RoleTank)
	require.NoError(t, err)

	again, err := reg.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Same(t, ev, again)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRegistry_EvictedEventComesBackEmpty(t *testing.T) {
	src := &fakeSource{texts: map[string]string{"m1": announcement}}
	reg := newTestRegistry(src)
	ref := EventRef{ChannelID: "c1", MessageID: "m1"}

	ev, err := reg.Get(context.Background(), ref)
	require.NoError(t, err)
	_, err = ev.Claim(alice, RoleTank)
	require.NoError(t, err)

	assert.True(t, reg.Evict("m1"))
	assert.False(t, reg.Evict("m1"))

	fresh, err := reg.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.NotSame(t, ev, fresh)
	assert.Empty(t, fresh.Snapshot().Claims)
	assert.Equal(t, ev.Descriptor(), fresh.Descriptor())
}

func TestRegistry_Failures(t *testing.T) {
	src := &fakeSource{texts: map[string]string{"bad": "just chatting"}}
	reg := newTestRegistry(src)

	_, err := reg.Get(context.Background(), EventRef{MessageID: "gone"})
	assert.ErrorIs(t, err, ErrEventNotActive)

	_, err = reg.Get(context.Background(), EventRef{MessageID: "bad"})
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = reg.Get(context.Background(), EventRef{})
	assert.ErrorIs(t, err, ErrEventNotActive)

	assert.Zero(t, reg.Len())
}

func TestRegistry_ConcurrentRehydrationYieldsOneEvent(t *testing.T) {
	src := &fakeSource{
		texts: map[string]string{"m1": announcement},
		gate:  make(chan struct{}),
	}
	reg := newTestRegistry(src)
	ref := EventRef{ChannelID: "c1", MessageID: "m1"}

	const n = 16
	results := make([]*Event, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev, err := reg.Get(context.Background(), ref)
			assert.NoError(t, err)
			results[i] = ev
		}(i)
	}

	// Let the goroutines pile up on the in-flight fetch before releasing it.
	require.Eventually(t, func() bool { return src.calls.Load() >= 1 }, time.Second, time.Millisecond)
	close(src.gate)
	wg.Wait()

	for _, ev := range results {
		assert.Same(t, results[0], ev)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_RegisterKeepsExisting(t *testing.T) {
	reg := newTestRegistry(&fakeSource{})
	ref := EventRef{ChannelID: "c1", MessageID: "m9"}

	first := reg.Register(ref, extract.Descriptor{Activity: "A", RunID: "R9"})
	second := reg.Register(ref, extract.Descriptor{Activity: "B", RunID: "R10"})
	assert.Same(t, first, second)
	assert.Equal(t, "A", second.Descriptor().Activity)

	got, ok := reg.Lookup("m9")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistry_EvictIdle(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	reg := newTestRegistry(&fakeSource{}, WithClock(clock))
	reg.Register(EventRef{MessageID: "old"}, extract.Descriptor{Activity: "A", RunID: "1"})
	advance(2 * time.Hour)
	live := reg.Register(EventRef{MessageID: "new"}, extract.Descriptor{Activity: "B", RunID: "2"})
	_, err := live.Claim(alice, RoleTank)
	require.NoError(t, err)
	advance(30 * time.Minute)

	evicted := reg.EvictIdle(time.Hour)
	assert.Equal(t, []string{"old"}, evicted)
	assert.Equal(t, 1, reg.Len())

	snaps := reg.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "new", snaps[0].Ref.MessageID)
}

func TestRegistry_GetRacingEvictIdleNeverOrphans(t *testing.T) {
	src := &fakeSource{texts: map[string]string{"m1": announcement}}
	ref := EventRef{ChannelID: "c1", MessageID: "m1"}

	for i := 0; i < 200; i++ {
		var mu sync.Mutex
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		reg := newTestRegistry(src, WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}))
		reg.Register(ref, extract.Descriptor{Activity: "Halls of Valor", RunID: "R1"})
		mu.Lock()
		now = now.Add(2 * time.Hour)
		mu.Unlock()

		var got *Event
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			ev, err := reg.Get(context.Background(), ref)
			assert.NoError(t, err)
			got = ev
		}()
		go func() {
			defer wg.Done()
			reg.EvictIdle(time.Hour)
		}()
		wg.Wait()

		held, ok := reg.Lookup(ref.Key())
		require.True(t, ok, "iteration %d: event handed out but evicted", i)
		require.Same(t, held, got, "iteration %d", i)
	}
}

func TestRegistry_OverridesShared(t *testing.T) {
	o := NewOverrides()
	reg := newTestRegistry(&fakeSource{}, WithOverrides(o))
	ev := reg.Register(EventRef{MessageID: "m"}, extract.Descriptor{Activity: "A", RunID: "1"})

	o.Replace([]string{alice.UserID})
	_, err := ev.Claim(alice, RoleKeyholder)
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.Overrides().Len())
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := newTestRegistry(&fakeSource{})
	_, ok := reg.Snapshot("m1")
	assert.False(t, ok)

	ev := reg.Register(EventRef{ChannelID: "c1", MessageID: "m1"}, extract.Descriptor{Activity: "Halls of Valor", RunID: "R1"})
	_, err := ev.Claim(alice, RoleTank)
	require.NoError(t, err)

	snap, ok := reg.Snapshot("m1")
	require.True(t, ok)
	assert.Equal(t, "R1", snap.Descriptor.RunID)
	assert.Contains(t, snap.Claims, RoleTank)
}
