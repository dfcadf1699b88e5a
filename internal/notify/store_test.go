package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", ttl), mr
}

func TestStores_MarkOnce(t *testing.T) {
	redisStore, _ := newRedisStore(t, 0)

	stores := map[string]NotifiedStore{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			fresh, err := store.MarkNotified(ctx, "R1")
			require.NoError(t, err)
			assert.True(t, fresh)

			fresh, err = store.MarkNotified(ctx, "R1")
			require.NoError(t, err)
			assert.False(t, fresh)

			ok, err := store.IsNotified(ctx, "R1")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, store.Unmark(ctx, "R1"))
			ok, err = store.IsNotified(ctx, "R1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisStore_KeyAndTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	_, err := store.MarkNotified(ctx, "R9")
	require.NoError(t, err)
	assert.True(t, mr.Exists("raidbot:notified:R9"))
	assert.Equal(t, time.Hour, mr.TTL("raidbot:notified:R9"))

	mr.FastForward(2 * time.Hour)
	ok, err := store.IsNotified(ctx, "R9")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Ping(ctx))
}

func TestRedisStore_SharedAcrossNotifiers(t *testing.T) {
	store, _ := newRedisStore(t, 0)

	a := newHarness(t, store, keyer.UserID)
	b := newHarness(t, store, keyer.UserID)

	require.True(t, a.notifier.Arm(fill(t, a.event("R1"))))
	require.True(t, b.notifier.Arm(fill(t, b.event("R1"))))
	a.sched.FireAll()
	b.sched.FireAll()

	assert.Equal(t, 1, a.poster.count()+b.poster.count())
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	mr.Close()

	_, err := store.MarkNotified(context.Background(), "R1")
	assert.Error(t, err)
}
