package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	localTestKey    = RatePrefix + "ip:10.0.0.1"
	localTestWindow = 60 * time.Second
	localTestTTL    = 5 * time.Minute
)

func TestLocal_SlideCounts(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()
	base := time.Unix(1000, 0)

	for i := 1; i <= 5; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		count, err := local.Slide(ctx, localTestKey, now.Add(-localTestWindow), now, localTestWindow)
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)
	}
}

func TestLocal_SlidePurgesOldEvents(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()
	base := time.Unix(1000, 0)

	count, err := local.Slide(ctx, localTestKey, base.Add(-localTestWindow), base, localTestWindow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Just past the window: the first event no longer counts.
	later := base.Add(localTestWindow + time.Second)
	count, err = local.Slide(ctx, localTestKey, later.Add(-localTestWindow), later, localTestWindow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLocal_SlideKeepsDuplicateTimestamps(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()
	now := time.Unix(1000, 0)

	// Several events on the same tick must all count.
	var count int64
	var err error
	for i := 0; i < 4; i++ {
		count, err = local.Slide(ctx, localTestKey, now.Add(-localTestWindow), now, localTestWindow)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), count)
}

func TestLocal_SlideIndependentIdentities(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()
	now := time.Unix(1000, 0)

	_, err := local.Slide(ctx, RatePrefix+"ip:10.0.0.1", now.Add(-localTestWindow), now, localTestWindow)
	require.NoError(t, err)

	count, err := local.Slide(ctx, RatePrefix+"ip:10.0.0.2", now.Add(-localTestWindow), now, localTestWindow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLocal_SlideConcurrentSameIdentity(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()
	now := time.Unix(1000, 0)

	const goroutines = 50
	counts := make([]int64, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count, err := local.Slide(ctx, localTestKey, now.Add(-localTestWindow), now, localTestWindow)
			require.NoError(t, err)
			counts[i] = count
		}(i)
	}
	wg.Wait()

	// Serialized per identity: every call sees a distinct count and the
	// final tally equals the number of calls.
	seen := make(map[int64]bool, goroutines)
	for _, c := range counts {
		assert.False(t, seen[c], "count %d observed twice", c)
		seen[c] = true
	}
	assert.True(t, seen[int64(goroutines)])
}

func TestLocal_GetSetDelete(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()

	_, err := local.Get(ctx, SessionPrefix+"missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, local.Set(ctx, SessionPrefix+"abc", []byte(`{"id":"abc"}`), localTestTTL))

	data, err := local.Get(ctx, SessionPrefix+"abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"abc"}`), data)

	require.NoError(t, local.Delete(ctx, SessionPrefix+"abc"))
	_, err = local.Get(ctx, SessionPrefix+"abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_GetExpired(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()

	require.NoError(t, local.Set(ctx, SessionPrefix+"short", []byte("x"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := local.Get(ctx, SessionPrefix+"short")
	assert.ErrorIs(t, err, ErrNotFound, "value past its deadline should read as absent")
}

func TestLocal_CleanupEvictsExpired(t *testing.T) {
	local := NewLocal()
	ctx := context.Background()

	require.NoError(t, local.Set(ctx, SessionPrefix+"short", []byte("x"), 10*time.Millisecond))

	past := time.Now().Add(-time.Hour)
	_, err := local.Slide(ctx, localTestKey, past.Add(-localTestWindow), past, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	local.Cleanup()

	local.mu.RLock()
	_, rateKept := local.rates[localTestKey]
	local.mu.RUnlock()
	assert.False(t, rateKept, "idle rate entry should be evicted")

	shard := local.shard(SessionPrefix + "short")
	shard.mu.RLock()
	_, kvKept := shard.items[SessionPrefix+"short"]
	shard.mu.RUnlock()
	assert.False(t, kvKept, "expired kv item should be evicted")
}

func TestLocal_JanitorClose(t *testing.T) {
	local := NewLocal()
	local.StartJanitor(10 * time.Millisecond)
	require.NoError(t, local.Close())
}

func TestLocal_CloseWithoutJanitor(t *testing.T) {
	local := NewLocal()
	require.NoError(t, local.Close())
}
