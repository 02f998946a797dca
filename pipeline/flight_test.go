package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/contentforge/core"
)

func TestFlightGroupSingleLeader(t *testing.T) {
	group := newFlightGroup(time.Minute)

	leader, f := group.Claim("query:abc")
	require.True(t, leader)

	leaders := 0
	var flights []*flight
	for i := 0; i < 5; i++ {
		isLeader, follower := group.Claim("query:abc")
		if isLeader {
			leaders++
		}
		flights = append(flights, follower)
	}
	assert.Zero(t, leaders, "only the first claim leads")
	for _, follower := range flights {
		assert.Same(t, f, follower, "followers share the leader's flight")
	}

	t.Run("other keys claim independently", func(t *testing.T) {
		isLeader, _ := group.Claim("query:other")
		assert.True(t, isLeader)
	})
}

func TestFlightGroupReleaseWakesWaiters(t *testing.T) {
	group := newFlightGroup(time.Minute)

	leader, f := group.Claim("query:abc")
	require.True(t, leader)

	var wg sync.WaitGroup
	results := make([]core.ID, 3)
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		_, follower := group.Claim("query:abc")
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = group.Wait(context.Background(), follower)
		}(i)
	}

	group.Release("query:abc", f, core.ID(42), nil)
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, core.ID(42), results[i])
	}

	t.Run("key is claimable again after release", func(t *testing.T) {
		leader, _ := group.Claim("query:abc")
		assert.True(t, leader)
	})
}

func TestFlightGroupLeaderErrorPropagates(t *testing.T) {
	group := newFlightGroup(time.Minute)

	_, f := group.Claim("query:abc")
	_, follower := group.Claim("query:abc")

	group.Release("query:abc", f, 0, core.ErrGenerationUnavailable)

	_, err := group.Wait(context.Background(), follower)
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
}

func TestFlightGroupWatchdogForceRelease(t *testing.T) {
	group := newFlightGroup(20 * time.Millisecond)

	leader, f := group.Claim("query:abc")
	require.True(t, leader)
	_, follower := group.Claim("query:abc")

	// The leader never releases; the watchdog must wake the waiter.
	_, err := group.Wait(context.Background(), follower)
	assert.ErrorIs(t, err, ErrFlightTimeout)

	t.Run("late release of a stale flight is a no-op", func(t *testing.T) {
		group.Release("query:abc", f, core.ID(7), nil)
		_, err := group.Wait(context.Background(), f)
		assert.ErrorIs(t, err, ErrFlightTimeout, "outcome stays the watchdog's")
	})

	t.Run("key is claimable after force release", func(t *testing.T) {
		leader, _ := group.Claim("query:abc")
		assert.True(t, leader)
	})
}

func TestFlightGroupWaitHonorsContext(t *testing.T) {
	group := newFlightGroup(time.Minute)

	group.Claim("query:abc")
	_, follower := group.Claim("query:abc")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := group.Wait(ctx, follower)
	assert.ErrorIs(t, err, context.Canceled)
}
