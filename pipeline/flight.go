package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/poiesic/contentforge/core"
)

// flightOutcome is what a flight leader hands to its waiters.
type flightOutcome struct {
	resultId core.ID
	err      error
}

// flight is one in-progress computation for a cache key.
type flight struct {
	done     chan struct{}
	outcome  flightOutcome
	timer    *time.Timer
	released bool
}

// flightGroup deduplicates concurrent identical queries: the first claimer
// of a key becomes the leader and computes; later claimers wait for the
// leader's outcome. A watchdog force-releases claims whose leader goes
// stale (crashed worker, wedged capability call) so waiters never hang on
// a dead flight.
type flightGroup struct {
	mu           sync.Mutex
	flights      map[string]*flight
	claimTimeout time.Duration
}

func newFlightGroup(claimTimeout time.Duration) *flightGroup {
	return &flightGroup{
		flights:      make(map[string]*flight),
		claimTimeout: claimTimeout,
	}
}

// Claim atomically claims key. Returns (true, flight) for the leader, who
// must call Release exactly once; (false, flight) for a waiter, who must
// call Wait.
func (g *flightGroup) Claim(key string) (bool, *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.flights[key]; ok {
		return false, f
	}

	f := &flight{done: make(chan struct{})}
	f.timer = time.AfterFunc(g.claimTimeout, func() {
		g.release(key, f, flightOutcome{err: ErrFlightTimeout})
	})
	g.flights[key] = f
	return true, f
}

// Release publishes the leader's outcome and wakes all waiters.
// Releasing an already force-released flight is a no-op.
func (g *flightGroup) Release(key string, f *flight, resultId core.ID, err error) {
	g.release(key, f, flightOutcome{resultId: resultId, err: err})
}

func (g *flightGroup) release(key string, f *flight, outcome flightOutcome) {
	g.mu.Lock()
	if f.released {
		g.mu.Unlock()
		return
	}
	f.released = true
	f.outcome = outcome
	f.timer.Stop()
	if g.flights[key] == f {
		delete(g.flights, key)
	}
	g.mu.Unlock()

	close(f.done)
}

// Wait blocks until the flight is released or ctx is done.
func (g *flightGroup) Wait(ctx context.Context, f *flight) (core.ID, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-f.done:
		return f.outcome.resultId, f.outcome.err
	}
}
