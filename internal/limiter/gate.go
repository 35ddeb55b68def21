// Package limiter gates concurrent calls against the ticket upstream.
// The instance rate-limits aggressively and its gateway times out near
// 60s under load, so the whole process funnels upstream work through
// one Gate: a bounded set of slots with two FIFO admission lanes.
// Interactive page loads use the high lane and are admitted before
// queued background work (cache warming).
//
// The gate only admits; it never retries. Retry policy wraps the gate,
// so each attempt is admitted separately.
package limiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type Priority int

const (
	Default Priority = iota
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "default"
}

type waiter struct {
	ready chan struct{}
}

// Gate bounds in-flight upstream calls. Within a lane waiters are
// admitted in FIFO order; when both lanes have waiters the high lane
// is drained first. An optional rate.Limiter additionally paces call
// starts, as defense in depth under the concurrency bound.
type Gate struct {
	mu    sync.Mutex
	free  int
	high  []*waiter
	def   []*waiter
	pacer *rate.Limiter
}

// New creates a gate admitting at most maxConcurrent calls. pacer may
// be nil to disable start pacing.
func New(maxConcurrent int, pacer *rate.Limiter) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{
		free:  maxConcurrent,
		pacer: pacer,
	}
}

// Acquire blocks until a slot is granted or ctx is done. A granted
// slot must be returned with Release.
func (g *Gate) Acquire(ctx context.Context, p Priority) error {
	g.mu.Lock()
	if g.free > 0 {
		// Invariant: free slots and waiters never coexist, so taking
		// a free slot cannot jump the queue.
		g.free--
		g.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	if p == High {
		g.high = append(g.high, w)
	} else {
		g.def = append(g.def, w)
	}
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		if g.abandon(w, p) {
			return ctx.Err()
		}
		// Grant raced with cancellation; the slot is ours, hand it
		// back before reporting the cancellation.
		<-w.ready
		g.Release()
		return ctx.Err()
	}
}

// Release returns a slot, granting it to the oldest high waiter, then
// the oldest default waiter, before marking it free.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.high) > 0 {
		w := g.high[0]
		g.high = g.high[1:]
		close(w.ready)
		return
	}
	if len(g.def) > 0 {
		w := g.def[0]
		g.def = g.def[1:]
		close(w.ready)
		return
	}
	g.free++
}

// Do admits fn through the gate at the given priority, pacing the
// start if a pacer is configured.
func (g *Gate) Do(ctx context.Context, p Priority, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx, p); err != nil {
		return err
	}
	defer g.Release()

	if g.pacer != nil {
		if err := g.pacer.Wait(ctx); err != nil {
			return err
		}
	}

	return fn(ctx)
}

// abandon removes w from its lane. Returns false if w was already
// granted a slot.
func (g *Gate) abandon(w *waiter, p Priority) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lane := &g.def
	if p == High {
		lane = &g.high
	}
	for i, candidate := range *lane {
		if candidate == w {
			*lane = append((*lane)[:i], (*lane)[i+1:]...)
			return true
		}
	}
	return false
}

// Waiting reports queued waiters per lane, for observability.
func (g *Gate) Waiting() (high, def int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.high), len(g.def)
}
