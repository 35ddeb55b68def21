package limiter

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGateBoundsConcurrency(t *testing.T) {
	g := New(2, nil)
	ctx := context.Background()

	var mu sync.Mutex
	inFlight, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(ctx, Default, func(context.Context) error {
				mu.Lock()
				inFlight++
				if inFlight > peak {
					peak = inFlight
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestGateHighLaneServedFirst(t *testing.T) {
	g := New(1, nil)
	ctx := context.Background()

	// Occupy the only slot so subsequent acquires queue.
	if err := g.Acquire(ctx, Default); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	order := make(chan Priority, 2)
	queued := func(p Priority) {
		if err := g.Acquire(ctx, p); err != nil {
			t.Errorf("Acquire(%v) failed: %v", p, err)
			return
		}
		order <- p
		g.Release()
	}

	go queued(Default)
	waitForWaiters(t, g, 1)
	go queued(High)
	waitForWaiters(t, g, 2)

	g.Release()

	if first := <-order; first != High {
		t.Fatalf("expected high-priority waiter admitted first, got %v", first)
	}
	if second := <-order; second != Default {
		t.Fatalf("expected default waiter admitted second, got %v", second)
	}
}

func TestGateFIFOWithinLane(t *testing.T) {
	g := New(1, nil)
	ctx := context.Background()

	if err := g.Acquire(ctx, Default); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			if err := g.Acquire(ctx, Default); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			order <- i
			g.Release()
		}()
		waitForWaiters(t, g, i+1)
	}

	g.Release()

	for want := 0; want < 3; want++ {
		if got := <-order; got != want {
			t.Fatalf("expected FIFO admission, position %d got waiter %d", want, got)
		}
	}
}

func TestGateAcquireCancelled(t *testing.T) {
	g := New(1, nil)

	if err := g.Acquire(context.Background(), Default); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Acquire(ctx, High)
	}()
	waitForWaiters(t, g, 1)

	cancel()
	if err := <-done; err == nil {
		t.Fatalf("expected cancellation error")
	}

	// The abandoned waiter must not consume the released slot.
	g.Release()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := g.Acquire(ctx2, Default); err != nil {
		t.Fatalf("slot lost after cancelled waiter: %v", err)
	}
	g.Release()
}

func waitForWaiters(t *testing.T, g *Gate, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		high, def := g.Waiting()
		if high+def >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued waiters", n)
}
