package warmer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"snowgate/internal/query"
	"snowgate/internal/snow"
)

type fakeSource struct {
	mu       sync.Mutex
	requests []query.Request
	// failTable makes every query against that table fail.
	failTable string
	// block, when set, is waited on before responding.
	block chan struct{}
}

func (f *fakeSource) Paginated(_ context.Context, req query.Request) (*query.PageResult, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if req.Entity == f.failTable {
		return nil, &snow.BusinessError{Status: 400, Body: "bad table"}
	}
	return &query.PageResult{Data: nil, CurrentPage: req.Page}, nil
}

func (f *fakeSource) seen() []query.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]query.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func newTestWarmer(source Source, combos []Combo) (*Warmer, *State, *[]time.Duration) {
	state := NewState()
	w := New(state, source, Config{Combos: combos, States: []string{"all", "3"}}, nil)

	var waits []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return w, state, &waits
}

func TestWarmAllSweepsEveryCombo(t *testing.T) {
	source := &fakeSource{}
	combos := []Combo{
		{Table: "incident", Group: "Service Desk"},
		{Table: "sc_task", Group: "Service Desk"},
	}
	w, state, waits := newTestWarmer(source, combos)

	if err := w.WarmAll(context.Background()); err != nil {
		t.Fatalf("WarmAll failed: %v", err)
	}

	reqs := source.seen()
	if len(reqs) != 4 {
		t.Fatalf("expected 2 combos x 2 states = 4 queries, got %d", len(reqs))
	}
	for _, r := range reqs {
		if !r.Background {
			t.Fatalf("warming queries must run at background priority: %+v", r)
		}
	}

	// in-combo delay, combo delay, in-combo delay.
	want := []time.Duration{1500 * time.Millisecond, 3 * time.Second, 1500 * time.Millisecond}
	if len(*waits) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *waits)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Fatalf("sleep %d: expected %v, got %v", i, want[i], (*waits)[i])
		}
	}

	if inProgress, completed := state.Snapshot(); inProgress || !completed {
		t.Fatalf("expected Completed state, got inProgress=%v completed=%v", inProgress, completed)
	}
}

func TestWarmAllIdempotent(t *testing.T) {
	source := &fakeSource{}
	w, _, _ := newTestWarmer(source, []Combo{{Table: "incident", Group: "Service Desk"}})

	if err := w.WarmAll(context.Background()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	first := len(source.seen())

	// Completed is terminal: a second trigger is a no-op.
	if err := w.WarmAll(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if len(source.seen()) != first {
		t.Fatalf("second trigger must not query upstream")
	}
}

func TestWarmAllNoOpWhileInProgress(t *testing.T) {
	block := make(chan struct{})
	source := &fakeSource{block: block}
	w, state, _ := newTestWarmer(source, []Combo{{Table: "incident", Group: "Service Desk"}})

	done := make(chan error, 1)
	go func() { done <- w.WarmAll(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for {
		if inProgress, _ := state.Snapshot(); inProgress {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweep never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Concurrent trigger returns immediately without sweeping.
	if err := w.WarmAll(context.Background()); err != nil {
		t.Fatalf("concurrent trigger failed: %v", err)
	}
	if got := len(source.seen()); got != 0 {
		t.Fatalf("second sweep ran while first in progress (%d queries)", got)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if got := len(source.seen()); got != 2 {
		t.Fatalf("expected exactly one sweep's queries, got %d", got)
	}
}

func TestWarmAllFaultIsolation(t *testing.T) {
	source := &fakeSource{failTable: "change_task"}
	combos := []Combo{
		{Table: "incident", Group: "Service Desk"},
		{Table: "change_task", Group: "Service Desk"},
		{Table: "sc_task", Group: "Service Desk"},
		{Table: "incident", Group: "Network Ops"},
	}
	w, state, waits := newTestWarmer(source, combos)

	if err := w.WarmAll(context.Background()); err != nil {
		t.Fatalf("WarmAll failed: %v", err)
	}

	tables := map[string]bool{}
	for _, r := range source.seen() {
		tables[r.Entity+"/"+r.Group] = true
	}
	for _, want := range []string{"incident/Service Desk", "sc_task/Service Desk", "incident/Network Ops"} {
		if !tables[want] {
			t.Fatalf("combo %s skipped after unrelated failure", want)
		}
	}

	// The failed combo triggers the longer cooldown.
	found := false
	for _, d := range *waits {
		if d == 5*time.Second {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 5s failure cooldown in %v", *waits)
	}

	// Combo failures don't fail the sweep.
	if _, completed := state.Snapshot(); !completed {
		t.Fatalf("sweep with isolated failures should still complete")
	}
}

func TestWarmAllCancelledSweepStaysEligible(t *testing.T) {
	source := &fakeSource{}
	w, state, _ := newTestWarmer(source, []Combo{
		{Table: "incident", Group: "Service Desk"},
		{Table: "sc_task", Group: "Service Desk"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.WarmAll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}

	inProgress, completed := state.Snapshot()
	if inProgress || completed {
		t.Fatalf("aborted sweep must return to Idle, got inProgress=%v completed=%v", inProgress, completed)
	}

	// Still eligible: a later trigger runs the sweep.
	if err := w.WarmAll(context.Background()); err != nil {
		t.Fatalf("retry after aborted sweep failed: %v", err)
	}
	if _, completed := state.Snapshot(); !completed {
		t.Fatalf("expected completion on retried sweep")
	}
}
