package stream

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryLog_CapEvictsOldest(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	const maxLen = 1000
	for i := 0; i < maxLen+1; i++ {
		ev := Event{
			Entity:    "incident",
			CacheKey:  fmt.Sprintf("page:incident:all:all:2026-08:%d:5", i),
			Timestamp: time.Now(),
		}
		if err := l.Append(ctx, "tickets:incident:2026-08", ev, maxLen); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events := l.Events("tickets:incident:2026-08")
	if len(events) != maxLen {
		t.Fatalf("expected %d events after overflow, got %d", maxLen, len(events))
	}
	// The first append must be the evicted one.
	if events[0].CacheKey != "page:incident:all:all:2026-08:1:5" {
		t.Fatalf("expected oldest event evicted, head is %q", events[0].CacheKey)
	}
	if events[maxLen-1].CacheKey != fmt.Sprintf("page:incident:all:all:2026-08:%d:5", maxLen) {
		t.Fatalf("unexpected newest event %q", events[maxLen-1].CacheKey)
	}
}

func TestMemoryLog_StreamsAreIndependent(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	_ = l.Append(ctx, "a", Event{Entity: "incident"}, 10)
	_ = l.Append(ctx, "b", Event{Entity: "sc_task"}, 10)

	if got := len(l.Events("a")); got != 1 {
		t.Fatalf("expected 1 event in stream a, got %d", got)
	}
	if got := len(l.Events("b")); got != 1 {
		t.Fatalf("expected 1 event in stream b, got %d", got)
	}
	if got := len(l.Names()); got != 2 {
		t.Fatalf("expected 2 streams, got %d", got)
	}
}
