package stream

import (
	"context"
	"sync"
)

// MemoryLog is the in-process Log used in dev and tests. Each named
// stream is a FIFO slice trimmed to its cap on append.
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string][]Event
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		streams: make(map[string][]Event),
	}
}

func (l *MemoryLog) Append(_ context.Context, name string, ev Event, maxLen int) error {
	if maxLen <= 0 {
		maxLen = 1000
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events := append(l.streams[name], ev)
	if over := len(events) - maxLen; over > 0 {
		// Reslice-and-copy so evicted entries don't pin the backing
		// array.
		trimmed := make([]Event, maxLen)
		copy(trimmed, events[over:])
		events = trimmed
	}
	l.streams[name] = events

	return nil
}

// Events returns a snapshot of a named stream, oldest first.
func (l *MemoryLog) Events(name string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.streams[name]))
	copy(out, l.streams[name])
	return out
}

// Names returns the stream names seen so far.
func (l *MemoryLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.streams))
	for name := range l.streams {
		names = append(names, name)
	}
	return names
}
