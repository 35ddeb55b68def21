package warmer

import "sync"

// State tracks the warmer lifecycle for one process: Idle until a
// sweep starts, Warming while one runs, Completed after the first
// fully successful sweep. Completed is terminal; a failed sweep drops
// back to Idle and stays eligible for another trigger.
//
// State is owned by the composition root and injected, never a
// package-level global, so tests and multi-instance setups each get
// their own.
type State struct {
	mu         sync.Mutex
	inProgress bool
	completed  bool
}

func NewState() *State {
	return &State{}
}

// begin claims the sweep. Returns false if one is running or already
// completed.
func (s *State) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress || s.completed {
		return false
	}
	s.inProgress = true
	return true
}

// finish releases the sweep claim, marking completion only on a fully
// successful sweep.
func (s *State) finish(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	if success {
		s.completed = true
	}
}

// Snapshot reports the current flags.
func (s *State) Snapshot() (inProgress, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress, s.completed
}
