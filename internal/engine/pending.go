package engine

import "sync"

// pendingSet tracks positions with an in-flight exit signal so the monitor
// does not enqueue a second signal for the same position while the executor
// is still working on the first. The executor clears the mark when done,
// success or failure; the monitor re-evaluates on the next tick.
type pendingSet struct {
	mu sync.Mutex
	m  map[string]bool
}

func newPendingSet() *pendingSet {
	return &pendingSet{m: make(map[string]bool)}
}

// tryMark marks the position pending.  Returns false if it already was.
func (s *pendingSet) tryMark(positionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[positionID] {
		return false
	}
	s.m[positionID] = true
	return true
}

func (s *pendingSet) clear(positionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, positionID)
}
