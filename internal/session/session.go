package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// State tracks the cancellation status of one client channel. A single query
// runs per channel at a time; the flag survives between queries so an idle
// cancel is a no-op acknowledged without touching any stream.
type State struct {
	cancelled atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
}

func NewState() *State {
	return &State{}
}

// Reset clears the flag at the start of a query and derives the context the
// query pipeline runs under.
func (s *State) Reset(ctx context.Context) context.Context {
	s.cancelled.Store(false)
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return ctx
}

// Cancel flags the channel and aborts the in-flight query if one is running.
// Safe to call at any time, including when no query is active.
func (s *State) Cancel() {
	s.cancelled.Store(true)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *State) Cancelled() bool {
	return s.cancelled.Load()
}

// Release drops the query context hook once a query finishes.
func (s *State) Release() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}
