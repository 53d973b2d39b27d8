package server

import "sync"

// SessionState is the lifecycle state of a server session.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateShuttingDown
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Session tracks protocol state and counters for one client connection.
type Session struct {
	mu                   sync.Mutex
	state                SessionState
	sessionsCompleted    int64
	evaluationsCompleted int64
}

func NewSession() *Session {
	return &Session{state: StateUninitialized}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// IncrementEvaluations adds n completed evaluations to the session counter.
func (s *Session) IncrementEvaluations(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluationsCompleted += int64(n)
}

// Evaluations returns the number of evaluations completed so far.
func (s *Session) Evaluations() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluationsCompleted
}
