package gate

import (
	"sync"
	"time"
)

// Outcome is the result of a bounded wait.
type Outcome int

const (
	// OutcomeCompleted means a composed frame acknowledged the request.
	OutcomeCompleted Outcome = iota
	// OutcomeTimedOut means the timeout elapsed first.
	OutcomeTimedOut
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Monitor pairs a request for a composition pass with the wait for it.
//
// A waiter is registered before its trigger runs, so a frame that completes
// between the trigger and the wait still releases it. A signal that arrives
// while nobody is waiting is dropped.
type Monitor struct {
	mu      sync.Mutex
	pending chan struct{}
	waiters int
}

// RequestAndWait registers a waiter, runs trigger, then blocks until Signal
// is called or timeout elapses.
func (m *Monitor) RequestAndWait(timeout time.Duration, trigger func()) Outcome {
	m.mu.Lock()
	if m.pending == nil {
		m.pending = make(chan struct{})
	}
	ch := m.pending
	m.waiters++
	m.mu.Unlock()

	if trigger != nil {
		trigger()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return OutcomeCompleted
	case <-timer.C:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Signal may have raced the timer
	select {
	case <-ch:
		return OutcomeCompleted
	default:
	}

	if m.pending == ch {
		m.waiters--
		if m.waiters == 0 {
			m.pending = nil
		}
	}
	return OutcomeTimedOut
}

// Signal releases every current waiter. It reports whether anyone was waiting.
func (m *Monitor) Signal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return false
	}
	close(m.pending)
	m.pending = nil
	m.waiters = 0
	return true
}

// Waiting reports whether a waiter is currently blocked.
func (m *Monitor) Waiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters > 0
}
