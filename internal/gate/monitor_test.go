package gate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", OutcomeCompleted.String())
	assert.Equal(t, "timed_out", OutcomeTimedOut.String())
	assert.Equal(t, "unknown", Outcome(7).String())
}

func TestMonitor_SignalWithoutWaiterIsDropped(t *testing.T) {
	var m Monitor

	assert.False(t, m.Signal())
	assert.Equal(t, OutcomeTimedOut, m.RequestAndWait(20*time.Millisecond, nil))
	assert.False(t, m.Waiting())
}

func TestMonitor_SignalDuringTrigger(t *testing.T) {
	var m Monitor

	outcome := m.RequestAndWait(time.Second, func() {
		assert.True(t, m.Waiting())
		assert.True(t, m.Signal())
	})
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestMonitor_SignalReleasesAllWaiters(t *testing.T) {
	var m Monitor

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 3)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = m.RequestAndWait(2*time.Second, nil)
		}(i)
	}

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.waiters == 3
	}, time.Second, time.Millisecond)

	assert.True(t, m.Signal())
	wg.Wait()

	for _, o := range outcomes {
		assert.Equal(t, OutcomeCompleted, o)
	}
	assert.False(t, m.Waiting())
}

func TestMonitor_FreshWaitAfterTimeout(t *testing.T) {
	var m Monitor

	assert.Equal(t, OutcomeTimedOut, m.RequestAndWait(10*time.Millisecond, nil))

	go func() {
		for !m.Waiting() {
			time.Sleep(time.Millisecond)
		}
		m.Signal()
	}()
	assert.Equal(t, OutcomeCompleted, m.RequestAndWait(time.Second, nil))
}
