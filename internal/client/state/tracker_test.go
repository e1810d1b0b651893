package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Transitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(func() time.Time { return now })

	assert.False(t, tr.Snapshot().Visible())

	tr.RecordFailure(errors.New("dial tcp: refused"))
	tr.RecordFailure(errors.New("timeout"))
	s := tr.Snapshot()
	assert.True(t, s.Offline)
	assert.True(t, s.Visible())
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.Equal(t, "timeout", s.LastError)
	assert.Equal(t, now, s.LastChange)

	now = now.Add(time.Minute)
	tr.RecordSuccess()
	s = tr.Snapshot()
	assert.False(t, s.Offline)
	assert.Zero(t, s.ConsecutiveFailures)
	assert.Empty(t, s.LastError)
	assert.Equal(t, now, s.LastChange)
}

func TestTracker_DismissLastsUntilNextOutage(t *testing.T) {
	var tr Tracker

	tr.RecordFailure(nil)
	tr.Dismiss()
	assert.True(t, tr.Snapshot().Offline)
	assert.False(t, tr.Snapshot().Visible())

	tr.RecordFailure(nil)
	assert.False(t, tr.Snapshot().Visible(), "still the same outage")

	tr.RecordSuccess()
	tr.RecordFailure(nil)
	assert.True(t, tr.Snapshot().Visible(), "a new outage shows the indicator again")
}

func TestTracker_ConcurrentUse(t *testing.T) {
	var tr Tracker
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); tr.RecordFailure(nil) }()
		go func() { defer wg.Done(); _ = tr.Snapshot() }()
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Snapshot().ConsecutiveFailures)
}
