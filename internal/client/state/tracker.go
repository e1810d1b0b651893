// Package state tracks whether the client is currently answering from the
// remote service or from its local fallback cache, so consumers can show a
// persistent, dismissible "offline" indicator.
//
// Stores report the outcome of every remote attempt; readers take
// immutable snapshots. The indicator flips to offline on the first
// fallback-eligible failure and back online on the next success.
// Dismissing hides it until the client goes offline again.
package state

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the tracker.
type Snapshot struct {
	Offline             bool
	ConsecutiveFailures int
	LastError           string
	LastChange          time.Time
	Dismissed           bool
}

// Visible reports whether the offline indicator should be shown.
func (s Snapshot) Visible() bool { return s.Offline && !s.Dismissed }

// Tracker is safe for concurrent use. The zero value is ready.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// RecordSuccess notes a successful remote call.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Offline {
		t.snap.LastChange = t.clock()
	}
	t.snap.Offline = false
	t.snap.ConsecutiveFailures = 0
	t.snap.LastError = ""
	t.snap.Dismissed = false
}

// RecordFailure notes a remote failure that was answered from the cache.
func (t *Tracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.snap.Offline {
		t.snap.LastChange = t.clock()
		t.snap.Dismissed = false
	}
	t.snap.Offline = true
	t.snap.ConsecutiveFailures++
	if err != nil {
		t.snap.LastError = err.Error()
	}
}

// Dismiss hides the indicator until the next online→offline transition.
func (t *Tracker) Dismiss() {
	t.mu.Lock()
	t.snap.Dismissed = true
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
