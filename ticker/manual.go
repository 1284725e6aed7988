package ticker

import (
	"sync"
	"time"
)

// ManualTicker delivers frames only when Advance is called. It lets hosts
// drive a calendar from their own loop and keeps tests deterministic.
type ManualTicker struct {
	ch     chan Frame
	mu     sync.Mutex
	paused bool
	at     time.Time
}

var _ Ticker = (*ManualTicker)(nil)

// NewManualTicker creates a ManualTicker whose frame timestamps start at start
func NewManualTicker(start time.Time) *ManualTicker {
	return &ManualTicker{
		ch: make(chan Frame, 16),
		at: start,
	}
}

// Advance delivers a frame of elapsed time, blocking while the buffer is
// full. It reports false when paused.
func (t *ManualTicker) Advance(elapsed time.Duration) bool {
	t.mu.Lock()
	if t.paused {
		t.mu.Unlock()
		return false
	}
	t.at = t.at.Add(elapsed)
	f := Frame{Elapsed: elapsed, At: t.at}
	t.mu.Unlock()

	t.ch <- f
	return true
}

func (t *ManualTicker) Channel() <-chan Frame { return t.ch }
func (t *ManualTicker) Start() error          { return nil }
func (t *ManualTicker) Stop() error           { return nil }

func (t *ManualTicker) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
	return nil
}

func (t *ManualTicker) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
	return nil
}

func (t *ManualTicker) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}
