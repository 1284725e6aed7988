package ticker

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidInterval is returned for a non-positive frame interval
var ErrInvalidInterval = errors.New("frame interval must be positive")

// FrameTicker emits a Frame every interval of wall time. When the consumer
// falls behind, elapsed time accumulates into the next delivered frame so no
// real time is lost. Time spent paused is discarded.
type FrameTicker struct {
	interval time.Duration
	now      func() time.Time

	ch      chan Frame
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	paused  bool
	last    time.Time
	pending time.Duration
	mu      sync.RWMutex
}

var _ Ticker = (*FrameTicker)(nil)

// NewFrameTicker creates a ticker firing every interval
func NewFrameTicker(interval time.Duration) (*FrameTicker, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	return &FrameTicker{
		interval: interval,
		now:      time.Now,
		ch:       make(chan Frame, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins emitting frames
func (t *FrameTicker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	t.running = true
	t.last = t.now()
	go t.run()
	return nil
}

func (t *FrameTicker) run() {
	defer close(t.doneCh)

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-tk.C:
			t.emit()
		}
	}
}

func (t *FrameTicker) emit() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	elapsed := now.Sub(t.last)
	t.last = now
	if t.paused || elapsed <= 0 {
		return
	}
	t.pending += elapsed

	// Non-blocking send
	select {
	case t.ch <- Frame{Elapsed: t.pending, At: now}:
		t.pending = 0
	default:
	}
}

// Channel returns the frame channel
func (t *FrameTicker) Channel() <-chan Frame {
	return t.ch
}

// Stop halts the ticker and waits for its goroutine to exit
func (t *FrameTicker) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()

	<-t.doneCh
	return nil
}

// Pause stops time from accumulating until Resume
func (t *FrameTicker) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.paused = true
	t.pending = 0
	return nil
}

// Resume restarts accumulation from the current instant
func (t *FrameTicker) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.paused {
		return nil
	}
	t.paused = false
	t.last = t.now()
	return nil
}

// IsPaused reports whether the ticker is paused
func (t *FrameTicker) IsPaused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

// Interval returns the frame interval
func (t *FrameTicker) Interval() time.Duration {
	return t.interval
}
