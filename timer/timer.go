// Package timer converts a stream of real elapsed time into repeating cycles.
package timer

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDuration is returned for zero or negative cycle durations
var ErrInvalidDuration = errors.New("invalid cycle duration")

// CycleTimer is a repeating timer. Time beyond a completed cycle is carried
// into the next one, so elapsed is always below duration between calls.
//
// CycleTimer is not safe for concurrent use.
type CycleTimer struct {
	elapsed     time.Duration
	duration    time.Duration
	completions int
	cycles      uint64
}

// New creates a timer with the given cycle duration
func New(duration time.Duration) (*CycleTimer, error) {
	if err := validate(duration); err != nil {
		return nil, err
	}
	return &CycleTimer{duration: duration}, nil
}

func validate(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, d)
	}
	return nil
}

// Advance adds elapsed real time and reports whether at least one cycle
// completed. Several whole cycles within one call are reported once;
// Completions tells how many were coalesced.
func (t *CycleTimer) Advance(elapsed time.Duration) bool {
	t.completions = 0
	if elapsed <= 0 {
		return false
	}

	t.elapsed += elapsed
	if t.elapsed < t.duration {
		return false
	}

	n := t.elapsed / t.duration
	t.elapsed -= n * t.duration
	t.completions = int(n)
	t.cycles += uint64(n)
	return true
}

// SetDuration changes the cycle length while keeping relative progress:
// a cycle that was 50% done stays 50% done.
func (t *CycleTimer) SetDuration(duration time.Duration) error {
	if err := validate(duration); err != nil {
		return err
	}

	scaled := time.Duration(t.Progress() * float64(duration))
	if scaled >= duration {
		scaled = duration - 1
	}
	if scaled < 0 {
		scaled = 0
	}

	t.duration = duration
	t.elapsed = scaled
	return nil
}

// Progress returns elapsed/duration in [0, 1)
func (t *CycleTimer) Progress() float64 {
	return float64(t.elapsed) / float64(t.duration)
}

// Elapsed returns the time accumulated in the current cycle
func (t *CycleTimer) Elapsed() time.Duration { return t.elapsed }

// Duration returns the cycle length
func (t *CycleTimer) Duration() time.Duration { return t.duration }

// Completions returns the number of cycles completed by the last Advance
func (t *CycleTimer) Completions() int { return t.completions }

// Cycles returns the number of cycles completed since creation or Reset
func (t *CycleTimer) Cycles() uint64 { return t.cycles }

// Reset discards partial progress and the cycle count. Duration is kept.
func (t *CycleTimer) Reset() {
	t.elapsed = 0
	t.completions = 0
	t.cycles = 0
}
