// Package ticker supplies the real-time frames that drive a calendar.
package ticker

import (
	"time"
)

// Frame reports the real time that passed since the previous delivered frame
type Frame struct {
	Elapsed time.Duration
	At      time.Time
}

// Ticker defines the frame source interface
type Ticker interface {
	// Channel returns a read-only channel that emits frames
	Channel() <-chan Frame

	// Control methods
	Start() error
	Stop() error
	Pause() error
	Resume() error

	IsPaused() bool
}
