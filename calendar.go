package pgcalendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmed-com/pgcalendar/date"
	"github.com/ahmed-com/pgcalendar/timer"
)

// ErrInvalidHour is returned by SetCurrentHour for hours outside 0-23
var ErrInvalidHour = errors.New("hour out of range")

// Calendar is the in-world clock. It advances one hour per completed cycle
// of real time and rolls the weekday, date and day counter over at midnight.
//
// Calendar is not safe for concurrent use; the owner must serialize calls
// (see scheduler.Scheduler).
type Calendar struct {
	daysPassed     uint64
	currentHour    int
	currentWeekday int
	currentDate    date.Date

	hourLength    time.Duration
	oldHourLength time.Duration
	active        bool
	epoch         uint64

	startHour    int
	startWeekday int
	startDate    date.Date

	timer *timer.CycleTimer
}

// NewCalendar creates a calendar starting at the given hour, weekday and
// YYYY-MM-DD date. startHour (0-23) and startWeekday (1-7) are not validated.
func NewCalendar(active bool, startHour, startWeekday int, hourLength time.Duration, startDate string) (*Calendar, error) {
	start, err := date.Parse(startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}

	t, err := timer.New(hourLength)
	if err != nil {
		return nil, fmt.Errorf("invalid hour length: %w", err)
	}

	return &Calendar{
		active:         active,
		hourLength:     hourLength,
		oldHourLength:  hourLength,
		startHour:      startHour,
		startWeekday:   startWeekday,
		startDate:      start,
		currentHour:    startHour,
		currentWeekday: startWeekday,
		currentDate:    start,
		timer:          t,
	}, nil
}

// Tick feeds elapsed real time into the hour timer. When an hour completes
// it returns the transitions in emission order: a DayTransition (only at
// midnight) followed by an HourTransition. Inactive calendars ignore ticks.
func (c *Calendar) Tick(elapsed time.Duration) []Event {
	if !c.active {
		return nil
	}
	if !c.timer.Advance(elapsed) {
		return nil
	}

	var events []Event

	c.currentHour++
	if c.currentHour == 24 {
		c.currentHour = 0
		c.daysPassed++
		c.currentWeekday++
		c.currentDate = c.currentDate.AddDays(1)
		if c.currentWeekday > 7 {
			c.currentWeekday = 1
		}
		events = append(events, DayTransition{Weekday: c.currentWeekday})
	}

	events = append(events, HourTransition{Hour: c.currentHour})
	return events
}

// ReconcileHourLength pushes a changed hour length into the timer,
// preserving relative progress of the current hour. It must run before Tick
// so the timer never advances with a stale duration.
func (c *Calendar) ReconcileHourLength() error {
	if c.hourLength == c.oldHourLength {
		return nil
	}
	if err := c.timer.SetDuration(c.hourLength); err != nil {
		return err
	}
	c.oldHourLength = c.hourLength
	return nil
}

// Step runs ReconcileHourLength followed by Tick, the per-frame order
func (c *Calendar) Step(elapsed time.Duration) ([]Event, error) {
	if err := c.ReconcileHourLength(); err != nil {
		return nil, err
	}
	return c.Tick(elapsed), nil
}

// Reset restores the start hour, weekday and date and zeroes the day
// counter. Active state and hour length are kept.
func (c *Calendar) Reset() {
	c.daysPassed = 0
	c.currentHour = c.startHour
	c.currentWeekday = c.startWeekday
	c.currentDate = c.startDate
	c.epoch++
}

// SetHourLength sets the real-time length of an in-world hour. The timer
// picks it up on the next ReconcileHourLength.
func (c *Calendar) SetHourLength(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", timer.ErrInvalidDuration, d)
	}
	c.hourLength = d
	return nil
}

// HourLengthChanged reports whether a new hour length awaits reconciliation
func (c *Calendar) HourLengthChanged() bool {
	return c.hourLength != c.oldHourLength
}

// SetCurrentHour moves the clock to hour h without emitting transitions
func (c *Calendar) SetCurrentHour(h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%w: %d", ErrInvalidHour, h)
	}
	c.currentHour = h
	return nil
}

func (c *Calendar) Activate()   { c.active = true }
func (c *Calendar) Deactivate() { c.active = false }

func (c *Calendar) IsActive() bool            { return c.active }
func (c *Calendar) DaysPassed() uint64        { return c.daysPassed }
func (c *Calendar) CurrentHour() int          { return c.currentHour }
func (c *Calendar) CurrentWeekday() int       { return c.currentWeekday }
func (c *Calendar) CurrentDate() date.Date    { return c.currentDate }
func (c *Calendar) HourLength() time.Duration { return c.hourLength }
func (c *Calendar) StartDate() date.Date      { return c.startDate }

// Progress returns how far the current hour has elapsed, in [0, 1)
func (c *Calendar) Progress() float64 { return c.timer.Progress() }

// Epoch counts resets; it distinguishes repeated in-world moments
func (c *Calendar) Epoch() uint64 { return c.epoch }

// Snapshot copies the current state
func (c *Calendar) Snapshot() State {
	return State{
		DaysPassed: c.daysPassed,
		Hour:       c.currentHour,
		Weekday:    c.currentWeekday,
		Date:       c.currentDate,
		HourLength: c.hourLength,
		Progress:   c.timer.Progress(),
		Active:     c.active,
		Epoch:      c.epoch,
	}
}
