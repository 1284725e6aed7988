package pgcalendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-com/pgcalendar/date"
	"github.com/ahmed-com/pgcalendar/timer"
)

func newTestCalendar(t *testing.T, startHour, startWeekday int) *Calendar {
	t.Helper()
	cal, err := NewCalendar(true, startHour, startWeekday, 10*time.Second, "2000-01-01")
	require.NoError(t, err)
	return cal
}

func TestNewCalendar(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)

	assert.Equal(t, 6, cal.CurrentHour())
	assert.Equal(t, 1, cal.CurrentWeekday())
	assert.Equal(t, "2000-01-01", cal.CurrentDate().String())
	assert.EqualValues(t, 0, cal.DaysPassed())
	assert.True(t, cal.IsActive())
}

func TestNewCalendar_MalformedDate(t *testing.T) {
	for _, s := range []string{"2000-02-30", "01-01-2000", ""} {
		_, err := NewCalendar(true, 0, 1, time.Second, s)
		assert.ErrorIs(t, err, date.ErrMalformedDate, "date %q", s)
	}
}

func TestNewCalendar_InvalidHourLength(t *testing.T) {
	_, err := NewCalendar(true, 0, 1, 0, "2000-01-01")
	assert.ErrorIs(t, err, timer.ErrInvalidDuration)
}

func TestTick_SingleHour(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)

	require.Empty(t, cal.Tick(4*time.Second))

	events := cal.Tick(6 * time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, HourTransition{Hour: 7}, events[0])
	assert.Equal(t, 7, cal.CurrentHour())
}

func TestTick_DayRollover(t *testing.T) {
	cal := newTestCalendar(t, 0, 3)

	var hourEvents, dayEvents int
	var last []Event
	for i := 0; i < 24; i++ {
		last = cal.Tick(10 * time.Second)
		for _, ev := range last {
			switch ev.(type) {
			case HourTransition:
				hourEvents++
			case DayTransition:
				dayEvents++
			}
		}
	}

	assert.Equal(t, 24, hourEvents)
	assert.Equal(t, 1, dayEvents)

	// the 24th completion emits the day transition first, then the hour
	require.Len(t, last, 2)
	assert.Equal(t, DayTransition{Weekday: 4}, last[0])
	assert.Equal(t, HourTransition{Hour: 0}, last[1])

	assert.Equal(t, 0, cal.CurrentHour())
	assert.EqualValues(t, 1, cal.DaysPassed())
	assert.Equal(t, 4, cal.CurrentWeekday())
	assert.Equal(t, "2000-01-02", cal.CurrentDate().String())
}

func TestTick_WeekdayWraparound(t *testing.T) {
	cal := newTestCalendar(t, 23, 7)

	events := cal.Tick(10 * time.Second)
	require.Len(t, events, 2)
	assert.Equal(t, DayTransition{Weekday: 1}, events[0])
	assert.Equal(t, 1, cal.CurrentWeekday())
}

func TestTick_OversizedStepAdvancesOneHour(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)

	events := cal.Tick(35 * time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, 7, cal.CurrentHour())
	assert.InDelta(t, 0.5, cal.Progress(), 0.01)
}

func TestTick_Inactive(t *testing.T) {
	cal, err := NewCalendar(false, 6, 1, time.Second, "2000-01-01")
	require.NoError(t, err)

	assert.Nil(t, cal.Tick(time.Hour))
	assert.Equal(t, 6, cal.CurrentHour())
	assert.Zero(t, cal.Progress())

	cal.Activate()
	assert.Len(t, cal.Tick(time.Second), 1)

	cal.Deactivate()
	assert.False(t, cal.IsActive())
}

func TestReconcileHourLength_PreservesProgress(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)
	cal.Tick(5 * time.Second)

	require.NoError(t, cal.SetHourLength(20*time.Second))
	require.True(t, cal.HourLengthChanged())

	// 10s rescaled plus 9s of a 20s hour
	events, err := cal.Step(9 * time.Second)
	require.NoError(t, err)
	require.Empty(t, events)
	assert.False(t, cal.HourLengthChanged())

	events, err = cal.Step(time.Second)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSetHourLength_TwiceBeforeReconcile(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)
	cal.Tick(5 * time.Second)

	require.NoError(t, cal.SetHourLength(20*time.Second))
	require.NoError(t, cal.SetHourLength(20*time.Second))
	require.True(t, cal.HourLengthChanged())

	events, err := cal.Step(5 * time.Second)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 6, cal.CurrentHour())
	assert.InDelta(t, 0.75, cal.Progress(), 0.01)
	assert.False(t, cal.HourLengthChanged())

	events, err = cal.Step(5 * time.Second)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 7, cal.CurrentHour())
}

func TestSetHourLength_RevertBeforeReconcile(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)

	require.NoError(t, cal.SetHourLength(20*time.Second))
	require.NoError(t, cal.SetHourLength(10*time.Second))
	assert.False(t, cal.HourLengthChanged())
}

func TestReconcileHourLength_NoChange(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)
	cal.Tick(3 * time.Second)

	require.NoError(t, cal.ReconcileHourLength())
	assert.InDelta(t, 0.3, cal.Progress(), 0.01)
}

func TestSetHourLength_Invalid(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)

	assert.ErrorIs(t, cal.SetHourLength(0), timer.ErrInvalidDuration)
	assert.Equal(t, 10*time.Second, cal.HourLength())
}

func TestReset(t *testing.T) {
	cal := newTestCalendar(t, 6, 2)
	for i := 0; i < 51; i++ {
		cal.Tick(10 * time.Second)
	}
	cal.Deactivate()
	require.NoError(t, cal.SetHourLength(3*time.Second))

	cal.Reset()

	assert.Equal(t, 6, cal.CurrentHour())
	assert.Equal(t, 2, cal.CurrentWeekday())
	assert.EqualValues(t, 0, cal.DaysPassed())
	assert.True(t, cal.CurrentDate().Equal(cal.StartDate()), "expected start date, got %s", cal.CurrentDate())
	assert.False(t, cal.IsActive(), "reset must not change active state")
	assert.Equal(t, 3*time.Second, cal.HourLength(), "reset must not change hour length")
	assert.EqualValues(t, 1, cal.Epoch())
}

func TestSetCurrentHour(t *testing.T) {
	cal := newTestCalendar(t, 6, 1)

	require.NoError(t, cal.SetCurrentHour(23))
	assert.Equal(t, 23, cal.CurrentHour())
	for _, h := range []int{-1, 24} {
		assert.ErrorIs(t, cal.SetCurrentHour(h), ErrInvalidHour, "hour %d", h)
	}
}

func TestSnapshot(t *testing.T) {
	cal := newTestCalendar(t, 22, 5)
	cal.Tick(25 * time.Second)

	s := cal.Snapshot()
	assert.Equal(t, 23, s.Hour)
	assert.Equal(t, 5, s.Weekday)
	assert.EqualValues(t, 0, s.DaysPassed)
	assert.Equal(t, "2000-01-01", s.Date.String())
	assert.Equal(t, 10*time.Second, s.HourLength)
	assert.True(t, s.Active)
	assert.InDelta(t, 0.5, s.Progress, 0.01)
}
