package cron

// Matches reports whether the hour and weekday fall within the schedule.
//
// Day-of-month and month are parsed but not consulted here; use MatchesAll
// for a four-field check.
func (e *Expression) Matches(hour, weekday int) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return contains(e.sets[FieldHour], hour) && contains(e.sets[FieldDayOfWeek], weekday), nil
}

// MatchesAll reports whether all four fields accept the given moment.
// Wildcard fields accept any value, including day 31 which lies outside the
// expanded day-of-month range.
func (e *Expression) MatchesAll(hour, day, month, weekday int) (bool, error) {
	ok, err := e.Matches(hour, weekday)
	if err != nil || !ok {
		return false, err
	}
	return e.accepts(FieldDayOfMonth, day) && e.accepts(FieldMonth, month), nil
}

// HoursUntil returns how many hour transitions from the given position the
// next matching hour is, 0 when it matches already. Only hour and weekday
// are considered, as in Matches.
func (e *Expression) HoursUntil(hour, weekday int) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	const week = 7 * 24
	for i := 0; i <= week; i++ {
		if contains(e.sets[FieldHour], hour) && contains(e.sets[FieldDayOfWeek], weekday) {
			return i, nil
		}
		hour++
		if hour == 24 {
			hour = 0
			weekday++
			if weekday > 7 {
				weekday = 1
			}
		}
	}
	return 0, ErrNoMatch
}

func (e *Expression) ready() error {
	if e == nil || !e.parsed || e.sets[FieldHour] == nil || e.sets[FieldDayOfWeek] == nil {
		return ErrUnparsedExpression
	}
	return nil
}

func (e *Expression) accepts(f Field, v int) bool {
	return e.wildcard[f] || contains(e.sets[f], v)
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
