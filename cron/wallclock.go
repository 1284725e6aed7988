package cron

import (
	"time"

	robfig "github.com/robfig/cron/v3"
)

// starBit marks a day field as unrestricted in robfig's SpecSchedule. Without
// it on either day field robfig ORs day-of-month and weekday, so Dom always
// carries it and both fields must match.
const starBit = 1 << 63

// WallClock converts the expression into a real-time schedule firing at
// minute 0 of each accepted hour in loc. Weekdays map 1=Monday .. 7=Sunday.
// A wildcard day-of-month covers days 1-31.
func (e *Expression) WallClock(loc *time.Location) (*robfig.SpecSchedule, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	spec := &robfig.SpecSchedule{
		Second:   1 << 0,
		Minute:   1 << 0,
		Hour:     bits(e.sets[FieldHour]),
		Month:    bits(e.sets[FieldMonth]),
		Location: loc,
	}

	if e.wildcard[FieldDayOfMonth] {
		spec.Dom = bits(expand(1, 31)) | starBit
	} else {
		spec.Dom = bits(e.sets[FieldDayOfMonth]) | starBit
	}

	dow := make([]int, 0, len(e.sets[FieldDayOfWeek]))
	for _, w := range e.sets[FieldDayOfWeek] {
		dow = append(dow, w%7)
	}
	spec.Dow = bits(dow)
	if e.wildcard[FieldDayOfWeek] {
		spec.Dow |= starBit
	}

	return spec, nil
}

func bits(values []int) uint64 {
	var b uint64
	for _, v := range values {
		b |= 1 << uint(v)
	}
	return b
}
