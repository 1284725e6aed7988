package pgcalendar

import "fmt"

var weekdayNames = map[int]string{
	1: "Mon",
	2: "Tue",
	3: "Wed",
	4: "Thu",
	5: "Fri",
	6: "Sat",
	7: "Sun",
}

// WeekdayName returns the three-letter abbreviation of weekday 1-7.
// The second result is false for any other key.
func WeekdayName(weekday int) (string, bool) {
	name, ok := weekdayNames[weekday]
	return name, ok
}

// Weekdays returns a copy of the weekday name table
func Weekdays() map[int]string {
	out := make(map[int]string, len(weekdayNames))
	for k, v := range weekdayNames {
		out[k] = v
	}
	return out
}

// FormatTime renders an hour as "H:00 AM" or "H:00 PM". Hours up to and
// including 12 are AM and are not remapped, so 0 renders "0:00 AM" and 12
// renders "12:00 AM"; 13-24 render as PM after subtracting 12.
func FormatTime(hour int) string {
	if hour <= 12 {
		return fmt.Sprintf("%d:00 AM", hour)
	}
	return fmt.Sprintf("%d:00 PM", hour-12)
}
