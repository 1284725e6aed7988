package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ahmed-com/pgcalendar"
	"github.com/ahmed-com/pgcalendar/cron"
)

// explainExpression prints the sets an expression expands to, how many
// in-world hours remain until it next matches from the configured start, and
// when it would next match on the wall clock.
func explainExpression(w io.Writer, text string, cfg pgcalendar.Config, now time.Time) error {
	expr, err := cron.Parse(text)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "expression:    %s\n", expr)
	fmt.Fprintf(w, "hours:         %v\n", expr.Hours())
	fmt.Fprintf(w, "days of month: %v\n", expr.DaysOfMonth())
	fmt.Fprintf(w, "months:        %v\n", expr.Months())
	fmt.Fprintf(w, "days of week:  %v\n", expr.DaysOfWeek())

	start, _ := pgcalendar.WeekdayName(cfg.StartWeekday)
	until, err := expr.HoursUntil(cfg.StartHour, cfg.StartWeekday)
	switch {
	case err == nil:
		fmt.Fprintf(w, "from %s %s: next match in %d in-world hours (%s real time)\n",
			start, pgcalendar.FormatTime(cfg.StartHour), until,
			time.Duration(until)*cfg.HourDuration())
	default:
		fmt.Fprintf(w, "from %s %s: %v\n", start, pgcalendar.FormatTime(cfg.StartHour), err)
	}

	sched, err := expr.WallClock(now.Location())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "wall clock:    next match at %s\n", sched.Next(now).Format(time.RFC1123))
	return nil
}
