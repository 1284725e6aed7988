package date

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the only accepted textual form of a date.
const Layout = "2006-01-02"

// ErrMalformedDate is returned when a date string is not a valid YYYY-MM-DD calendar date
var ErrMalformedDate = errors.New("malformed date")

// Date is a Gregorian calendar day without time-of-day or timezone
type Date struct {
	t time.Time
}

// Parse parses a YYYY-MM-DD string. Impossible dates such as 2023-02-30 fail.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return Date{t: t}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// AddDays returns the date n days later (n may be negative)
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

func (d Date) Year() int { return d.t.Year() }

func (d Date) Month() int { return int(d.t.Month()) }

func (d Date) Day() int { return d.t.Day() }

// IsZero reports whether d is the zero Date
func (d Date) IsZero() bool { return d.t.IsZero() }

// Equal reports whether d and other name the same day
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// Time returns midnight UTC of the date
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(Layout)
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
