// Package cron parses four-field in-world schedule expressions and matches
// them against a clock's hour and weekday.
//
// An expression has the fields "<hour> <day-of-month> <month> <day-of-week>",
// separated by single spaces. Each field is one of:
//
//	"*"      every legal value of the field
//	"a-b"    inclusive ascending range
//	"a;b;c"  explicit list, order and duplicates kept
//	"n"      a single value
//
// Precedence when a field mixes syntaxes is wildcard, then range, then list,
// then literal. A field such as "1-3;5" is therefore read as a range and
// fails because "3;5" is not an integer.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedExpression is returned when the expression has fewer than four fields
	ErrMalformedExpression = errors.New("malformed schedule expression")

	// ErrInvalidToken is matched by every *TokenError
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnparsedExpression is returned when matching an expression that was never parsed
	ErrUnparsedExpression = errors.New("schedule expression not parsed")

	// ErrNoMatch is returned by HoursUntil when no hour within a week matches
	ErrNoMatch = errors.New("schedule never matches")
)

// Field identifies one of the four expression fields
type Field int

const (
	FieldHour Field = iota
	FieldDayOfMonth
	FieldMonth
	FieldDayOfWeek
)

const fieldCount = 4

func (f Field) String() string {
	switch f {
	case FieldHour:
		return "hour"
	case FieldDayOfMonth:
		return "day-of-month"
	case FieldMonth:
		return "month"
	case FieldDayOfWeek:
		return "day-of-week"
	default:
		return "unknown"
	}
}

// Min returns the smallest legal value of the field
func (f Field) Min() int { return fieldBounds[f].min }

// Max returns the largest legal value of the field
func (f Field) Max() int { return fieldBounds[f].max }

var fieldBounds = [fieldCount]struct{ min, max int }{
	FieldHour:       {0, 23},
	FieldDayOfMonth: {1, 30},
	FieldMonth:      {1, 12},
	FieldDayOfWeek:  {1, 7},
}

// TokenError reports a field token that is not valid for its field
type TokenError struct {
	Field  Field
	Text   string
	Reason string
}

func (e *TokenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid token %q in %s field: %s", e.Text, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid token %q in %s field", e.Text, e.Field)
}

// Is makes errors.Is(err, ErrInvalidToken) hold for token errors
func (e *TokenError) Is(target error) bool {
	return target == ErrInvalidToken
}

// Expression is a parsed schedule expression. It is immutable once parsed
// and safe for concurrent read-only use.
type Expression struct {
	raw      string
	sets     [fieldCount][]int
	wildcard [fieldCount]bool
	parsed   bool
}

// Parse parses a schedule expression
func Parse(raw string) (*Expression, error) {
	parts := strings.SplitN(raw, " ", fieldCount)
	if len(parts) < fieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d in %q", ErrMalformedExpression, fieldCount, len(parts), raw)
	}

	e := &Expression{raw: raw}
	for i, part := range parts {
		f := Field(i)
		values, err := parseField(f, part)
		if err != nil {
			return nil, err
		}
		e.sets[f] = values
		e.wildcard[f] = part == "*"
	}
	e.parsed = true
	return e, nil
}

// MustParse is like Parse but panics if the expression cannot be parsed
func MustParse(raw string) *Expression {
	e, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return e
}

func parseField(f Field, s string) ([]int, error) {
	switch {
	case s == "*":
		return expand(f.Min(), f.Max()), nil
	case strings.Contains(s, "-"):
		return parseRange(f, s)
	case strings.Contains(s, ";"):
		return parseList(f, s)
	default:
		v, err := parseValue(f, s, s)
		if err != nil {
			return nil, err
		}
		return []int{v}, nil
	}
}

func parseRange(f Field, s string) ([]int, error) {
	bounds := strings.SplitN(s, "-", 2)

	lo, err := parseValue(f, s, bounds[0])
	if err != nil {
		return nil, err
	}
	hi, err := parseValue(f, s, bounds[1])
	if err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, &TokenError{Field: f, Text: s, Reason: "descending range"}
	}
	return expand(lo, hi), nil
}

func parseList(f Field, s string) ([]int, error) {
	items := strings.Split(s, ";")
	values := make([]int, 0, len(items))
	for _, item := range items {
		v, err := parseValue(f, s, item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// parseValue parses a single integer of token, reporting token on failure
func parseValue(f Field, token, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &TokenError{Field: f, Text: token}
	}
	if v < f.Min() || v > f.Max() {
		return 0, &TokenError{
			Field:  f,
			Text:   token,
			Reason: fmt.Sprintf("%d out of range [%d, %d]", v, f.Min(), f.Max()),
		}
	}
	return v, nil
}

func expand(lo, hi int) []int {
	values := make([]int, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		values = append(values, v)
	}
	return values
}

// String returns the expression text as given to Parse
func (e *Expression) String() string {
	if e == nil {
		return ""
	}
	return e.raw
}

// Hours returns the accepted hours
func (e *Expression) Hours() []int { return e.values(FieldHour) }

// DaysOfMonth returns the accepted days of month
func (e *Expression) DaysOfMonth() []int { return e.values(FieldDayOfMonth) }

// Months returns the accepted months
func (e *Expression) Months() []int { return e.values(FieldMonth) }

// DaysOfWeek returns the accepted weekdays, 1 being the first day of the week
func (e *Expression) DaysOfWeek() []int { return e.values(FieldDayOfWeek) }

// Wildcard reports whether field f was given as "*"
func (e *Expression) Wildcard(f Field) bool {
	if e == nil {
		return false
	}
	return e.wildcard[f]
}

func (e *Expression) values(f Field) []int {
	if e == nil || e.sets[f] == nil {
		return nil
	}
	out := make([]int, len(e.sets[f]))
	copy(out, e.sets[f])
	return out
}
