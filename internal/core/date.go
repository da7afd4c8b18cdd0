package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of every calendar date.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC. The JSON form is "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate creates a Date from year, month, day. Out-of-range days roll over
// like time.Date; use ClampedDate to stay inside the month.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ClampedDate creates a Date, pulling the day back to the last day of the
// month when the month is shorter (31 in April becomes the 30th).
func ClampedDate(year, month, day int) Date {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(year, month, day)
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts "YYYY-MM-DD" and anything longer starting with it
// (ISO timestamps).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns "YYYY-MM".
func (d Date) MonthKey() string {
	return MonthKey(d.Year(), d.Month())
}

// WithDay keeps year and month and moves to the given day, clamped.
func (d Date) WithDay(day int) Date {
	return ClampedDate(d.Year(), d.Month(), day)
}

// Compare orders two dates.
func (d Date) Compare(o Date) int {
	return d.Time.Compare(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MonthKey formats a year and month as "YYYY-MM".
func MonthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ParseMonthKey parses "YYYY-MM".
func ParseMonthKey(key string) (year, month int, err error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(key))
	if err != nil {
		return 0, 0, fmt.Errorf("parse month %q: %w", key, ErrInvalidMonth)
	}
	return t.Year(), int(t.Month()), nil
}

// DaysIn returns the number of days of a month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextMonth advances one calendar month, rolling December into January of the
// following year.
func NextMonth(year, month int) (int, int) {
	if month >= 12 {
		return year + 1, 1
	}
	return year, month + 1
}

// AddMonths advances n calendar months (n >= 0).
func AddMonths(year, month, n int) (int, int) {
	for i := 0; i < n; i++ {
		year, month = NextMonth(year, month)
	}
	return year, month
}

// MonthsBetween returns how many calendar months b lies after a.
func MonthsBetween(a, b Date) int {
	return (b.Year()-a.Year())*12 + (b.Month() - a.Month())
}

// StartOfMonth returns the first day of t's month.
func StartOfMonth(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), 1)
}
