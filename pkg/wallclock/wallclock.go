// Package wallclock provides timezone-naive calendar values.
//
// Every value is a local wall-clock reading with no offset attached. Values
// are never converted between zones: "2024-03-10T09:30:00" stays 09:30 no
// matter where the server runs. Internally the types keep a time.Time pinned
// to UTC so arithmetic never crosses a DST transition.
package wallclock

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

var dateTimeLayouts = []string{
	DateTimeLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// -- Date --

// Date is a calendar day without a time or zone.
type Date struct {
	t time.Time
}

// NewDate builds a Date. Out-of-range components are normalised the way
// time.Date normalises them.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// Weekday returns 0 for Sunday through 6 for Saturday.
func (d Date) Weekday() int { return int(d.t.Weekday()) }

func (d Date) Year() int { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int { return d.t.Day() }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// Start returns midnight at the beginning of the day.
func (d Date) Start() DateTime { return DateTime{t: d.t} }

// At returns the instant on this day at the given time of day.
func (d Date) At(tod TimeOfDay) DateTime {
	return DateTime{t: d.t.Add(time.Duration(tod) * time.Minute)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s, null, err := unquote(b)
	if err != nil || null {
		*d = Date{}
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// -- TimeOfDay --

// TimeOfDay is a minute-resolution clock reading, stored as minutes after
// midnight.
type TimeOfDay int

// EndOfDay is 24:00, the midnight that closes a day. It is only meaningful as
// the end of an interval; Postgres TIME accepts it the same way.
const EndOfDay TimeOfDay = 24 * 60

// NewTimeOfDay validates and builds a TimeOfDay.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustTimeOfDay parses s and panics on failure. Intended for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay accepts HH:MM and HH:MM:SS. Seconds, when present, must be
// zero: slot grids are minute aligned. 24:00 parses as EndOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	for _, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
		}
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: bad hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: bad minute", s)
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, fmt.Errorf("invalid time %q: seconds must be 00", s)
	}
	if hour == 24 && minute == 0 {
		return EndOfDay, nil
	}
	return NewTimeOfDay(hour, minute)
}

func (t TimeOfDay) Hour() int { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }
func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	s, null, err := unquote(b)
	if err != nil {
		return err
	}
	if null {
		return fmt.Errorf("time of day must not be null")
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// -- DateTime --

// DateTime is a second-resolution wall-clock instant without a zone.
type DateTime struct {
	t time.Time
}

// NewDateTime builds a DateTime from components.
func NewDateTime(year int, month time.Month, day, hour, minute, sec int) DateTime {
	return DateTime{t: time.Date(year, month, day, hour, minute, sec, 0, time.UTC)}
}

// FromTime reads the wall-clock fields of t and drops its location. The
// hour printed by t is the hour kept, never a converted one.
func FromTime(t time.Time) DateTime {
	if t.IsZero() {
		return DateTime{}
	}
	return DateTime{t: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)}
}

// ParseDateTime parses YYYY-MM-DDTHH:MM[:SS] (a space may replace the T).
// Inputs carrying a zone designator such as Z or +02:00 are rejected.
func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateTime{t: t.Truncate(time.Second)}, nil
		}
	}
	return DateTime{}, fmt.Errorf("invalid datetime %q: expected YYYY-MM-DDTHH:MM:SS without offset", s)
}

// MustDateTime parses s and panics on failure. Intended for tests.
func MustDateTime(s string) DateTime {
	dt, err := ParseDateTime(s)
	if err != nil {
		panic(err)
	}
	return dt
}

func (dt DateTime) IsZero() bool { return dt.t.IsZero() }

// Date returns the calendar day of dt.
func (dt DateTime) Date() Date {
	return Date{t: time.Date(dt.t.Year(), dt.t.Month(), dt.t.Day(), 0, 0, 0, 0, time.UTC)}
}

// TimeOfDay returns the clock reading of dt, truncated to the minute.
func (dt DateTime) TimeOfDay() TimeOfDay {
	return TimeOfDay(dt.t.Hour()*60 + dt.t.Minute())
}

// AddMinutes returns dt shifted by n minutes with plain arithmetic.
func (dt DateTime) AddMinutes(n int) DateTime {
	return DateTime{t: dt.t.Add(time.Duration(n) * time.Minute)}
}

func (dt DateTime) Before(o DateTime) bool { return dt.t.Before(o.t) }
func (dt DateTime) After(o DateTime) bool { return dt.t.After(o.t) }
func (dt DateTime) Equal(o DateTime) bool { return dt.t.Equal(o.t) }
func (dt DateTime) Sub(o DateTime) time.Duration { return dt.t.Sub(o.t) }
func (dt DateTime) Compare(o DateTime) int { return dt.t.Compare(o.t) }

// Time returns a UTC-located time.Time carrying the same wall-clock fields.
// It exists for database drivers; callers must not convert it to another zone.
func (dt DateTime) Time() time.Time { return dt.t }

func (dt DateTime) String() string {
	if dt.IsZero() {
		return ""
	}
	return dt.t.Format(DateTimeLayout)
}

func (dt DateTime) MarshalJSON() ([]byte, error) {
	if dt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(dt.String())
}

func (dt *DateTime) UnmarshalJSON(b []byte) error {
	s, null, err := unquote(b)
	if err != nil || null {
		*dt = DateTime{}
		return err
	}
	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// ParseRangeBound parses a query bound given either as a date or as a
// datetime. A bare date used as an upper bound means the end of that day, so
// date_to=2024-05-15 includes the whole of the 15th.
func ParseRangeBound(s string, upper bool) (DateTime, error) {
	if d, err := ParseDate(s); err == nil {
		if upper {
			return d.AddDays(1).Start(), nil
		}
		return d.Start(), nil
	}
	return ParseDateTime(s)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share any instant.
func Overlaps(aStart, aEnd, bStart, bEnd DateTime) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func unquote(b []byte) (string, bool, error) {
	if string(b) == "null" {
		return "", true, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", false, fmt.Errorf("expected a string: %w", err)
	}
	if s == "" {
		return "", true, nil
	}
	return s, false, nil
}
