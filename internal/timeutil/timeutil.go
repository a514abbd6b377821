// Package timeutil holds the date/time helpers shared by the calendar core
// and its collaborators: parsing and formatting of the yyyy-MM-dd and
// yyyy-MM-ddTHH:mm forms, 12-hour display strings, timezone validation and
// wall-clock relabeling.
package timeutil

import (
	"strings"
	"time"

	"calendarapp/internal/model"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04"

	DisplayDateLayout = "01/02/2006"
	DisplayTimeLayout = "03:04 PM"
)

// ParseDate parses a yyyy-MM-dd string as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(DateLayout, s, orUTC(loc))
	if err != nil {
		return time.Time{}, model.Invalidf("Invalid date: %s", s)
	}
	return t, nil
}

// ParseDateTime parses a yyyy-MM-ddTHH:mm string in loc. Out-of-range fields
// (month 13, hour 24, ...) are rejected.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(DateTimeLayout, s, orUTC(loc))
	if err != nil {
		return time.Time{}, model.Invalidf("Invalid date time: %s", s)
	}
	return t, nil
}

// ParseDateOrDateTime accepts either form; a bare date means midnight.
func ParseDateOrDateTime(s string, loc *time.Location) (time.Time, error) {
	if strings.Contains(s, "T") {
		return ParseDateTime(s, loc)
	}
	return ParseDate(s, loc)
}

// ParseUntil reads a series end bound. A bare date covers the whole day, so
// it ends at 23:59.
func ParseUntil(s string, loc *time.Location) (time.Time, error) {
	if strings.Contains(s, "T") {
		return ParseDateTime(s, loc)
	}
	d, err := ParseDate(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return EndOfDay(d), nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

func FormatDisplayDate(t time.Time) string {
	return t.Format(DisplayDateLayout)
}

func FormatDisplayTime(t time.Time) string {
	return t.Format(DisplayTimeLayout)
}

// LoadZone resolves an IANA timezone identifier. "Local" and the empty
// string are rejected so results never depend on the host.
func LoadZone(id string) (*time.Location, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, model.Invalidf("Timezone cannot be empty")
	}
	if id == "Local" {
		return nil, model.Invalidf("Invalid timezone: %s", id)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, model.Invalidf("Invalid timezone: %s", id)
	}
	return loc, nil
}

func IsValidZone(id string) bool {
	_, err := LoadZone(id)
	return err == nil
}

// StartOfDay returns 00:00 of t's calendar date in t's zone.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59 of t's calendar date, the synthesized end of an
// all-day event.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 0, 0, t.Location())
}

// AtTimeOf returns day's date combined with clock's hour and minute.
func AtTimeOf(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location())
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Relabel keeps t's wall-clock fields and swaps its zone, which moves the
// absolute instant whenever the two zones have different offsets.
func Relabel(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// DaysBetween counts calendar days from a to b, ignoring clock time and DST.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
