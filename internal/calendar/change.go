package calendar

import (
	"strconv"
	"strings"
	"time"

	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

// Property names accepted by the edit operations. Matching is exact and
// case-sensitive.
type Property string

const (
	PropName        Property = "name"
	PropLocation    Property = "location"
	PropDescription Property = "description"
	PropPublic      Property = "public"
	PropPrivate     Property = "private"
	PropStart       Property = "startDateTime"
	PropEnd         Property = "endDateTime"
	PropWeekDays    Property = "weekDays"
	PropFrequency   Property = "frequency"
	PropUntil       Property = "untilDateTime"
	PropAllDay      Property = "allDay"
)

// Change is a validated property edit. Only the field matching Property is
// meaningful.
type Change struct {
	Property Property

	Text  string
	Bool  bool
	Time  time.Time
	Count int
	Days  timeutil.WeekDays
}

// ParseChange validates property and value before any entry is touched.
// Timestamps are read in loc.
func ParseChange(property, value string, loc *time.Location) (Change, error) {
	ch := Change{Property: Property(property)}

	switch ch.Property {
	case PropName:
		if strings.TrimSpace(value) == "" {
			return Change{}, model.Invalidf("Event name cannot be empty")
		}
		ch.Text = value
	case PropLocation, PropDescription:
		ch.Text = value
	case PropPublic, PropPrivate, PropAllDay:
		b, err := parseBool(value)
		if err != nil {
			return Change{}, err
		}
		ch.Bool = b
	case PropStart, PropEnd:
		t, err := timeutil.ParseDateOrDateTime(value, loc)
		if err != nil {
			return Change{}, err
		}
		ch.Time = t
	case PropUntil:
		t, err := timeutil.ParseUntil(value, loc)
		if err != nil {
			return Change{}, err
		}
		ch.Time = t
	case PropWeekDays:
		days, err := timeutil.ParseWeekDays(value)
		if err != nil {
			return Change{}, err
		}
		ch.Days = days
	case PropFrequency:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return Change{}, model.Invalidf("Invalid frequency: %s", value)
		}
		ch.Count = n
	default:
		return Change{}, model.Invalidf("Invalid property: %s", property)
	}

	return ch, nil
}

// reshapesSeries reports whether applying the change to a whole series
// regenerates its occurrences.
func (ch Change) reshapesSeries() bool {
	switch ch.Property {
	case PropStart, PropEnd, PropWeekDays, PropFrequency, PropUntil:
		return true
	}
	return false
}

func parseBool(v string) (bool, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(v), "true"):
		return true, nil
	case strings.EqualFold(strings.TrimSpace(v), "false"):
		return false, nil
	}
	return false, model.Invalidf("Invalid boolean value: %s", v)
}
