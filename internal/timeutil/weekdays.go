package timeutil

import (
	"strings"
	"time"

	"calendarapp/internal/model"
)

// weekdayLetters maps the compact code alphabet to weekdays. R is Thursday
// and U is Sunday.
var weekdayLetters = map[rune]time.Weekday{
	'M': time.Monday,
	'T': time.Tuesday,
	'W': time.Wednesday,
	'R': time.Thursday,
	'F': time.Friday,
	'S': time.Saturday,
	'U': time.Sunday,
}

// isoOrder lists weekdays Monday first, the order codes are formatted in.
var isoOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

var weekdayCode = map[time.Weekday]byte{
	time.Monday:    'M',
	time.Tuesday:   'T',
	time.Wednesday: 'W',
	time.Thursday:  'R',
	time.Friday:    'F',
	time.Saturday:  'S',
	time.Sunday:    'U',
}

// WeekDays is a set of weekdays, kept Monday-first without duplicates.
type WeekDays []time.Weekday

// ParseWeekDays parses a code such as "MWF" or "MTWRFSU".
func ParseWeekDays(code string) (WeekDays, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, model.Invalidf("Invalid week days: %s", code)
	}
	var seen [7]bool
	for _, r := range trimmed {
		d, ok := weekdayLetters[r]
		if !ok {
			return nil, model.Invalidf("Invalid week days: %s", code)
		}
		seen[d] = true
	}
	return fromMask(seen), nil
}

// NewWeekDays builds a normalized set from arbitrary weekdays.
func NewWeekDays(days ...time.Weekday) WeekDays {
	var seen [7]bool
	for _, d := range days {
		seen[d] = true
	}
	return fromMask(seen)
}

func fromMask(seen [7]bool) WeekDays {
	out := make(WeekDays, 0, 7)
	for _, d := range isoOrder {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}

func (w WeekDays) String() string {
	var b strings.Builder
	for _, d := range w {
		b.WriteByte(weekdayCode[d])
	}
	return b.String()
}

func (w WeekDays) Contains(d time.Weekday) bool {
	for _, x := range w {
		if x == d {
			return true
		}
	}
	return false
}

// Shift rotates every day forward by n days (n may be negative).
func (w WeekDays) Shift(n int) WeekDays {
	shifted := make([]time.Weekday, 0, len(w))
	for _, d := range w {
		shifted = append(shifted, time.Weekday(((int(d)+n)%7+7)%7))
	}
	return NewWeekDays(shifted...)
}

func (w WeekDays) Clone() WeekDays {
	return append(WeekDays(nil), w...)
}
