package calendar

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

// DefaultMaxOccurrences caps the size of a single series.
const DefaultMaxOccurrences = 5000

// Rule is a weekly recurrence rule terminated by a count or by an
// inclusive until timestamp. Both terminations are kept in sync after every
// expansion; ByCount records which one the user supplied last and therefore
// governs regeneration.
type Rule struct {
	WeekDays timeutil.WeekDays
	Count    int
	Until    time.Time
	ByCount  bool
}

func (r Rule) clone() Rule {
	r.WeekDays = r.WeekDays.Clone()
	return r
}

type span struct {
	start time.Time
	end   time.Time
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// expand generates the occurrences of a series anchored at start/end.
//
//   - Days are walked forward from the anchor's date, inclusive; a day is
//     emitted when its weekday is in the rule.
//   - Every occurrence keeps the anchor's start clock time and ends at the
//     anchor's end clock time on the same date.
//   - With ByCount, exactly Count occurrences are emitted; otherwise every
//     occurrence whose start is not after Until.
//
// The returned rule has the non-governing termination back-computed: Until
// becomes the last occurrence's start, or Count the number emitted.
func expand(start, end time.Time, rule Rule, maxOccurrences int) ([]span, Rule, error) {
	if len(rule.WeekDays) == 0 {
		return nil, rule, model.Invalidf("Invalid week days: %s", rule.WeekDays)
	}
	if rule.ByCount && rule.Count <= 0 {
		return nil, rule, model.Invalidf("Invalid frequency: %d", rule.Count)
	}
	if !rule.ByCount && rule.Until.IsZero() {
		return nil, rule, model.Invalidf("Until date time cannot be empty")
	}
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}

	byDay := make([]rrule.Weekday, 0, len(rule.WeekDays))
	for _, d := range rule.WeekDays {
		byDay = append(byDay, rruleWeekdays[d])
	}

	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Byweekday: byDay,
		Wkst:      rrule.MO,
	}
	if rule.ByCount {
		if rule.Count > maxOccurrences {
			return nil, rule, model.Invalidf("Recurring event cannot have more than %d occurrences", maxOccurrences)
		}
		opt.Count = rule.Count
	} else {
		opt.Until = rule.Until
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, rule, model.Invalidf("Invalid recurrence: %v", err)
	}

	out := make([]span, 0)
	next := r.Iterator()
	for {
		occStart, ok := next()
		if !ok {
			break
		}
		if len(out) == maxOccurrences {
			return nil, rule, model.Invalidf("Recurring event cannot have more than %d occurrences", maxOccurrences)
		}
		occEnd := timeutil.AtTimeOf(occStart, end)
		out = append(out, span{start: occStart, end: occEnd})
	}

	if len(out) == 0 {
		return nil, rule, model.Invalidf("Recurring event has no occurrences")
	}

	if rule.ByCount {
		rule.Until = out[len(out)-1].start
	} else {
		rule.Count = len(out)
	}

	appLog.Debug("series expanded",
		"start", timeutil.FormatDateTime(start),
		"week_days", rule.WeekDays.String(),
		"by_count", rule.ByCount,
		"count", rule.Count,
		"until", timeutil.FormatDateTime(rule.Until),
	)
	return out, rule, nil
}
