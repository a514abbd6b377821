package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"calendarapp/internal/calendar"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

// Event is the normalized form of one VEVENT, ready to be added to a
// calendar.
type Event struct {
	UID string

	Summary     string
	Description string
	Location    string
	Private     bool

	Start  time.Time
	End    time.Time
	AllDay bool

	// Repeat is set for weekly RRULEs; nil means a single event.
	Repeat *Repeat
}

// Repeat is the subset of RRULE the calendar can represent: weekly on a set
// of weekdays, ended by COUNT or UNTIL.
type Repeat struct {
	WeekDays timeutil.WeekDays
	Count    int
	Until    time.Time
}

var errUnsupportedRule = errors.New("only FREQ=WEEKLY rules with COUNT or UNTIL are supported")

// ParseICS parses an ICS payload. Times carrying neither a TZID nor a UTC
// marker are read as wall-clock times in loc.
//
//   - VALUE=DATE (or a value without a time part) marks an all-day event.
//   - CLASS:PRIVATE or CLASS:CONFIDENTIAL marks the event private.
//   - VEVENTs that cannot be represented are logged and skipped.
func ParseICS(body []byte, loc *time.Location) ([]Event, error) {
	if len(body) == 0 {
		return nil, model.Invalidf("ICS file is empty")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, model.Invalidf("Invalid ICS file: %v", err)
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "uid", propValue(ve, ical.ComponentPropertyUniqueId))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Event, error) {
	out := Event{
		UID:         propValue(ve, ical.ComponentPropertyUniqueId),
		Summary:     propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
	}
	switch strings.ToUpper(propValue(ve, ical.ComponentPropertyClass)) {
	case string(ical.ClassificationPrivate), string(ical.ClassificationConfidential):
		out.Private = true
	}
	if strings.TrimSpace(out.Summary) == "" {
		return out, errors.New("missing SUMMARY")
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(startProp)

	var err error
	if out.AllDay {
		if out.Start, err = ve.GetAllDayStartAt(); err != nil {
			return out, err
		}
		out.Start = timeutil.StartOfDay(timeutil.Relabel(out.Start, loc))
		out.End = timeutil.EndOfDay(out.Start)
		if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
			if end, err := ve.GetAllDayEndAt(); err == nil {
				// DTEND of a DATE event is exclusive.
				last := timeutil.Relabel(end, loc).AddDate(0, 0, -1)
				if last.After(out.Start) {
					out.End = timeutil.EndOfDay(last)
					out.AllDay = false
				}
			}
		}
	} else {
		if out.Start, err = ve.GetStartAt(); err != nil {
			return out, err
		}
		out.Start = inZone(out.Start, startProp, loc)
		endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
		if endProp == nil {
			return out, errors.New("missing DTEND")
		}
		end, err := ve.GetEndAt()
		if err != nil {
			return out, err
		}
		out.End = inZone(end, endProp, loc)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rep, err := parseRepeat(p.Value, out.Start, loc)
		if err != nil {
			return out, fmt.Errorf("rrule %q: %w", p.Value, err)
		}
		out.Repeat = rep
	}
	return out, nil
}

// parseRepeat reads a weekly RRULE. A rule without BYDAY repeats on the
// start's weekday.
func parseRepeat(value string, start time.Time, loc *time.Location) (*Repeat, error) {
	opt, err := rrule.StrToROptionInLocation(value, loc)
	if err != nil {
		return nil, err
	}
	if opt.Freq != rrule.WEEKLY || opt.Interval > 1 {
		return nil, errUnsupportedRule
	}
	if opt.Count <= 0 && opt.Until.IsZero() {
		return nil, errUnsupportedRule
	}
	if len(opt.Bymonth)+len(opt.Bymonthday)+len(opt.Byyearday)+len(opt.Byweekno)+len(opt.Bysetpos) > 0 {
		return nil, errUnsupportedRule
	}

	days := make([]time.Weekday, 0, len(opt.Byweekday))
	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return nil, errUnsupportedRule
		}
		days = append(days, time.Weekday((wd.Day()+1)%7))
	}
	if len(days) == 0 {
		days = append(days, start.Weekday())
	}

	rep := &Repeat{WeekDays: timeutil.NewWeekDays(days...), Count: opt.Count}
	if opt.Count <= 0 {
		rep.Until = opt.Until.In(loc)
		if rep.Until.Equal(timeutil.StartOfDay(rep.Until)) {
			// A DATE-valued UNTIL covers the whole day.
			rep.Until = timeutil.EndOfDay(rep.Until)
		}
	}
	return rep, nil
}

// Apply adds events to cal, keeping the ones that succeed.
func Apply(cal *calendar.Calendar, events []Event, autoDecline bool) model.ImportResult {
	var res model.ImportResult
	for _, ev := range events {
		res.Total++
		if err := add(cal, ev, autoDecline); err != nil {
			res.Failures = append(res.Failures, fmt.Errorf("%s: %w", ev.Summary, err))
			continue
		}
		res.Added++
	}
	appLog.Info("ics import finished", "added", res.Added, "total", res.Total)
	return res
}

func add(cal *calendar.Calendar, ev Event, autoDecline bool) error {
	opts := []calendar.EventOption{
		calendar.WithDescription(ev.Description),
		calendar.WithLocation(ev.Location),
	}
	rep := ev.Repeat
	switch {
	case rep == nil && ev.AllDay:
		return cal.AddSingleEventAllDay(ev.Summary, ev.Start, autoDecline, ev.Private, opts...)
	case rep == nil:
		return cal.AddSingleEvent(ev.Summary, ev.Start, ev.End, autoDecline, ev.Private, opts...)
	case ev.AllDay && rep.Count > 0:
		return cal.AddRecurringAllDayEventFrequency(ev.Summary, ev.Start, rep.WeekDays.String(), rep.Count, autoDecline, ev.Private, opts...)
	case ev.AllDay:
		return cal.AddRecurringAllDayEventUntil(ev.Summary, ev.Start, rep.WeekDays.String(), rep.Until, autoDecline, ev.Private, opts...)
	case rep.Count > 0:
		return cal.AddRecurringEventFrequency(ev.Summary, ev.Start, ev.End, rep.WeekDays.String(), rep.Count, autoDecline, ev.Private, opts...)
	default:
		return cal.AddRecurringEventUntil(ev.Summary, ev.Start, ev.End, rep.WeekDays.String(), rep.Until, autoDecline, ev.Private, opts...)
	}
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// inZone converts t to loc. Floating times (no TZID, no trailing Z) were
// parsed in the host zone and are relabeled instead.
func inZone(t time.Time, p *ical.IANAProperty, loc *time.Location) time.Time {
	_, hasTZ := p.ICalParameters[string(ical.ParameterTzid)]
	if !hasTZ && !strings.HasSuffix(p.Value, "Z") {
		return timeutil.Relabel(t, loc)
	}
	return t.In(loc)
}
