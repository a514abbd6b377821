// Package registry manages named calendars, the currently selected one and
// copies between them.
package registry

import (
	"strings"
	"time"

	"calendarapp/internal/calendar"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

const (
	PropName     = "name"
	PropTimezone = "timezone"
)

// Registry is not safe for concurrent use.
type Registry struct {
	calendars map[string]*calendar.Calendar
	order     []string
	current   string
	opts      []calendar.Option
}

// New creates a registry holding one calendar, which becomes current.
func New(defaultName, zone string, opts ...calendar.Option) (*Registry, error) {
	r := &Registry{calendars: make(map[string]*calendar.Calendar), opts: opts}
	if err := r.Create(defaultName, zone); err != nil {
		return nil, err
	}
	r.current = defaultName
	return r, nil
}

func (r *Registry) Create(name, zone string) error {
	if strings.TrimSpace(name) == "" {
		return model.Invalidf("Calendar name cannot be empty")
	}
	if _, ok := r.calendars[name]; ok {
		return model.Existsf("Calendar already exists: %s", name)
	}
	c, err := calendar.New(zone, r.opts...)
	if err != nil {
		return err
	}
	r.calendars[name] = c
	r.order = append(r.order, name)
	appLog.Info("calendar created", "name", name, "timezone", c.Zone())
	return nil
}

// Edit renames a calendar or changes its timezone.
func (r *Registry) Edit(name, property, value string) error {
	c, err := r.Get(name)
	if err != nil {
		return err
	}

	switch property {
	case PropName:
		if strings.TrimSpace(value) == "" {
			return model.Invalidf("Calendar name cannot be empty")
		}
		if value == name {
			return nil
		}
		if _, ok := r.calendars[value]; ok {
			return model.Existsf("Calendar already exists: %s", value)
		}
		delete(r.calendars, name)
		r.calendars[value] = c
		for i, n := range r.order {
			if n == name {
				r.order[i] = value
			}
		}
		if r.current == name {
			r.current = value
		}
		return nil
	case PropTimezone:
		return c.ChangeTimezone(value)
	default:
		return model.Invalidf("Invalid property: %s", property)
	}
}

func (r *Registry) Use(name string) error {
	if _, err := r.Get(name); err != nil {
		return err
	}
	r.current = name
	return nil
}

func (r *Registry) Current() *calendar.Calendar { return r.calendars[r.current] }
func (r *Registry) CurrentName() string         { return r.current }

func (r *Registry) Get(name string) (*calendar.Calendar, error) {
	c, ok := r.calendars[name]
	if !ok {
		return nil, model.NotFoundf("Calendar does not exist: %s", name)
	}
	return c, nil
}

// Names lists calendars in creation order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// CopyEvent copies the occurrence of the current calendar named name and
// starting at start into target as a single event starting at targetStart.
// The duration is preserved.
func (r *Registry) CopyEvent(name string, start time.Time, target string, targetStart time.Time, autoDecline bool) error {
	dst, err := r.Get(target)
	if err != nil {
		return err
	}
	occ, ok := r.Current().FindOccurrence(name, start)
	if !ok {
		return model.NotFoundf("Event not found")
	}

	e := calendar.SingleFromOccurrence(occ)
	if err := e.UpdateDateTime(targetStart.In(dst.Location())); err != nil {
		return err
	}
	return dst.AddEvents([]calendar.Entry{e}, autoDecline)
}

// CopyEventsOn copies every occurrence touching day into target. Each copy
// is converted to the target zone, keeping its instant, and then moved by
// the whole days between day and targetDay.
func (r *Registry) CopyEventsOn(day time.Time, target string, targetDay time.Time, autoDecline bool) error {
	if day.IsZero() || targetDay.IsZero() {
		return model.Invalidf("Date cannot be empty")
	}
	src := r.Current()
	day = day.In(src.Location())
	return r.copyRange(timeutil.StartOfDay(day), timeutil.EndOfDay(day), target, targetDay, false, autoDecline)
}

// CopyEventsBetween copies the occurrences touching the dates from..to into
// target, moved so from lands on targetStart. Series lying wholly inside the
// span are copied as series; others are copied occurrence by occurrence.
func (r *Registry) CopyEventsBetween(from, to time.Time, target string, targetStart time.Time, autoDecline bool) error {
	if from.IsZero() || to.IsZero() || targetStart.IsZero() {
		return model.Invalidf("Date cannot be empty")
	}
	src := r.Current()
	from, to = from.In(src.Location()), to.In(src.Location())
	if timeutil.StartOfDay(to).Before(timeutil.StartOfDay(from)) {
		return model.Invalidf("End date must not be before start date")
	}
	return r.copyRange(timeutil.StartOfDay(from), timeutil.EndOfDay(to), target, targetStart, true, autoDecline)
}

func (r *Registry) copyRange(start, end time.Time, target string, targetDay time.Time, keepSeries, autoDecline bool) error {
	dst, err := r.Get(target)
	if err != nil {
		return err
	}
	offset := timeutil.DaysBetween(start, targetDay)

	var copies []calendar.Entry
	for _, e := range r.Current().Entries() {
		if keepSeries && e.IsRecurring() && whollyInside(e, start, end) {
			c := e.Copy()
			c.UpdateZone(dst.Location())
			c.AddOffsetDays(offset)
			copies = append(copies, c)
			continue
		}
		for _, o := range e.WithinRange(start, end) {
			c := calendar.SingleFromOccurrence(o)
			c.UpdateZone(dst.Location())
			c.AddOffsetDays(offset)
			copies = append(copies, c)
		}
	}

	if err := dst.AddEvents(copies, autoDecline); err != nil {
		return err
	}
	appLog.Debug("events copied", "target", target, "count", len(copies), "offsetDays", offset)
	return nil
}

func whollyInside(e calendar.Entry, start, end time.Time) bool {
	occ := e.Occurrences()
	if len(occ) == 0 {
		return false
	}
	return !occ[0].Start.Before(start) && !occ[len(occ)-1].End.After(end)
}
