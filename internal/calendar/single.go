package calendar

import (
	"time"

	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

// SingleEvent is an entry with exactly one occurrence.
type SingleEvent struct {
	id     string
	fields fields
	start  time.Time
	end    time.Time
}

var _ Entry = (*SingleEvent)(nil)

// NewSingleEvent creates a timed event; end must be after start.
func NewSingleEvent(name string, start, end time.Time, opts ...EventOption) (*SingleEvent, error) {
	f, err := newFields(name, false, collectOptions(opts))
	if err != nil {
		return nil, err
	}
	if err := validateSpan(start, end); err != nil {
		return nil, err
	}
	return &SingleEvent{id: newID(), fields: f, start: start, end: end}, nil
}

// NewAllDayEvent creates an event spanning 00:00-23:59 of day's date. Any
// clock time in day is ignored.
func NewAllDayEvent(name string, day time.Time, opts ...EventOption) (*SingleEvent, error) {
	f, err := newFields(name, true, collectOptions(opts))
	if err != nil {
		return nil, err
	}
	if day.IsZero() {
		return nil, model.Invalidf("Start and end date time cannot be empty")
	}
	return &SingleEvent{
		id:     newID(),
		fields: f,
		start:  timeutil.StartOfDay(day),
		end:    timeutil.EndOfDay(day),
	}, nil
}

// SingleFromOccurrence turns an occurrence into a standalone event with a
// fresh ID.
func SingleFromOccurrence(o model.Occurrence) *SingleEvent {
	return &SingleEvent{
		id: newID(),
		fields: fields{
			name:        o.Name,
			description: o.Description,
			location:    o.Location,
			private:     o.Private,
			allDay:      o.AllDay,
		},
		start: o.Start,
		end:   o.End,
	}
}

func (e *SingleEvent) ID() string        { return e.id }
func (e *SingleEvent) Name() string      { return e.fields.name }
func (e *SingleEvent) Start() time.Time  { return e.start }
func (e *SingleEvent) End() time.Time    { return e.end }
func (e *SingleEvent) IsRecurring() bool { return false }

func (e *SingleEvent) Occurrences() []model.Occurrence {
	return []model.Occurrence{e.fields.occurrence(e.id, false, e.start, e.end)}
}

func (e *SingleEvent) Conflicts(other Entry) bool {
	return occurrencesOverlap(e.Occurrences(), other.Occurrences())
}

func (e *SingleEvent) WithinRange(start, end time.Time) []model.Occurrence {
	return filterRange(e.Occurrences(), start, end)
}

func (e *SingleEvent) Details(start, end time.Time, includeAll bool) []model.Details {
	if includeAll {
		return e.AllDetails()
	}
	return detailsList(e.WithinRange(start, end))
}

func (e *SingleEvent) AllDetails() []model.Details {
	return detailsList(e.Occurrences())
}

func (e *SingleEvent) MatchesOccurrence(name string, start, end time.Time) bool {
	return e.fields.name == name && e.start.Equal(start) && e.end.Equal(end)
}

// MatchesSeries is always false: a single event is never part of a series.
func (e *SingleEvent) MatchesSeries(string, *time.Time) bool { return false }

func (e *SingleEvent) OccurrenceStartingAt(name string, start time.Time) (model.Occurrence, bool) {
	if e.fields.name != name || !e.start.Equal(start) {
		return model.Occurrence{}, false
	}
	return e.Occurrences()[0], true
}

func (e *SingleEvent) EditOccurrence(name string, start, end time.Time, ch Change) (Entry, error) {
	if !e.MatchesOccurrence(name, start, end) {
		return nil, model.NotFoundf("Event not found")
	}
	next, err := e.applied(ch)
	if err != nil {
		return nil, err
	}
	*e = next
	return nil, nil
}

func (e *SingleEvent) EditSeries(name string, _ *time.Time, _ Change) (Entry, error) {
	return nil, model.NotFoundf("Could not find any recurring event: %s", name)
}

// applied returns a copy of e with ch applied, leaving e untouched.
func (e *SingleEvent) applied(ch Change) (SingleEvent, error) {
	next := *e
	if next.fields.applyDisplay(ch) {
		return next, nil
	}

	switch ch.Property {
	case PropAllDay:
		next.fields.allDay = ch.Bool
		if ch.Bool {
			next.start = timeutil.StartOfDay(e.start)
			next.end = timeutil.EndOfDay(e.start)
		}
	case PropStart:
		if err := validateSpan(ch.Time, e.end); err != nil {
			return SingleEvent{}, err
		}
		next.start = ch.Time
		next.fields.allDay = false
	case PropEnd:
		if err := validateSpan(e.start, ch.Time); err != nil {
			return SingleEvent{}, err
		}
		next.end = ch.Time
		next.fields.allDay = false
	default:
		return SingleEvent{}, model.Invalidf("Property %s is not supported for a single event", ch.Property)
	}
	return next, nil
}

func (e *SingleEvent) UpdateDateTime(start time.Time) error {
	if start.IsZero() {
		return model.Invalidf("Start and end date time cannot be empty")
	}
	d := e.end.Sub(e.start)
	e.start = start
	e.end = start.Add(d)
	return nil
}

func (e *SingleEvent) AddOffsetDays(n int) {
	e.start = e.start.AddDate(0, 0, n)
	e.end = e.end.AddDate(0, 0, n)
}

func (e *SingleEvent) UpdateZone(loc *time.Location) {
	e.start = e.start.In(loc)
	e.end = e.end.In(loc)
}

func (e *SingleEvent) Relabel(loc *time.Location) {
	e.start = timeutil.Relabel(e.start, loc)
	e.end = timeutil.Relabel(e.end, loc)
}

func (e *SingleEvent) Copy() Entry {
	c := *e
	c.id = newID()
	return &c
}

func (e *SingleEvent) Snapshot() Snapshot {
	c := *e
	return Snapshot{id: e.id, single: &c}
}

func (e *SingleEvent) Restore(s Snapshot) error {
	if s.single == nil || s.id != e.id {
		return errSnapshotMismatch(s, e.id)
	}
	*e = *s.single
	return nil
}
