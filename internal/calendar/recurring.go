package calendar

import (
	"time"

	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

// RecurringEvent is a weekly series. It owns its generated occurrences,
// which all share the series' display properties.
type RecurringEvent struct {
	id     string
	fields fields

	// start / end anchor the series: the first candidate date and the
	// clock times every occurrence uses.
	start time.Time
	end   time.Time

	rule           Rule
	occurrences    []span
	maxOccurrences int
}

var _ Entry = (*RecurringEvent)(nil)

// NewRecurringUntil creates a series emitting occurrences up to and
// including until.
func NewRecurringUntil(name string, start, end time.Time, days timeutil.WeekDays, until time.Time, opts ...EventOption) (*RecurringEvent, error) {
	return newRecurring(name, false, start, end, Rule{WeekDays: days, Until: until}, opts)
}

// NewRecurringCount creates a series of exactly count occurrences.
func NewRecurringCount(name string, start, end time.Time, days timeutil.WeekDays, count int, opts ...EventOption) (*RecurringEvent, error) {
	return newRecurring(name, false, start, end, Rule{WeekDays: days, Count: count, ByCount: true}, opts)
}

// NewRecurringAllDayUntil creates an all-day series starting on day's date.
func NewRecurringAllDayUntil(name string, day time.Time, days timeutil.WeekDays, until time.Time, opts ...EventOption) (*RecurringEvent, error) {
	return newRecurring(name, true, timeutil.StartOfDay(day), timeutil.EndOfDay(day), Rule{WeekDays: days, Until: until}, opts)
}

func NewRecurringAllDayCount(name string, day time.Time, days timeutil.WeekDays, count int, opts ...EventOption) (*RecurringEvent, error) {
	return newRecurring(name, true, timeutil.StartOfDay(day), timeutil.EndOfDay(day), Rule{WeekDays: days, Count: count, ByCount: true}, opts)
}

func newRecurring(name string, allDay bool, start, end time.Time, rule Rule, opts []EventOption) (*RecurringEvent, error) {
	o := collectOptions(opts)
	f, err := newFields(name, allDay, o)
	if err != nil {
		return nil, err
	}
	if err := validateSeriesSpan(start, end); err != nil {
		return nil, err
	}
	rule.WeekDays = rule.WeekDays.Clone()

	occ, rule, err := expand(start, end, rule, o.maxOccurrences)
	if err != nil {
		return nil, err
	}
	return &RecurringEvent{
		id:             newID(),
		fields:         f,
		start:          start,
		end:            end,
		rule:           rule,
		occurrences:    occ,
		maxOccurrences: o.maxOccurrences,
	}, nil
}

func validateSeriesSpan(start, end time.Time) error {
	if err := validateSpan(start, end); err != nil {
		return err
	}
	if !timeutil.SameDate(start, end) {
		return model.Invalidf("Recurring event must start and end on the same day")
	}
	return nil
}

func (e *RecurringEvent) ID() string        { return e.id }
func (e *RecurringEvent) Name() string      { return e.fields.name }
func (e *RecurringEvent) Start() time.Time  { return e.start }
func (e *RecurringEvent) End() time.Time    { return e.end }
func (e *RecurringEvent) IsRecurring() bool { return true }

// Rule returns a copy of the series' rule.
func (e *RecurringEvent) Rule() Rule { return e.rule.clone() }

func (e *RecurringEvent) Occurrences() []model.Occurrence {
	out := make([]model.Occurrence, 0, len(e.occurrences))
	for _, s := range e.occurrences {
		out = append(out, e.fields.occurrence(e.id, true, s.start, s.end))
	}
	return out
}

func (e *RecurringEvent) Conflicts(other Entry) bool {
	return occurrencesOverlap(e.Occurrences(), other.Occurrences())
}

func (e *RecurringEvent) WithinRange(start, end time.Time) []model.Occurrence {
	return filterRange(e.Occurrences(), start, end)
}

func (e *RecurringEvent) Details(start, end time.Time, includeAll bool) []model.Details {
	if includeAll {
		return e.AllDetails()
	}
	return detailsList(e.WithinRange(start, end))
}

func (e *RecurringEvent) AllDetails() []model.Details {
	return detailsList(e.Occurrences())
}

func (e *RecurringEvent) indexOf(start, end time.Time) int {
	for i, s := range e.occurrences {
		if s.start.Equal(start) && s.end.Equal(end) {
			return i
		}
	}
	return -1
}

func (e *RecurringEvent) MatchesOccurrence(name string, start, end time.Time) bool {
	return e.fields.name == name && e.indexOf(start, end) >= 0
}

func (e *RecurringEvent) MatchesSeries(name string, from *time.Time) bool {
	if e.fields.name != name {
		return false
	}
	if from == nil {
		return true
	}
	return e.firstAtOrAfter(*from) < len(e.occurrences)
}

func (e *RecurringEvent) firstAtOrAfter(t time.Time) int {
	for i, s := range e.occurrences {
		if !s.start.Before(t) {
			return i
		}
	}
	return len(e.occurrences)
}

func (e *RecurringEvent) OccurrenceStartingAt(name string, start time.Time) (model.Occurrence, bool) {
	if e.fields.name != name {
		return model.Occurrence{}, false
	}
	for _, s := range e.occurrences {
		if s.start.Equal(start) {
			return e.fields.occurrence(e.id, true, s.start, s.end), true
		}
	}
	return model.Occurrence{}, false
}

// EditOccurrence splits the matched occurrence off the series. The edit is
// applied to the detached SingleEvent; the series keeps the rest unchanged.
func (e *RecurringEvent) EditOccurrence(name string, start, end time.Time, ch Change) (Entry, error) {
	if e.fields.name != name {
		return nil, model.NotFoundf("Event not found")
	}
	i := e.indexOf(start, end)
	if i < 0 {
		return nil, model.NotFoundf("Event not found")
	}

	s := e.occurrences[i]
	detached := SingleFromOccurrence(e.fields.occurrence(e.id, false, s.start, s.end))
	next, err := detached.applied(ch)
	if err != nil {
		return nil, err
	}
	*detached = next

	e.occurrences = append(e.occurrences[:i:i], e.occurrences[i+1:]...)
	appLog.Debug("occurrence detached from series", "series", e.id, "event", detached.id, "property", ch.Property)
	return detached, nil
}

// Empty reports whether every occurrence has been detached.
func (e *RecurringEvent) Empty() bool { return len(e.occurrences) == 0 }

func (e *RecurringEvent) EditSeries(name string, from *time.Time, ch Change) (Entry, error) {
	if e.fields.name != name {
		return nil, model.NotFoundf("Could not find any recurring event: %s", name)
	}
	if from == nil {
		return nil, e.editAll(ch)
	}

	i := e.firstAtOrAfter(*from)
	switch {
	case i == len(e.occurrences):
		// Nothing at or after the filter.
		return nil, nil
	case i == 0:
		return nil, e.editAll(ch)
	}

	prefix := e.occurrences[:i]
	suffix := e.occurrences[i:]

	tail := &RecurringEvent{
		id:             newID(),
		fields:         e.fields,
		start:          suffix[0].start,
		end:            suffix[0].end,
		rule:           e.rule.clone(),
		occurrences:    append([]span(nil), suffix...),
		maxOccurrences: e.maxOccurrences,
	}
	tail.rule.Count = len(suffix)
	if err := tail.editAll(ch); err != nil {
		return nil, err
	}

	e.occurrences = append([]span(nil), prefix...)
	e.rule.Count = len(prefix)
	e.rule.Until = prefix[len(prefix)-1].start

	appLog.Debug("series split", "series", e.id, "tail", tail.id, "kept", len(prefix), "property", ch.Property)
	return tail, nil
}

// editAll applies ch to every occurrence, regenerating them when the rule
// or anchor changes. e is left untouched on error.
func (e *RecurringEvent) editAll(ch Change) error {
	next := e.clone()
	if err := next.applyAll(ch); err != nil {
		return err
	}
	*e = *next
	return nil
}

func (e *RecurringEvent) applyAll(ch Change) error {
	if e.fields.applyDisplay(ch) {
		return nil
	}
	if ch.Property == PropAllDay {
		e.fields.allDay = ch.Bool
		if ch.Bool {
			e.start = timeutil.StartOfDay(e.start)
			e.end = timeutil.EndOfDay(e.start)
			for i, s := range e.occurrences {
				e.occurrences[i] = span{start: timeutil.StartOfDay(s.start), end: timeutil.EndOfDay(s.start)}
			}
		}
		return nil
	}
	if !ch.reshapesSeries() {
		return model.Invalidf("Invalid property: %s", ch.Property)
	}

	start, end, rule := e.start, e.end, e.rule.clone()
	switch ch.Property {
	case PropStart:
		end = ch.Time.Add(e.end.Sub(e.start))
		start = ch.Time
		e.fields.allDay = false
	case PropEnd:
		end = ch.Time
		e.fields.allDay = false
	case PropWeekDays:
		rule.WeekDays = ch.Days.Clone()
	case PropFrequency:
		rule.Count = ch.Count
		rule.ByCount = true
	case PropUntil:
		rule.Until = ch.Time
		rule.ByCount = false
	}
	if err := validateSeriesSpan(start, end); err != nil {
		return err
	}
	return e.regenerate(start, end, rule)
}

func (e *RecurringEvent) regenerate(start, end time.Time, rule Rule) error {
	occ, rule, err := expand(start, end, rule, e.maxOccurrences)
	if err != nil {
		return err
	}
	e.start, e.end, e.rule, e.occurrences = start, end, rule, occ
	return nil
}

// UpdateDateTime moves the whole series so its anchor starts at start. The
// occurrences move by the same number of days, take start's clock time and
// keep their duration.
func (e *RecurringEvent) UpdateDateTime(start time.Time) error {
	if start.IsZero() {
		return model.Invalidf("Start and end date time cannot be empty")
	}
	d := e.end.Sub(e.start)
	next := e.clone()
	next.AddOffsetDays(timeutil.DaysBetween(e.start, start))

	next.start = start
	next.end = start.Add(d)
	for i, s := range next.occurrences {
		st := timeutil.AtTimeOf(s.start, start)
		next.occurrences[i] = span{start: st, end: st.Add(d)}
	}
	if err := validateSeriesSpan(next.start, next.end); err != nil {
		return err
	}
	if n := len(next.occurrences); n > 0 {
		next.rule.Until = next.occurrences[n-1].start
	}
	*e = *next
	return nil
}

// AddOffsetDays shifts every timestamp by n days and rotates the weekday
// set to match.
func (e *RecurringEvent) AddOffsetDays(n int) {
	e.start = e.start.AddDate(0, 0, n)
	e.end = e.end.AddDate(0, 0, n)
	if !e.rule.Until.IsZero() {
		e.rule.Until = e.rule.Until.AddDate(0, 0, n)
	}
	e.rule.WeekDays = e.rule.WeekDays.Shift(n)
	for i, s := range e.occurrences {
		e.occurrences[i] = span{start: s.start.AddDate(0, 0, n), end: s.end.AddDate(0, 0, n)}
	}
}

func (e *RecurringEvent) UpdateZone(loc *time.Location) {
	converted := e.start.In(loc)
	shift := timeutil.DaysBetween(e.start, converted)
	e.start = converted
	e.end = e.end.In(loc)
	if !e.rule.Until.IsZero() {
		e.rule.Until = e.rule.Until.In(loc)
	}
	e.rule.WeekDays = e.rule.WeekDays.Shift(shift)
	for i, s := range e.occurrences {
		e.occurrences[i] = span{start: s.start.In(loc), end: s.end.In(loc)}
	}
}

func (e *RecurringEvent) Relabel(loc *time.Location) {
	e.start = timeutil.Relabel(e.start, loc)
	e.end = timeutil.Relabel(e.end, loc)
	e.rule.Until = timeutil.Relabel(e.rule.Until, loc)
	for i, s := range e.occurrences {
		e.occurrences[i] = span{start: timeutil.Relabel(s.start, loc), end: timeutil.Relabel(s.end, loc)}
	}
}

func (e *RecurringEvent) clone() *RecurringEvent {
	c := *e
	c.rule = e.rule.clone()
	c.occurrences = append([]span(nil), e.occurrences...)
	return &c
}

func (e *RecurringEvent) Copy() Entry {
	c := e.clone()
	c.id = newID()
	return c
}

func (e *RecurringEvent) Snapshot() Snapshot {
	return Snapshot{id: e.id, series: e.clone()}
}

func (e *RecurringEvent) Restore(s Snapshot) error {
	if s.series == nil || s.id != e.id {
		return errSnapshotMismatch(s, e.id)
	}
	*e = *s.series.clone()
	return nil
}
