package calendar

import (
	"errors"
	"time"

	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

const (
	StatusBusy      = "Busy"
	StatusAvailable = "Available"
)

// Calendar owns a timezone and an insertion-ordered collection of entries.
type Calendar struct {
	loc            *time.Location
	entries        []Entry
	maxOccurrences int
	revision       uint64
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithMaxOccurrences caps the size of series created through the calendar.
func WithMaxOccurrences(n int) Option {
	return func(c *Calendar) {
		if n > 0 {
			c.maxOccurrences = n
		}
	}
}

// New creates an empty calendar in the given IANA zone.
func New(zone string, opts ...Option) (*Calendar, error) {
	loc, err := timeutil.LoadZone(zone)
	if err != nil {
		return nil, err
	}
	c := &Calendar{loc: loc, maxOccurrences: DefaultMaxOccurrences}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }
func (c *Calendar) Zone() string             { return c.loc.String() }

// Revision increases on every committed mutation.
func (c *Calendar) Revision() uint64 { return c.revision }

// Entries returns the entries in insertion order. The slice is a copy; the
// entries are not.
func (c *Calendar) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

func (c *Calendar) entryOptions(private bool, opts []EventOption) []EventOption {
	return append([]EventOption{WithPrivate(private), WithOccurrenceCap(c.maxOccurrences)}, opts...)
}

func (c *Calendar) AddSingleEvent(name string, start, end time.Time, autoDecline, private bool, opts ...EventOption) error {
	e, err := NewSingleEvent(name, c.in(start), c.in(end), c.entryOptions(private, opts)...)
	if err != nil {
		return err
	}
	return c.addNew(e, autoDecline)
}

func (c *Calendar) AddSingleEventAllDay(name string, day time.Time, autoDecline, private bool, opts ...EventOption) error {
	e, err := NewAllDayEvent(name, c.in(day), c.entryOptions(private, opts)...)
	if err != nil {
		return err
	}
	return c.addNew(e, autoDecline)
}

func (c *Calendar) AddRecurringEventUntil(name string, start, end time.Time, weekDays string, until time.Time, autoDecline, private bool, opts ...EventOption) error {
	days, err := timeutil.ParseWeekDays(weekDays)
	if err != nil {
		return err
	}
	e, err := NewRecurringUntil(name, c.in(start), c.in(end), days, c.in(until), c.entryOptions(private, opts)...)
	if err != nil {
		return err
	}
	return c.addNew(e, autoDecline)
}

func (c *Calendar) AddRecurringEventFrequency(name string, start, end time.Time, weekDays string, count int, autoDecline, private bool, opts ...EventOption) error {
	days, err := timeutil.ParseWeekDays(weekDays)
	if err != nil {
		return err
	}
	e, err := NewRecurringCount(name, c.in(start), c.in(end), days, count, c.entryOptions(private, opts)...)
	if err != nil {
		return err
	}
	return c.addNew(e, autoDecline)
}

func (c *Calendar) AddRecurringAllDayEventUntil(name string, day time.Time, weekDays string, until time.Time, autoDecline, private bool, opts ...EventOption) error {
	days, err := timeutil.ParseWeekDays(weekDays)
	if err != nil {
		return err
	}
	e, err := NewRecurringAllDayUntil(name, c.in(day), days, c.in(until), c.entryOptions(private, opts)...)
	if err != nil {
		return err
	}
	return c.addNew(e, autoDecline)
}

func (c *Calendar) AddRecurringAllDayEventFrequency(name string, day time.Time, weekDays string, count int, autoDecline, private bool, opts ...EventOption) error {
	days, err := timeutil.ParseWeekDays(weekDays)
	if err != nil {
		return err
	}
	e, err := NewRecurringAllDayCount(name, c.in(day), days, count, c.entryOptions(private, opts)...)
	if err != nil {
		return err
	}
	return c.addNew(e, autoDecline)
}

func (c *Calendar) addNew(e Entry, autoDecline bool) error {
	if autoDecline && c.conflicts([]Entry{e}) {
		return model.Conflictf("Conflict detected, Event not Created")
	}
	c.entries = append(c.entries, e)
	c.revision++
	appLog.Debug("event added", "id", e.ID(), "name", e.Name(), "recurring", e.IsRecurring())
	return nil
}

// AddEvents adds all entries or none. With autoDecline, the batch is checked
// against the existing entries and against itself.
func (c *Calendar) AddEvents(entries []Entry, autoDecline bool) error {
	if len(entries) == 0 {
		return nil
	}
	if autoDecline && c.conflicts(entries) {
		return model.Conflictf("Conflict detected, Events not copied")
	}
	c.entries = append(c.entries, entries...)
	c.revision++
	return nil
}

// EditSingleEvent edits the occurrence identified by name, start and end.
// An occurrence of a series is detached into a standalone event.
func (c *Calendar) EditSingleEvent(name string, start, end time.Time, property, value string, autoDecline bool) error {
	start, end = c.in(start), c.in(end)

	var matched []Entry
	for _, e := range c.entries {
		if e.MatchesOccurrence(name, start, end) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return model.NotFoundf("Event not found")
	}

	ch, err := ParseChange(property, value, c.loc)
	if err != nil {
		return err
	}
	return c.stage(matched, autoDecline, func(e Entry) (Entry, error) {
		return e.EditOccurrence(name, start, end, ch)
	})
}

// EditMultipleEventsFollowing edits, in every series named name, the
// occurrences starting at or after from. Series without such occurrences
// are left as they are.
func (c *Calendar) EditMultipleEventsFollowing(name string, from time.Time, property, value string, autoDecline bool) error {
	from = c.in(from)
	return c.editSeries(name, &from, property, value, autoDecline)
}

// EditMultipleEventsAll edits every occurrence of every series named name.
func (c *Calendar) EditMultipleEventsAll(name, property, value string, autoDecline bool) error {
	return c.editSeries(name, nil, property, value, autoDecline)
}

func (c *Calendar) editSeries(name string, from *time.Time, property, value string, autoDecline bool) error {
	var matched []Entry
	for _, e := range c.entries {
		if e.MatchesSeries(name, nil) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return model.NotFoundf("Could not find any recurring event: %s", name)
	}

	ch, err := ParseChange(property, value, c.loc)
	if err != nil {
		return err
	}
	return c.stage(matched, autoDecline, func(e Entry) (Entry, error) {
		return e.EditSeries(name, from, ch)
	})
}

// stage applies edit to each matched entry after snapshotting it. The
// edited entries plus any entries split off by the edit form the staged
// set, which is checked against the remaining entries and against itself.
// On error or conflict every matched entry is restored and nothing is
// committed.
func (c *Calendar) stage(matched []Entry, autoDecline bool, edit func(Entry) (Entry, error)) error {
	snapshots := make([]Snapshot, 0, len(matched))
	staged := make([]Entry, 0, len(matched))
	var added []Entry

	for _, e := range matched {
		snap := e.Snapshot()
		split, err := edit(e)
		if err != nil {
			return errors.Join(err, c.rollback(matched, snapshots))
		}
		snapshots = append(snapshots, snap)
		staged = append(staged, e)
		if split != nil {
			staged = append(staged, split)
			added = append(added, split)
		}
	}

	if autoDecline && c.conflicts(staged) {
		appLog.Debug("edit rolled back on conflict", "entries", len(matched))
		return errors.Join(model.Conflictf("Event conflicts with existing event"), c.rollback(matched, snapshots))
	}

	c.entries = append(c.entries, added...)
	c.pruneEmpty()
	c.revision++
	return nil
}

func (c *Calendar) rollback(matched []Entry, snapshots []Snapshot) error {
	var errs []error
	for i, snap := range snapshots {
		if err := matched[i].Restore(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pruneEmpty drops series whose occurrences have all been detached.
func (c *Calendar) pruneEmpty() {
	kept := c.entries[:0]
	for _, e := range c.entries {
		if r, ok := e.(*RecurringEvent); ok && r.Empty() {
			continue
		}
		kept = append(kept, e)
	}
	clear(c.entries[len(kept):])
	c.entries = kept
}

// conflicts reports whether any staged entry overlaps an entry outside the
// staged set, or another staged entry.
func (c *Calendar) conflicts(staged []Entry) bool {
	ids := make(map[string]struct{}, len(staged))
	for _, s := range staged {
		ids[s.ID()] = struct{}{}
	}

	ix := newOccurrenceIndex()
	for _, e := range c.entries {
		if _, ok := ids[e.ID()]; !ok {
			ix.add(e)
		}
	}

	for i, s := range staged {
		for _, o := range s.Occurrences() {
			if ix.overlapping(o.Start, o.End) {
				return true
			}
		}
		for _, other := range staged[:i] {
			if s.Conflicts(other) {
				return true
			}
		}
	}
	return false
}

func (c *Calendar) index() *occurrenceIndex {
	ix := newOccurrenceIndex()
	for _, e := range c.entries {
		ix.add(e)
	}
	return ix
}

// OccurrencesInRange returns occurrences intersecting [start, end] with
// both bounds inclusive, sorted by start time.
func (c *Calendar) OccurrencesInRange(start, end time.Time) ([]model.Occurrence, error) {
	if start.IsZero() || end.IsZero() {
		return nil, model.Invalidf("Start and end date time cannot be empty")
	}
	if end.Before(start) {
		return nil, model.Invalidf("End time must be after start time")
	}
	return c.index().within(c.in(start), c.in(end)), nil
}

func (c *Calendar) GetEventsRange(start, end time.Time) ([]model.Details, error) {
	occ, err := c.OccurrencesInRange(start, end)
	if err != nil {
		return nil, err
	}
	return detailsList(occ), nil
}

// GetEventsOnDate returns the occurrences touching day's date.
func (c *Calendar) GetEventsOnDate(day time.Time) ([]model.Details, error) {
	if day.IsZero() {
		return nil, model.Invalidf("Date cannot be empty")
	}
	day = c.in(day)
	return c.GetEventsRange(timeutil.StartOfDay(day), timeutil.EndOfDay(day))
}

// AllOccurrences concatenates every entry's occurrences in insertion order.
func (c *Calendar) AllOccurrences() []model.Occurrence {
	var out []model.Occurrence
	for _, e := range c.entries {
		out = append(out, e.Occurrences()...)
	}
	return out
}

func (c *Calendar) GetAllEvents() []model.Details {
	var out []model.Details
	for _, e := range c.entries {
		out = append(out, e.Details(time.Time{}, time.Time{}, true)...)
	}
	return out
}

// GetStatusOnDateTime probes the minute starting at t.
func (c *Calendar) GetStatusOnDateTime(t time.Time) (string, error) {
	if t.IsZero() {
		return "", model.Invalidf("Date time cannot be empty")
	}
	t = c.in(t)
	return c.status(t, t.Add(time.Minute)), nil
}

func (c *Calendar) GetStatusInRange(start, end time.Time) (string, error) {
	if start.IsZero() || end.IsZero() {
		return "", model.Invalidf("Start and end date time cannot be empty")
	}
	if end.Before(start) {
		return "", model.Invalidf("End time must be after start time")
	}
	return c.status(c.in(start), c.in(end)), nil
}

func (c *Calendar) status(start, end time.Time) string {
	if c.index().overlapping(start, end) {
		return StatusBusy
	}
	return StatusAvailable
}

// ChangeTimezone moves the calendar to zone keeping every entry's
// wall-clock fields, so absolute instants shift by the offset difference.
func (c *Calendar) ChangeTimezone(zone string) error {
	loc, err := timeutil.LoadZone(zone)
	if err != nil {
		return err
	}
	for _, e := range c.entries {
		e.Relabel(loc)
	}
	appLog.Info("calendar timezone changed", "from", c.loc.String(), "to", loc.String(), "entries", len(c.entries))
	c.loc = loc
	c.revision++
	return nil
}

// FindOccurrence locates the occurrence named name starting at start.
func (c *Calendar) FindOccurrence(name string, start time.Time) (model.Occurrence, bool) {
	start = c.in(start)
	for _, e := range c.entries {
		if o, ok := e.OccurrenceStartingAt(name, start); ok {
			return o, true
		}
	}
	return model.Occurrence{}, false
}

// GetExactEvent returns the display row of one occurrence plus its
// "Is Recurring" flag, or an empty row when nothing matches.
func (c *Calendar) GetExactEvent(name string, start time.Time) model.Details {
	o, ok := c.FindOccurrence(name, start)
	if !ok {
		return model.Details{}
	}
	d := DetailsOf(o)
	d[model.KeyIsRecurring] = boolString(o.Recurring)
	return d
}

func (c *Calendar) in(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(c.loc)
}
