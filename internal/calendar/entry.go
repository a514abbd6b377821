// Package calendar implements the single-calendar event model: single and
// recurring entries, recurrence expansion, scoped edits with snapshot-based
// rollback, conflict detection and range queries.
//
// Calendars are not safe for concurrent use; callers serialize access.
package calendar

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

// Entry is the capability set shared by SingleEvent and RecurringEvent.
type Entry interface {
	ID() string
	Name() string
	// Start / End are the event's own times for a single event and the
	// anchor occurrence's times for a series.
	Start() time.Time
	End() time.Time
	IsRecurring() bool

	// Occurrences lists every concrete instance in emission order.
	Occurrences() []model.Occurrence
	// Conflicts reports whether any occurrence of this entry overlaps any
	// occurrence of other. Touching intervals do not overlap.
	Conflicts(other Entry) bool
	// WithinRange returns the occurrences intersecting [start, end], both
	// bounds inclusive.
	WithinRange(start, end time.Time) []model.Occurrence
	// Details renders the occurrences within range, or all of them when
	// includeAll is set.
	Details(start, end time.Time, includeAll bool) []model.Details
	AllDetails() []model.Details

	// MatchesOccurrence reports an exact name+start+end match.
	MatchesOccurrence(name string, start, end time.Time) bool
	// MatchesSeries matches series by name and, when from is non-nil, by
	// having an occurrence starting at or after *from.
	MatchesSeries(name string, from *time.Time) bool
	// OccurrenceStartingAt locates one occurrence by name and start.
	OccurrenceStartingAt(name string, start time.Time) (model.Occurrence, bool)

	// EditOccurrence applies ch to the occurrence matched by identity. A
	// series detaches that occurrence and returns it as a new SingleEvent;
	// a single event is edited in place and nil is returned.
	EditOccurrence(name string, start, end time.Time, ch Change) (Entry, error)
	// EditSeries applies ch to the whole series (from == nil) or to the
	// occurrences starting at or after *from, which are split off into the
	// returned series when earlier occurrences remain.
	EditSeries(name string, from *time.Time, ch Change) (Entry, error)

	// UpdateDateTime moves the entry so it starts at start, keeping its
	// duration.
	UpdateDateTime(start time.Time) error
	AddOffsetDays(n int)
	// UpdateZone converts every timestamp to loc, preserving instants.
	UpdateZone(loc *time.Location)
	// Relabel keeps wall-clock fields and swaps the zone to loc.
	Relabel(loc *time.Location)

	// Copy returns a deep copy with a fresh ID.
	Copy() Entry
	Snapshot() Snapshot
	Restore(Snapshot) error
}

// fields are the display properties shared by every occurrence of an entry.
type fields struct {
	name        string
	description string
	location    string
	private     bool
	allDay      bool
}

// EventOption sets optional properties at construction.
type EventOption func(*eventOptions)

type eventOptions struct {
	description    string
	location       string
	private        bool
	maxOccurrences int
}

func WithDescription(s string) EventOption {
	return func(o *eventOptions) { o.description = s }
}

func WithLocation(s string) EventOption {
	return func(o *eventOptions) { o.location = s }
}

func WithPrivate(private bool) EventOption {
	return func(o *eventOptions) { o.private = private }
}

// WithOccurrenceCap bounds how many occurrences a series may generate.
func WithOccurrenceCap(n int) EventOption {
	return func(o *eventOptions) { o.maxOccurrences = n }
}

func collectOptions(opts []EventOption) eventOptions {
	o := eventOptions{maxOccurrences: DefaultMaxOccurrences}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxOccurrences <= 0 {
		o.maxOccurrences = DefaultMaxOccurrences
	}
	return o
}

func newFields(name string, allDay bool, o eventOptions) (fields, error) {
	if strings.TrimSpace(name) == "" {
		return fields{}, model.Invalidf("Event name cannot be empty")
	}
	return fields{
		name:        name,
		description: o.description,
		location:    o.location,
		private:     o.private,
		allDay:      allDay,
	}, nil
}

// applyDisplay updates a display property and reports whether ch was one.
func (f *fields) applyDisplay(ch Change) bool {
	switch ch.Property {
	case PropName:
		f.name = ch.Text
	case PropLocation:
		f.location = ch.Text
	case PropDescription:
		f.description = ch.Text
	case PropPrivate:
		f.private = ch.Bool
	case PropPublic:
		f.private = !ch.Bool
	default:
		return false
	}
	return true
}

func (f fields) occurrence(id string, recurring bool, start, end time.Time) model.Occurrence {
	return model.Occurrence{
		EntryID:     id,
		Name:        f.name,
		Description: f.description,
		Location:    f.location,
		Private:     f.private,
		AllDay:      f.allDay,
		Recurring:   recurring,
		Start:       start,
		End:         end,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func validateSpan(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return model.Invalidf("Start and end date time cannot be empty")
	}
	if !end.After(start) {
		return model.Invalidf("End time must be after start time")
	}
	return nil
}

// overlaps is the exclusive-exclusive overlap rule used for conflicts.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// intersects is the inclusive-inclusive rule used for range queries.
func intersects(start, end, rangeStart, rangeEnd time.Time) bool {
	return !start.After(rangeEnd) && !end.Before(rangeStart)
}

func occurrencesOverlap(a, b []model.Occurrence) bool {
	for _, x := range a {
		for _, y := range b {
			if overlaps(x.Start, x.End, y.Start, y.End) {
				return true
			}
		}
	}
	return false
}

func filterRange(occs []model.Occurrence, start, end time.Time) []model.Occurrence {
	var out []model.Occurrence
	for _, o := range occs {
		if intersects(o.Start, o.End, start, end) {
			out = append(out, o)
		}
	}
	return out
}

// DetailsOf renders an occurrence as a display row.
func DetailsOf(o model.Occurrence) model.Details {
	return model.Details{
		model.KeySubject:       o.Name,
		model.KeyStartDate:     timeutil.FormatDisplayDate(o.Start),
		model.KeyStartTime:     timeutil.FormatDisplayTime(o.Start),
		model.KeyEndDate:       timeutil.FormatDisplayDate(o.End),
		model.KeyEndTime:       timeutil.FormatDisplayTime(o.End),
		model.KeyAllDay:        boolString(o.AllDay),
		model.KeyDescription:   o.Description,
		model.KeyLocation:      o.Location,
		model.KeyPrivate:       boolString(o.Private),
		model.KeyStartDateTime: timeutil.FormatDateTime(o.Start),
		model.KeyEndDateTime:   timeutil.FormatDateTime(o.End),
	}
}

func detailsList(occs []model.Occurrence) []model.Details {
	out := make([]model.Details, 0, len(occs))
	for _, o := range occs {
		out = append(out, DetailsOf(o))
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
