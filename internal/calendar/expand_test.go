package calendar

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

func mustLoad(t *testing.T, zone string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(zone)
	if err != nil {
		t.Fatalf("load %s: %v", zone, err)
	}
	return loc
}

func mustTime(t *testing.T, s string, loc *time.Location) time.Time {
	t.Helper()
	v, err := timeutil.ParseDateOrDateTime(s, loc)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func mustDays(t *testing.T, code string) timeutil.WeekDays {
	t.Helper()
	d, err := timeutil.ParseWeekDays(code)
	if err != nil {
		t.Fatalf("parse week days %q: %v", code, err)
	}
	return d
}

func startsOf(spans []span) []string {
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, timeutil.FormatDateTime(s.start))
	}
	return out
}

func TestExpandUntilSkipsAnchorAndWeekend(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	start := mustTime(t, "2025-03-08T12:00", loc)
	end := mustTime(t, "2025-03-08T13:00", loc)
	rule := Rule{WeekDays: mustDays(t, "MTWRF"), Until: mustTime(t, "2025-03-17T23:00", loc)}

	spans, got, err := expand(start, end, rule, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	want := []string{
		"2025-03-10T12:00", "2025-03-11T12:00", "2025-03-12T12:00",
		"2025-03-13T12:00", "2025-03-14T12:00", "2025-03-17T12:00",
	}
	if !reflect.DeepEqual(startsOf(spans), want) {
		t.Fatalf("starts = %v, want %v", startsOf(spans), want)
	}
	for _, s := range spans {
		if s.end.Sub(s.start) != time.Hour {
			t.Errorf("occurrence %v lasts %v, want 1h", s.start, s.end.Sub(s.start))
		}
	}
	if got.Count != 6 {
		t.Errorf("back-computed count = %d, want 6", got.Count)
	}
}

func TestExpandUntilComparesClockTime(t *testing.T) {
	loc := time.UTC
	start := mustTime(t, "2025-03-10T12:00", loc)
	end := mustTime(t, "2025-03-10T13:00", loc)

	// Until on the 12th but before the anchor's clock time excludes the 12th.
	rule := Rule{WeekDays: mustDays(t, "MTWRF"), Until: mustTime(t, "2025-03-12T11:00", loc)}
	spans, _, err := expand(start, end, rule, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("got %v, want 2 occurrences", startsOf(spans))
	}

	rule.Until = mustTime(t, "2025-03-12T12:00", loc)
	spans, _, err = expand(start, end, rule, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("got %v, want 3 occurrences", startsOf(spans))
	}
}

func TestUntilDateCoversBoundaryDay(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	ch, err := ParseChange(string(PropUntil), "2025-03-17", loc)
	if err != nil {
		t.Fatalf("ParseChange: %v", err)
	}
	if got := timeutil.FormatDateTime(ch.Time); got != "2025-03-17T23:59" {
		t.Fatalf("until = %s, want end of day", got)
	}

	series, err := NewRecurringUntil("Event1",
		mustTime(t, "2025-03-08T12:00", loc), mustTime(t, "2025-03-08T13:00", loc),
		mustDays(t, "MTWRF"), ch.Time)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}
	want := []string{
		"2025-03-10T12:00", "2025-03-11T12:00", "2025-03-12T12:00",
		"2025-03-13T12:00", "2025-03-14T12:00", "2025-03-17T12:00",
	}
	if got := startsOf(series.occurrences); !reflect.DeepEqual(got, want) {
		t.Errorf("starts = %v, want %v", got, want)
	}

	// An explicit clock time is still compared as given.
	ch, err = ParseChange(string(PropUntil), "2025-03-17T11:00", loc)
	if err != nil {
		t.Fatal(err)
	}
	if err := series.editAll(ch); err != nil {
		t.Fatalf("edit until: %v", err)
	}
	if n := len(series.occurrences); n != 5 {
		t.Errorf("occurrences = %d, want 5", n)
	}
}

func TestExpandFrequencyUntilEquivalence(t *testing.T) {
	loc := time.UTC
	start := mustTime(t, "2025-03-08T09:30", loc)
	end := mustTime(t, "2025-03-08T10:00", loc)

	byCount, countRule, err := expand(start, end, Rule{WeekDays: mustDays(t, "MTW"), Count: 3, ByCount: true}, 0)
	if err != nil {
		t.Fatalf("expand by count: %v", err)
	}
	if want := mustTime(t, "2025-03-12T09:30", loc); !countRule.Until.Equal(want) {
		t.Fatalf("derived until = %v, want %v", countRule.Until, want)
	}

	byUntil, untilRule, err := expand(start, end, Rule{WeekDays: mustDays(t, "MTW"), Until: countRule.Until}, 0)
	if err != nil {
		t.Fatalf("expand by until: %v", err)
	}
	if !reflect.DeepEqual(byCount, byUntil) {
		t.Fatalf("occurrences differ:\ncount: %v\nuntil: %v", startsOf(byCount), startsOf(byUntil))
	}
	if untilRule.Count != 3 {
		t.Errorf("derived count = %d, want 3", untilRule.Count)
	}
}

func TestExpandErrors(t *testing.T) {
	loc := time.UTC
	start := mustTime(t, "2025-03-10T12:00", loc)
	end := mustTime(t, "2025-03-10T13:00", loc)

	tests := []struct {
		name string
		rule Rule
		max  int
	}{
		{name: "no week days", rule: Rule{Count: 2, ByCount: true}},
		{name: "zero count", rule: Rule{WeekDays: mustDays(t, "M"), ByCount: true}},
		{name: "missing until", rule: Rule{WeekDays: mustDays(t, "M")}},
		{name: "until before anchor", rule: Rule{WeekDays: mustDays(t, "M"), Until: mustTime(t, "2025-03-01", loc)}},
		{name: "count over cap", rule: Rule{WeekDays: mustDays(t, "M"), Count: 11, ByCount: true}, max: 10},
		{name: "until over cap", rule: Rule{WeekDays: mustDays(t, "MTWRFSU"), Until: mustTime(t, "2026-03-10", loc)}, max: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := expand(start, end, tt.rule, tt.max)
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestExpandKeepsWallClockAcrossDST(t *testing.T) {
	loc := mustLoad(t, "America/New_York")
	start := mustTime(t, "2025-03-07T09:00", loc)
	end := mustTime(t, "2025-03-07T10:00", loc)

	spans, _, err := expand(start, end, Rule{WeekDays: mustDays(t, "FM"), Count: 2, ByCount: true}, 0)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	for _, s := range spans {
		if s.start.Hour() != 9 || s.end.Hour() != 10 {
			t.Errorf("occurrence %v-%v moved off 09:00-10:00", s.start, s.end)
		}
	}
}

func TestRecurringSplitFollowingKeepsPrefixRule(t *testing.T) {
	loc := time.UTC
	series, err := NewRecurringCount("Standup",
		mustTime(t, "2025-03-10T09:00", loc), mustTime(t, "2025-03-10T09:15", loc),
		mustDays(t, "MWF"), 6)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}

	from := mustTime(t, "2025-03-14T00:00", loc)
	tail, err := series.EditSeries("Standup", &from, Change{Property: PropFrequency, Count: 2})
	if err != nil {
		t.Fatalf("edit following: %v", err)
	}
	if tail == nil {
		t.Fatal("expected a split-off series")
	}

	if got := startsOf(series.occurrences); !reflect.DeepEqual(got, []string{"2025-03-10T09:00", "2025-03-12T09:00"}) {
		t.Errorf("prefix = %v", got)
	}
	if series.rule.Count != 2 || !series.rule.Until.Equal(mustTime(t, "2025-03-12T09:00", loc)) {
		t.Errorf("prefix rule = %+v", series.rule)
	}

	rt := tail.(*RecurringEvent)
	if got := startsOf(rt.occurrences); !reflect.DeepEqual(got, []string{"2025-03-14T09:00", "2025-03-17T09:00"}) {
		t.Errorf("tail = %v", got)
	}
	if rt.ID() == series.ID() {
		t.Error("tail must have its own ID")
	}
}

func TestSnapshotRestoreRejectsOtherEntry(t *testing.T) {
	loc := time.UTC
	a, _ := NewSingleEvent("a", mustTime(t, "2025-01-01T10:00", loc), mustTime(t, "2025-01-01T11:00", loc))
	b, _ := NewSingleEvent("b", mustTime(t, "2025-01-01T10:00", loc), mustTime(t, "2025-01-01T11:00", loc))

	if err := b.Restore(a.Snapshot()); err == nil {
		t.Fatal("expected mismatch error")
	}

	snap := a.Snapshot()
	if _, err := a.EditOccurrence("a", a.Start(), a.End(), Change{Property: PropName, Text: "renamed"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := a.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if a.Name() != "a" {
		t.Errorf("name = %q after restore, want a", a.Name())
	}
}

func TestRecurringUpdateDateTimeMovesSeries(t *testing.T) {
	loc := time.UTC
	series, err := NewRecurringCount("Gym",
		mustTime(t, "2025-03-10T09:00", loc), mustTime(t, "2025-03-10T10:00", loc),
		mustDays(t, "MW"), 3)
	if err != nil {
		t.Fatalf("new series: %v", err)
	}

	if err := series.UpdateDateTime(mustTime(t, "2025-03-11T14:00", loc)); err != nil {
		t.Fatalf("UpdateDateTime: %v", err)
	}

	want := []string{"2025-03-11T14:00", "2025-03-13T14:00", "2025-03-18T14:00"}
	if got := startsOf(series.occurrences); !reflect.DeepEqual(got, want) {
		t.Errorf("starts = %v, want %v", got, want)
	}
	for _, s := range series.occurrences {
		if s.end.Sub(s.start) != time.Hour {
			t.Errorf("occurrence %v lasts %v, want 1h", s.start, s.end.Sub(s.start))
		}
	}
	if got := series.Rule().WeekDays.String(); got != "TR" {
		t.Errorf("week days = %s, want TR", got)
	}
	if !series.Start().Equal(mustTime(t, "2025-03-11T14:00", loc)) {
		t.Errorf("anchor = %v", series.Start())
	}

	if err := series.UpdateDateTime(time.Time{}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("zero start err = %v", err)
	}
}

func TestDetailsRangeAndIncludeAll(t *testing.T) {
	loc := time.UTC
	series, err := NewRecurringCount("Gym",
		mustTime(t, "2025-03-10T09:00", loc), mustTime(t, "2025-03-10T10:00", loc),
		mustDays(t, "MW"), 3)
	if err != nil {
		t.Fatal(err)
	}
	single, err := NewSingleEvent("Dentist", mustTime(t, "2025-03-20T15:00", loc), mustTime(t, "2025-03-20T16:00", loc))
	if err != nil {
		t.Fatal(err)
	}

	from, to := mustTime(t, "2025-03-12T00:00", loc), mustTime(t, "2025-03-12T23:59", loc)
	tests := []struct {
		name       string
		entry      Entry
		includeAll bool
		want       []string
	}{
		{name: "series in range", entry: series, want: []string{"2025-03-12T09:00"}},
		{name: "series all", entry: series, includeAll: true, want: []string{"2025-03-10T09:00", "2025-03-12T09:00", "2025-03-17T09:00"}},
		{name: "single out of range", entry: single},
		{name: "single all", entry: single, includeAll: true, want: []string{"2025-03-20T15:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, d := range tt.entry.Details(from, to, tt.includeAll) {
				got = append(got, d[model.KeyStartDateTime])
				if d[model.KeySubject] != tt.entry.Name() {
					t.Errorf("subject = %q", d[model.KeySubject])
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("starts = %v, want %v", got, tt.want)
			}
		})
	}
}
