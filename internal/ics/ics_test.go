package ics

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"calendarapp/internal/calendar"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

func newCal(t *testing.T, zone string) *calendar.Calendar {
	t.Helper()
	c, err := calendar.New(zone)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func at(t *testing.T, c *calendar.Calendar, s string) time.Time {
	t.Helper()
	v, err := timeutil.ParseDateOrDateTime(s, c.Location())
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestExportThenParse(t *testing.T) {
	src := newCal(t, "America/New_York")
	if err := src.AddRecurringEventFrequency("Standup", at(t, src, "2025-03-10T09:00"), at(t, src, "2025-03-10T09:15"), "MWF", 3, false, true,
		calendar.WithLocation("Room 4")); err != nil {
		t.Fatal(err)
	}
	if err := src.AddSingleEventAllDay("Holiday", at(t, src, "2025-03-20"), false, false); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	stamp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := Export(&buf, src, "work", stamp); err != nil {
		t.Fatalf("Export: %v", err)
	}
	body := buf.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "PRODID:" + ProductID, "CLASS:PRIVATE", "CLASS:PUBLIC", "X-WR-CALNAME:work"} {
		if !strings.Contains(body, want) {
			t.Errorf("export missing %q", want)
		}
	}
	if n := strings.Count(body, "BEGIN:VEVENT"); n != 4 {
		t.Errorf("VEVENT count = %d, want 4", n)
	}

	events, err := ParseICS(buf.Bytes(), src.Location())
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("events = %d", len(events))
	}

	dst := newCal(t, "America/New_York")
	res := Apply(dst, events, true)
	if res.Added != 4 {
		t.Fatalf("apply = %s (%v)", res.Summary(), res.Failures)
	}
	// Occurrences come back as single events; display rows carry no
	// recurrence flag, so they still compare equal.
	if !reflect.DeepEqual(dst.GetAllEvents(), src.GetAllEvents()) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", dst.GetAllEvents(), src.GetAllEvents())
	}
}

func TestExportUIDsAreStable(t *testing.T) {
	c := newCal(t, "UTC")
	if err := c.AddSingleEvent("x", at(t, c, "2025-01-01T10:00"), at(t, c, "2025-01-01T11:00"), false, false); err != nil {
		t.Fatal(err)
	}
	var a, b bytes.Buffer
	stamp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := Export(&a, c, "", stamp); err != nil {
		t.Fatal(err)
	}
	if err := Export(&b, c, "", stamp); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Error("export is not deterministic")
	}

	if err := c.AddRecurringEventFrequency("y", at(t, c, "2025-01-06T08:00"), at(t, c, "2025-01-06T09:00"), "M", 2, false, false); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := Export(&out, c, "", stamp); err != nil {
		t.Fatal(err)
	}
	series := c.Entries()[1].ID()
	for _, uid := range []string{c.Entries()[0].ID() + "-0@calendarapp", series + "-0@calendarapp", series + "-1@calendarapp"} {
		if !strings.Contains(out.String(), "UID:"+uid) {
			t.Errorf("missing UID %s", uid)
		}
	}
}

const weeklyFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:a
DTSTAMP:20250101T000000Z
SUMMARY:Weekly sync
DTSTART:20250310T140000
DTEND:20250310T150000
RRULE:FREQ=WEEKLY;BYDAY=MO,TH;COUNT=4
CLASS:CONFIDENTIAL
END:VEVENT
BEGIN:VEVENT
UID:b
DTSTAMP:20250101T000000Z
SUMMARY:Until rule
DTSTART;TZID=Europe/Paris:20250311T100000
DTEND;TZID=Europe/Paris:20250311T110000
RRULE:FREQ=WEEKLY;UNTIL=20250325
END:VEVENT
BEGIN:VEVENT
UID:c
DTSTAMP:20250101T000000Z
SUMMARY:Daily
DTSTART:20250310T080000Z
DTEND:20250310T083000Z
RRULE:FREQ=DAILY;COUNT=3
END:VEVENT
BEGIN:VEVENT
UID:d
DTSTAMP:20250101T000000Z
DTSTART:20250310T080000Z
DTEND:20250310T083000Z
END:VEVENT
END:VCALENDAR
`

func TestParseWeeklyRules(t *testing.T) {
	c := newCal(t, "Europe/Paris")
	events, err := ParseICS([]byte(strings.ReplaceAll(weeklyFeed, "\n", "\r\n")), c.Location())
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (daily rule and missing summary skipped)", len(events))
	}

	w := events[0]
	if w.Repeat == nil || w.Repeat.Count != 4 || w.Repeat.WeekDays.String() != "MR" {
		t.Fatalf("weekly = %+v", w.Repeat)
	}
	if !w.Private {
		t.Error("CONFIDENTIAL should import as private")
	}
	if got := timeutil.FormatDateTime(w.Start); got != "2025-03-10T14:00" || w.Start.Location() != c.Location() {
		t.Errorf("floating start = %s in %s", got, w.Start.Location())
	}

	u := events[1]
	if u.Repeat == nil || u.Repeat.Count != 0 || u.Repeat.WeekDays.String() != "T" {
		t.Fatalf("until = %+v", u.Repeat)
	}
	if got := timeutil.FormatDateTime(u.Repeat.Until); got != "2025-03-25T23:59" {
		t.Errorf("until = %s", got)
	}

	res := Apply(c, events, true)
	if res.Summary() != "Successfully added 2 out of 2 events" {
		t.Fatalf("apply: %s %v", res.Summary(), res.Failures)
	}
	if n := len(c.GetAllEvents()); n != 7 {
		t.Errorf("occurrences = %d, want 7", n)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := ParseICS(nil, time.UTC); !errors.Is(err, model.ErrValidation) {
		t.Errorf("empty err = %v", err)
	}
}

func TestFetcherUsesETagCache(t *testing.T) {
	var hits, notModified atomic.Int32
	failing := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(weeklyFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), WithHTTPClient(srv.Client()))
	ctx := context.Background()

	first, err := f.FetchOne(ctx, srv.URL+"/feed.ics")
	if err != nil || first.FromCache {
		t.Fatalf("first fetch = %+v, %v", first.FromCache, err)
	}
	second, err := f.FetchOne(ctx, srv.URL+"/feed.ics")
	if err != nil || !second.FromCache || notModified.Load() != 1 {
		t.Fatalf("second fetch fromCache=%v err=%v 304s=%d", second.FromCache, err, notModified.Load())
	}
	if !bytes.Equal(first.Body, second.Body) {
		t.Error("cached body differs")
	}

	failing.Store(true)
	third, err := f.FetchOne(ctx, srv.URL+"/feed.ics")
	if err != nil || !third.FromCache {
		t.Fatalf("fallback fetch = %+v, %v", third.FromCache, err)
	}

	if _, err := f.FetchOne(ctx, srv.URL+"/other.ics"); err == nil {
		t.Error("uncached failing URL should error")
	}
	if hits.Load() != 4 {
		t.Errorf("hits = %d", hits.Load())
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://example.com/private/abc.ics?token=x"); got != "https://example.com/...(redacted)" {
		t.Errorf("redact = %s", got)
	}
}
