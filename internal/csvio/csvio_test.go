package csvio

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"calendarapp/internal/calendar"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

func newCal(t *testing.T) *calendar.Calendar {
	t.Helper()
	c, err := calendar.New("America/Chicago")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newCal(t)
	start, _ := timeutil.ParseDateTime("2025-02-03T09:15", src.Location())
	end, _ := timeutil.ParseDateTime("2025-02-03T10:45", src.Location())
	if err := src.AddSingleEvent("Review, final", start, end, false, true,
		calendar.WithLocation("Room \"A\""), calendar.WithDescription("line one")); err != nil {
		t.Fatal(err)
	}
	day, _ := timeutil.ParseDate("2025-02-04", src.Location())
	if err := src.AddSingleEventAllDay("Offsite", day, false, false); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Export(&buf, src.GetAllEvents()); err != nil {
		t.Fatalf("Export: %v", err)
	}
	firstLine := strings.SplitN(buf.String(), "\n", 2)[0]
	if firstLine != "Subject,Start Date,Start Time,End Date,End Time,All Day Event,Description,Location,Private" {
		t.Errorf("header = %q", firstLine)
	}

	dst := newCal(t)
	res, err := Import(&buf, dst, true)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Summary() != "Successfully added 2 out of 2 events" {
		t.Fatalf("summary = %q, failures = %v", res.Summary(), res.Failures)
	}

	got, want := dst.GetAllEvents(), src.GetAllEvents()
	for i := range want {
		for _, key := range model.CSVHeader {
			if got[i][key] != want[i][key] {
				t.Errorf("row %d %s = %q, want %q", i, key, got[i][key], want[i][key])
			}
		}
	}
}

func TestImportKeepsGoodRows(t *testing.T) {
	in := strings.Join([]string{
		"Subject,Start Date,Start Time,End Date,End Time,All Day Event,Description,Location,Private",
		"A,03/01/2025,09:00 AM,03/01/2025,10:00 AM,False,,,False",
		"B,03/01/2025,bad,03/01/2025,10:00 AM,False,,,False",
		"C,03/01/2025,09:30 AM,03/01/2025,10:30 AM,False,,,False",
		"D,03/02/2025,11:00 AM,03/02/2025,10:00 AM,False,,,False",
		"E,03/03/2025,,03/03/2025,,True,,,maybe",
		"F,03/03/2025,,03/03/2025,,TRUE,,,",
	}, "\n")

	c := newCal(t)
	res, err := Import(strings.NewReader(in), c, true)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Added != 2 || res.Total != 6 || len(res.Failures) != 4 {
		t.Fatalf("result = %+v", res)
	}
	if !errors.Is(res.Failures[1], model.ErrConflict) {
		t.Errorf("C should be declined: %v", res.Failures[1])
	}
	if !strings.HasPrefix(res.Failures[0].Error(), "line 3: ") {
		t.Errorf("failure = %v", res.Failures[0])
	}
	rows := c.GetAllEvents()
	if rows[1][model.KeyAllDay] != "True" || rows[1][model.KeyStartDateTime] != "2025-03-03T00:00" {
		t.Errorf("all-day row = %v", rows[1])
	}
}

func TestImportRejectsBadHeader(t *testing.T) {
	c := newCal(t)
	_, err := Import(strings.NewReader("Subject,Start Date\nx,01/01/2025\n"), c, false)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	_, err = Import(strings.NewReader(""), c, false)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("empty input err = %v", err)
	}
}
