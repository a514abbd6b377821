package model

import (
	"fmt"
	"time"
)

// Occurrence is one concrete dated instance of a calendar entry: the sole
// instance of a single event, or one generated instance of a recurring
// series. Occurrences are values; mutating one never touches the entry that
// produced it.
type Occurrence struct {
	// EntryID identifies the entry (single event or series) that produced
	// this occurrence.
	EntryID string

	Name        string
	Description string
	Location    string

	Private bool
	AllDay  bool

	// Recurring is true when the occurrence belongs to a series.
	Recurring bool

	// Start / End are in the owning calendar's timezone.
	Start time.Time
	End   time.Time
}

// Details is a display-ready row describing one occurrence. Values are
// already formatted strings; see the Key* constants for the column names.
type Details map[string]string

// Row keys. The first group mirrors the CSV export header.
const (
	KeySubject     = "Subject"
	KeyStartDate   = "Start Date"
	KeyStartTime   = "Start Time"
	KeyEndDate     = "End Date"
	KeyEndTime     = "End Time"
	KeyAllDay      = "All Day Event"
	KeyDescription = "Description"
	KeyLocation    = "Location"
	KeyPrivate     = "Private"

	// Machine-readable timestamps in yyyy-MM-ddTHH:mm form.
	KeyStartDateTime = "StartDateTime"
	KeyEndDateTime   = "EndDateTime"

	KeyIsRecurring = "Is Recurring"
)

// CSVHeader is the column order used by CSV import and export.
var CSVHeader = []string{
	KeySubject, KeyStartDate, KeyStartTime, KeyEndDate, KeyEndTime,
	KeyAllDay, KeyDescription, KeyLocation, KeyPrivate,
}

// ImportResult counts a bulk import that keeps the rows it could add.
type ImportResult struct {
	Added int
	Total int
	// Failures holds one error per rejected row, in input order.
	Failures []error
}

func (r ImportResult) Summary() string {
	return fmt.Sprintf("Successfully added %d out of %d events", r.Added, r.Total)
}
