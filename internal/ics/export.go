package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"calendarapp/internal/calendar"
)

const ProductID = "-//calendarapp//EN"

// Export writes cal as a VCALENDAR with one VEVENT per occurrence. UIDs are
// derived from the entry ID and the occurrence's position in the entry, so
// re-exporting an unchanged calendar yields the same UIDs. stamp is written
// as DTSTAMP.
func Export(w io.Writer, cal *calendar.Calendar, name string, stamp time.Time) error {
	out := ical.NewCalendar()
	out.SetMethod(ical.MethodPublish)
	out.SetProductId(ProductID)
	if name != "" {
		out.SetXWRCalName(name)
	}
	out.SetXWRTimezone(cal.Zone())

	// Occurrences arrive grouped by entry in emission order.
	seq := make(map[string]int)
	for _, o := range cal.AllOccurrences() {
		i := seq[o.EntryID]
		seq[o.EntryID]++

		ve := out.AddEvent(fmt.Sprintf("%s-%d@calendarapp", o.EntryID, i))
		ve.SetDtStampTime(stamp)
		ve.SetSummary(o.Name)
		if o.Description != "" {
			ve.SetDescription(o.Description)
		}
		if o.Location != "" {
			ve.SetLocation(o.Location)
		}
		if o.Private {
			ve.SetClass(ical.ClassificationPrivate)
		} else {
			ve.SetClass(ical.ClassificationPublic)
		}
		if o.AllDay {
			ve.SetAllDayStartAt(o.Start)
			ve.SetAllDayEndAt(o.Start.AddDate(0, 0, 1))
		} else {
			ve.SetStartAt(o.Start)
			ve.SetEndAt(o.End)
		}
	}

	if err := out.SerializeTo(w); err != nil {
		return fmt.Errorf("ics: export: %w", err)
	}
	return nil
}
