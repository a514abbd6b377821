// Package csvio reads and writes calendar rows as CSV.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"calendarapp/internal/calendar"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

const displayLayout = timeutil.DisplayDateLayout + " " + timeutil.DisplayTimeLayout

// Export writes rows under model.CSVHeader.
func Export(w io.Writer, rows []model.Details) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.CSVHeader); err != nil {
		return fmt.Errorf("csvio: write header: %w", err)
	}
	record := make([]string, len(model.CSVHeader))
	for _, row := range rows {
		for i, key := range model.CSVHeader {
			record[i] = row[key]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csvio: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Import adds one single event per data row to cal. Rows that fail to
// parse or are declined are counted and reported; earlier rows stay added.
// The returned error is non-nil only when the input itself is unreadable.
func Import(r io.Reader, cal *calendar.Calendar, autoDecline bool) (model.ImportResult, error) {
	var res model.ImportResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, model.Invalidf("CSV file is empty")
	}
	if err != nil {
		return res, fmt.Errorf("csvio: read header: %w", err)
	}
	cols, err := columns(header)
	if err != nil {
		return res, err
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("csvio: read line %d: %w", line, err)
		}
		res.Total++
		if err := addRow(cal, cols, record, autoDecline); err != nil {
			res.Failures = append(res.Failures, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		res.Added++
	}

	appLog.Info("csv import finished", "added", res.Added, "total", res.Total)
	return res, nil
}

// columns maps header names to positions. Every known column must be
// present; order is free.
func columns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[h] = i
	}
	for _, key := range model.CSVHeader {
		if _, ok := cols[key]; !ok {
			return nil, model.Invalidf("Invalid CSV header: missing %s", key)
		}
	}
	return cols, nil
}

func addRow(cal *calendar.Calendar, cols map[string]int, record []string, autoDecline bool) error {
	field := func(key string) string {
		if i := cols[key]; i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	private, err := parseFlag(field(model.KeyPrivate))
	if err != nil {
		return err
	}
	allDay, err := parseFlag(field(model.KeyAllDay))
	if err != nil {
		return err
	}
	opts := []calendar.EventOption{
		calendar.WithDescription(field(model.KeyDescription)),
		calendar.WithLocation(field(model.KeyLocation)),
	}

	loc := cal.Location()
	if allDay {
		day, err := time.ParseInLocation(timeutil.DisplayDateLayout, field(model.KeyStartDate), loc)
		if err != nil {
			return model.Invalidf("Invalid date: %s", field(model.KeyStartDate))
		}
		return cal.AddSingleEventAllDay(field(model.KeySubject), day, autoDecline, private, opts...)
	}

	start, err := parseDisplay(field(model.KeyStartDate), field(model.KeyStartTime), loc)
	if err != nil {
		return err
	}
	end, err := parseDisplay(field(model.KeyEndDate), field(model.KeyEndTime), loc)
	if err != nil {
		return err
	}
	return cal.AddSingleEvent(field(model.KeySubject), start, end, autoDecline, private, opts...)
}

func parseDisplay(date, clock string, loc *time.Location) (time.Time, error) {
	v := date + " " + clock
	t, err := time.ParseInLocation(displayLayout, v, loc)
	if err != nil {
		return time.Time{}, model.Invalidf("Invalid date time: %s", v)
	}
	return t, nil
}

func parseFlag(v string) (bool, error) {
	switch {
	case v == "":
		return false, nil
	case strings.EqualFold(v, "true"):
		return true, nil
	case strings.EqualFold(v, "false"):
		return false, nil
	}
	return false, model.Invalidf("Invalid boolean value: %s", v)
}
