package controller

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"calendarapp/internal/calendar"
	"calendarapp/internal/csvio"
	"calendarapp/internal/ics"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/timeutil"
)

type command struct {
	// prepare runs before the registry lock is taken.
	prepare func(c *Controller, ctx context.Context, a *args) error
	run     func(c *Controller, a *args) error
}

var commands = map[string]command{
	"create calendar": {run: (*Controller).createCalendar},
	"edit calendar":   {run: (*Controller).editCalendar},
	"use calendar":    {run: (*Controller).useCalendar},
	"create event":    {run: (*Controller).createEvent},
	"edit event":      {run: (*Controller).editEvent},
	"edit events":     {run: (*Controller).editEvents},
	"print events":    {run: (*Controller).printEvents},
	"show status":     {run: (*Controller).showStatus},
	"export cal":      {run: (*Controller).exportCal},
	"import cal":      {prepare: (*Controller).loadImport, run: (*Controller).importCal},
	"copy event":      {run: (*Controller).copyEvent},
	"copy events":     {run: (*Controller).copyEvents},
}

func lookup(verb, noun string) (command, bool) {
	cmd, ok := commands[verb+" "+noun]
	return cmd, ok
}

func (c *Controller) loc() *time.Location { return c.reg.Current().Location() }

func (c *Controller) createCalendar(a *args) error {
	name, err := a.flag("--name")
	if err != nil {
		return err
	}
	zone, err := a.flag("--timezone")
	if err != nil {
		return err
	}
	if err := a.done(); err != nil {
		return err
	}
	if err := c.reg.Create(name, zone); err != nil {
		return err
	}
	c.printf("Created calendar %s (%s)\n", name, zone)
	return nil
}

func (c *Controller) editCalendar(a *args) error {
	name, err := a.flag("--name")
	if err != nil {
		return err
	}
	property, err := a.flag("--property")
	if err != nil {
		return err
	}
	value, err := a.rest("value")
	if err != nil {
		return err
	}
	if err := c.reg.Edit(name, property, value); err != nil {
		return err
	}
	c.printf("Updated calendar %s\n", name)
	return nil
}

func (c *Controller) useCalendar(a *args) error {
	name, err := a.flag("--name")
	if err != nil {
		return err
	}
	if err := a.done(); err != nil {
		return err
	}
	return c.reg.Use(name)
}

// eventFlags are the trailing options of `create event`.
type eventFlags struct {
	private     bool
	description string
	location    string
}

func (a *args) eventFlags() (eventFlags, error) {
	var f eventFlags
	for a.pos < len(a.toks) {
		switch a.peek() {
		case "--private":
			a.pos++
			f.private = true
		case "--description", "--location":
			key := a.peek()
			v, err := a.flag(key)
			if err != nil {
				return f, err
			}
			if key == "--description" {
				f.description = v
			} else {
				f.location = v
			}
		default:
			return f, a.done()
		}
	}
	return f, nil
}

// repeat is the optional `repeats DAYS (for N times | until DT)` clause.
type repeat struct {
	days  string
	count int
	until time.Time
}

func (c *Controller) parseRepeat(a *args) (*repeat, error) {
	if !a.accept("repeats") {
		return nil, nil
	}
	days, err := a.next("week days")
	if err != nil {
		return nil, err
	}
	r := &repeat{days: days}
	switch {
	case a.accept("for"):
		v, err := a.next("count")
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, model.Invalidf("Invalid frequency: %s", v)
		}
		if err := a.expect("times"); err != nil {
			return nil, err
		}
		r.count = n
	case a.accept("until"):
		v, err := a.next("until date")
		if err != nil {
			return nil, err
		}
		t, err := timeutil.ParseUntil(v, c.loc())
		if err != nil {
			return nil, err
		}
		r.until = t
	default:
		return nil, model.Invalidf("Expected 'for' or 'until' in command: %s", a.line)
	}
	return r, nil
}

func (c *Controller) createEvent(a *args) error {
	name, err := a.next("event name")
	if err != nil {
		return err
	}
	cal := c.reg.Current()

	var (
		allDay     bool
		start, end time.Time
	)
	switch {
	case a.accept("on"):
		v, err := a.next("date")
		if err != nil {
			return err
		}
		if start, err = timeutil.ParseDate(v, cal.Location()); err != nil {
			return err
		}
		allDay = true
	case a.accept("from"):
		if start, end, err = c.span(a); err != nil {
			return err
		}
	default:
		return model.Invalidf("Expected 'from' or 'on' in command: %s", a.line)
	}

	rep, err := c.parseRepeat(a)
	if err != nil {
		return err
	}
	f, err := a.eventFlags()
	if err != nil {
		return err
	}
	opts := []calendar.EventOption{calendar.WithDescription(f.description), calendar.WithLocation(f.location)}

	switch {
	case rep == nil && allDay:
		err = cal.AddSingleEventAllDay(name, start, c.autoDecline, f.private, opts...)
	case rep == nil:
		err = cal.AddSingleEvent(name, start, end, c.autoDecline, f.private, opts...)
	case allDay && rep.count > 0:
		err = cal.AddRecurringAllDayEventFrequency(name, start, rep.days, rep.count, c.autoDecline, f.private, opts...)
	case allDay:
		err = cal.AddRecurringAllDayEventUntil(name, start, rep.days, rep.until, c.autoDecline, f.private, opts...)
	case rep.count > 0:
		err = cal.AddRecurringEventFrequency(name, start, end, rep.days, rep.count, c.autoDecline, f.private, opts...)
	default:
		err = cal.AddRecurringEventUntil(name, start, end, rep.days, rep.until, c.autoDecline, f.private, opts...)
	}
	if err != nil {
		return err
	}
	c.printf("Created event %s\n", name)
	return nil
}

// span reads "DT to DT" after a consumed "from".
func (c *Controller) span(a *args) (time.Time, time.Time, error) {
	from, err := c.dateTime(a, "start date time")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := a.expect("to"); err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := c.dateTime(a, "end date time")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (c *Controller) dateTime(a *args, what string) (time.Time, error) {
	v, err := a.next(what)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.ParseDateTime(v, c.loc())
}

func (c *Controller) date(a *args, what string, loc *time.Location) (time.Time, error) {
	v, err := a.next(what)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.ParseDate(v, loc)
}

// editEvent handles `edit event P S from DT to DT with V`.
func (c *Controller) editEvent(a *args) error {
	property, err := a.next("property")
	if err != nil {
		return err
	}
	name, err := a.next("event name")
	if err != nil {
		return err
	}
	if err := a.expect("from"); err != nil {
		return err
	}
	start, end, err := c.span(a)
	if err != nil {
		return err
	}
	if err := a.expect("with"); err != nil {
		return err
	}
	value, err := a.rest("value")
	if err != nil {
		return err
	}
	if err := c.reg.Current().EditSingleEvent(name, start, end, property, value, c.autoDecline); err != nil {
		return err
	}
	c.printf("Edited event %s\n", name)
	return nil
}

// editEvents handles `edit events P S from DT with V` and
// `edit events P S [with] V`.
func (c *Controller) editEvents(a *args) error {
	property, err := a.next("property")
	if err != nil {
		return err
	}
	name, err := a.next("event name")
	if err != nil {
		return err
	}
	cal := c.reg.Current()

	if a.accept("from") {
		from, err := c.dateTime(a, "start date time")
		if err != nil {
			return err
		}
		if err := a.expect("with"); err != nil {
			return err
		}
		value, err := a.rest("value")
		if err != nil {
			return err
		}
		if err := cal.EditMultipleEventsFollowing(name, from, property, value, c.autoDecline); err != nil {
			return err
		}
	} else {
		a.accept("with")
		value, err := a.rest("value")
		if err != nil {
			return err
		}
		if err := cal.EditMultipleEventsAll(name, property, value, c.autoDecline); err != nil {
			return err
		}
	}
	c.printf("Edited events %s\n", name)
	return nil
}

func (c *Controller) printEvents(a *args) error {
	cal := c.reg.Current()
	var (
		rows []model.Details
		err  error
	)
	switch {
	case a.accept("on"):
		day, derr := c.date(a, "date", cal.Location())
		if derr != nil {
			return derr
		}
		if err := a.done(); err != nil {
			return err
		}
		rows, err = cal.GetEventsOnDate(day)
	case a.accept("from"):
		from, to, serr := c.span(a)
		if serr != nil {
			return serr
		}
		if err := a.done(); err != nil {
			return err
		}
		rows, err = cal.GetEventsRange(from, to)
	default:
		return model.Invalidf("Expected 'on' or 'from' in command: %s", a.line)
	}
	if err != nil {
		return err
	}
	c.printRows(rows)
	return nil
}

func (c *Controller) showStatus(a *args) error {
	if err := a.expect("on"); err != nil {
		return err
	}
	at, err := c.dateTime(a, "date time")
	if err != nil {
		return err
	}
	if err := a.done(); err != nil {
		return err
	}
	status, err := c.reg.Current().GetStatusOnDateTime(at)
	if err != nil {
		return err
	}
	c.printStatus(status)
	return nil
}

func (c *Controller) exportCal(a *args) error {
	path, err := a.rest("file name")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = csvio.Export(&buf, c.reg.Current().GetAllEvents())
	case ".ics":
		err = ics.Export(&buf, c.reg.Current(), c.reg.CurrentName(), c.now())
	default:
		return model.Invalidf("Unsupported export format: %s", path)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("controller: export: %w", err)
	}
	c.printf("Exported calendar to %s\n", path)
	return nil
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// loadImport reads the import source so network fetches do not hold the
// registry lock.
func (c *Controller) loadImport(ctx context.Context, a *args) error {
	src, err := a.rest("file name")
	if err != nil {
		return err
	}
	a.toks, a.pos = []string{src}, 0

	if isRemote(src) {
		if c.fetcher == nil {
			return model.Invalidf("Remote import is not configured")
		}
		res, err := c.fetcher.FetchOne(ctx, src)
		if err != nil {
			return err
		}
		if res.FromCache {
			appLog.Info("using cached feed", "url", res.URL)
		}
		a.body = res.Body
		return nil
	}

	body, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NotFoundf("File not found: %s", src)
		}
		return fmt.Errorf("controller: import: %w", err)
	}
	a.body = body
	return nil
}

func (c *Controller) importCal(a *args) error {
	src := a.toks[0]
	cal := c.reg.Current()

	var res model.ImportResult
	if !isRemote(src) && strings.EqualFold(filepath.Ext(src), ".csv") {
		r, err := csvio.Import(bytes.NewReader(a.body), cal, c.autoDecline)
		if err != nil {
			return err
		}
		res = r
	} else {
		events, err := ics.ParseICS(a.body, cal.Location())
		if err != nil {
			return err
		}
		res = ics.Apply(cal, events, c.autoDecline)
	}

	for _, f := range res.Failures {
		c.printWarning(f)
	}
	c.printf("%s\n", res.Summary())
	return nil
}

// copyEvent handles `copy event S on DT --target C to DT`.
func (c *Controller) copyEvent(a *args) error {
	name, err := a.next("event name")
	if err != nil {
		return err
	}
	if err := a.expect("on"); err != nil {
		return err
	}
	start, err := c.dateTime(a, "date time")
	if err != nil {
		return err
	}
	target, dst, err := c.target(a)
	if err != nil {
		return err
	}
	v, err := a.next("target date time")
	if err != nil {
		return err
	}
	targetStart, err := timeutil.ParseDateTime(v, dst)
	if err != nil {
		return err
	}
	if err := a.done(); err != nil {
		return err
	}
	if err := c.reg.CopyEvent(name, start, target, targetStart, c.autoDecline); err != nil {
		return err
	}
	c.printf("Copied event %s to %s\n", name, target)
	return nil
}

// copyEvents handles `copy events on D --target C to D` and
// `copy events between D and D --target C to D`.
func (c *Controller) copyEvents(a *args) error {
	loc := c.loc()
	var from, to time.Time
	between := false
	switch {
	case a.accept("on"):
		d, err := c.date(a, "date", loc)
		if err != nil {
			return err
		}
		from = d
	case a.accept("between"):
		d, err := c.date(a, "start date", loc)
		if err != nil {
			return err
		}
		if err := a.expect("and"); err != nil {
			return err
		}
		e, err := c.date(a, "end date", loc)
		if err != nil {
			return err
		}
		from, to, between = d, e, true
	default:
		return model.Invalidf("Expected 'on' or 'between' in command: %s", a.line)
	}

	target, dst, err := c.target(a)
	if err != nil {
		return err
	}
	targetDay, err := c.date(a, "target date", dst)
	if err != nil {
		return err
	}
	if err := a.done(); err != nil {
		return err
	}

	if between {
		err = c.reg.CopyEventsBetween(from, to, target, targetDay, c.autoDecline)
	} else {
		err = c.reg.CopyEventsOn(from, target, targetDay, c.autoDecline)
	}
	if err != nil {
		return err
	}
	c.printf("Copied events to %s\n", target)
	return nil
}

// target reads "--target C to" and resolves C's zone.
func (c *Controller) target(a *args) (string, *time.Location, error) {
	name, err := a.flag("--target")
	if err != nil {
		return "", nil, err
	}
	dst, err := c.reg.Get(name)
	if err != nil {
		return "", nil, err
	}
	if err := a.expect("to"); err != nil {
		return "", nil, err
	}
	return name, dst.Location(), nil
}
