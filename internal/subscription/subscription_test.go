package subscription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"calendarapp/internal/config"
	"calendarapp/internal/ics"
	"calendarapp/internal/model"
	"calendarapp/internal/registry"
)

func vevent(uid, summary, start, end string) string {
	return "BEGIN:VEVENT\r\n" +
		"UID:" + uid + "\r\n" +
		"DTSTAMP:20250101T000000Z\r\n" +
		"SUMMARY:" + summary + "\r\n" +
		"DTSTART:" + start + "\r\n" +
		"DTEND:" + end + "\r\n" +
		"END:VEVENT\r\n"
}

func feed(events ...string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
		strings.Join(events, "") + "END:VCALENDAR\r\n"
}

type fixture struct {
	reg  *registry.Registry
	body atomic.Pointer[string]
	srv  *httptest.Server
	sub  config.SubscriptionConfig
	r    *Refresher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	reg, err := registry.New("home", "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Create("team", "Europe/London"); err != nil {
		t.Fatal(err)
	}
	f.reg = reg

	initial := feed(vevent("a", "Standup", "20250310T090000Z", "20250310T091500Z"))
	f.body.Store(&initial)
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(*f.body.Load()))
	}))
	t.Cleanup(f.srv.Close)

	f.sub = config.SubscriptionConfig{Calendar: "team", URL: f.srv.URL + "/team.ics"}
	fetcher := ics.NewFetcher(t.TempDir(), ics.WithHTTPClient(f.srv.Client()))
	f.r = New(reg, &sync.Mutex{}, fetcher, []config.SubscriptionConfig{f.sub}, true)
	return f
}

func (f *fixture) starts(t *testing.T) []string {
	t.Helper()
	cal, err := f.reg.Get("team")
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, d := range cal.GetAllEvents() {
		out = append(out, d[model.KeySubject]+"@"+d[model.KeyStartDateTime])
	}
	return out
}

func TestRefreshMergesOnlyNewEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.r.Refresh(ctx, f.sub)
	if err != nil || res.Added != 1 || res.Total != 1 {
		t.Fatalf("first refresh = %+v, %v", res, err)
	}
	res, err = f.r.Refresh(ctx, f.sub)
	if err != nil || res.Added != 0 || res.Total != 0 {
		t.Fatalf("unchanged refresh = %+v, %v", res, err)
	}

	next := feed(
		vevent("a", "Standup", "20250310T090000Z", "20250310T091500Z"),
		vevent("b", "Retro", "20250311T150000Z", "20250311T160000Z"),
		vevent("c", "Clash", "20250310T090500Z", "20250310T093000Z"),
	)
	f.body.Store(&next)
	res, err = f.r.Refresh(ctx, f.sub)
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 || res.Total != 2 || len(res.Failures) != 1 || !errors.Is(res.Failures[0], model.ErrConflict) {
		t.Fatalf("second feed = %+v", res)
	}

	want := []string{"Standup@2025-03-10T09:00", "Retro@2025-03-11T15:00"}
	if got := f.starts(t); !reflect.DeepEqual(got, want) {
		t.Errorf("team events = %v, want %v", got, want)
	}
}

func TestRefreshErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := config.SubscriptionConfig{Calendar: "nope", URL: f.sub.URL}
	if _, err := f.r.Refresh(ctx, missing); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown calendar err = %v", err)
	}

	bare := New(f.reg, &sync.Mutex{}, nil, nil, true)
	if _, err := bare.Refresh(ctx, f.sub); err == nil {
		t.Error("refresh without fetcher should fail")
	}
}

func TestStartRefreshesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.r.Start(ctx, "not a schedule"); err == nil {
		t.Fatal("bad schedule accepted")
	}
	if err := f.r.Start(ctx, "@every 1h"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := f.starts(t); !reflect.DeepEqual(got, []string{"Standup@2025-03-10T09:00"}) {
		t.Errorf("team events = %v", got)
	}
}
