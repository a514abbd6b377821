// Package subscription keeps calendars in sync with remote ICS feeds on a
// cron schedule. Each refresh adds the feed's events that were not merged
// before; events already merged are left alone.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"calendarapp/internal/config"
	"calendarapp/internal/ics"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/registry"
	"calendarapp/internal/timeutil"
)

type Refresher struct {
	reg         *registry.Registry
	mu          sync.Locker
	fetcher     *ics.Fetcher
	subs        []config.SubscriptionConfig
	autoDecline bool

	// seen holds the event keys merged per subscription. Guarded by mu.
	seen map[config.SubscriptionConfig]map[string]struct{}
}

// New builds a refresher. mu must be the lock that serializes every other
// registry user.
func New(reg *registry.Registry, mu sync.Locker, fetcher *ics.Fetcher, subs []config.SubscriptionConfig, autoDecline bool) *Refresher {
	return &Refresher{
		reg:         reg,
		mu:          mu,
		fetcher:     fetcher,
		subs:        append([]config.SubscriptionConfig(nil), subs...),
		autoDecline: autoDecline,
		seen:        make(map[config.SubscriptionConfig]map[string]struct{}),
	}
}

// Start runs RefreshAll once and then on every tick of schedule until ctx is
// cancelled. Overlapping ticks are skipped.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() { r.RefreshAll(ctx) }); err != nil {
		return fmt.Errorf("subscription: schedule %q: %w", schedule, err)
	}

	r.RefreshAll(ctx)
	c.Start()
	appLog.Info("subscriptions scheduled", "count", len(r.subs), "refresh", schedule)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// RefreshAll refreshes every subscription. Failures are logged and do not
// stop the remaining feeds.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, sub := range r.subs {
		if ctx.Err() != nil {
			return
		}
		res, err := r.Refresh(ctx, sub)
		if err != nil {
			appLog.Error("subscription refresh failed", err, "calendar", sub.Calendar)
			continue
		}
		for _, f := range res.Failures {
			appLog.Error("subscription event skipped", f, "calendar", sub.Calendar)
		}
		appLog.Info("subscription refreshed", "calendar", sub.Calendar, "added", res.Added, "new", res.Total)
	}
}

// Refresh fetches one feed and merges its unseen events. Total in the
// result counts the unseen events only.
func (r *Refresher) Refresh(ctx context.Context, sub config.SubscriptionConfig) (model.ImportResult, error) {
	if r.fetcher == nil {
		return model.ImportResult{}, errors.New("subscription: no fetcher configured")
	}
	// Network I/O stays outside the registry lock.
	fetched, err := r.fetcher.FetchOne(ctx, sub.URL)
	if err != nil {
		return model.ImportResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cal, err := r.reg.Get(sub.Calendar)
	if err != nil {
		return model.ImportResult{}, err
	}
	events, err := ics.ParseICS(fetched.Body, cal.Location())
	if err != nil {
		return model.ImportResult{}, err
	}

	seen := r.seen[sub]
	if seen == nil {
		seen = make(map[string]struct{})
		r.seen[sub] = seen
	}

	var fresh []ics.Event
	for _, ev := range events {
		key := eventKey(ev)
		if _, ok := seen[key]; ok {
			continue
		}
		// Rejected events are not retried on later refreshes.
		seen[key] = struct{}{}
		fresh = append(fresh, ev)
	}
	return ics.Apply(cal, fresh, r.autoDecline), nil
}

func eventKey(ev ics.Event) string {
	if ev.UID != "" {
		return ev.UID
	}
	return ev.Summary + "@" + timeutil.FormatDateTime(ev.Start)
}

// cronLogger routes cron's own logging to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
