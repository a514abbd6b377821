package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"calendarapp/internal/calendar"
	"calendarapp/internal/config"
	"calendarapp/internal/controller"
	"calendarapp/internal/ics"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/registry"
	"calendarapp/internal/subscription"
	"calendarapp/internal/web"
)

type flagConfig struct {
	configPath string
	mode       string
	script     string
	listen     string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}

func run() error {
	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	flags, err := parseFlags()
	if err != nil {
		return err
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	conf.ApplyEnv(os.Getenv)
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	appLog.Configure(conf.LogLevel, conf.LogEncoding)

	appLog.Info("effective config",
		"config_path", flags.configPath,
		"timezone", conf.Timezone,
		"default_calendar", conf.DefaultCalendar,
		"calendars", len(conf.Calendars),
		"auto_decline", conf.AutoDecline,
		"listen", conf.Listen,
		"subscriptions", len(conf.Subscriptions),
		"refresh", conf.RefreshCron,
		"mode", flags.mode,
	)

	reg, err := registry.New(conf.DefaultCalendar, conf.Timezone, calendar.WithMaxOccurrences(conf.MaxOccurrences))
	if err != nil {
		return err
	}
	for _, c := range conf.Calendars {
		if err := reg.Create(c.Name, c.Timezone); err != nil {
			return fmt.Errorf("config: calendar %s: %w", c.Name, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	fetcher := ics.NewFetcher(conf.ICSCacheDir)
	if len(conf.Subscriptions) > 0 {
		refresher := subscription.New(reg, &mu, fetcher, conf.Subscriptions, conf.AutoDecline)
		if err := refresher.Start(ctx, conf.RefreshCron); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	if conf.Listen != "" {
		srv := web.NewServer(reg, &mu, conf.Web)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.StartServer(ctx, conf.Listen, srv.Handler()); err != nil {
				appLog.Error("http server stopped", err, "listen", conf.Listen)
			}
		}()
	}

	ctl := controller.New(reg, os.Stdout,
		controller.WithLocker(&mu),
		controller.WithAutoDecline(conf.AutoDecline),
		controller.WithFetcher(fetcher),
	)

	switch flags.mode {
	case "interactive":
		err = ctl.RunInteractive(ctx, os.Stdin)
	case "headless":
		var f io.ReadCloser
		f, err = os.Open(flags.script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		err = ctl.RunHeadless(ctx, f)
		f.Close()
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// The HTTP API keeps serving after the controller exits until a signal
	// arrives.
	if err == nil && conf.Listen != "" {
		appLog.Info("controller finished; serving HTTP until interrupted")
		<-ctx.Done()
	}
	stop()
	wg.Wait()
	appLog.Info("calendar exiting")
	return err
}

func parseFlags() (flagConfig, error) {
	var cfg flagConfig

	defaultPath := os.Getenv("CALENDAR_CONFIG")
	if defaultPath == "" {
		defaultPath = "./calendar.yaml"
	}
	flag.StringVar(&cfg.configPath, "config", defaultPath, "Path to config file (env CALENDAR_CONFIG)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.mode, "mode", "interactive", "Run mode: interactive or headless")
	flag.Parse()

	cfg.mode = strings.ToLower(cfg.mode)
	switch cfg.mode {
	case "interactive":
	case "headless":
		if flag.NArg() != 1 {
			return cfg, errors.New("headless mode needs exactly one script file argument")
		}
		cfg.script = flag.Arg(0)
	default:
		return cfg, fmt.Errorf("invalid mode %q: expected interactive or headless", cfg.mode)
	}
	return cfg, nil
}
