package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"calendarapp/internal/timeutil"
)

// CalendarConfig seeds an extra calendar at startup.
type CalendarConfig struct {
	Name     string `yaml:"name" json:"name"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

// SubscriptionConfig describes a remote ICS feed merged into a calendar on
// every refresh.
type SubscriptionConfig struct {
	// Calendar is the registry calendar receiving the feed's events.
	Calendar string `yaml:"calendar" json:"calendar"`
	URL      string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// WebConfig tunes the read-only HTTP API.
type WebConfig struct {
	// RateLimitPerSec is the sustained request rate; 0 disables limiting.
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst" json:"rate_burst"`

	// CacheTTLSeconds bounds how long a rendered response is reused.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address. Empty disables the server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone of the default calendar. It is required;
	// the host zone is never consulted.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultCalendar names the calendar selected at startup.
	DefaultCalendar string `yaml:"default_calendar" json:"default_calendar"`

	// AutoDecline rejects creations and edits that would overlap an
	// existing event.
	AutoDecline bool `yaml:"auto_decline" json:"auto_decline"`

	// MaxOccurrences caps how many instances one series may expand to.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`

	// ICSCacheDir holds ETag/Last-Modified metadata and bodies of remote
	// ICS imports.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// RefreshCron is a standard 5-field cron schedule (e.g. "*/15 * * * *")
	// for re-reading Subscriptions.
	RefreshCron   string               `yaml:"refresh" json:"refresh"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	Web WebConfig `yaml:"web" json:"web"`
}

const (
	defaultCalendarName   = "default"
	defaultMaxOccurrences = 5000
	defaultCacheDir       = "./cache/ics"
	defaultRefreshCron    = "*/15 * * * *"
)

// DefaultConfig returns an in-memory default configuration. Timezone is
// left empty on purpose; Validate rejects it until the operator sets one.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "",
		DefaultCalendar: defaultCalendarName,
		AutoDecline:     true,
		MaxOccurrences:  defaultMaxOccurrences,
		LogLevel:        "info",
		LogEncoding:     "console",
		ICSCacheDir:     defaultCacheDir,
		Calendars:       []CalendarConfig{},
		RefreshCron:     defaultRefreshCron,
		Subscriptions:   []SubscriptionConfig{},
		Web: WebConfig{
			RateLimitPerSec: 10,
			RateBurst:       20,
			CacheTTLSeconds: 30,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	c.Timezone = strings.TrimSpace(c.Timezone)
	if strings.TrimSpace(c.DefaultCalendar) == "" {
		c.DefaultCalendar = defaultCalendarName
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	switch c.LogEncoding {
	case "console", "json":
	default:
		c.LogEncoding = "console"
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = defaultCacheDir
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	if c.RefreshCron = strings.TrimSpace(c.RefreshCron); c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	if c.Web.RateLimitPerSec < 0 {
		c.Web.RateLimitPerSec = 0
	}
	if c.Web.RateBurst <= 0 {
		c.Web.RateBurst = 1
	}
	if c.Web.CacheTTLSeconds < 0 {
		c.Web.CacheTTLSeconds = 0
	}
}

// Validate reports configuration errors that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := timeutil.LoadZone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone: %w", err))
	}
	seen := map[string]bool{c.DefaultCalendar: true}
	for i, cal := range c.Calendars {
		name := strings.TrimSpace(cal.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("config: calendars[%d]: name is empty", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("config: calendars[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if _, err := timeutil.LoadZone(cal.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("config: calendars[%d]: %w", i, err))
		}
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("config: refresh: %w", err))
	}
	for i, sub := range c.Subscriptions {
		if !seen[strings.TrimSpace(sub.Calendar)] {
			errs = append(errs, fmt.Errorf("config: subscriptions[%d]: unknown calendar %q", i, sub.Calendar))
		}
		if !strings.HasPrefix(sub.URL, "http://") && !strings.HasPrefix(sub.URL, "https://") {
			errs = append(errs, fmt.Errorf("config: subscriptions[%d]: url must be http(s)", i))
		}
	}
	if a := c.Web.BasicAuth; a != nil && a.Username == "" {
		errs = append(errs, errors.New("config: web.basic_auth: username is empty"))
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides fields from environment variables.
//
//   - CALENDAR_TIMEZONE replaces Timezone
//   - CALENDAR_LISTEN replaces Listen
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("CALENDAR_TIMEZONE")); v != "" {
		c.Timezone = v
	}
	if v := strings.TrimSpace(getenv("CALENDAR_LISTEN")); v != "" {
		c.Listen = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshaled and normalized.
//
// Load does not validate; callers apply overrides first and then call
// Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calendar-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
