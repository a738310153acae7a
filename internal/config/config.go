package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Feed source kinds.
const (
	FeedKindGoogle = "google"
	FeedKindICS    = "ics"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

const (
	defaultListen        = "127.0.0.1:8080"
	defaultMetricsListen = "127.0.0.1:9095"
	defaultTimezone      = "Asia/Kolkata"
	defaultRefreshCron   = "*/15 * * * *"
	defaultGoogleBaseURL = "https://clients6.google.com/calendar/v3"
	defaultCalendarID    = "iu1iul1u3n8ic3s78f4df15u4o@group.calendar.google.com"
)

// BreakerConfig tunes the circuit breaker in front of the feed endpoint.
type BreakerConfig struct {
	// Window is the closed-state interval after which counts are reset.
	Window time.Duration `yaml:"window" json:"window"`
	// MinRequests is the minimum number of calls before the breaker may trip.
	MinRequests int `yaml:"min_requests" json:"min_requests"`
	// FailureRatio in percent (0-100).
	FailureRatio int `yaml:"failure_ratio" json:"failure_ratio"`
	// HalfOpenRequests is the number of trial calls allowed when half-open.
	HalfOpenRequests int `yaml:"half_open_requests" json:"half_open_requests"`
	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration `yaml:"open_timeout" json:"open_timeout"`
}

// FeedConfig describes the contest calendar feed.
type FeedConfig struct {
	// Kind is "google" (Calendar v3 events JSON) or "ics".
	Kind string `yaml:"kind" json:"kind"`
	// URL is the Calendar API base URL for "google", or the subscription
	// URL for "ics".
	URL        string `yaml:"url" json:"url"`
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	APIKey     string `yaml:"api_key" json:"-"`
	// TimeZone is passed to the Calendar API as the response time zone.
	TimeZone   string `yaml:"time_zone" json:"time_zone"`
	MaxResults int    `yaml:"max_results" json:"max_results"`

	LookbackDays  int `yaml:"lookback_days" json:"lookback_days"`
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`

	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	RetryCount   int           `yaml:"retry_count" json:"retry_count"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`

	// CacheDir holds the last good response for conditional requests and
	// fallback. Empty disables the disk cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
}

// StoreConfig selects the preference store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN           string `yaml:"dsn" json:"-"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix"`
}

// SolutionsConfig configures automatic solution discovery.
type SolutionsConfig struct {
	// Channels are YouTube channel ids whose Atom feeds are scanned.
	Channels      []string      `yaml:"channels" json:"channels"`
	MaxCandidates int           `yaml:"max_candidates" json:"max_candidates"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" json:"-"`
	ChatID int64  `yaml:"chat_id" json:"chat_id"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	From     string `yaml:"from" json:"from"`
}

// NotifyConfig enables reminder delivery channels. The log channel is
// always on; the others are enabled by filling in their settings.
type NotifyConfig struct {
	WebhookURL string         `yaml:"webhook_url" json:"webhook_url"`
	Kafka      KafkaConfig    `yaml:"kafka" json:"kafka"`
	Telegram   TelegramConfig `yaml:"telegram" json:"telegram"`
	SMTP       SMTPConfig     `yaml:"smtp" json:"smtp"`
}

// RateLimitConfig limits API requests per client address.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" json:"requests"`
	Window   time.Duration `yaml:"window" json:"window"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// PasswordHash (bcrypt) takes precedence over Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"-"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`
	// MetricsListen is the address of the Prometheus endpoint. "-" disables it.
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`

	// Timezone is the IANA timezone used for calendar day boundaries.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in calendar views. Supported values:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Feed FeedConfig `yaml:"feed" json:"feed"`

	// RefreshCron is a standard 5-field cron expression for feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ReminderInterval is how often due reminders are scanned.
	ReminderInterval time.Duration `yaml:"reminder_interval" json:"reminder_interval"`
	// RemindBookmarks also reminds for bookmarked contests, not only for
	// contests selected in the notification settings.
	RemindBookmarks bool `yaml:"remind_bookmarks" json:"remind_bookmarks"`

	Store     StoreConfig     `yaml:"store" json:"store"`
	Solutions SolutionsConfig `yaml:"solutions" json:"solutions"`
	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		MetricsListen: defaultMetricsListen,
		Timezone:      defaultTimezone,
		WeekStart:     "sunday",
		LogLevel:      "info",
		Feed: FeedConfig{
			Kind:          FeedKindGoogle,
			URL:           defaultGoogleBaseURL,
			CalendarID:    defaultCalendarID,
			TimeZone:      defaultTimezone,
			MaxResults:    250,
			LookbackDays:  7,
			LookaheadDays: 30,
			Timeout:       15 * time.Second,
			RetryCount:    2,
			RetryBackoff:  time.Second,
			CacheDir:      "./var/feed-cache",
			Breaker: BreakerConfig{
				Window:           60 * time.Second,
				MinRequests:      3,
				FailureRatio:     60,
				HalfOpenRequests: 1,
				OpenTimeout:      2 * time.Minute,
			},
		},
		RefreshCron:      defaultRefreshCron,
		ReminderInterval: time.Minute,
		Store: StoreConfig{
			Driver:      StoreSQLite,
			DSN:         "./var/cpcal.db",
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "cpcal",
		},
		Solutions: SolutionsConfig{
			Channels:      []string{},
			MaxCandidates: 5,
			Timeout:       10 * time.Second,
		},
		Notify: NotifyConfig{
			Kafka: KafkaConfig{Topic: "contest-reminders"},
			SMTP:  SMTPConfig{Port: 587},
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.MetricsListen == "" {
		c.MetricsListen = def.MetricsListen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	// WeekStart default & validation.
	switch strings.ToLower(c.WeekStart) {
	case "monday":
		c.WeekStart = "monday"
	default:
		// Unknown value; fall back to sunday to avoid surprising layouts.
		c.WeekStart = "sunday"
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	c.Feed.normalize(def.Feed)

	if !ValidCron(c.RefreshCron) {
		c.RefreshCron = defaultRefreshCron
	}
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = def.ReminderInterval
	}

	switch c.Store.Driver {
	case StoreSQLite, StorePostgres, StoreRedis, StoreMemory:
	default:
		c.Store.Driver = def.Store.Driver
	}
	if c.Store.Driver == StoreSQLite && c.Store.DSN == "" {
		c.Store.DSN = def.Store.DSN
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = def.Store.RedisAddr
	}
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = def.Store.RedisPrefix
	}

	if c.Solutions.Channels == nil {
		c.Solutions.Channels = []string{}
	}
	if c.Solutions.MaxCandidates <= 0 {
		c.Solutions.MaxCandidates = def.Solutions.MaxCandidates
	}
	if c.Solutions.Timeout <= 0 {
		c.Solutions.Timeout = def.Solutions.Timeout
	}

	if c.Notify.Kafka.Topic == "" {
		c.Notify.Kafka.Topic = def.Notify.Kafka.Topic
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = def.Notify.SMTP.Port
	}

	if c.RateLimit.Requests < 0 {
		c.RateLimit.Requests = 0
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = def.RateLimit.Window
	}
}

func (f *FeedConfig) normalize(def FeedConfig) {
	switch f.Kind {
	case FeedKindGoogle, FeedKindICS:
	default:
		f.Kind = def.Kind
	}
	if f.Kind == FeedKindGoogle {
		if f.URL == "" {
			f.URL = def.URL
		}
		if f.CalendarID == "" {
			f.CalendarID = def.CalendarID
		}
	}
	if f.TimeZone == "" {
		f.TimeZone = def.TimeZone
	}
	if f.MaxResults <= 0 {
		f.MaxResults = def.MaxResults
	}
	if f.LookbackDays < 0 {
		f.LookbackDays = 0
	}
	if f.LookaheadDays <= 0 {
		f.LookaheadDays = def.LookaheadDays
	}
	if f.Timeout <= 0 {
		f.Timeout = def.Timeout
	}
	if f.RetryCount < 0 {
		f.RetryCount = 0
	}
	if f.RetryBackoff <= 0 {
		f.RetryBackoff = def.RetryBackoff
	}
	b := &f.Breaker
	if b.Window <= 0 {
		b.Window = def.Breaker.Window
	}
	if b.MinRequests <= 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 100 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.HalfOpenRequests <= 0 {
		b.HalfOpenRequests = def.Breaker.HalfOpenRequests
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
}

// ValidCron reports whether expr is a valid standard 5-field cron expression
// (descriptors such as "@hourly" are accepted as well).
func ValidCron(expr string) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}
	_, err := cron.ParseStandard(expr)
	return err == nil
}

// Location resolves the configured timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied separately by ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
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

	tmp, err := os.CreateTemp(dir, ".cpcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
