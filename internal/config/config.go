package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is named.
const DefaultPath = "yogisync.yaml"

// Config is the full set of settings.
type Config struct {
	GmailQuery           string `yaml:"gmail_query" json:"gmail_query"`
	ClientSecretPath     string `yaml:"google_client_secret_path" json:"google_client_secret_path"`
	TokenPath            string `yaml:"google_token_path" json:"google_token_path"`
	CalendarID           string `yaml:"yogisync_calendar_id" json:"yogisync_calendar_id"`
	Timezone             string `yaml:"timezone" json:"timezone"`
	SQLitePath           string `yaml:"sqlite_path" json:"sqlite_path"`
	EventDurationMinutes int    `yaml:"default_event_duration_minutes" json:"default_event_duration_minutes"`
	SearchWindowDays     int    `yaml:"search_window_days" json:"search_window_days"`
	SyncSchedule         string `yaml:"sync_schedule" json:"sync_schedule"`
	SyncLimit            int    `yaml:"sync_limit" json:"sync_limit"`
	MetricsAddr          string `yaml:"metrics_addr" json:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		GmailQuery:           "newer_than:365d",
		ClientSecretPath:     "client_secret.json",
		TokenPath:            "token.json",
		Timezone:             "Asia/Tokyo",
		SQLitePath:           "data/yogisync.db",
		EventDurationMinutes: 60,
		SearchWindowDays:     3,
		SyncSchedule:         "*/30 * * * *",
		SyncLimit:            50,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// EventDuration is the length given to timed events.
func (c *Config) EventDuration() time.Duration {
	return time.Duration(c.EventDurationMinutes) * time.Minute
}

// LoadDotenv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from defaults, the YAML file at path and the
// environment, then validates it. A missing file is not an error; an
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables. Each key is also accepted in
// lower case.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		if v, ok := lookup(strings.ToLower(key)); ok && v != "" {
			return v, true
		}
		return "", false
	}

	strs := map[string]*string{
		"GMAIL_QUERY":               &cfg.GmailQuery,
		"GOOGLE_CLIENT_SECRET_PATH": &cfg.ClientSecretPath,
		"GOOGLE_TOKEN_PATH":         &cfg.TokenPath,
		"YOGISYNC_CALENDAR_ID":      &cfg.CalendarID,
		"TIMEZONE":                  &cfg.Timezone,
		"SQLITE_PATH":               &cfg.SQLitePath,
		"SYNC_SCHEDULE":             &cfg.SyncSchedule,
		"METRICS_ADDR":              &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DEFAULT_EVENT_DURATION_MINUTES": &cfg.EventDurationMinutes,
		"SEARCH_WINDOW_DAYS":             &cfg.SearchWindowDays,
		"SYNC_LIMIT":                     &cfg.SyncLimit,
	}
	for key, dst := range ints {
		v, ok := get(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %q is not an integer", key, v)
		}
		*dst = n
	}
	return nil
}
