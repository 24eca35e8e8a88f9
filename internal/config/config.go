// Package config resolves crewdesk settings: built-in defaults, then
// <config dir>/config.yaml, then CREWDESK_* environment variables. Command
// line flags are applied last by the CLI.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"crewdesk/internal/store"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL = "http://localhost:8000/api/v1"
	FileName      = "config.yaml"
)

// Config is the resolved settings. RateLimit caps outgoing requests per
// second; 0 disables pacing.
type Config struct {
	APIURL         string        `yaml:"api_url"`
	SessionBackend store.Backend `yaml:"session_backend"`
	Format         string        `yaml:"format"`
	LogLevel       string        `yaml:"log_level"`
	RateLimit      float64       `yaml:"rate_limit"`
}

func Defaults() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		SessionBackend: store.BackendFile,
		Format:         "json",
		LogLevel:       "warn",
	}
}

// Load reads dir/config.yaml (a missing file is fine) over the defaults and
// then applies the environment.
func Load(dir string) (Config, error) {
	cfg := Defaults()
	if err := cfg.mergeFile(filepath.Join(dir, FileName)); err != nil {
		return Config{}, err
	}
	if err := cfg.mergeEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var f Config
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.overlay(f)
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	f := Config{
		APIURL:         getenv("CREWDESK_API_URL"),
		SessionBackend: store.Backend(getenv("CREWDESK_SESSION_BACKEND")),
		Format:         getenv("CREWDESK_FORMAT"),
		LogLevel:       getenv("CREWDESK_LOG_LEVEL"),
	}
	if s := strings.TrimSpace(getenv("CREWDESK_RATE_LIMIT")); s != "" {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("CREWDESK_RATE_LIMIT: %w", err)
		}
		f.RateLimit = n
	}
	c.overlay(f)
	return nil
}

// overlay copies every non-zero field of o onto c.
func (c *Config) overlay(o Config) {
	if s := strings.TrimSpace(o.APIURL); s != "" {
		c.APIURL = s
	}
	if s := strings.TrimSpace(string(o.SessionBackend)); s != "" {
		c.SessionBackend = store.Backend(s)
	}
	if s := strings.TrimSpace(o.Format); s != "" {
		c.Format = s
	}
	if s := strings.TrimSpace(o.LogLevel); s != "" {
		c.LogLevel = s
	}
	if o.RateLimit != 0 {
		c.RateLimit = o.RateLimit
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api_url: %q", c.APIURL)
	}
	switch c.SessionBackend {
	case store.BackendFile, store.BackendSQLite, store.BackendMemory:
	default:
		return fmt.Errorf("invalid session_backend: %q (want file|sqlite|memory)", c.SessionBackend)
	}
	switch c.Format {
	case "json", "table":
	default:
		return fmt.Errorf("invalid format: %q (want json|table)", c.Format)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("invalid rate_limit: %v", c.RateLimit)
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level: %q (want debug|info|warn|error)", s)
	}
	return l, nil
}
