// Package config loads application configuration from a YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TelegramConfig holds bot transport settings.
type TelegramConfig struct {
	// Token is the bot API token. When empty, the OS keyring is
	// consulted as a fallback (service "tg-redmine").
	Token string `mapstructure:"token" yaml:"token"`
}

// TrackerConfig points at the read-only issues view.
type TrackerConfig struct {
	// DSN is a go-sql-driver/mysql connection string for the database
	// hosting the issues view. Must carry parseTime=true so the view's
	// datetime columns scan as time values.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// View is the name of the view listing currently open issues.
	View string `mapstructure:"view" yaml:"view"`
}

// RedmineConfig holds the REST endpoint used for status transitions.
type RedmineConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// IssueBaseURL is the public URL prefix for issue links in
	// notification text, e.g. https://sd.example.com/issues.
	IssueBaseURL string `mapstructure:"issue_base_url" yaml:"issue_base_url"`
}

// PollConfig controls the reconciliation loop cadence and retries.
type PollConfig struct {
	IntervalSec    int `mapstructure:"interval_sec" yaml:"interval_sec"`
	RetentionHours int `mapstructure:"retention_hours" yaml:"retention_hours"`
	RetryAttempts  int `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseSec   int `mapstructure:"retry_base_sec" yaml:"retry_base_sec"`
}

// Interval returns the polling cadence as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSec) * time.Second
}

// Retention returns the record retention window as a duration.
func (p PollConfig) Retention() time.Duration {
	return time.Duration(p.RetentionHours) * time.Hour
}

// RetryBase returns the initial retry delay as a duration.
func (p PollConfig) RetryBase() time.Duration {
	return time.Duration(p.RetryBaseSec) * time.Second
}

// Config is the top-level application configuration.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Tracker  TrackerConfig  `mapstructure:"tracker" yaml:"tracker"`
	Redmine  RedmineConfig  `mapstructure:"redmine" yaml:"redmine"`
	Poll     PollConfig     `mapstructure:"poll" yaml:"poll"`

	// DBPath is the sqlite database holding users and message records.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// LogDir receives rotated log files; it is what the admin "logs"
	// export zips up.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

func defaultConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{View: "osp_issues_view"},
		Poll: PollConfig{
			IntervalSec:    60,
			RetentionHours: 45,
			RetryAttempts:  10,
			RetryBaseSec:   2,
		},
		DBPath:   "tg-redmine.db",
		LogDir:   "logs",
		LogLevel: "info",
	}
}

// Load reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with TGREDMINE_ override file values
// (e.g. TGREDMINE_TELEGRAM_TOKEN). A missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("tgredmine")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("tracker.view", "osp_issues_view")
	v.SetDefault("poll.interval_sec", 60)
	v.SetDefault("poll.retention_hours", 45)
	v.SetDefault("poll.retry_attempts", 10)
	v.SetDefault("poll.retry_base_sec", 2)
	v.SetDefault("db_path", "tg-redmine.db")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
