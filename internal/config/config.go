// Package config defines the run configuration and how it is loaded.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped with this package's sentinel errors.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/okian/tempusrecords/internal/domain/model"
)

// Default file names.
const (
	DefaultSoldierCatalog = "all_maps_soldier_info.csv"
	DefaultDemomanCatalog = "all_maps_demoman_info.csv"
	DefaultRecordsFile    = "player_map_records.csv"
	DefaultFailedFile     = "failed_maps.csv"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// BaseURL is the Tempus API root.
	BaseURL string `koanf:"base_url"`

	// PlayerID and Class may be left empty; the operator is asked for them.
	PlayerID string `koanf:"player_id"`
	Class    string `koanf:"class"`

	// CatalogDir holds one catalog per class.
	CatalogDir     string `koanf:"catalog_dir"`
	SoldierCatalog string `koanf:"soldier_catalog"`
	DemomanCatalog string `koanf:"demoman_catalog"`

	// OutputDir receives the records and failed-maps tables.
	OutputDir   string `koanf:"output_dir"`
	RecordsFile string `koanf:"records_file"`
	FailedFile  string `koanf:"failed_file"`

	// Delimiter separates fields in catalog and report files.
	Delimiter string `koanf:"delimiter"`

	// TimeFormat is "seconds" or "clock".
	TimeFormat string `koanf:"time_format"`

	// MinIntervalMS is the minimum spacing between request starts.
	MinIntervalMS int `koanf:"min_interval_ms"`

	// MaxAttempts bounds lookups per map, first try included.
	MaxAttempts int `koanf:"max_attempts"`

	// RequestTimeoutMS is the per-request timeout.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	UserAgent string `koanf:"user_agent"`

	// MetricsAddr, when set, serves /metrics and /healthz during the run.
	MetricsAddr string `koanf:"metrics_addr"`

	// MetricsFile, when set, receives a Prometheus text dump after the run.
	MetricsFile string `koanf:"metrics_file"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		BaseURL:          "https://tempus2.xyz/api/v0",
		CatalogDir:       ".",
		SoldierCatalog:   DefaultSoldierCatalog,
		DemomanCatalog:   DefaultDemomanCatalog,
		OutputDir:        ".",
		RecordsFile:      DefaultRecordsFile,
		FailedFile:       DefaultFailedFile,
		Delimiter:        ";",
		TimeFormat:       "seconds",
		MinIntervalMS:    500,
		MaxAttempts:      5,
		RequestTimeoutMS: 15_000,
		UserAgent:        "tempusrecords/1.0",
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		bad("log_level %q must be debug, info, warn or error", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		bad("log_format %q must be text or json", c.LogFormat)
	}
	if c.TimeFormat != "seconds" && c.TimeFormat != "clock" {
		bad("time_format %q must be seconds or clock", c.TimeFormat)
	}
	if c.BaseURL == "" {
		bad("base_url must not be empty")
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		bad("delimiter %q must be a single character", c.Delimiter)
	}
	if c.MinIntervalMS < 0 {
		bad("min_interval_ms must not be negative")
	}
	if c.MaxAttempts < 1 {
		bad("max_attempts must be at least 1")
	}
	if c.RequestTimeoutMS <= 0 {
		bad("request_timeout_ms must be positive")
	}
	if c.SoldierCatalog == "" || c.DemomanCatalog == "" {
		bad("catalog file names must not be empty")
	}
	if c.RecordsFile == "" || c.FailedFile == "" {
		bad("output file names must not be empty")
	}
	if c.PlayerID != "" {
		if _, err := model.ParsePlayerID(c.PlayerID); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Class != "" {
		if _, err := model.ParseClass(c.Class); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// MinInterval returns MinIntervalMS as a duration.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMS) * time.Millisecond
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// DelimiterRune returns the first rune of Delimiter, ';' when empty.
func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	if r == utf8.RuneError {
		return ';'
	}
	return r
}

// CatalogPath returns the catalog file for class.
func (c *Config) CatalogPath(class model.Class) string {
	name := c.SoldierCatalog
	if class == model.ClassDemoman {
		name = c.DemomanCatalog
	}
	return filepath.Join(c.CatalogDir, name)
}

// RecordsPath returns the records table path.
func (c *Config) RecordsPath() string { return filepath.Join(c.OutputDir, c.RecordsFile) }

// FailedPath returns the failed-maps table path.
func (c *Config) FailedPath() string { return filepath.Join(c.OutputDir, c.FailedFile) }
