// Package config defines the application configuration and its viper
// defaults. The cobra layer reads config.yaml / PLANFIX_* environment
// variables and unmarshals into Config.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Plan      PlanConfig      `mapstructure:"plan" yaml:"plan"`
	FixSource FixSourceConfig `mapstructure:"fix_source" yaml:"fix_source"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output with rotation; disabled when LogFile is empty.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// PlanConfig controls plan generation output.
type PlanConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Output string `mapstructure:"output" yaml:"output"` // empty or "stdout" writes to stdout
}

// FixSourceConfig selects and configures the fix lookup backend.
type FixSourceConfig struct {
	// Mode is one of "static", "postgres", "http" or "null".
	Mode string `mapstructure:"mode" yaml:"mode"`

	// Static backend.
	FixconfPath string `mapstructure:"fixconf_path" yaml:"fixconf_path"`
	Explain     bool   `mapstructure:"explain" yaml:"explain"`

	// Postgres backend.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`

	// HTTP backend.
	LookupURL       string        `mapstructure:"lookup_url" yaml:"lookup_url"`
	LookupTimeout   time.Duration `mapstructure:"lookup_timeout" yaml:"lookup_timeout"`
	LookupRateLimit float64       `mapstructure:"lookup_rate_limit" yaml:"lookup_rate_limit"`
}

// Validate rejects configurations the generate command cannot act on.
func (c *Config) Validate() error {
	switch c.FixSource.Mode {
	case "static":
		if c.FixSource.FixconfPath == "" {
			return fmt.Errorf("fix_source.fixconf_path is required in static mode")
		}
	case "postgres":
		if c.FixSource.DatabaseURL == "" {
			return fmt.Errorf("fix_source.database_url is required in postgres mode (PLANFIX_FIX_SOURCE_DATABASE_URL)")
		}
	case "http":
		if c.FixSource.LookupURL == "" {
			return fmt.Errorf("fix_source.lookup_url is required in http mode")
		}
	case "null":
	default:
		return fmt.Errorf("unknown fix_source.mode %q", c.FixSource.Mode)
	}
	return nil
}

// SetDefaults registers default values on v for every config key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "planfix")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)

	v.SetDefault("plan.name", "remediate_nodes")
	v.SetDefault("plan.output", "stdout")

	v.SetDefault("fix_source.mode", "static")
	v.SetDefault("fix_source.fixconf_path", "fixconf.yaml")
	v.SetDefault("fix_source.lookup_timeout", 30*time.Second)
	v.SetDefault("fix_source.lookup_rate_limit", 10.0)
}
