// Package config loads syncgw configuration from a file, SYNCGW_ environment
// variables and defaults, in that order of precedence after flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/entrybook/syncgw/internal/store/schema"
)

// EnvPrefix is the prefix of environment overrides: SYNCGW_HTTP_ADDR sets
// http.addr.
const EnvPrefix = "SYNCGW"

// Config is the complete runtime configuration.
type Config struct {
	// DataDir holds the database and the attachment directory unless they
	// are configured explicitly.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	DB          DBConfig          `mapstructure:"db" yaml:"db"`
	Attachments AttachmentsConfig `mapstructure:"attachments" yaml:"attachments"`
	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Recurrence  RecurrenceConfig  `mapstructure:"recurrence" yaml:"recurrence"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
	Notify      NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// DBConfig configures the SQLite store. An empty Path puts the database
// under DataDir.
type DBConfig struct {
	Path         string        `mapstructure:"path" yaml:"path"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// AttachmentsConfig configures backing files and their orphan sweep.
type AttachmentsConfig struct {
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	Authority     string        `mapstructure:"authority" yaml:"authority"`
	SweepDebounce time.Duration `mapstructure:"sweep_debounce" yaml:"sweep_debounce"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	SweepGrace    time.Duration `mapstructure:"sweep_grace" yaml:"sweep_grace"`
	GrantTTL      time.Duration `mapstructure:"grant_ttl" yaml:"grant_ttl"`
	WatchSizes    bool          `mapstructure:"watch_sizes" yaml:"watch_sizes"`
}

// GatewayConfig names the owning application and the local-only account
// type it alone may address.
type GatewayConfig struct {
	OwnerCaller      string `mapstructure:"owner_caller" yaml:"owner_caller"`
	LocalAccountType string `mapstructure:"local_account_type" yaml:"local_account_type"`
}

// RecurrenceConfig bounds the expansion of unbounded recurrence rules.
type RecurrenceConfig struct {
	MaxInstances int `mapstructure:"max_instances" yaml:"max_instances"`
	HorizonYears int `mapstructure:"horizon_years" yaml:"horizon_years"`
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// NotifyConfig configures the websocket change stream.
type NotifyConfig struct {
	Buffer       int           `mapstructure:"buffer" yaml:"buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// LogConfig selects the log level and format. A non-empty File switches
// output to a rotated log file.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment overrides to apply to Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", ".syncgw")

	v.SetDefault("db.path", "")
	v.SetDefault("db.busy_timeout", 5*time.Second)
	v.SetDefault("db.max_open_conns", 25)

	v.SetDefault("attachments.dir", "")
	v.SetDefault("attachments.authority", "syncgw")
	v.SetDefault("attachments.sweep_debounce", 2*time.Second)
	v.SetDefault("attachments.sweep_interval", time.Hour)
	v.SetDefault("attachments.sweep_grace", time.Minute)
	v.SetDefault("attachments.grant_ttl", 10*time.Minute)
	v.SetDefault("attachments.watch_sizes", true)

	v.SetDefault("gateway.owner_caller", "syncgw")
	v.SetDefault("gateway.local_account_type", schema.DefaultLocalAccountType)

	v.SetDefault("recurrence.max_instances", 1000)
	v.SetDefault("recurrence.horizon_years", 10)

	v.SetDefault("http.addr", "127.0.0.1:8765")
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.max_body_bytes", 32<<20)

	v.SetDefault("notify.buffer", 100)
	v.SetDefault("notify.write_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// NewViper returns a viper instance with defaults and SYNCGW_ environment
// overrides registered.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into v and validates it. An explicit file must
// exist; without one, syncgw.{yaml,toml,json} is looked up in the working
// directory and the data directory and skipped when absent.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	} else {
		v.SetConfigName("syncgw")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func (c *Config) resolvePaths() {
	if c.DB.Path == "" {
		c.DB.Path = filepath.Join(c.DataDir, "syncgw.db")
	}
	if c.Attachments.Dir == "" {
		c.Attachments.Dir = filepath.Join(c.DataDir, "attachments")
	}
}

// ConfigFile returns the file v read, or "" when defaults and environment
// were used alone.
func ConfigFile(v *viper.Viper) string {
	return v.ConfigFileUsed()
}
