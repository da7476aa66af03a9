package config

import (
	"fmt"
	"log/slog"
)

// Validate rejects configurations the store, gateway or server cannot run
// with. Load calls it automatically.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if c.DB.BusyTimeout < 0 {
		return fmt.Errorf("db.busy_timeout must be >= 0 (got %v)", c.DB.BusyTimeout)
	}
	if c.DB.MaxOpenConns <= 0 {
		return fmt.Errorf("db.max_open_conns must be > 0 (got %d)", c.DB.MaxOpenConns)
	}
	if err := c.Attachments.validate(); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}
	if c.Gateway.LocalAccountType == "" {
		return fmt.Errorf("gateway.local_account_type must not be empty")
	}
	if c.Recurrence.MaxInstances <= 0 {
		return fmt.Errorf("recurrence.max_instances must be > 0 (got %d)", c.Recurrence.MaxInstances)
	}
	if c.Recurrence.HorizonYears <= 0 {
		return fmt.Errorf("recurrence.horizon_years must be > 0 (got %d)", c.Recurrence.HorizonYears)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0 (got %d)", c.HTTP.MaxBodyBytes)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

func (a *AttachmentsConfig) validate() error {
	if a.Dir == "" {
		return fmt.Errorf("dir must not be empty")
	}
	if a.Authority == "" {
		return fmt.Errorf("authority must not be empty")
	}
	if a.SweepDebounce <= 0 {
		return fmt.Errorf("sweep_debounce must be > 0 (got %v)", a.SweepDebounce)
	}
	if a.SweepInterval < 0 || a.SweepGrace < 0 {
		return fmt.Errorf("sweep_interval and sweep_grace must be >= 0")
	}
	if a.GrantTTL <= 0 {
		return fmt.Errorf("grant_ttl must be > 0 (got %v)", a.GrantTTL)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid level %q", l.Level)
	}
	return level, nil
}
