package config

import (
	"errors"
	"fmt"
	"time"
)

var outputFormats = map[string]struct{}{
	"csv":      {},
	"json":     {},
	"parquet":  {},
	"postgres": {},
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Vendor.Host == "" {
		return errors.New("vendor.host is required")
	}
	if c.Vendor.Product == "" {
		return errors.New("vendor.product is required")
	}
	if c.Vendor.LookupClients < 1 {
		return errors.New("vendor.lookup_clients must be >= 1")
	}
	if c.Vendor.LookupTimeout < time.Second {
		return errors.New("vendor.lookup_timeout must be >= 1s")
	}
	if _, err := time.LoadLocation(c.Vendor.TimeZone); err != nil {
		return fmt.Errorf("vendor.time_zone: %w", err)
	}

	if c.History.Workers < 1 {
		return errors.New("history.workers must be >= 1")
	}

	if c.Live.EventBuffer < 1 {
		return errors.New("live.event_buffer must be >= 1")
	}

	if _, ok := outputFormats[c.Output.Format]; !ok {
		return fmt.Errorf("output.format must be csv, json, parquet or postgres, got %q", c.Output.Format)
	}
	if c.Output.Format == "postgres" {
		if err := c.Output.Postgres.validate("output.postgres"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	return nil
}
