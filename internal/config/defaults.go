package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHost               = "127.0.0.1:9100"
	DefaultProduct            = "FEEDBRIDGE"
	DefaultLookupClients      = 4
	DefaultLookupTimeout      = 30 * time.Second
	DefaultTimeZone           = "America/New_York"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultHistoryWorkers     = 8
	DefaultEventBuffer        = 10000
	DefaultSubjectPrefix      = "feedbridge"
	DefaultOutputFormat       = "csv"
	DefaultOutputDir          = "./data"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultLogLevel           = "info"
)

func (c *Config) applyDefaults() {
	// Vendor defaults
	if c.Vendor.Host == "" {
		c.Vendor.Host = DefaultHost
	}
	if c.Vendor.Product == "" {
		c.Vendor.Product = DefaultProduct
	}
	if c.Vendor.LookupClients == 0 {
		c.Vendor.LookupClients = DefaultLookupClients
	}
	if c.Vendor.LookupTimeout == 0 {
		c.Vendor.LookupTimeout = DefaultLookupTimeout
	}
	if c.Vendor.TimeZone == "" {
		c.Vendor.TimeZone = DefaultTimeZone
	}
	if c.Vendor.ReconnectBaseDelay == 0 {
		c.Vendor.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Vendor.ReconnectMaxDelay == 0 {
		c.Vendor.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// History defaults
	if c.History.Workers == 0 {
		c.History.Workers = DefaultHistoryWorkers
	}

	// Live defaults
	if c.Live.EventBuffer == 0 {
		c.Live.EventBuffer = DefaultEventBuffer
	}

	// Sink defaults
	if c.Sink.NATSSubjectPrefix == "" {
		c.Sink.NATSSubjectPrefix = DefaultSubjectPrefix
	}

	// Output defaults
	if c.Output.Format == "" {
		c.Output.Format = DefaultOutputFormat
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}
	applyDBDefaults(&c.Output.Postgres)

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
