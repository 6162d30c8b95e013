package config

import "time"

// Config is the root configuration for the feed adapter.
type Config struct {
	Vendor  VendorConfig  `yaml:"vendor"`
	History HistoryConfig `yaml:"history"`
	Live    LiveConfig    `yaml:"live"`
	Sink    SinkConfig    `yaml:"sink"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
}

// VendorConfig holds the vendor feed connection settings.
type VendorConfig struct {
	Host               string        `yaml:"host"`                 // vendor host address, host:port
	Product            string        `yaml:"product"`              // product name sent on auth
	LookupClients      int           `yaml:"lookup_clients"`       // parallel lookup connection count
	LookupTimeout      time.Duration `yaml:"lookup_timeout"`       // per-request lookup timeout
	TimeZone           string        `yaml:"time_zone"`            // vendor-local time zone name
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// HistoryConfig holds history retriever settings.
type HistoryConfig struct {
	Workers  int    `yaml:"workers"`   // parallel contract-chain workers
	SpoolDir string `yaml:"spool_dir"` // temp artifact directory, empty = os.TempDir()
}

// LiveConfig holds live subscription settings.
type LiveConfig struct {
	EventBuffer int `yaml:"event_buffer"` // bounded event channel size
}

// SinkConfig holds optional NATS fan-out settings. An empty URL disables
// the NATS publisher.
type SinkConfig struct {
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
}

// OutputConfig selects the downloader output target.
type OutputConfig struct {
	Format   string   `yaml:"format"` // csv, json, parquet or postgres
	Dir      string   `yaml:"dir"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a Postgres connection for the postgres output target.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}
