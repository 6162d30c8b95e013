package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "feedbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
vendor:
  host: "feed.example.com:9100"
  product: "TESTPROD"
  lookup_clients: 2
  lookup_timeout: 10s
history:
  workers: 4
output:
  format: "json"
  dir: "/tmp/out"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Vendor.Host != "feed.example.com:9100" {
		t.Errorf("Vendor.Host = %q", cfg.Vendor.Host)
	}
	if cfg.Vendor.LookupClients != 2 {
		t.Errorf("Vendor.LookupClients = %d, want 2", cfg.Vendor.LookupClients)
	}
	if cfg.Vendor.LookupTimeout != 10*time.Second {
		t.Errorf("Vendor.LookupTimeout = %v, want 10s", cfg.Vendor.LookupTimeout)
	}
	if cfg.History.Workers != 4 {
		t.Errorf("History.Workers = %d, want 4", cfg.History.Workers)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Output.Format = %q, want json", cfg.Output.Format)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("FEED_PRODUCT", "ENVPROD")

	path := writeConfig(t, `
vendor:
  product: "${FEED_PRODUCT}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vendor.Product != "ENVPROD" {
		t.Errorf("Vendor.Product = %q, want ENVPROD", cfg.Vendor.Product)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeConfig(t, "vendor:\n  host: \"h:1\"\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}

	if cfg.Vendor.Product != DefaultProduct {
		t.Errorf("Vendor.Product = %q, want default %q", cfg.Vendor.Product, DefaultProduct)
	}
	if cfg.Vendor.LookupClients != DefaultLookupClients {
		t.Errorf("Vendor.LookupClients = %d, want %d", cfg.Vendor.LookupClients, DefaultLookupClients)
	}
	if cfg.Vendor.TimeZone != DefaultTimeZone {
		t.Errorf("Vendor.TimeZone = %q, want %q", cfg.Vendor.TimeZone, DefaultTimeZone)
	}
	if cfg.History.Workers != DefaultHistoryWorkers {
		t.Errorf("History.Workers = %d, want %d", cfg.History.Workers, DefaultHistoryWorkers)
	}
	if cfg.Live.EventBuffer != DefaultEventBuffer {
		t.Errorf("Live.EventBuffer = %d, want %d", cfg.Live.EventBuffer, DefaultEventBuffer)
	}
	if cfg.Output.Format != DefaultOutputFormat {
		t.Errorf("Output.Format = %q, want %q", cfg.Output.Format, DefaultOutputFormat)
	}
	if cfg.Output.Postgres.Port != DefaultDBPort {
		t.Errorf("Output.Postgres.Port = %d, want %d", cfg.Output.Postgres.Port, DefaultDBPort)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/feedbridge.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Vendor.Host = "" },
			wantErr: "vendor.host",
		},
		{
			name:    "zero lookup clients",
			mutate:  func(c *Config) { c.Vendor.LookupClients = -1 },
			wantErr: "lookup_clients",
		},
		{
			name:    "bad time zone",
			mutate:  func(c *Config) { c.Vendor.TimeZone = "Mars/Olympus" },
			wantErr: "time_zone",
		},
		{
			name:    "bad output format",
			mutate:  func(c *Config) { c.Output.Format = "xml" },
			wantErr: "output.format",
		},
		{
			name:    "postgres requires host",
			mutate:  func(c *Config) { c.Output.Format = "postgres" },
			wantErr: "output.postgres.host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
