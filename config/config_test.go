package config

import (
	"os"
	"path/filepath"
	"testing"

	"ecorelease/storage"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.DBBackend != storage.BackendLevelDB {
		t.Fatalf("unexpected backend %q", cfg.DBBackend)
	}
	if cfg.AddressPrefix != "eco" {
		t.Fatalf("unexpected prefix %q", cfg.AddressPrefix)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress || again.RateLimit != cfg.RateLimit {
		t.Fatalf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "/var/lib/eco"
DBBackend = "Bolt"
RPCAddress = "127.0.0.1:9000"
AddressPrefix = "ECO "
Environment = "prod"

[Auth]
HMACSecret = "file-secret"
Issuer = "issuer"
Audience = "aud"

[RateLimit]
RequestsPerMinute = 120

[Indexer]
Driver = "postgres"
DSN = "postgres://eco@localhost/eco"

[Telemetry]
Endpoint = "otel:4318"
Traces = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBBackend != storage.BackendBolt {
		t.Fatalf("backend not normalised: %q", cfg.DBBackend)
	}
	if cfg.AddressPrefix != "eco" {
		t.Fatalf("prefix not normalised: %q", cfg.AddressPrefix)
	}
	if cfg.RateLimit.Burst != 120 {
		t.Fatalf("expected burst to default to the per-minute rate, got %d", cfg.RateLimit.Burst)
	}
	if cfg.IndexerDSN() != "postgres://eco@localhost/eco" {
		t.Fatalf("unexpected dsn %q", cfg.IndexerDSN())
	}
	if cfg.Auth.HMACSecret != "file-secret" {
		t.Fatalf("unexpected secret %q", cfg.Auth.HMACSecret)
	}
}

func TestLoadSecretFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv(EnvHMACSecret, "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.HMACSecret != "env-secret" {
		t.Fatalf("env override ignored: %q", cfg.Auth.HMACSecret)
	}
	if cfg.IndexerDSN() != filepath.Join(cfg.DataDir, "events.db") {
		t.Fatalf("unexpected sqlite dsn %q", cfg.IndexerDSN())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":   func(c *Config) { c.DBBackend = "rocksdb" },
		"driver":    func(c *Config) { c.Indexer.Driver = "mysql" },
		"postgres":  func(c *Config) { c.Indexer.Driver = DriverPostgres; c.Indexer.DSN = "" },
		"ratelimit": func(c *Config) { c.RateLimit.Burst = -1 },
		"telemetry": func(c *Config) { c.Telemetry.Metrics = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
