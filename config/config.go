package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"ecorelease/crypto"
	"ecorelease/storage"
)

// EnvHMACSecret overrides Auth.HMACSecret when set.
const EnvHMACSecret = "ECO_RPC_HMAC_SECRET"

type Config struct {
	DataDir        string `toml:"DataDir"`
	DBBackend      string `toml:"DBBackend"`
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	AddressPrefix  string `toml:"AddressPrefix"`
	Environment    string `toml:"Environment"`
	LogFile        string `toml:"LogFile"`

	Auth      AuthConfig      `toml:"Auth"`
	RateLimit RateLimitConfig `toml:"RateLimit"`
	Indexer   IndexerConfig   `toml:"Indexer"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
}

// AuthConfig controls bearer-token verification on mutating RPC methods.
type AuthConfig struct {
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// IndexerConfig selects the event index database. An empty driver disables
// the indexer.
type IndexerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		DataDir:        "./eco-data",
		DBBackend:      storage.BackendLevelDB,
		RPCAddress:     ":8545",
		MetricsAddress: ":9100",
		AddressPrefix:  crypto.DefaultPrefix,
		Environment:    "dev",
		Auth: AuthConfig{
			Issuer:   "ecorelease",
			Audience: "ecod",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			Burst:             60,
		},
		Indexer: IndexerConfig{
			Driver: DriverSQLite,
			DSN:    "",
		},
	}
}

// Load loads the configuration from the given path, creating a default file
// when it does not exist yet.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if secret := strings.TrimSpace(os.Getenv(EnvHMACSecret)); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	c.DBBackend = strings.ToLower(strings.TrimSpace(c.DBBackend))
	if c.DBBackend == "" {
		c.DBBackend = def.DBBackend
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = def.RPCAddress
	}
	c.AddressPrefix = strings.ToLower(strings.TrimSpace(c.AddressPrefix))
	if c.AddressPrefix == "" {
		c.AddressPrefix = def.AddressPrefix
	}
	if c.RateLimit.Burst <= 0 && c.RateLimit.RequestsPerMinute > 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerMinute
	}
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
}

// IndexerDSN resolves the indexer connection string. SQLite defaults to a
// file under the data directory.
func (c *Config) IndexerDSN() string {
	if c.Indexer.DSN != "" || c.Indexer.Driver != DriverSQLite {
		return c.Indexer.DSN
	}
	return filepath.Join(c.DataDir, "events.db")
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
