package config

import (
	"fmt"

	"ecorelease/storage"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Validate checks a loaded configuration for values the node cannot run with.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("DBBackend: unsupported backend %q", c.DBBackend)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RateLimit: values must not be negative")
	}
	switch c.Indexer.Driver {
	case "", DriverSQLite:
	case DriverPostgres:
		if c.Indexer.DSN == "" {
			return fmt.Errorf("Indexer: postgres driver requires a DSN")
		}
	default:
		return fmt.Errorf("Indexer: unsupported driver %q", c.Indexer.Driver)
	}
	if (c.Telemetry.Traces || c.Telemetry.Metrics) && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("Telemetry: endpoint required when traces or metrics are enabled")
	}
	return nil
}
