package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// Open returns the backend selected by name rooted in dataDir.
func Open(backend, dataDir string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendLevelDB:
		return NewLevelDB(filepath.Join(dataDir, "state"))
	case BackendBolt:
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, err
		}
		return NewBoltDB(filepath.Join(dataDir, "state.db"), nil)
	case BackendMemory:
		return NewMemDB(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
