package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-evo/internal/config"
)

// DefaultSQLitePath is where run history lands when storage.path is unset.
const DefaultSQLitePath = ".agentevo/history.db"

// Open builds a Store from the storage config section. Type "sqlite"
// (the default) persists to storage.path; "memory" keeps runs for the
// life of the process only.
func Open(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("store: missing config")
	}

	switch t := strings.ToLower(strings.TrimSpace(cfg.Storage.Type)); t {
	case "", "sqlite":
		return NewSQLiteStore(sqlitePath(cfg.Storage.Path))
	case "memory":
		return NewSQLiteStore(":memory:")
	default:
		return nil, fmt.Errorf("store: unsupported type %q", t)
	}
}

func sqlitePath(configured string) string {
	if p := strings.TrimSpace(configured); p != "" {
		return p
	}
	return DefaultSQLitePath
}
