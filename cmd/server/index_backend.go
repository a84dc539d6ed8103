package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"magicstore.ai/internal/persistence/indexdb"
	"magicstore.ai/internal/persistence/snapshot"
	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/tuning"
	"magicstore.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	Stats() indexdb.QueueStats
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func indexPath(worldDir string) string {
	return filepath.Join(worldDir, "index", "world.sqlite")
}

// openRuntimeIndex returns a nil index when indexing is disabled by flag or
// by MS_INDEX_BACKEND.
func openRuntimeIndex(worldDir string, disableDB bool, logger *zap.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("MS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(indexPath(worldDir), logger.Named("indexdb"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported MS_INDEX_BACKEND: %s", backend)
	}
}
