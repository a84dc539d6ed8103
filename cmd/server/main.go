package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	persistlog "magicstore.ai/internal/persistence/log"
	"magicstore.ai/internal/persistence/snapshot"
	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/tuning"
	"magicstore.ai/internal/sim/world"
)

type serverFlags struct {
	addr       string
	worldID    string
	configDir  string
	dataDir    string
	tuningPath string
	disableDB  bool
	snapPath   string
	loadLatest bool
	watch      bool
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f serverFlags
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Run a magicstore world with replicating storage",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(f.debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, f, logger); err != nil {
				logger.Error("server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "127.0.0.1:8080", "http listen address")
	fl.StringVar(&f.worldID, "world", "world_1", "world id")
	fl.StringVar(&f.configDir, "configs", "./configs", "config directory (items.json, containers.json, tuning.yaml)")
	fl.StringVar(&f.dataDir, "data", "./data", "runtime data directory")
	fl.StringVar(&f.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fl.BoolVar(&f.disableDB, "disable-db", false, "disable the sqlite index of ticks, audits and snapshots")
	fl.StringVar(&f.snapPath, "snapshot", "", "snapshot to load (optional)")
	fl.BoolVar(&f.loadLatest, "load-latest-snapshot", true, "load the latest snapshot from the data dir when --snapshot is empty")
	fl.BoolVar(&f.watch, "watch-tuning", true, "reload tuning.yaml when it changes")
	fl.BoolVar(&f.debug, "debug", false, "debug logging")
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func run(ctx context.Context, f serverFlags, logger *zap.Logger) error {
	cats, err := loadCatalogs(f.configDir, logger)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	worldDir := filepath.Join(f.dataDir, "worlds", f.worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return err
	}

	tp := strings.TrimSpace(f.tuningPath)
	if tp == "" {
		tp = filepath.Join(f.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	watchTuning := f.watch
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Info("tuning not found, using defaults", zap.String("path", tp))
		tune = tuning.Defaults()
		watchTuning = false
	}

	snapshotToLoad := strings.TrimSpace(f.snapPath)
	if snapshotToLoad == "" && f.loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	w, err := openWorld(f.worldID, tune, cats, snapshotToLoad, logger)
	if err != nil {
		return err
	}

	idx, err := openRuntimeIndex(worldDir, f.disableDB, logger)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Warn("index: upsert catalogs", zap.Error(err))
		}
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	ticks := persistlog.TickFanout{tickLog}
	audits := persistlog.AuditFanout{auditLog}
	if idx != nil {
		ticks = append(ticks, idx)
		audits = append(audits, idx)
	}
	w.SetTickLogger(ticks)
	w.SetAuditLogger(audits)

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           newMux(w, idx, logger, envBool("MS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		writeSnapshots(gctx, worldDir, snapCh, idx, logger)
		return nil
	})
	if watchTuning {
		g.Go(func() error {
			return tuning.Watch(gctx, tp, logger.Named("tuning"), func(t tuning.Tuning) {
				if err := w.SetReplicationConfig(gctx, t); err != nil {
					logger.Warn("tuning not applied", zap.Error(err))
				}
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", f.addr), zap.String("world", w.ID()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// loadCatalogs reads the catalogs from configDir, falling back to the
// embedded defaults when the directory has none.
func loadCatalogs(configDir string, logger *zap.Logger) (*catalogs.Catalogs, error) {
	cats, err := catalogs.Load(configDir)
	if err == nil {
		return cats, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	logger.Info("catalogs not found, using embedded defaults", zap.String("dir", configDir))
	return catalogs.Defaults()
}

func openWorld(worldID string, tune tuning.Tuning, cats *catalogs.Catalogs, snapPath string, logger *zap.Logger) (*world.World, error) {
	cfg := world.WorldConfig{ID: worldID, Tuning: tune}
	if snapPath == "" {
		return world.New(cfg, cats, logger)
	}
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != worldID {
		return nil, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", worldID, snap.Header.WorldID)
	}
	w, err := world.NewFromSnapshot(cfg, cats, logger, snap)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	logger.Info("resumed from snapshot", zap.String("path", filepath.Base(snapPath)), zap.Uint64("tick", w.CurrentTick()))
	return w, nil
}

func writeSnapshots(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, idx runtimeIndex, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshotPath(worldDir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Warn("snapshot write failed", zap.Uint64("tick", snap.Header.Tick), zap.Error(err))
				continue
			}
			logger.Debug("snapshot written", zap.String("path", path))
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}
}
