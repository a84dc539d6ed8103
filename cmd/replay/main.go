package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	persistlog "magicstore.ai/internal/persistence/log"
	"magicstore.ai/internal/persistence/snapshot"
	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/tuning"
	"magicstore.ai/internal/sim/world"
)

// errStop ends a replay early once toTick has been stepped.
var errStop = errors.New("stop")

type replayOpts struct {
	snapPath  string
	ticksDir  string
	configDir string
	fromTick  uint64
	toTick    uint64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o replayOpts
	cmd := &cobra.Command{
		Use:          "replay",
		Short:        "Re-run a tick log from a snapshot and verify every state digest",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.snapPath == "" {
				return errors.New("missing --snapshot")
			}
			snap, err := snapshot.ReadSnapshot(o.snapPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			replicating := 0
			for _, c := range snap.Containers {
				if c.Replicating {
					replicating++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot v%d world=%s tick=%d containers=%d replicating=%d items=%d\n",
				snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, len(snap.Containers), replicating, len(snap.Items))
			if o.ticksDir == "" {
				return nil
			}

			cats, err := catalogs.Load(o.configDir)
			if err != nil {
				if !os.IsNotExist(err) {
					return fmt.Errorf("load catalogs: %w", err)
				}
				if cats, err = catalogs.Defaults(); err != nil {
					return err
				}
			}
			checked, err := replay(snap, cats, o)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&o.snapPath, "snapshot", "", "path to .snap.zst")
	fl.StringVar(&o.ticksDir, "ticks", "", "dir containing ticks-*.jsonl.zst (optional)")
	fl.StringVar(&o.configDir, "configs", "./configs", "config directory")
	fl.Uint64Var(&o.fromTick, "from-tick", 0, "start verifying from tick (inclusive, optional)")
	fl.Uint64Var(&o.toTick, "to-tick", 0, "stop at tick (inclusive, optional)")
	return cmd
}

// replay steps a world restored from snap through every logged tick after
// it and compares digests. Replication cooldowns are not part of snapshots,
// so verification may need to start after the first cooldown window.
func replay(snap snapshot.SnapshotV1, cats *catalogs.Catalogs, o replayOpts) (uint64, error) {
	tune := tuning.Defaults()
	if snap.ItemTTLTicks > 0 {
		tune.ItemTTLTicks = snap.ItemTTLTicks
	}
	w, err := world.NewFromSnapshot(world.WorldConfig{Tuning: tune}, cats, zap.NewNop(), snap)
	if err != nil {
		return 0, err
	}

	files, err := persistlog.Files(o.ticksDir, "ticks")
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no tick files found in %s", o.ticksDir)
	}

	verifyFrom := o.fromTick
	if verifyFrom == 0 {
		verifyFrom = w.CurrentTick()
	}

	var checked uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(entry world.TickLogEntry) error {
			if entry.Tick < w.CurrentTick() {
				return nil
			}
			if o.toTick != 0 && entry.Tick > o.toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick gap: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, filepath.Base(path))
			}
			ops := make([]world.Op, 0, len(entry.Ops))
			for _, r := range entry.Ops {
				ops = append(ops, r.Op)
			}
			tick, digest := w.StepOnce(ops...)
			if tick < verifyFrom {
				return nil
			}
			checked++
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
