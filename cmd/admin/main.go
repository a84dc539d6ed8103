package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"magicstore.ai/internal/persistence/indexdb"
	persistlog "magicstore.ai/internal/persistence/log"
	"magicstore.ai/internal/persistence/snapshot"
	"magicstore.ai/internal/sim/world"
	"magicstore.ai/internal/sim/world/kernel/model"
)

type rootFlags struct {
	dataDir string
	worldID string
}

func (f rootFlags) worldDir() (string, error) {
	if strings.TrimSpace(f.worldID) == "" {
		return "", errors.New("missing --world")
	}
	return filepath.Join(f.dataDir, "worlds", f.worldID), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:          "admin",
		Short:        "Offline inspection of magicstore worlds, snapshots and the index",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.dataDir, "data", "./data", "runtime data directory")
	root.PersistentFlags().StringVar(&f.worldID, "world", "", "world id")

	root.AddCommand(
		newListCmd(&f),
		newInspectCmd(&f),
		newAuditsCmd(&f),
		newSnapshotsCmd(&f),
		newStateCmd(),
		newRequestSnapshotCmd(),
	)
	return root
}

func newListCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List worlds in the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(filepath.Join(f.dataDir, "worlds"))
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsDir() {
					fmt.Fprintln(cmd.OutOrStdout(), e.Name())
				}
			}
			return nil
		},
	}
}

func newInspectCmd(f *rootFlags) *cobra.Command {
	var (
		path     string
		onlyRepl bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a snapshot: header, containers and their replicating flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				dir, err := f.worldDir()
				if err != nil {
					return fmt.Errorf("%w (or pass --snapshot)", err)
				}
				if path = latestSnapshot(dir); path == "" {
					return errors.New("no snapshot found")
				}
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			return printSnapshot(cmd.OutOrStdout(), path, snap, onlyRepl)
		},
	}
	cmd.Flags().StringVar(&path, "snapshot", "", "snapshot path (default: latest of --world)")
	cmd.Flags().BoolVar(&onlyRepl, "replicating", false, "only list replicating containers")
	return cmd
}

func printSnapshot(out io.Writer, path string, snap snapshot.SnapshotV1, onlyRepl bool) error {
	items := make(map[string]snapshot.ItemEntityV1, len(snap.Items))
	for _, it := range snap.Items {
		items[it.EntityID] = it
	}
	fmt.Fprintf(out, "snapshot %s v%d world=%s tick=%d tick_rate=%d containers=%d items=%d\n",
		filepath.Base(path), snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.TickRate,
		len(snap.Containers), len(snap.Items))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTAINER\tREPLICATING\tITEMS\tKINDS\tCAPACITY_KG")
	for _, c := range snap.Containers {
		if onlyRepl && !c.Replicating {
			continue
		}
		kinds := map[string]bool{}
		for _, id := range c.Items {
			kinds[items[id].Item] = true
		}
		names := make([]string, 0, len(kinds))
		for k := range kinds {
			names = append(names, k)
		}
		sort.Strings(names)
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\t%s\n",
			model.ContainerID(c.Type, model.Vec3iFromArray(c.Pos)), c.Replicating, len(c.Items),
			strings.Join(names, ","), strconv.FormatFloat(c.CapacityKg, 'g', 6, 64))
	}
	return tw.Flush()
}

func newAuditsCmd(f *rootFlags) *cobra.Command {
	var (
		q       indexdb.AuditQuery
		dbPath  string
		fromLog bool
	)
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Query audit entries from the sqlite index (or the JSONL audit log)",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			if fromLog {
				dir, err := f.worldDir()
				if err != nil {
					return err
				}
				return scanAuditLog(filepath.Join(dir, "audit"), q, func(e world.AuditEntry) error { return enc.Encode(e) })
			}
			path := dbPath
			if path == "" {
				dir, err := f.worldDir()
				if err != nil {
					return fmt.Errorf("%w (or pass --db)", err)
				}
				path = filepath.Join(dir, "index", "world.sqlite")
			}
			r, err := indexdb.OpenReader(path)
			if err != nil {
				return err
			}
			defer r.Close()
			rows, err := r.Audits(cmd.Context(), q)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&q.Action, "action", "", "action filter (e.g. REFILL, TEMPLATE_CAPTURE)")
	fl.StringVar(&q.Container, "container", "", "container id filter")
	fl.Uint64Var(&q.FromTick, "from-tick", 0, "first tick (inclusive)")
	fl.Uint64Var(&q.ToTick, "to-tick", 0, "last tick (inclusive, 0 = no bound)")
	fl.IntVar(&q.Limit, "limit", 100, "result limit")
	fl.StringVar(&dbPath, "db", "", "sqlite index path (default: <data>/worlds/<world>/index/world.sqlite)")
	fl.BoolVar(&fromLog, "from-log", false, "scan the JSONL audit log instead of the index")
	return cmd
}

// scanAuditLog applies the same filters as the index query to the rotated
// audit log files.
func scanAuditLog(dir string, q indexdb.AuditQuery, fn func(world.AuditEntry) error) error {
	files, err := persistlog.Files(dir, "audit")
	if err != nil {
		return err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	n := 0
	errLimit := errors.New("limit")
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e world.AuditEntry) error {
			if q.Action != "" && e.Action != q.Action {
				return nil
			}
			if q.Container != "" && e.Container != q.Container {
				return nil
			}
			if e.Tick < q.FromTick || (q.ToTick > 0 && e.Tick > q.ToTick) {
				return nil
			}
			if n >= limit {
				return errLimit
			}
			n++
			return fn(e)
		})
		if errors.Is(err, errLimit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func newSnapshotsCmd(f *rootFlags) *cobra.Command {
	var replicatingAt uint64
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List indexed snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := f.worldDir()
			if err != nil {
				return err
			}
			r, err := indexdb.OpenReader(filepath.Join(dir, "index", "world.sqlite"))
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("replicating-at") {
				ids, err := r.ReplicatingAt(cmd.Context(), replicatingAt)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}
			rows, err := r.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TICK\tCONTAINERS\tREPLICATING\tITEMS\tPATH")
			for _, s := range rows {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\n", s.Tick, s.Containers, s.Replicating, s.Items, s.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Uint64Var(&replicatingAt, "replicating-at", 0, "list the replicating containers of the snapshot at this tick")
	return cmd
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
