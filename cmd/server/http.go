package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"magicstore.ai/internal/sim/world"
	"magicstore.ai/internal/transport/observer"
	"magicstore.ai/internal/transport/ws"
)

func newMux(w *world.World, idx runtimeIndex, logger *zap.Logger, enableAdmin bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w, idx)
	})

	obsSrv := observer.NewServer(w, logger.Named("observer"))
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/ops/ws", ws.NewServer(w, logger.Named("ops")).Handler())

	if !enableAdmin {
		logger.Info("admin endpoints disabled (MS_ENABLE_ADMIN_HTTP=false)")
		return mux
	}
	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		cfg := w.Config()
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Tuning  any                `json:"tuning"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: cfg.ID,
			Tick:    w.CurrentTick(),
			Tuning:  cfg.Tuning,
			Metrics: w.Metrics(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := w.RequestSnapshot(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	})
	return mux
}

func writeMetrics(rw http.ResponseWriter, w *world.World, idx runtimeIndex) {
	id := w.ID()
	m := w.Metrics()
	tick := w.CurrentTick()

	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %v\n", name, id, v)
	}
	gauge("magicstore_world_tick", "Current world tick.", tick)
	gauge("magicstore_containers", "Containers in the world.", m.Containers)
	gauge("magicstore_containers_replicating", "Containers flagged replicating.", m.Replicating)
	gauge("magicstore_items", "Item entities in the world.", m.Items)
	gauge("magicstore_world_items", "Item entities lying on the ground.", m.WorldItems)
	gauge("magicstore_observers", "Connected observer streams.", m.Observers)
	gauge("magicstore_step_ms", "Last tick step duration in milliseconds.", strconv.FormatFloat(m.StepMS, 'f', 3, 64))

	fmt.Fprintf(rw, "# HELP magicstore_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE magicstore_queue_depth gauge\n")
	fmt.Fprintf(rw, "magicstore_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "magicstore_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "magicstore_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(rw, "magicstore_queue_depth{world=%q,queue=%q} %d\n", id, "reconfig", m.QueueDepths.Reconfig)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP magicstore_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(rw, "# TYPE magicstore_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "magicstore_index_queue_depth{world=%q} %d\n", id, s.Queued)
	fmt.Fprintf(rw, "# HELP magicstore_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE magicstore_index_dropped_total counter\n")
	fmt.Fprintf(rw, "magicstore_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "magicstore_index_dropped_total{world=%q,kind=%q} %d\n", id, "audit", s.DropAuditTotal)
	fmt.Fprintf(rw, "magicstore_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
}

func snapshotPath(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
