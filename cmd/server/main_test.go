package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"magicstore.ai/internal/persistence/snapshot"
	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/tuning"
	"magicstore.ai/internal/sim/world"
)

func TestLatestSnapshot(t *testing.T) {
	worldDir := t.TempDir()
	require.Equal(t, "", latestSnapshot(worldDir))

	dir := filepath.Join(worldDir, "snapshots")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "999.snap.zst"), 0o755)) // directories are skipped
	for _, name := range []string{"30.snap.zst", "120.snap.zst", "7.snap.zst", "abc.snap.zst", "500.snap.zst.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.Equal(t, filepath.Join(dir, "120.snap.zst"), latestSnapshot(worldDir))
	require.Equal(t, filepath.Join(dir, "120.snap.zst"), snapshotPath(worldDir, 120))
}

func TestOpenWorld_FreshAndResumed(t *testing.T) {
	cats, err := catalogs.Defaults()
	require.NoError(t, err)
	logger := zap.NewNop()

	w, err := openWorld("w1", tuning.Defaults(), cats, "", logger)
	require.NoError(t, err)
	_, err = w.BuildContainer("REFRIGERATOR", world.Vec3i{X: 2})
	require.NoError(t, err)
	w.StepOnce()

	path := snapshotPath(t.TempDir(), 0)
	require.NoError(t, snapshot.WriteSnapshot(path, w.ExportSnapshot(0)))

	resumed, err := openWorld("w1", tuning.Defaults(), cats, path, logger)
	require.NoError(t, err)
	require.Equal(t, uint64(1), resumed.CurrentTick())
	_, ok := resumed.ContainerState("REFRIGERATOR@2,0,0")
	require.True(t, ok)

	_, err = openWorld("other", tuning.Defaults(), cats, path, logger)
	require.ErrorContains(t, err, "world id mismatch")
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	idx, err := openRuntimeIndex(dir, true, logger)
	require.NoError(t, err)
	require.Nil(t, idx)

	t.Setenv("MS_INDEX_BACKEND", "off")
	idx, err = openRuntimeIndex(dir, false, logger)
	require.NoError(t, err)
	require.Nil(t, idx)

	t.Setenv("MS_INDEX_BACKEND", "d1")
	_, err = openRuntimeIndex(dir, false, logger)
	require.ErrorContains(t, err, "unsupported")

	t.Setenv("MS_INDEX_BACKEND", "")
	idx, err = openRuntimeIndex(dir, false, logger)
	require.NoError(t, err)
	require.NotNil(t, idx)
	require.NoError(t, idx.Close())
	_, err = os.Stat(indexPath(dir))
	require.NoError(t, err)
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestMux(t *testing.T) {
	cats, err := catalogs.Defaults()
	require.NoError(t, err)
	w, err := world.New(world.WorldConfig{ID: "mux", Tuning: tuning.Defaults()}, cats, nil)
	require.NoError(t, err)
	_, err = w.BuildContainer("STORAGE_LOCKER", world.Vec3i{})
	require.NoError(t, err)
	w.StepOnce()

	mux := newMux(w, nil, zap.NewNop(), true)

	code, body := get(t, mux, "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)

	code, body = get(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `magicstore_world_tick{world="mux"} 1`)
	require.Contains(t, body, `magicstore_containers{world="mux"} 1`)
	require.NotContains(t, body, "magicstore_index_queue_depth")

	code, body = get(t, mux, "/admin/v1/state")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"world_id":"mux"`)

	code, _ = get(t, mux, "/admin/v1/snapshot")
	require.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = get(t, newMux(w, nil, zap.NewNop(), false), "/admin/v1/state")
	require.Equal(t, http.StatusNotFound, code)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("MS_TEST_BOOL", "")
	require.True(t, envBool("MS_TEST_BOOL", true))
	t.Setenv("MS_TEST_BOOL", "false")
	require.False(t, envBool("MS_TEST_BOOL", true))
	t.Setenv("MS_TEST_BOOL", "maybe")
	require.True(t, envBool("MS_TEST_BOOL", true))

	t.Setenv("DEPLOY_ENV", "Production")
	require.False(t, defaultEnableAdminHTTP())
}

func TestRun_StopsOnCancel(t *testing.T) {
	base := t.TempDir()
	f := serverFlags{
		addr:      "127.0.0.1:0",
		worldID:   "run",
		configDir: filepath.Join(base, "configs"),
		dataDir:   filepath.Join(base, "data"),
		watch:     true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, f, zap.NewNop()) }()

	worldDir := filepath.Join(f.dataDir, "worlds", "run")
	require.Eventually(t, func() bool {
		_, err := os.Stat(indexPath(worldDir))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
}
