package world

import (
	"testing"

	"github.com/stretchr/testify/require"

	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/tuning"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	return newTestWorldWithTuning(t, tuning.Defaults())
}

func newTestWorldWithTuning(t *testing.T, tu tuning.Tuning) *World {
	t.Helper()
	cats, err := catalogs.Defaults()
	require.NoError(t, err)
	w, err := New(WorldConfig{ID: "test", Tuning: tu}, cats, nil)
	require.NoError(t, err)
	return w
}

func mustBuild(t *testing.T, w *World, category string, pos Vec3i) string {
	t.Helper()
	id, err := w.BuildContainer(category, pos)
	require.NoError(t, err)
	return id
}

// mustStore spawns an item of kind and deposits it into containerID.
func mustStore(t *testing.T, w *World, containerID, kind string, mass float64) string {
	t.Helper()
	id, err := w.SpawnItem(kind, mass)
	require.NoError(t, err)
	require.NoError(t, w.Store(containerID, id))
	return id
}

func countKind(t *testing.T, w *World, containerID, kind string) int {
	t.Helper()
	ids, err := w.Items(containerID)
	require.NoError(t, err)
	n := 0
	for _, id := range ids {
		if w.items[id].Item == kind {
			n++
		}
	}
	return n
}

type memAudit struct{ entries []AuditEntry }

func (m *memAudit) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) actions(action string) []AuditEntry {
	var out []AuditEntry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
