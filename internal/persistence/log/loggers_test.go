package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"magicstore.ai/internal/sim/world"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "audit").WithClock(func() time.Time { return now })

	require.NoError(t, w.Write(world.AuditEntry{Tick: 1, Action: "CONTAINER_BUILD"}))
	require.NoError(t, w.Write(world.AuditEntry{Tick: 2, Action: "REFILL"}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, w.Write(world.AuditEntry{Tick: 3, Action: "REFILL"}))
	require.NoError(t, w.Close())

	files, err := Files(dir, "audit")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "audit-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "audit-2026-03-01-11.jsonl.zst"),
	}, files)

	var ticks []uint64
	for _, f := range files {
		require.NoError(t, ReadJSONL(f, func(e world.AuditEntry) error {
			ticks = append(ticks, e.Tick)
			return nil
		}))
	}
	require.Equal(t, []uint64{1, 2, 3}, ticks)
}

func TestJSONLZstdWriter_AppendsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	w := NewJSONLZstdWriter(dir, "ticks").WithClock(clock)
	require.NoError(t, w.Write(world.TickLogEntry{Tick: 1}))
	require.NoError(t, w.Close())

	w = NewJSONLZstdWriter(dir, "ticks").WithClock(clock)
	require.NoError(t, w.Write(world.TickLogEntry{Tick: 2}))
	require.NoError(t, w.Close())

	files, err := Files(dir, "ticks")
	require.NoError(t, err)
	require.Len(t, files, 1)

	var got []uint64
	require.NoError(t, ReadJSONL(files[0], func(e world.TickLogEntry) error {
		got = append(got, e.Tick)
		return nil
	}))
	require.Equal(t, []uint64{1, 2}, got)
}

func TestReadJSONL_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, l.WriteAudit(world.AuditEntry{Tick: i}))
	}
	require.NoError(t, l.Close())

	files, err := Files(filepath.Join(dir, "audit"), "audit")
	require.NoError(t, err)
	require.Len(t, files, 1)

	stop := errors.New("stop")
	n := 0
	err = ReadJSONL(files[0], func(world.AuditEntry) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, n)
}

type memAudit struct{ got []world.AuditEntry }

func (m *memAudit) WriteAudit(e world.AuditEntry) error {
	m.got = append(m.got, e)
	return nil
}

type failAudit struct{}

func (failAudit) WriteAudit(world.AuditEntry) error { return errors.New("disk full") }

func TestAuditFanout_CallsEveryLogger(t *testing.T) {
	a, b := &memAudit{}, &memAudit{}
	f := AuditFanout{a, failAudit{}, nil, b}
	err := f.WriteAudit(world.AuditEntry{Tick: 7, Action: "REFILL"})
	require.ErrorContains(t, err, "disk full")
	require.Len(t, a.got, 1)
	require.Len(t, b.got, 1)
}
