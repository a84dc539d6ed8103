package replication

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpawn_CopiesTemplate(t *testing.T) {
	h := newFakeHost()
	s := NewSpawner(h)

	it, err := s.Spawn(Template{Kind: "MEAL", Temperature: 277.5, ContaminationIdx: 3, ContaminationCount: 250}, 2)
	require.NoError(t, err)
	got := it.(*fakeItem)
	require.Equal(t, "MEAL", got.kind)
	require.Equal(t, 277.5, got.temp)
	require.Equal(t, 2.0, got.mass)
	require.Equal(t, uint8(3), got.dIdx)
	require.Equal(t, 250, got.dCount)
	require.True(t, got.active)
}

func TestSpawn_NoContamination(t *testing.T) {
	h := newFakeHost()
	s := NewSpawner(h)

	it, err := s.Spawn(Template{Kind: "SAND", ContaminationIdx: NoContamination, ContaminationCount: 99}, 1)
	require.NoError(t, err)
	require.Equal(t, 0, it.(*fakeItem).dCount)

	it, err = s.Spawn(Template{Kind: "SAND", ContaminationIdx: 1, ContaminationCount: 0}, 1)
	require.NoError(t, err)
	require.Equal(t, 0, it.(*fakeItem).dCount)
}

func TestSpawn_UnknownKind(t *testing.T) {
	h := newFakeHost()
	h.unknown["GONE"] = true
	s := NewSpawner(h)

	_, err := s.Spawn(Template{Kind: "GONE"}, 1)
	require.True(t, errors.Is(err, ErrUnknownKind))

	_, err = s.Spawn(Template{}, 1)
	require.True(t, errors.Is(err, ErrUnknownKind))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.HighWater = 5
	require.Error(t, bad.Validate())

	e := New(newFakeHost(), DefaultConfig())
	require.Error(t, e.SetConfig(bad))
	require.Equal(t, 20, e.Config().HighWater)
}
