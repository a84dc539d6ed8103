package items

import (
	"testing"

	"github.com/stretchr/testify/require"

	modelpkg "magicstore.ai/internal/sim/world/kernel/model"
)

func TestFindMergeTarget(t *testing.T) {
	m := map[string]Entry{
		"I1": {ID: "I1", Item: "SAND", Mass: 2},
		"I2": {ID: "I2", Item: "IRON_ORE", Mass: 1},
	}
	id, ok := FindMergeTarget([]string{"I2", "I1"}, "SAND", func(s string) (Entry, bool) {
		e, ok := m[s]
		return e, ok
	})
	if !ok || id != "I1" {
		t.Fatalf("expected merge target I1, got %q ok=%v", id, ok)
	}
}

func TestRemoveID(t *testing.T) {
	got := RemoveID([]string{"A", "B", "C"}, "B")
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("unexpected ids: %#v", got)
	}
}

func TestSortedExpired(t *testing.T) {
	m := map[string]Entry{
		"I2": {ID: "I2", ExpiresTick: 10},
		"I1": {ID: "I1", ExpiresTick: 11},
	}
	exp := SortedExpired([]string{"I1", "I2"}, func(s string) (Entry, bool) {
		e, ok := m[s]
		return e, ok
	}, 10)
	if len(exp) != 1 || exp[0] != "I2" {
		t.Fatalf("unexpected expired ids: %#v", exp)
	}
}

func TestDropMergesSameKind(t *testing.T) {
	items := map[string]*modelpkg.ItemEntity{}
	itemsAt := map[modelpkg.Vec3i][]string{}
	pos := modelpkg.Vec3i{X: 1}

	a := &modelpkg.ItemEntity{EntityID: "I1", Item: "SAND", Mass: 10, Temperature: 300, DiseaseIdx: modelpkg.NoDisease}
	b := &modelpkg.ItemEntity{EntityID: "I2", Item: "SAND", Mass: 30, Temperature: 280, DiseaseIdx: 2, DiseaseCount: 50}
	items["I1"], items["I2"] = a, b

	var actions []string
	audit := func(_ uint64, _, action string, _ modelpkg.Vec3i, _ string, _ map[string]any) {
		actions = append(actions, action)
	}

	require.Equal(t, "I1", Drop(5, 100, "WORLD", a, pos, "TEST", items, itemsAt, audit))
	require.Equal(t, "I1", Drop(6, 100, "WORLD", b, pos, "TEST", items, itemsAt, audit))

	require.Len(t, items, 1)
	require.Equal(t, []string{"I1"}, itemsAt[pos])
	require.InDelta(t, 40, a.Mass, 1e-9)
	require.InDelta(t, 285, a.Temperature, 1e-9)
	require.Equal(t, uint8(2), a.DiseaseIdx)
	require.Equal(t, 50, a.DiseaseCount)
	require.Equal(t, uint64(106), a.ExpiresTick)
	require.Equal(t, []string{"ITEM_DROP", "ITEM_DROP"}, actions)
}

func TestExpire(t *testing.T) {
	items := map[string]*modelpkg.ItemEntity{}
	itemsAt := map[modelpkg.Vec3i][]string{}
	e := &modelpkg.ItemEntity{EntityID: "I1", Item: "DIRT", Mass: 1}
	Drop(0, 10, "WORLD", e, modelpkg.Vec3i{}, "TEST", items, itemsAt, nil)

	require.Empty(t, Expire(9, items, itemsAt, nil))
	require.Equal(t, []string{"I1"}, Expire(10, items, itemsAt, nil))
	require.Empty(t, items)
	require.Empty(t, itemsAt)
}
