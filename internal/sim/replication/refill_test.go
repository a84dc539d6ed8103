package replication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fridgeWithMeals(h *fakeHost, id string, n int) *fakeContainer {
	c := h.add(&fakeContainer{id: id, replicable: true})
	for i := 0; i < n; i++ {
		if err := h.Store(c, h.item("MEAL", 1)); err != nil {
			panic(err)
		}
	}
	return c
}

func TestTick_RefillsToHighWater(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())
	c := fridgeWithMeals(h, "FRIDGE@0,0,0", 3)

	h.now = time.Second
	e.Tick(h.now)
	require.Equal(t, 20, c.count("MEAL"))
	require.Equal(t, 1, e.Registry().Len(c.id))
	for _, it := range c.items[3:] {
		require.True(t, it.active)
		require.Equal(t, 1.0, it.mass)
		require.Equal(t, 293.15, it.temp)
	}
	at, ok := e.Scheduler().LastRefill(c.id, "MEAL")
	require.True(t, ok)
	require.Equal(t, time.Second, at)
}

func TestTick_CooldownAllowsOneBatch(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())
	c := fridgeWithMeals(h, "FRIDGE", 2)

	e.Tick(10 * time.Second)
	require.Equal(t, 20, c.count("MEAL"))

	// Eat most of it, then tick again inside the cool-down window.
	c.items = c.items[:4]
	e.Tick(12 * time.Second)
	require.Equal(t, 4, c.count("MEAL"))

	e.Tick(15 * time.Second)
	require.Equal(t, 20, c.count("MEAL"))
}

func TestTick_AboveLowWaterNoRefill(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())
	c := fridgeWithMeals(h, "FRIDGE", 10)

	e.Tick(time.Second)
	require.Equal(t, 10, c.count("MEAL"))
	_, ok := e.Scheduler().LastRefill(c.id, "MEAL")
	require.False(t, ok)
}

func TestTick_NonConsumablesAndFlowMeteredIgnored(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())

	locker := h.add(&fakeContainer{id: "A", replicable: true})
	require.NoError(t, h.Store(locker, h.item("SAND", 1)))

	reservoir := h.add(&fakeContainer{id: "B", replicable: true, flowMetered: true})
	require.NoError(t, h.Store(reservoir, h.item("MEAL", 1)))

	before := h.stores
	e.Tick(time.Second)
	require.Equal(t, before, h.stores)
}

func TestTick_OnePairPerTick(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	h.consumable["BERRY"] = true
	e := newTestEngine(h, DefaultConfig())

	a := h.add(&fakeContainer{id: "A", replicable: true})
	require.NoError(t, h.Store(a, h.item("MEAL", 1)))
	require.NoError(t, h.Store(a, h.item("BERRY", 1)))
	b := fridgeWithMeals(h, "B", 1)

	e.Tick(time.Second)
	require.Equal(t, 20, a.count("BERRY"))
	require.Equal(t, 1, a.count("MEAL"))
	require.Equal(t, 1, b.count("MEAL"))

	e.Tick(2 * time.Second)
	require.Equal(t, 20, a.count("MEAL"))
	require.Equal(t, 1, b.count("MEAL"))

	e.Tick(3 * time.Second)
	require.Equal(t, 20, b.count("MEAL"))
}

func TestTick_UnknownKindSkipped(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())
	c := fridgeWithMeals(h, "FRIDGE", 2)

	var skips int
	e.SetAudit(func(_ time.Duration, action, _, _ string, _ map[string]any) {
		if action == AuditRefillSkip {
			skips++
		}
	})
	h.unknown["MEAL"] = true
	e.Tick(time.Second)
	require.Equal(t, 2, c.count("MEAL"))
	require.Equal(t, 18, skips)
	_, ok := e.Scheduler().LastRefill(c.id, "MEAL")
	require.True(t, ok, "a failed batch still starts the cool-down")
}

func TestTick_RefusedDepositDestroysClone(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())
	c := fridgeWithMeals(h, "FRIDGE", 5)

	h.refuse[c.id] = true
	e.Tick(time.Second)
	require.Equal(t, 5, c.count("MEAL"))
	require.Equal(t, 15, h.storeErrs)
	require.Len(t, h.destroyed, 15)
	require.False(t, e.Spawning())
}

func TestTick_ReentrantCallIsNoop(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())
	c := fridgeWithMeals(h, "FRIDGE", 1)

	nested := 0
	h.hooks = hookSpy{Hooks: e.Hooks(), onStored: func() {
		nested++
		e.Tick(time.Hour)
	}}
	e.Tick(time.Second)
	require.Equal(t, 20, c.count("MEAL"))
	require.Equal(t, 19, nested)
	at, _ := e.Scheduler().LastRefill(c.id, "MEAL")
	require.Equal(t, time.Second, at)
}

func TestTick_RebuildsLostTemplates(t *testing.T) {
	h := newFakeHost()
	h.consumable["MEAL"] = true
	e := newTestEngine(h, DefaultConfig())
	c := h.add(&fakeContainer{id: "FRIDGE", replicable: true, replicating: true})
	c.items = []*fakeItem{h.item("MEAL", 1)}

	e.Tick(time.Second)
	require.Equal(t, 1, e.Registry().Len(c.id))
	require.Equal(t, 20, c.count("MEAL"))
}

type hookSpy struct {
	Hooks
	onStored func()
}

func (s hookSpy) Stored(c Container, it Item) {
	s.Hooks.Stored(c, it)
	if s.onStored != nil {
		s.onStored()
	}
}
