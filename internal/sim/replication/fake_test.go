package replication

import (
	"errors"
	"fmt"
	"time"
)

type fakeItem struct {
	id         string
	kind       string
	name       string
	mass       float64
	temp       float64
	dIdx       uint8
	dCount     int
	consumable bool
	active     bool
}

func (it *fakeItem) ID() string                      { return it.id }
func (it *fakeItem) Kind() string                    { return it.kind }
func (it *fakeItem) Name() string                    { return it.name }
func (it *fakeItem) Temperature() float64            { return it.temp }
func (it *fakeItem) Contamination() (uint8, int)     { return it.dIdx, it.dCount }
func (it *fakeItem) Consumable() bool                { return it.consumable }
func (it *fakeItem) SetTemperature(v float64)        { it.temp = v }
func (it *fakeItem) SetMass(v float64)               { it.mass = v }
func (it *fakeItem) AddContamination(i uint8, n int) { it.dIdx, it.dCount = i, it.dCount+n }
func (it *fakeItem) Activate()                       { it.active = true }

type fakeContainer struct {
	id          string
	replicable  bool
	flowMetered bool
	replicating bool
	capacity    float64
	userMax     float64
	items       []*fakeItem
}

func (c *fakeContainer) ID() string            { return c.id }
func (c *fakeContainer) Category() string      { return "LOCKER" }
func (c *fakeContainer) Replicable() bool      { return c.replicable }
func (c *fakeContainer) FlowMetered() bool     { return c.flowMetered }
func (c *fakeContainer) Replicating() bool     { return c.replicating }
func (c *fakeContainer) SetReplicating(v bool) { c.replicating = v }

func (c *fakeContainer) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	return out
}

func (c *fakeContainer) MaxCapacity() float64         { return c.capacity }
func (c *fakeContainer) SetCapacity(v float64)        { c.capacity = v }
func (c *fakeContainer) SetUserMaxCapacity(v float64) { c.userMax = v }

func (c *fakeContainer) mass() float64 {
	total := 0.0
	for _, it := range c.items {
		total += it.mass
	}
	return total
}

func (c *fakeContainer) count(kind string) int {
	n := 0
	for _, it := range c.items {
		if it.kind == kind {
			n++
		}
	}
	return n
}

// fakeHost mimics the host deposit path: Store appends and then fires the
// registered hooks, exactly like a real host would.
type fakeHost struct {
	now        time.Duration
	containers []*fakeContainer
	hooks      Hooks
	consumable map[string]bool
	unknown    map[string]bool
	refuse     map[string]bool
	nextID     int

	destroyed []string
	worldDrop []string
	stores    int
	storeErrs int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		consumable: map[string]bool{},
		unknown:    map[string]bool{},
		refuse:     map[string]bool{},
	}
}

func (h *fakeHost) Now() time.Duration { return h.now }

func (h *fakeHost) Containers() []Container {
	out := make([]Container, 0, len(h.containers))
	for _, c := range h.containers {
		out = append(out, c)
	}
	return out
}

func (h *fakeHost) Instantiate(kind string) (MutableItem, error) {
	if h.unknown[kind] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	h.nextID++
	return &fakeItem{
		id:         fmt.Sprintf("S%d", h.nextID),
		kind:       kind,
		name:       kind,
		dIdx:       NoContamination,
		consumable: h.consumable[kind],
	}, nil
}

func (h *fakeHost) Store(c Container, it Item) error {
	fc := c.(*fakeContainer)
	if h.refuse[fc.id] {
		h.storeErrs++
		return errors.New("refused")
	}
	fc.items = append(fc.items, it.(*fakeItem))
	h.stores++
	if h.hooks != nil {
		h.hooks.Stored(c, it)
	}
	return nil
}

func (h *fakeHost) DestroyItem(it Item) {
	h.destroyed = append(h.destroyed, it.ID())
	for _, c := range h.containers {
		for i, x := range c.items {
			if x.id == it.ID() {
				c.items = append(c.items[:i], c.items[i+1:]...)
				break
			}
		}
	}
}

// destroy tears c down the way a host does: hooks first, then whatever is
// still inside is dropped into the world.
func (h *fakeHost) destroy(c *fakeContainer) {
	if h.hooks != nil {
		h.hooks.CleaningUp(c)
	}
	for _, it := range c.items {
		h.worldDrop = append(h.worldDrop, it.id)
	}
	c.items = nil
	for i, x := range h.containers {
		if x == c {
			h.containers = append(h.containers[:i], h.containers[i+1:]...)
			break
		}
	}
}

func (h *fakeHost) add(c *fakeContainer) *fakeContainer {
	h.containers = append(h.containers, c)
	return c
}

func (h *fakeHost) item(kind string, mass float64) *fakeItem {
	h.nextID++
	return &fakeItem{
		id:         fmt.Sprintf("I%d", h.nextID),
		kind:       kind,
		name:       kind,
		mass:       mass,
		temp:       293.15,
		dIdx:       NoContamination,
		consumable: h.consumable[kind],
	}
}

func newTestEngine(h *fakeHost, cfg Config) *Engine {
	e := New(h, cfg)
	h.hooks = e.Hooks()
	return e
}
