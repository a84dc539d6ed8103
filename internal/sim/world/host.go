package world

import (
	"fmt"
	"time"

	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/replication"
	"magicstore.ai/internal/sim/world/kernel/model"
)

// hostAdapter exposes the world to the replication engine. The engine only
// calls it from inside step, on the loop goroutine.
type hostAdapter struct{ w *World }

func (h hostAdapter) Now() time.Duration { return h.w.now() }

func (h hostAdapter) Containers() []replication.Container {
	cs := h.w.sortedContainers()
	out := make([]replication.Container, 0, len(cs))
	for _, c := range cs {
		out = append(out, h.w.ref(c))
	}
	return out
}

func (h hostAdapter) Instantiate(kind string) (replication.MutableItem, error) {
	e, err := h.w.instantiate(kind)
	if err != nil {
		return nil, err
	}
	return itemRef{e: e}, nil
}

func (h hostAdapter) Store(c replication.Container, it replication.Item) error {
	cont := h.w.container(c.ID())
	if cont == nil {
		return fmt.Errorf("%w: %s", ErrNoContainer, c.ID())
	}
	e := h.w.items[it.ID()]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNoItem, it.ID())
	}
	return h.w.deposit(cont, e)
}

func (h hostAdapter) DestroyItem(it replication.Item) {
	if it == nil {
		return
	}
	h.w.destroyItem(h.w.items[it.ID()])
}

// itemRef is the engine's view of one item entity.
type itemRef struct{ e *model.ItemEntity }

func (r itemRef) ID() string                            { return r.e.EntityID }
func (r itemRef) Kind() string                          { return r.e.Item }
func (r itemRef) Name() string                          { return r.e.Name }
func (r itemRef) Temperature() float64                  { return r.e.Temperature }
func (r itemRef) Contamination() (uint8, int)           { return r.e.DiseaseIdx, r.e.DiseaseCount }
func (r itemRef) Consumable() bool                      { return r.e.Consumable }
func (r itemRef) SetTemperature(v float64)              { r.e.Temperature = v }
func (r itemRef) SetMass(v float64)                     { r.e.Mass = v }
func (r itemRef) AddContamination(idx uint8, count int) { r.e.AddDisease(idx, count) }
func (r itemRef) Activate()                             { r.e.Active = true }

// containerRef is the engine's view of one container.
type containerRef struct {
	w   *World
	c   *model.Container
	def catalogs.ContainerDef
}

func (r containerRef) ID() string            { return r.c.ID() }
func (r containerRef) Category() string      { return r.c.Type }
func (r containerRef) Replicable() bool      { return r.def.Replicable }
func (r containerRef) FlowMetered() bool     { return r.def.FlowMetered }
func (r containerRef) Replicating() bool     { return r.c.Replicating }
func (r containerRef) SetReplicating(v bool) { r.c.Replicating = v }

func (r containerRef) Items() []replication.Item {
	out := make([]replication.Item, 0, len(r.c.Items))
	for _, id := range r.c.Items {
		if e := r.w.items[id]; e != nil {
			out = append(out, itemRef{e: e})
		}
	}
	return out
}

// adjustableRef is used for categories whose capacity can be raised.
type adjustableRef struct{ containerRef }

func (r adjustableRef) MaxCapacity() float64         { return r.c.CapacityKg }
func (r adjustableRef) SetCapacity(v float64)        { r.c.CapacityKg = v }
func (r adjustableRef) SetUserMaxCapacity(v float64) { r.c.UserMaxKg = v }

func (w *World) ref(c *model.Container) replication.Container {
	def, _ := w.catalogs.Container(c.Type)
	base := containerRef{w: w, c: c, def: def}
	if def.AdjustableCapacity {
		return adjustableRef{base}
	}
	return base
}

// reportedMass runs e's true mass through the hook chain.
func (w *World) reportedMass(c *model.Container, e *model.ItemEntity) float64 {
	m := e.Mass
	if c == nil || len(w.hooks) == 0 {
		return m
	}
	cr, ir := w.ref(c), itemRef{e: e}
	for _, h := range w.hooks {
		m = h.Mass(cr, ir, m)
	}
	return m
}

func (w *World) reportedFull(c *model.Container, full bool) bool {
	if len(w.hooks) == 0 {
		return full
	}
	cr := w.ref(c)
	for _, h := range w.hooks {
		full = h.Full(cr, full)
	}
	return full
}

func (w *World) notifyStored(c *model.Container, e *model.ItemEntity) {
	if len(w.hooks) == 0 {
		return
	}
	cr, ir := w.ref(c), itemRef{e: e}
	for _, h := range w.hooks {
		h.Stored(cr, ir)
	}
}

func (w *World) notifyCleaningUp(c *model.Container) {
	cr := w.ref(c)
	for _, h := range w.hooks {
		h.CleaningUp(cr)
	}
}

func (w *World) notifyRestored(c *model.Container) {
	cr := w.ref(c)
	for _, h := range w.hooks {
		h.Restored(cr)
	}
}
