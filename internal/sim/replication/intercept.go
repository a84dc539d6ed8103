package replication

import "go.uber.org/zap"

// Interceptor applies replication semantics around the host's container
// operations. It never touches the container's own item accounting.
type Interceptor struct {
	e *Engine
}

var _ Hooks = (*Interceptor)(nil)

// Stored runs after a successful deposit.
func (h *Interceptor) Stored(c Container, it Item) {
	e := h.e
	if e.spawning || it == nil || !e.accepts(c) {
		return
	}
	if e.registry.Capture(c, it) {
		e.log.Debug("template captured",
			zap.String("container", c.ID()),
			zap.String("kind", it.Kind()),
			zap.Int("templates", e.registry.Len(c.ID())))
		t, _ := e.registry.Get(c.ID(), it.Kind())
		e.emit(e.host.Now(), AuditTemplateCapture, c.ID(), it.Kind(), map[string]any{
			"reference_name": t.ReferenceName,
			"temperature":    t.Temperature,
		})
	}
	c.SetReplicating(true)
	unbound(c)
}

// Mass rewrites a quantity read. Only non-consumable kinds with a template in
// a replicating, accepted, non flow-metered container are virtualized.
func (h *Interceptor) Mass(c Container, it Item, mass float64) float64 {
	e := h.e
	if it == nil || it.Consumable() {
		return mass
	}
	if !e.accepts(c) || c.FlowMetered() || !c.Replicating() {
		return mass
	}
	h.ensure(c)
	if _, ok := e.registry.Get(c.ID(), it.Kind()); !ok {
		return mass
	}
	return e.cfg.UnlimitedQuantity
}

// Full overrides the container's capacity check once it replicates.
func (h *Interceptor) Full(c Container, full bool) bool {
	e := h.e
	if !full || !e.accepts(c) || !c.Replicating() {
		return full
	}
	if !e.cfg.ConsumablesUncapped && onlyConsumables(c) {
		return full
	}
	return false
}

// CleaningUp runs before the host tears a container down. Contents of an
// accepted container are destroyed directly so nothing reaches the world;
// other containers are left to the host's normal teardown.
func (h *Interceptor) CleaningUp(c Container) {
	e := h.e
	if !e.accepts(c) {
		return
	}
	id := c.ID()
	hadTemplates := e.registry.Len(id)
	e.registry.Clear(id)
	e.scheduler.Evict(id)

	items := c.Items()
	destroyed := 0
	for _, it := range items {
		if it == nil {
			continue
		}
		e.host.DestroyItem(it)
		destroyed++
	}
	if hadTemplates == 0 && destroyed == 0 && !c.Replicating() {
		return
	}
	e.log.Debug("container purged",
		zap.String("container", id),
		zap.Int("templates", hadTemplates),
		zap.Int("items", destroyed))
	e.emit(e.host.Now(), AuditPurge, id, "", map[string]any{
		"templates": hadTemplates,
		"items":     destroyed,
	})
}

// Restored runs when the host loads a container from persisted state. A
// replicating container gets its unbounded capacity back and its templates
// rebuilt from what it holds.
func (h *Interceptor) Restored(c Container) {
	if c == nil || !c.Replicating() || !h.e.accepts(c) {
		return
	}
	unbound(c)
	h.ensure(c)
}

func (h *Interceptor) ensure(c Container) {
	e := h.e
	if !e.registry.EnsurePopulated(c) {
		return
	}
	n := e.registry.Len(c.ID())
	e.log.Info("templates rebuilt from contents",
		zap.String("container", c.ID()),
		zap.Int("templates", n))
	e.emit(e.host.Now(), AuditTemplateRebuild, c.ID(), "", map[string]any{"templates": n})
}

func unbound(c Container) {
	ac, ok := c.(AdjustableCapacity)
	if !ok {
		return
	}
	ac.SetCapacity(UnboundedCapacity)
	ac.SetUserMaxCapacity(UnboundedCapacity)
}

func onlyConsumables(c Container) bool {
	items := c.Items()
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if it != nil && !it.Consumable() {
			return false
		}
	}
	return true
}
