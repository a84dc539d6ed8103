package world

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"magicstore.ai/internal/sim/replication"
	itemspkg "magicstore.ai/internal/sim/world/feature/entities/items"
	"magicstore.ai/internal/sim/world/feature/storage/contents"
	"magicstore.ai/internal/sim/world/kernel/model"
)

const massEpsilon = 1e-9

// BuildContainer places a container of category at pos and returns its id.
func (w *World) BuildContainer(category string, pos Vec3i) (string, error) {
	def, ok := w.catalogs.Container(category)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownContainer, category)
	}
	c := &model.Container{
		Type:       category,
		Pos:        pos,
		CapacityKg: def.CapacityKg,
		UserMaxKg:  def.DefaultUserMaxKg,
	}
	if def.DefaultUserMaxToMax {
		c.UserMaxKg = c.CapacityKg
	}
	id := c.ID()
	if w.containers[id] != nil {
		return "", fmt.Errorf("%w: %s", ErrOccupied, id)
	}
	w.containers[id] = c
	w.auditEvent(w.tick.Load(), "WORLD", "CONTAINER_BUILD", pos, "", map[string]any{
		"container":   id,
		"capacity_kg": c.CapacityKg,
		"user_max_kg": c.UserMaxKg,
	})
	return id, nil
}

// SpawnItem creates an active, detached item of kind. mass <= 0 uses the
// catalog default.
func (w *World) SpawnItem(kind string, mass float64) (string, error) {
	e, err := w.instantiate(kind)
	if err != nil {
		return "", err
	}
	if mass > 0 {
		e.Mass = mass
	}
	e.Active = true
	return e.EntityID, nil
}

// DropItem releases a detached item into the world at pos. The returned id
// differs from itemID when the drop merged into an existing one.
func (w *World) DropItem(itemID string, pos Vec3i) (string, error) {
	e := w.items[itemID]
	if e == nil {
		return "", fmt.Errorf("%w: %s", ErrNoItem, itemID)
	}
	if e.Container != "" {
		return "", fmt.Errorf("%w: %s", ErrItemStored, itemID)
	}
	itemspkg.Pickup(e, w.itemsAt)
	return itemspkg.Drop(w.tick.Load(), w.itemTTL(), "WORLD", e, pos, "DROP", w.items, w.itemsAt, w.auditEvent), nil
}

// Store deposits a detached or dropped item into a container.
func (w *World) Store(containerID, itemID string) error {
	c := w.container(containerID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}
	e := w.items[itemID]
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNoItem, itemID)
	}
	return w.deposit(c, e)
}

// Withdraw takes up to amount kg of kind out of a container as a new detached
// item. A virtualized item reports an unlimited amount and keeps its true
// mass; anything else is depleted and removed once empty.
func (w *World) Withdraw(containerID, kind string, amount float64) (string, float64, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	c := w.container(containerID)
	if c == nil {
		return "", 0, fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}
	e := w.firstOfKind(c, kind)
	if e == nil {
		return "", 0, fmt.Errorf("%w: %s in %s", ErrNoItem, kind, containerID)
	}

	reported := w.reportedMass(c, e)
	take := math.Min(amount, reported)
	virtual := reported != e.Mass

	if !virtual && take >= e.Mass-massEpsilon {
		c.RemoveItem(e.EntityID)
		e.Container = ""
		w.auditEvent(w.tick.Load(), "WORLD", "WITHDRAW", c.Pos, "", map[string]any{
			"container": containerID, "item": kind, "entity_id": e.EntityID, "mass": e.Mass,
		})
		return e.EntityID, e.Mass, nil
	}

	out := &model.ItemEntity{
		EntityID:    w.newItemID(),
		Item:        e.Item,
		Name:        e.Name,
		Mass:        take,
		Temperature: e.Temperature,
		DiseaseIdx:  model.NoDisease,
		Consumable:  e.Consumable,
		Pos:         c.Pos,
		Active:      true,
		CreatedTick: w.tick.Load(),
	}
	if e.Mass > 0 && e.DiseaseCount > 0 {
		share := int(float64(e.DiseaseCount) * math.Min(1, take/e.Mass))
		out.AddDisease(e.DiseaseIdx, share)
		if !virtual {
			e.DiseaseCount -= share
		}
	}
	if !virtual {
		e.Mass -= take
	}
	w.items[out.EntityID] = out
	w.auditEvent(w.tick.Load(), "WORLD", "WITHDRAW", c.Pos, "", map[string]any{
		"container": containerID, "item": kind, "entity_id": out.EntityID, "mass": take, "virtual": virtual,
	})
	return out.EntityID, take, nil
}

// Consume removes and destroys one item of kind from a container, the way a
// meal is eaten. It returns the consumed item's id.
func (w *World) Consume(containerID, kind string) (string, error) {
	c := w.container(containerID)
	if c == nil {
		return "", fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}
	e := w.firstOfKind(c, kind)
	if e == nil {
		return "", fmt.Errorf("%w: %s in %s", ErrNoItem, kind, containerID)
	}
	id := e.EntityID
	w.destroyItem(e)
	w.auditEvent(w.tick.Load(), "WORLD", "CONSUME", c.Pos, "", map[string]any{
		"container": containerID, "item": kind, "entity_id": id,
	})
	return id, nil
}

// DestroyContainer tears a container down. Observers run first; whatever
// they leave inside is dropped into the world at the container's position.
func (w *World) DestroyContainer(containerID string) error {
	c := w.container(containerID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}
	nowTick := w.tick.Load()
	w.notifyCleaningUp(c)

	dropped := 0
	for _, id := range append([]string(nil), c.Items...) {
		e := w.items[id]
		c.RemoveItem(id)
		if e == nil {
			continue
		}
		e.Container = ""
		itemspkg.Drop(nowTick, w.itemTTL(), "WORLD", e, c.Pos, "CONTAINER_DESTROYED", w.items, w.itemsAt, w.auditEvent)
		dropped++
	}
	delete(w.containers, containerID)
	w.auditEvent(nowTick, "WORLD", "CONTAINER_DESTROY", c.Pos, "", map[string]any{
		"container": containerID,
		"dropped":   dropped,
	})
	return nil
}

// MassOf reports an item's mass as seen from outside, i.e. after hooks.
func (w *World) MassOf(itemID string) (float64, error) {
	e := w.items[itemID]
	if e == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoItem, itemID)
	}
	return w.reportedMass(w.container(e.Container), e), nil
}

func (w *World) IsFull(containerID string) (bool, error) {
	c := w.container(containerID)
	if c == nil {
		return false, fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}
	return w.fullFor(c, 0), nil
}

// Contents summarizes a container using reported masses.
func (w *World) Contents(containerID string, maxRows int) (contents.Summary, error) {
	c := w.container(containerID)
	if c == nil {
		return contents.Summary{}, fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}
	return w.summarize(c, maxRows), nil
}

// Items lists the item ids held by a container in deposit order.
func (w *World) Items(containerID string) ([]string, error) {
	c := w.container(containerID)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}
	return append([]string(nil), c.Items...), nil
}

// ContainerState returns a copy of a container's state.
func (w *World) ContainerState(containerID string) (model.Container, bool) {
	c := w.container(containerID)
	if c == nil {
		return model.Container{}, false
	}
	cp := *c
	cp.Items = append([]string(nil), c.Items...)
	return cp, true
}

// WorldItems lists dropped item ids at pos.
func (w *World) WorldItems(pos Vec3i) []string {
	return append([]string(nil), w.itemsAt[pos]...)
}

func (w *World) summarize(c *model.Container, maxRows int) contents.Summary {
	entries := make([]contents.Entry, 0, len(c.Items))
	for _, id := range c.Items {
		e := w.items[id]
		if e == nil {
			continue
		}
		entries = append(entries, contents.Entry{Name: e.Name, Mass: w.reportedMass(c, e)})
	}
	return contents.Summarize(entries, c.EffectiveCapacity(), maxRows)
}

func (w *World) instantiate(kind string) (*model.ItemEntity, error) {
	def, ok := w.catalogs.Item(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", replication.ErrUnknownKind, kind)
	}
	e := &model.ItemEntity{
		EntityID:    w.newItemID(),
		Item:        def.ID,
		Name:        def.Name,
		Mass:        def.DefaultMass,
		Temperature: def.DefaultTemperature,
		DiseaseIdx:  model.NoDisease,
		Consumable:  def.Consumable,
		CreatedTick: w.tick.Load(),
	}
	w.items[e.EntityID] = e
	return e, nil
}

// deposit is the single store path used by API calls and by the engine's
// refills alike.
func (w *World) deposit(c *model.Container, e *model.ItemEntity) error {
	if e.Container != "" {
		return fmt.Errorf("%w: %s in %s", ErrItemStored, e.EntityID, e.Container)
	}
	if w.fullFor(c, e.Mass) {
		return fmt.Errorf("%w: %s", ErrContainerFull, c.ID())
	}
	itemspkg.Pickup(e, w.itemsAt)
	e.Container = c.ID()
	e.Pos = c.Pos
	c.AddItem(e.EntityID)
	w.log.Debug("item stored",
		zap.String("container", c.ID()),
		zap.String("item", e.EntityID),
		zap.String("kind", e.Item))
	w.notifyStored(c, e)
	return nil
}

// fullFor is the host's own capacity answer (would incoming kg overflow, or
// is the container at capacity when incoming is 0) passed through the hooks.
func (w *World) fullFor(c *model.Container, incoming float64) bool {
	stored := 0.0
	for _, id := range c.Items {
		if e := w.items[id]; e != nil {
			stored += w.reportedMass(c, e)
		}
	}
	limit := c.EffectiveCapacity()
	var full bool
	if incoming > 0 {
		full = stored+incoming > limit+massEpsilon
	} else {
		full = stored >= limit-massEpsilon
	}
	return w.reportedFull(c, full)
}

func (w *World) destroyItem(e *model.ItemEntity) {
	if e == nil {
		return
	}
	if c := w.container(e.Container); c != nil {
		c.RemoveItem(e.EntityID)
	}
	itemspkg.Pickup(e, w.itemsAt)
	delete(w.items, e.EntityID)
}

func (w *World) firstOfKind(c *model.Container, kind string) *model.ItemEntity {
	for _, id := range c.Items {
		if e := w.items[id]; e != nil && e.Item == kind {
			return e
		}
	}
	return nil
}
