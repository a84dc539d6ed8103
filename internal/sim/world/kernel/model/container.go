package model

import (
	"magicstore.ai/internal/sim/world/logic/ids"
)

// Container is the authoritative state of a storage building. Items holds
// item entity ids in deposit order; the entities themselves live in the
// world's item table.
type Container struct {
	Type string
	Pos  Vec3i

	Items []string

	CapacityKg float64
	UserMaxKg  float64

	// Replicating is set on the first accepted deposit and persisted in
	// snapshots. Templates are not; they are rebuilt from Items on load.
	Replicating bool
}

func (c *Container) ID() string { return ContainerID(c.Type, c.Pos) }

func ContainerID(typ string, pos Vec3i) string {
	return ids.ContainerID(typ, pos.X, pos.Y, pos.Z)
}

func ParseContainerID(id string) (typ string, pos Vec3i, ok bool) {
	typ, x, y, z, ok := ids.ParseContainerID(id)
	if !ok {
		return "", Vec3i{}, false
	}
	return typ, Vec3i{X: x, Y: y, Z: z}, true
}

// EffectiveCapacity is the lower of the physical capacity and the user's
// slider.
func (c *Container) EffectiveCapacity() float64 {
	if c.UserMaxKg > 0 && c.UserMaxKg < c.CapacityKg {
		return c.UserMaxKg
	}
	return c.CapacityKg
}

func (c *Container) HasItem(id string) bool {
	for _, x := range c.Items {
		if x == id {
			return true
		}
	}
	return false
}

func (c *Container) AddItem(id string) {
	if id == "" || c.HasItem(id) {
		return
	}
	c.Items = append(c.Items, id)
}

func (c *Container) RemoveItem(id string) bool {
	for i, x := range c.Items {
		if x != id {
			continue
		}
		copy(c.Items[i:], c.Items[i+1:])
		c.Items = c.Items[:len(c.Items)-1]
		return true
	}
	return false
}
