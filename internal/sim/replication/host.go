package replication

import (
	"errors"
	"time"
)

// NoContamination marks a template or item that carries no contamination.
const NoContamination uint8 = 255

// ErrUnknownKind is returned (wrapped) by Host.Instantiate when a kind has no
// spawnable definition, e.g. it was removed from the catalog after capture.
var ErrUnknownKind = errors.New("unknown item kind")

// Item is the host-side view of a single item entity.
type Item interface {
	ID() string
	Kind() string
	Name() string
	Temperature() float64
	Contamination() (idx uint8, count int)
	Consumable() bool
}

// MutableItem is a freshly instantiated item that has not been deposited yet.
type MutableItem interface {
	Item
	SetTemperature(v float64)
	SetMass(v float64)
	AddContamination(idx uint8, count int)
	Activate()
}

// Container is the host-side view of a storage entity. Replicating is the only
// attribute the host must persist on the core's behalf.
type Container interface {
	ID() string
	Category() string
	Items() []Item
	Replicable() bool
	FlowMetered() bool
	Replicating() bool
	SetReplicating(v bool)
}

// AdjustableCapacity is implemented by containers whose capacity (and the
// user-facing capacity slider) can be raised.
type AdjustableCapacity interface {
	MaxCapacity() float64
	SetCapacity(v float64)
	SetUserMaxCapacity(v float64)
}

// Host supplies the primitives the engine calls into. All methods are invoked
// from the host's update goroutine.
type Host interface {
	// Containers returns the live container set.
	Containers() []Container
	// Instantiate creates an inactive item of kind, not yet placed anywhere.
	Instantiate(kind string) (MutableItem, error)
	// Store deposits it into c through the normal deposit path (the host calls
	// Hooks.Stored afterwards).
	Store(c Container, it Item) error
	// DestroyItem removes it from the simulation without dropping it anywhere.
	DestroyItem(it Item)
	// Now is the current simulated time.
	Now() time.Duration
}

// Hooks is the observer contract the host invokes at fixed points of a
// container's lifecycle. Mass and Full receive the host's own answer and
// return the one to report.
type Hooks interface {
	Stored(c Container, it Item)
	Mass(c Container, it Item, mass float64) float64
	Full(c Container, full bool) bool
	CleaningUp(c Container)
	Restored(c Container)
}

// AuditFunc receives domain events. details may be nil.
type AuditFunc func(now time.Duration, action, containerID, kind string, details map[string]any)

const (
	AuditTemplateCapture = "TEMPLATE_CAPTURE"
	AuditTemplateRebuild = "TEMPLATE_REBUILD"
	AuditRefill          = "REFILL"
	AuditRefillSkip      = "REFILL_SKIP"
	AuditPurge           = "PURGE"
)
