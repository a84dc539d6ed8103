// Package replication turns designated host containers into inexhaustible
// sources of whatever kinds have been deposited into them.
//
// The first item of a kind stored in an accepted container becomes that kind's
// template. From then on quantity reads of non-consumable kinds report an
// unlimited amount, the container never reports itself full, and a periodic
// scheduler tops consumable kinds back up to a target count by cloning the
// template. Destroying the container purges its templates and its contents
// without releasing anything into the world.
//
// Everything here runs on the host's update goroutine; nothing is locked.
package replication

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// UnboundedCapacity is written to containers' capacity once they replicate.
const UnboundedCapacity = math.MaxFloat32

type Config struct {
	// Consumable kinds below LowWater live items are refilled up to HighWater.
	LowWater  int
	HighWater int
	// Cooldown is the minimum simulated time between refills of one
	// (container, kind) pair.
	Cooldown time.Duration
	// UnlimitedQuantity is the mass reported for virtualized items.
	UnlimitedQuantity float64
	// RefillUnitMass is the mass of each spawned consumable unit.
	RefillUnitMass float64
	// ConsumablesUncapped makes a replicating container that only holds
	// consumable kinds report "not full" as well.
	ConsumablesUncapped bool
}

func DefaultConfig() Config {
	return Config{
		LowWater:            10,
		HighWater:           20,
		Cooldown:            5 * time.Second,
		UnlimitedQuantity:   100000,
		RefillUnitMass:      1,
		ConsumablesUncapped: true,
	}
}

func (c Config) Validate() error {
	if c.LowWater <= 0 {
		return fmt.Errorf("low_water must be > 0")
	}
	if c.HighWater < c.LowWater {
		return fmt.Errorf("high_water (%d) must be >= low_water (%d)", c.HighWater, c.LowWater)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0")
	}
	if c.UnlimitedQuantity <= 0 {
		return fmt.Errorf("unlimited_quantity must be > 0")
	}
	if c.RefillUnitMass <= 0 {
		return fmt.Errorf("refill_unit_mass must be > 0")
	}
	return nil
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithAudit(fn AuditFunc) Option {
	return func(e *Engine) { e.audit = fn }
}

// WithFilter replaces the default kind filter (Container.Replicable).
func WithFilter(fn func(Container) bool) Option {
	return func(e *Engine) {
		if fn != nil {
			e.filter = fn
		}
	}
}

// Engine owns the template registry, the refill scheduler and the reentrancy
// guard shared by both.
type Engine struct {
	host   Host
	cfg    Config
	log    *zap.Logger
	audit  AuditFunc
	filter func(Container) bool

	registry  *Registry
	spawner   *Spawner
	hooks     *Interceptor
	scheduler *Scheduler

	// spawning is held while the scheduler deposits replacement items.
	spawning bool
}

func New(host Host, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		host:     host,
		cfg:      cfg,
		log:      zap.NewNop(),
		filter:   func(c Container) bool { return c.Replicable() },
		registry: NewRegistry(),
		spawner:  NewSpawner(host),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.hooks = &Interceptor{e: e}
	e.scheduler = &Scheduler{e: e, timers: timerTable{}}
	return e
}

func (e *Engine) Hooks() *Interceptor     { return e.hooks }
func (e *Engine) Scheduler() *Scheduler   { return e.scheduler }
func (e *Engine) Registry() *Registry     { return e.registry }
func (e *Engine) Spawner() *Spawner       { return e.spawner }
func (e *Engine) Config() Config          { return e.cfg }
func (e *Engine) Tick(now time.Duration)  { e.scheduler.Tick(now) }
func (e *Engine) Spawning() bool          { return e.spawning }
func (e *Engine) SetAudit(fn AuditFunc)   { e.audit = fn }
func (e *Engine) SetLogger(l *zap.Logger) { WithLogger(l)(e) }

// SetConfig swaps the tunables. Invalid configs are rejected and the previous
// one stays in effect.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// Reset forgets all templates and refill timers. Hosts call it before
// replacing their state wholesale; Restored then rebuilds what is needed.
func (e *Engine) Reset() {
	e.registry.ClearAll()
	e.scheduler.Reset()
}

func (e *Engine) accepts(c Container) bool {
	return c != nil && e.filter(c)
}

func (e *Engine) emit(now time.Duration, action, containerID, kind string, details map[string]any) {
	if e.audit == nil {
		return
	}
	e.audit(now, action, containerID, kind, details)
}
