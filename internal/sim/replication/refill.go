package replication

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// timerTable records the last refill time per container id and kind.
type timerTable map[string]map[string]time.Duration

func (t timerTable) last(containerID, kind string) (time.Duration, bool) {
	at, ok := t[containerID][kind]
	return at, ok
}

func (t timerTable) set(containerID, kind string, at time.Duration) {
	m := t[containerID]
	if m == nil {
		m = map[string]time.Duration{}
		t[containerID] = m
	}
	m[kind] = at
}

// Scheduler tops consumable kinds back up on a coarse, host-driven cadence.
type Scheduler struct {
	e      *Engine
	timers timerTable
}

// LastRefill reports when (container, kind) was last refilled.
func (s *Scheduler) LastRefill(containerID, kind string) (time.Duration, bool) {
	return s.timers.last(containerID, kind)
}

// Evict drops all timer rows of a container.
func (s *Scheduler) Evict(containerID string) {
	delete(s.timers, containerID)
}

// TrackedContainers is the number of containers with timer rows.
func (s *Scheduler) TrackedContainers() int { return len(s.timers) }

// Reset drops every timer row.
func (s *Scheduler) Reset() { s.timers = timerTable{} }

// Tick runs one scheduler pass at simulated time now. At most one
// (container, kind) pair is refilled per call; remaining deficits are picked
// up by later ticks.
func (s *Scheduler) Tick(now time.Duration) {
	e := s.e
	if e.spawning {
		return
	}
	containers := e.host.Containers()
	sort.Slice(containers, func(i, j int) bool { return containers[i].ID() < containers[j].ID() })

	for _, c := range containers {
		if c == nil || !c.Replicating() || !e.accepts(c) || c.FlowMetered() {
			continue
		}
		e.hooks.ensure(c)
		if e.registry.Len(c.ID()) == 0 {
			continue
		}
		if s.refillContainer(c, now) {
			return
		}
	}
}

// refillContainer refills the first eligible consumable kind of c and reports
// whether it did.
func (s *Scheduler) refillContainer(c Container, now time.Duration) bool {
	e := s.e
	cfg := e.cfg
	items := c.Items()

	for _, t := range e.registry.Templates(c.ID()) {
		count, consumable := countKind(items, t.Kind)
		if count == 0 || !consumable {
			continue
		}
		if last, ok := s.timers.last(c.ID(), t.Kind); ok && now-last < cfg.Cooldown {
			continue
		}
		if count >= cfg.LowWater {
			continue
		}
		deficit := cfg.HighWater - count
		stored := s.inject(c, t, deficit, now)
		s.timers.set(c.ID(), t.Kind, now)

		e.log.Info("refilled consumable",
			zap.String("container", c.ID()),
			zap.String("kind", t.Kind),
			zap.Int("had", count),
			zap.Int("requested", deficit),
			zap.Int("stored", stored))
		e.emit(now, AuditRefill, c.ID(), t.Kind, map[string]any{
			"had":       count,
			"requested": deficit,
			"stored":    stored,
		})
		return true
	}
	return false
}

// inject spawns n clones of t into c while holding the reentrancy guard and
// returns how many were stored.
func (s *Scheduler) inject(c Container, t Template, n int, now time.Duration) int {
	e := s.e
	e.spawning = true
	defer func() { e.spawning = false }()

	stored := 0
	for i := 0; i < n; i++ {
		it, err := e.spawner.Spawn(t, e.cfg.RefillUnitMass)
		if err != nil {
			e.log.Warn("refill spawn failed",
				zap.String("container", c.ID()),
				zap.String("kind", t.Kind),
				zap.Error(err))
			e.emit(now, AuditRefillSkip, c.ID(), t.Kind, map[string]any{"reason": err.Error()})
			continue
		}
		if err := e.host.Store(c, it); err != nil {
			e.log.Warn("refill deposit failed",
				zap.String("container", c.ID()),
				zap.String("kind", t.Kind),
				zap.Error(err))
			e.emit(now, AuditRefillSkip, c.ID(), t.Kind, map[string]any{"reason": err.Error()})
			e.host.DestroyItem(it)
			continue
		}
		stored++
	}
	return stored
}

// countKind counts live items of kind and reports whether the first one found
// is consumable.
func countKind(items []Item, kind string) (int, bool) {
	count := 0
	consumable := false
	for _, it := range items {
		if it == nil || it.Kind() != kind {
			continue
		}
		if count == 0 {
			consumable = it.Consumable()
		}
		count++
	}
	return count, consumable
}
