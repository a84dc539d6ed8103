package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"magicstore.ai/internal/persistence/snapshot"
	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/replication"
	"magicstore.ai/internal/sim/tuning"
	itemspkg "magicstore.ai/internal/sim/world/feature/entities/items"
	"magicstore.ai/internal/sim/world/kernel/model"
	"magicstore.ai/internal/sim/world/logic/ids"
)

type Vec3i = model.Vec3i

var (
	ErrNoContainer      = errors.New("no such container")
	ErrNoItem           = errors.New("no such item")
	ErrContainerFull    = errors.New("container full")
	ErrItemStored       = errors.New("item already stored")
	ErrUnknownContainer = errors.New("unknown container category")
	ErrOccupied         = errors.New("position occupied")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrStopped          = errors.New("world stopped")
)

type WorldConfig struct {
	ID     string
	Tuning tuning.Tuning
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine; other
// goroutines go through Submit and the observer channels.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	log      *zap.Logger

	tick atomic.Uint64
	// published is the config as last applied, readable from any goroutine.
	published atomic.Pointer[WorldConfig]
	metrics   atomic.Pointer[WorldMetrics]

	containers map[string]*model.Container
	items      map[string]*model.ItemEntity
	itemsAt    map[Vec3i][]string

	nextItemNum atomic.Uint64

	engine *replication.Engine
	hooks  []replication.Hooks

	inbox         chan Op
	reconfig      chan tuning.Tuning
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	admin         chan adminSnapshotReq
	stop          chan struct{}
	stopOnce      sync.Once
	done          chan struct{}

	streams map[string]*observerStream

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, logger *zap.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &World{
		cfg:           cfg,
		catalogs:      cats,
		log:           logger.With(zap.String("world", cfg.ID)),
		containers:    map[string]*model.Container{},
		items:         map[string]*model.ItemEntity{},
		itemsAt:       map[Vec3i][]string{},
		inbox:         make(chan Op, 1024),
		reconfig:      make(chan tuning.Tuning, 4),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerLeave: make(chan string, 64),
		admin:         make(chan adminSnapshotReq, 8),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		streams:       map[string]*observerStream{},
	}
	w.engine = replication.New(hostAdapter{w: w}, cfg.Tuning.Replication.Config(),
		replication.WithLogger(w.log.Named("replication")),
		replication.WithAudit(w.auditReplication),
	)
	w.RegisterObserver(w.engine.Hooks())
	w.publishConfig()
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) CurrentTick() uint64                  { return w.tick.Load() }
func (w *World) Catalogs() *catalogs.Catalogs         { return w.catalogs }
func (w *World) Engine() *replication.Engine          { return w.engine }
func (w *World) Logger() *zap.Logger                  { return w.log }
func (w *World) ID() string                           { return w.cfg.ID }
func (w *World) now() time.Duration                   { return w.timeAt(w.tick.Load()) }
func (w *World) itemTTL() uint64                      { return w.cfg.Tuning.ItemTTLTicks }
func (w *World) newItemID() string                    { return ids.ItemID(w.nextItemNum.Add(1)) }
func (w *World) container(id string) *model.Container { return w.containers[id] }

func (w *World) timeAt(tick uint64) time.Duration {
	return time.Duration(tick) * time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
}

func (w *World) refillDue(tick uint64) bool {
	return tick%uint64(w.cfg.Tuning.Replication.RefillEveryTicks) == 0
}

func (w *World) snapshotDue(tick uint64) bool {
	n := w.cfg.Tuning.SnapshotEveryTicks
	return n > 0 && tick != 0 && tick%uint64(n) == 0
}

// Config returns the world config as last applied. Safe for any goroutine.
func (w *World) Config() WorldConfig {
	if c := w.published.Load(); c != nil {
		return *c
	}
	return WorldConfig{}
}

func (w *World) publishConfig() {
	c := w.cfg
	w.published.Store(&c)
}

// RegisterObserver adds h to the hook chain. Hooks run in registration order;
// Mass and Full results are threaded through the chain.
func (w *World) RegisterObserver(h replication.Hooks) {
	if h == nil {
		return
	}
	w.hooks = append(w.hooks, h)
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(w.done)
	defer w.closeStreams()

	var pending []Op

	for {
		select {
		case <-ctx.Done():
			w.failPending(pending, ctx.Err())
			return ctx.Err()
		case <-w.stop:
			w.failPending(pending, ErrStopped)
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			w.handleAdminSnapshot(req)
		case t := <-w.reconfig:
			if err := w.ApplyTuning(t); err != nil {
				w.log.Warn("tuning rejected", zap.Error(err))
			}
		case op := <-w.inbox:
			pending = append(pending, op)
		case <-ticker.C:
			w.step(pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Submit queues op for the next tick and waits for its result. Run must be
// called exactly once for Submit to make progress.
func (w *World) Submit(ctx context.Context, op Op) (OpResult, error) {
	op.Resp = make(chan OpResult, 1)
	select {
	case w.inbox <- op:
	case <-ctx.Done():
		return OpResult{}, ctx.Err()
	case <-w.stop:
		return OpResult{}, ErrStopped
	case <-w.done:
		return OpResult{}, ErrStopped
	}
	select {
	case res := <-op.Resp:
		return res, res.Err
	case <-ctx.Done():
		return OpResult{}, ctx.Err()
	case <-w.stop:
		return OpResult{}, ErrStopped
	case <-w.done:
		return OpResult{}, ErrStopped
	}
}

// SetReplicationConfig hands a reloaded tuning to the loop goroutine.
func (w *World) SetReplicationConfig(ctx context.Context, t tuning.Tuning) error {
	select {
	case w.reconfig <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return ErrStopped
	}
}

// ApplyTuning swaps the replication tunables and the per-tick cadences. The
// tick rate itself is fixed for the lifetime of the loop.
func (w *World) ApplyTuning(t tuning.Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := w.engine.SetConfig(t.Replication.Config()); err != nil {
		return err
	}
	if t.TickRateHz != w.cfg.Tuning.TickRateHz {
		w.log.Warn("tick_rate_hz change ignored until restart",
			zap.Int("current", w.cfg.Tuning.TickRateHz), zap.Int("requested", t.TickRateHz))
		t.TickRateHz = w.cfg.Tuning.TickRateHz
	}
	w.cfg.Tuning = t
	w.publishConfig()
	w.log.Info("tuning applied",
		zap.Int("low_water", t.Replication.LowWater),
		zap.Int("high_water", t.Replication.HighWater),
		zap.Bool("consumables_uncapped", t.Replication.ConsumablesUncapped))
	return nil
}

func (w *World) failPending(ops []Op, err error) {
	for _, op := range ops {
		if op.Resp != nil {
			op.Resp <- OpResult{Err: err}
		}
	}
}

func (w *World) step(ops []Op) {
	start := time.Now()
	nowTick := w.tick.Load()

	// Ops apply in receive order, before any system runs.
	recorded := make([]RecordedOp, 0, len(ops))
	for _, op := range ops {
		res := w.apply(op)
		res.Tick = nowTick
		if op.Resp != nil {
			op.Resp <- res
		}
		recorded = append(recorded, recordOp(op, res))
	}

	if w.refillDue(nowTick) {
		w.engine.Tick(w.timeAt(nowTick))
	}
	itemspkg.Expire(nowTick, w.items, w.itemsAt, w.auditEvent)

	w.broadcastContents(nowTick)

	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Ops: recorded, Digest: w.stateDigest(nowTick)}); err != nil {
			w.log.Warn("tick log write failed", zap.Error(err))
		}
	}

	if w.snapshotSink != nil && w.snapshotDue(nowTick) {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			w.log.Warn("snapshot dropped, sink busy", zap.Uint64("tick", nowTick))
		}
	}

	w.publishMetrics(nowTick, time.Since(start))
	w.tick.Add(1)
}

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. It is meant for tests and replays.
func (w *World) StepOnce(ops ...Op) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(ops)
	return tick, w.stateDigest(tick)
}

func (w *World) sortedContainers() []*model.Container {
	out := make([]*model.Container, 0, len(w.containers))
	for _, c := range w.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
