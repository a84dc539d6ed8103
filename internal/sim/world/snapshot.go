package world

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"magicstore.ai/internal/persistence/snapshot"
	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/world/kernel/model"
	"magicstore.ai/internal/sim/world/logic/ids"
)

// ExportSnapshot captures the end state of nowTick. Containers and
// items are written in id order so equal worlds produce equal snapshots.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.Tuning.TickRateHz,
		SnapshotEveryTicks: w.cfg.Tuning.SnapshotEveryTicks,
		ItemTTLTicks:       w.cfg.Tuning.ItemTTLTicks,
		ItemsDigest:        w.catalogs.Items.Digest,
		ContainersDigest:   w.catalogs.Containers.Digest,
		NextItemNum:        w.nextItemNum.Load(),
	}

	for _, c := range w.sortedContainers() {
		snap.Containers = append(snap.Containers, snapshot.ContainerV1{
			Type:        c.Type,
			Pos:         c.Pos.ToArray(),
			Items:       append([]string(nil), c.Items...),
			CapacityKg:  c.CapacityKg,
			UserMaxKg:   c.UserMaxKg,
			Replicating: c.Replicating,
		})
	}

	itemIDs := make([]string, 0, len(w.items))
	for id := range w.items {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)
	for _, id := range itemIDs {
		e := w.items[id]
		snap.Items = append(snap.Items, snapshot.ItemEntityV1{
			EntityID:     e.EntityID,
			Item:         e.Item,
			Name:         e.Name,
			Mass:         e.Mass,
			Temperature:  e.Temperature,
			DiseaseIdx:   e.DiseaseIdx,
			DiseaseCount: e.DiseaseCount,
			Consumable:   e.Consumable,
			Container:    e.Container,
			Dropped:      e.Dropped,
			Pos:          e.Pos.ToArray(),
			Active:       e.Active,
			CreatedTick:  e.CreatedTick,
			ExpiresTick:  e.ExpiresTick,
		})
	}
	return snap
}

// NewFromSnapshot builds a world from snap. Tuning in cfg wins over the
// values recorded in the snapshot except for the tick rate, which the
// snapshot's tick numbers depend on.
func NewFromSnapshot(cfg WorldConfig, cats *catalogs.Catalogs, logger *zap.Logger, snap snapshot.SnapshotV1) (*World, error) {
	if snap.Header.WorldID != "" {
		cfg.ID = snap.Header.WorldID
	}
	if snap.TickRate > 0 {
		cfg.Tuning.TickRateHz = snap.TickRate
	}
	w, err := New(cfg, cats, logger)
	if err != nil {
		return nil, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	return w, nil
}

// ImportSnapshot replaces the world state with snap and then runs the
// Restored hook on every container, which rebuilds replication templates.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	if snap.ItemsDigest != "" && snap.ItemsDigest != w.catalogs.Items.Digest {
		w.log.Warn("item catalog changed since snapshot")
	}
	if snap.ContainersDigest != "" && snap.ContainersDigest != w.catalogs.Containers.Digest {
		w.log.Warn("container catalog changed since snapshot")
	}

	containers := map[string]*model.Container{}
	for _, cv := range snap.Containers {
		c := &model.Container{
			Type:        cv.Type,
			Pos:         model.Vec3iFromArray(cv.Pos),
			Items:       append([]string(nil), cv.Items...),
			CapacityKg:  cv.CapacityKg,
			UserMaxKg:   cv.UserMaxKg,
			Replicating: cv.Replicating,
		}
		if _, dup := containers[c.ID()]; dup {
			return fmt.Errorf("snapshot: duplicate container %s", c.ID())
		}
		containers[c.ID()] = c
	}

	items := map[string]*model.ItemEntity{}
	itemsAt := map[Vec3i][]string{}
	for _, iv := range snap.Items {
		e := &model.ItemEntity{
			EntityID:     iv.EntityID,
			Item:         iv.Item,
			Name:         iv.Name,
			Mass:         iv.Mass,
			Temperature:  iv.Temperature,
			DiseaseIdx:   iv.DiseaseIdx,
			DiseaseCount: iv.DiseaseCount,
			Consumable:   iv.Consumable,
			Container:    iv.Container,
			Dropped:      iv.Dropped,
			Pos:          model.Vec3iFromArray(iv.Pos),
			Active:       iv.Active,
			CreatedTick:  iv.CreatedTick,
			ExpiresTick:  iv.ExpiresTick,
		}
		if e.Container != "" && containers[e.Container] == nil {
			return fmt.Errorf("snapshot: item %s references missing container %s", e.EntityID, e.Container)
		}
		items[e.EntityID] = e
		if e.Dropped {
			itemsAt[e.Pos] = append(itemsAt[e.Pos], e.EntityID)
		}
	}
	for id, c := range containers {
		for _, itemID := range c.Items {
			if items[itemID] == nil {
				return fmt.Errorf("snapshot: container %s references missing item %s", id, itemID)
			}
		}
	}

	w.containers = containers
	w.items = items
	w.itemsAt = itemsAt
	// Never hand out an id that is already taken.
	next := snap.NextItemNum
	for id := range items {
		if n, ok := ids.ParseItemID(id); ok {
			next = ids.MaxU64(next, n)
		}
	}
	w.nextItemNum.Store(next)
	// The snapshot holds the end state of its tick; resume with the next one.
	w.tick.Store(snap.Header.Tick + 1)
	w.engine.Reset()

	for _, c := range w.sortedContainers() {
		w.notifyRestored(c)
	}
	w.log.Info("snapshot imported",
		zap.Uint64("tick", snap.Header.Tick),
		zap.Int("containers", len(containers)),
		zap.Int("items", len(items)))
	return nil
}
