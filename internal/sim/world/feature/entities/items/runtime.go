package items

import modelpkg "magicstore.ai/internal/sim/world/kernel/model"

const EntityTTLTicksDefault = 6000

type AuditFunc func(nowTick uint64, actor, action string, pos modelpkg.Vec3i, reason string, details map[string]any)

// Drop releases e into the world at pos. An existing drop of the same kind
// at pos absorbs it (mass summed, temperature mass-weighted, disease merged)
// and e is removed from the item table. It returns the id of the entity now
// holding the mass.
func Drop(
	nowTick uint64,
	ttl uint64,
	actor string,
	e *modelpkg.ItemEntity,
	pos modelpkg.Vec3i,
	reason string,
	items map[string]*modelpkg.ItemEntity,
	itemsAt map[modelpkg.Vec3i][]string,
	audit AuditFunc,
) string {
	if e == nil || e.Mass <= 0 {
		return ""
	}
	if ttl == 0 {
		ttl = EntityTTLTicksDefault
	}

	if ids := itemsAt[pos]; len(ids) > 0 {
		mergeID, ok := FindMergeTarget(ids, e.Item, func(id string) (Entry, bool) {
			x := items[id]
			if x == nil || x.EntityID == e.EntityID {
				return Entry{}, false
			}
			return Entry{ID: x.EntityID, Item: x.Item, Mass: x.Mass, ExpiresTick: x.ExpiresTick}, true
		})
		if ok {
			dst := items[mergeID]
			total := dst.Mass + e.Mass
			dst.Temperature = (dst.Temperature*dst.Mass + e.Temperature*e.Mass) / total
			dst.Mass = total
			dst.AddDisease(e.DiseaseIdx, e.DiseaseCount)
			if exp := nowTick + ttl; exp > dst.ExpiresTick {
				dst.ExpiresTick = exp
			}
			delete(items, e.EntityID)
			if audit != nil {
				audit(nowTick, actor, "ITEM_DROP", pos, reason, map[string]any{
					"entity_id": dst.EntityID,
					"item":      e.Item,
					"mass":      e.Mass,
					"merged":    true,
				})
			}
			return dst.EntityID
		}
	}

	e.Container = ""
	e.Dropped = true
	e.Pos = pos
	e.ExpiresTick = nowTick + ttl
	items[e.EntityID] = e
	itemsAt[pos] = append(itemsAt[pos], e.EntityID)
	if audit != nil {
		audit(nowTick, actor, "ITEM_DROP", pos, reason, map[string]any{
			"entity_id": e.EntityID,
			"item":      e.Item,
			"mass":      e.Mass,
		})
	}
	return e.EntityID
}

// Pickup detaches a dropped entity from its world position.
func Pickup(e *modelpkg.ItemEntity, itemsAt map[modelpkg.Vec3i][]string) {
	if e == nil || !e.Dropped {
		return
	}
	ids := RemoveID(itemsAt[e.Pos], e.EntityID)
	if len(ids) == 0 {
		delete(itemsAt, e.Pos)
	} else {
		itemsAt[e.Pos] = ids
	}
	e.Dropped = false
	e.ExpiresTick = 0
}

// Expire removes every dropped entity whose TTL has passed, in id order.
func Expire(
	nowTick uint64,
	items map[string]*modelpkg.ItemEntity,
	itemsAt map[modelpkg.Vec3i][]string,
	audit AuditFunc,
) []string {
	all := make([]string, 0)
	for _, ids := range itemsAt {
		all = append(all, ids...)
	}
	expired := SortedExpired(all, func(id string) (Entry, bool) {
		e := items[id]
		if e == nil {
			return Entry{}, false
		}
		return Entry{ID: e.EntityID, Item: e.Item, Mass: e.Mass, ExpiresTick: e.ExpiresTick}, true
	}, nowTick)
	for _, id := range expired {
		e := items[id]
		Pickup(e, itemsAt)
		delete(items, id)
		if audit != nil {
			audit(nowTick, "WORLD", "ITEM_DESPAWN", e.Pos, "EXPIRED", map[string]any{
				"entity_id": id,
				"item":      e.Item,
				"mass":      e.Mass,
			})
		}
	}
	return expired
}
