package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
)

// stateDigest hashes the authoritative state in a fixed order. Two worlds
// fed the same ops produce the same digest tick for tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	writeU64(h, tmp, nowTick)

	for _, c := range w.sortedContainers() {
		h.Write([]byte(c.ID()))
		writeF64(h, tmp, c.CapacityKg)
		writeF64(h, tmp, c.UserMaxKg)
		h.Write([]byte{boolByte(c.Replicating)})
		writeU64(h, tmp, uint64(len(c.Items)))
		for _, id := range c.Items {
			h.Write([]byte(id))
		}
	}

	ids := make([]string, 0, len(w.items))
	for id := range w.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := w.items[id]
		h.Write([]byte(e.EntityID))
		h.Write([]byte(e.Item))
		writeF64(h, tmp, e.Mass)
		writeF64(h, tmp, e.Temperature)
		h.Write([]byte{e.DiseaseIdx, boolByte(e.Dropped), boolByte(e.Active)})
		writeU64(h, tmp, uint64(e.DiseaseCount))
		h.Write([]byte(e.Container))
		writeU64(h, tmp, e.ExpiresTick)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, tmp [8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeF64(h hash.Hash, tmp [8]byte, v float64) {
	writeU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
