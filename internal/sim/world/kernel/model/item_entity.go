package model

// NoDisease marks an item without contamination.
const NoDisease uint8 = 255

// ItemEntity is a physical item. It is either stored (Container set), dropped
// in the world (Container empty, Dropped true) or detached, i.e. carried
// after a withdrawal and not yet placed anywhere.
type ItemEntity struct {
	EntityID string
	Item     string
	Name     string

	Mass         float64
	Temperature  float64
	DiseaseIdx   uint8
	DiseaseCount int
	Consumable   bool

	Container string
	Dropped   bool
	Pos       Vec3i
	Active    bool

	CreatedTick uint64
	ExpiresTick uint64
}

func (e *ItemEntity) ID() string { return e.EntityID }

// AddDisease merges a contamination dose into the item. A different disease
// only replaces the current one when it is the larger population.
func (e *ItemEntity) AddDisease(idx uint8, count int) {
	if idx == NoDisease || count <= 0 {
		return
	}
	switch {
	case e.DiseaseIdx == NoDisease || e.DiseaseCount <= 0:
		e.DiseaseIdx = idx
		e.DiseaseCount = count
	case e.DiseaseIdx == idx:
		e.DiseaseCount += count
	case count > e.DiseaseCount:
		e.DiseaseIdx = idx
		e.DiseaseCount = count - e.DiseaseCount
	default:
		e.DiseaseCount -= count
	}
}
