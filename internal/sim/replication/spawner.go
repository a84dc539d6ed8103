package replication

import "fmt"

// Spawner clones items from templates using the host's instantiate primitive.
type Spawner struct {
	host Host
}

func NewSpawner(host Host) *Spawner {
	return &Spawner{host: host}
}

// Spawn returns an activated item of t.Kind carrying t's temperature and
// contamination and the given mass. The item is not deposited anywhere.
func (s *Spawner) Spawn(t Template, amount float64) (MutableItem, error) {
	if t.Kind == "" {
		return nil, fmt.Errorf("spawn: %w: empty kind", ErrUnknownKind)
	}
	it, err := s.host.Instantiate(t.Kind)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", t.Kind, err)
	}
	if it == nil {
		return nil, fmt.Errorf("spawn %s: %w", t.Kind, ErrUnknownKind)
	}
	it.SetTemperature(t.Temperature)
	it.SetMass(amount)
	if t.ContaminationIdx != NoContamination && t.ContaminationCount > 0 {
		it.AddContamination(t.ContaminationIdx, t.ContaminationCount)
	}
	it.Activate()
	return it, nil
}
