package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"magicstore.ai/internal/sim/replication"
)

type Tuning struct {
	TickRateHz         int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	ItemTTLTicks       uint64 `yaml:"item_ttl_ticks" json:"item_ttl_ticks"`

	Replication Replication `yaml:"replication" json:"replication"`
}

type Replication struct {
	// RefillEveryTicks is the scheduler cadence; at the default 5Hz, 5 ticks
	// is one simulated second.
	RefillEveryTicks    int     `yaml:"refill_every_ticks" json:"refill_every_ticks"`
	LowWater            int     `yaml:"low_water" json:"low_water"`
	HighWater           int     `yaml:"high_water" json:"high_water"`
	CooldownMs          int     `yaml:"cooldown_ms" json:"cooldown_ms"`
	UnlimitedQuantity   float64 `yaml:"unlimited_quantity" json:"unlimited_quantity"`
	RefillUnitMass      float64 `yaml:"refill_unit_mass" json:"refill_unit_mass"`
	ConsumablesUncapped bool    `yaml:"consumables_uncapped" json:"consumables_uncapped"`
}

func Defaults() Tuning {
	rc := replication.DefaultConfig()
	return Tuning{
		TickRateHz:         5,
		SnapshotEveryTicks: 3000,
		ItemTTLTicks:       6000,
		Replication: Replication{
			RefillEveryTicks:    5,
			LowWater:            rc.LowWater,
			HighWater:           rc.HighWater,
			CooldownMs:          int(rc.Cooldown / time.Millisecond),
			UnlimitedQuantity:   rc.UnlimitedQuantity,
			RefillUnitMass:      rc.RefillUnitMass,
			ConsumablesUncapped: rc.ConsumablesUncapped,
		},
	}
}

// Load reads a tuning file on top of Defaults, so omitted keys keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in 1..1000, got %d", t.TickRateHz)
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.Replication.RefillEveryTicks <= 0 {
		return fmt.Errorf("replication.refill_every_ticks must be > 0")
	}
	if err := t.Replication.Config().Validate(); err != nil {
		return fmt.Errorf("replication: %w", err)
	}
	return nil
}

// Config converts the YAML section into engine tunables.
func (r Replication) Config() replication.Config {
	return replication.Config{
		LowWater:            r.LowWater,
		HighWater:           r.HighWater,
		Cooldown:            time.Duration(r.CooldownMs) * time.Millisecond,
		UnlimitedQuantity:   r.UnlimitedQuantity,
		RefillUnitMass:      r.RefillUnitMass,
		ConsumablesUncapped: r.ConsumablesUncapped,
	}
}
