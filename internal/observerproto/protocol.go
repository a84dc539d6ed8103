package observerproto

import "magicstore.ai/internal/sim/world/feature/storage/contents"

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the container filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Containers limits the stream to these container ids. Empty means every
	// container shown in the UI.
	Containers []string `json:"containers,omitempty"`
	MaxRows    int      `json:"max_rows,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`

	ItemPalette      []string `json:"item_palette"`
	ContainerPalette []string `json:"container_palette"`
}

type WorldParams struct {
	TickRateHz       int  `json:"tick_rate_hz"`
	RefillEveryTicks int  `json:"refill_every_ticks"`
	LowWater         int  `json:"low_water"`
	HighWater        int  `json:"high_water"`
	CooldownMs       int  `json:"cooldown_ms"`
	Uncapped         bool `json:"consumables_uncapped"`
}

// Server -> Client. Sent every tick.
type ContentsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Containers []ContainerContents `json:"containers"`
}

type ContainerContents struct {
	ID          string           `json:"id"`
	Category    string           `json:"category"`
	Replicating bool             `json:"replicating"`
	Full        bool             `json:"full"`
	Summary     contents.Summary `json:"summary"`
	Lines       []string         `json:"lines"`
}
