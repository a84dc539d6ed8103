package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldID         string         `json:"world_id"`
	Tick            uint64         `json:"tick"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	Items      DigestRef `json:"items"`
	Containers DigestRef `json:"containers"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// OP (client -> server). One world mutation; see world.Op for which fields
// each kind reads.
type OpMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	RequestID       string  `json:"request_id"`
	Kind            string  `json:"kind"`
	Category        string  `json:"category,omitempty"`
	Container       string  `json:"container,omitempty"`
	Item            string  `json:"item,omitempty"`
	Pos             [3]int  `json:"pos"`
	Mass            float64 `json:"mass,omitempty"`
}

// OP_RESULT (server -> client)
type OpResultMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	RequestID       string  `json:"request_id"`
	Tick            uint64  `json:"tick"`
	OK              bool    `json:"ok"`
	ID              string  `json:"id,omitempty"`
	Mass            float64 `json:"mass,omitempty"`
	Code            string  `json:"code,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// ERROR (server -> client) for messages that could not be routed.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
