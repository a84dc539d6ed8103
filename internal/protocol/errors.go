package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy    = "E_WORLD_BUSY"
	ErrWorldStopped = "E_WORLD_STOPPED"

	// Storage layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoContainer   = "E_NO_CONTAINER"
	ErrNoItem        = "E_NO_ITEM"
	ErrContainerFull = "E_CONTAINER_FULL"
	ErrConflict      = "E_CONFLICT"
	ErrUnknownKind   = "E_UNKNOWN_KIND"
	ErrTimeout       = "E_TIMEOUT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrWorldStopped:    {},
	ErrBadRequest:      {},
	ErrNoContainer:     {},
	ErrNoItem:          {},
	ErrContainerFull:   {},
	ErrConflict:        {},
	ErrUnknownKind:     {},
	ErrTimeout:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
