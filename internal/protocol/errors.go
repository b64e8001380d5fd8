package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrSchemaInvalid   = "E_SCHEMA_INVALID"
	ErrUnknownType     = "E_UNKNOWN_TYPE"
	ErrVersionMismatch = "E_VERSION_MISMATCH"

	// Data availability.
	ErrDataUnavailable = "E_DATA_UNAVAILABLE"
	ErrMapUnresolved   = "E_MAP_UNRESOLVED"

	// Navigation layer.
	ErrNavBusy       = "E_NAV_BUSY"
	ErrNavUnroutable = "E_NAV_UNROUTABLE"
	ErrMoveFailed    = "E_MOVE_FAILED"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrSchemaInvalid:   {},
	ErrUnknownType:     {},
	ErrVersionMismatch: {},
	ErrDataUnavailable: {},
	ErrMapUnresolved:   {},
	ErrNavBusy:         {},
	ErrNavUnroutable:   {},
	ErrMoveFailed:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
