package event

import (
	"github.com/google/uuid"
)

// Type discriminates event payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypePositionChanged
	TypeHarvested
	TypeLiquidated
	TypePositionSnapshot
	TypeConfigUpdated
)

func (t Type) String() string {
	switch t {
	case TypePositionChanged:
		return "position_changed"
	case TypeHarvested:
		return "harvested"
	case TypeLiquidated:
		return "liquidated"
	case TypePositionSnapshot:
		return "position_snapshot"
	case TypeConfigUpdated:
		return "config_updated"
	default:
		return "unknown"
	}
}

// Attribute is one diagnostic key/value pair. Attribute blocks accompany
// every sub-operation for post-mortem analysis; they are not part of the
// engine's contract.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Envelope wraps every outbound event.
type Envelope struct {
	// Monotonic action sequence assigned by the engine.
	Sequence int64 `json:"sequence"`

	Type Type `json:"type"`

	// The affected user, nil for system-wide events.
	User *uuid.UUID `json:"user,omitempty"`

	// Typed event payload; one of the structs in events.go.
	Payload any `json:"payload,omitempty"`

	// Diagnostic attribute blocks from the action's sub-operations.
	Attributes []Attribute `json:"attributes,omitempty"`
}
