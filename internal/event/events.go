package event

import (
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/health"
	"FarmLedger/internal/state"
)

// PositionChanged is emitted by the health assertion at the end of every
// user-initiated action.
type PositionChanged struct {
	User      uuid.UUID       `json:"user"`
	BondUnits math.Int        `json:"bond_units"`
	DebtUnits math.Int        `json:"debt_units"`
	BondValue math.Int        `json:"bond_value"`
	DebtValue math.Int        `json:"debt_value"`
	LTV       *math.LegacyDec `json:"ltv,omitempty"`
}

// Harvested is emitted after a reward reinvestment.
type Harvested struct {
	FeeAmount            math.Int `json:"fee_amount"`
	RewardAmountAfterFee math.Int `json:"reward_amount_after_fee"`
}

// Liquidated is emitted after a position is closed out by a liquidator.
type Liquidated struct {
	Liquidator uuid.UUID       `json:"liquidator"`
	User       uuid.UUID       `json:"user"`
	BondUnits  math.Int        `json:"bond_units"`
	DebtUnits  math.Int        `json:"debt_units"`
	BondValue  math.Int        `json:"bond_value"`
	DebtValue  math.Int        `json:"debt_value"`
	LTV        *math.LegacyDec `json:"ltv,omitempty"`
}

// PositionSnapshot mirrors the snapshot store row for off-chain indexers.
// It is a legacy surface: nothing in the engine reads it back.
type PositionSnapshot struct {
	User     uuid.UUID      `json:"user"`
	Sequence int64          `json:"sequence"`
	Position state.Position `json:"position"`
	Health   health.Health  `json:"health"`
}

// ConfigUpdated is emitted when governance replaces the config.
type ConfigUpdated struct {
	Config state.Config `json:"config"`
}
