package state

import (
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
)

// UnitScale is the number of units minted per underlying token when the
// aggregate pool is empty: the first bond of x liquidity tokens mints
// x * 10^6 bond units, and the first borrow of x mints x * 10^6 debt units.
// Subsequent mints are proportional.
var UnitScale = math.NewInt(1_000_000)

// RewardAccount keys the scratch position the harvest pipeline reinvests
// through. Its bond and debt units never change; only its unlocked ledger
// is used. No real user can hold the nil UUID.
var RewardAccount = uuid.Nil

// State holds the engine-wide aggregates.
type State struct {
	// Scaled share count of bonded liquidity tokens across all positions.
	TotalBondUnits math.Int `json:"total_bond_units"`
	// Scaled share count of secondary-asset debt across all positions.
	TotalDebtUnits math.Int `json:"total_debt_units"`
	// Rewards withdrawn from the generator, awaiting reinvestment.
	PendingRewards asset.List `json:"pending_rewards"`
}

func NewState() *State {
	return &State{
		TotalBondUnits: math.ZeroInt(),
		TotalDebtUnits: math.ZeroInt(),
	}
}

func (s *State) clone() *State {
	return &State{
		TotalBondUnits: s.TotalBondUnits,
		TotalDebtUnits: s.TotalDebtUnits,
		PendingRewards: s.PendingRewards.Clone(),
	}
}

// Position is one user's share of the aggregates plus the assets held for
// the user outside the AMM pool.
type Position struct {
	BondUnits math.Int   `json:"bond_units"`
	DebtUnits math.Int   `json:"debt_units"`
	Unlocked  asset.List `json:"unlocked_assets"`
}

func NewPosition() *Position {
	return &Position{
		BondUnits: math.ZeroInt(),
		DebtUnits: math.ZeroInt(),
	}
}

// IsEmpty reports whether the position can be deleted: no units and no
// nonzero unlocked amount.
func (p *Position) IsEmpty() bool {
	return p.BondUnits.IsZero() && p.DebtUnits.IsZero() && p.Unlocked.IsZero()
}

func (p *Position) clone() *Position {
	return &Position{
		BondUnits: p.BondUnits,
		DebtUnits: p.DebtUnits,
		Unlocked:  p.Unlocked.Clone(),
	}
}
