// Package health values positions against oracle prices and pool depths.
package health

import (
	"cosmossdk.io/math"
)

// Health is the valuation of one position. LTV is nil (undefined) when the
// position has no bond value.
type Health struct {
	BondAmount math.Int        `json:"bond_amount"`
	BondValue  math.Int        `json:"bond_value"`
	DebtAmount math.Int        `json:"debt_amount"`
	DebtValue  math.Int        `json:"debt_value"`
	LTV        *math.LegacyDec `json:"ltv,omitempty"`
}

// Zero returns the health of an empty position.
func Zero() Health {
	return Health{
		BondAmount: math.ZeroInt(),
		BondValue:  math.ZeroInt(),
		DebtAmount: math.ZeroInt(),
		DebtValue:  math.ZeroInt(),
	}
}
