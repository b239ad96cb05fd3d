package health

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"FarmLedger/internal/adapter"
	"FarmLedger/internal/asset"
)

// Calculator computes position health from live collaborator queries. Pool
// depths, bonded amounts, debts, and prices are never cached: they are
// re-queried on every computation.
type Calculator struct {
	pair      adapter.Pair
	generator adapter.Generator
	market    adapter.MoneyMarket
	oracle    adapter.Oracle

	// The engine's account at the generator and money market.
	engineAccount uuid.UUID
}

func NewCalculator(
	pair adapter.Pair,
	generator adapter.Generator,
	market adapter.MoneyMarket,
	oracle adapter.Oracle,
	engineAccount uuid.UUID,
) *Calculator {
	return &Calculator{
		pair:          pair,
		generator:     generator,
		market:        market,
		oracle:        oracle,
		engineAccount: engineAccount,
	}
}

// Compute values the position holding bondUnits/debtUnits out of the given
// totals. The secondary asset is the valuation numeraire.
func (c *Calculator) Compute(
	ctx context.Context,
	primary, secondary asset.Info,
	bondUnits, debtUnits, totalBondUnits, totalDebtUnits math.Int,
) (Health, error) {
	totalBondAmount, err := c.generator.QueryBonded(ctx, c.engineAccount, c.pair.LiquidityToken())
	if err != nil {
		return Health{}, fmt.Errorf("query bonded: %w", err)
	}
	totalDebtAmount, err := c.market.QueryDebt(ctx, c.engineAccount, secondary)
	if err != nil {
		return Health{}, fmt.Errorf("query debt: %w", err)
	}
	pool, err := c.pair.QueryPool(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("query pool: %w", err)
	}
	primaryPrice, err := c.oracle.QueryPrice(ctx, primary)
	if err != nil {
		return Health{}, fmt.Errorf("query primary price: %w", err)
	}
	secondaryPrice, err := c.oracle.QueryPrice(ctx, secondary)
	if err != nil {
		return Health{}, fmt.Errorf("query secondary price: %w", err)
	}

	totalBondValue := math.ZeroInt()
	if !pool.ShareSupply.IsZero() {
		poolValue := fairPoolValue(
			primaryPrice.MulInt(pool.PrimaryDepth).TruncateInt(),
			secondaryPrice.MulInt(pool.SecondaryDepth).TruncateInt(),
		)
		totalBondValue = poolValue.Mul(totalBondAmount).Quo(pool.ShareSupply)
	}
	totalDebtValue := secondaryPrice.MulInt(totalDebtAmount).TruncateInt()

	h := Zero()
	if !totalBondUnits.IsZero() {
		h.BondAmount = totalBondAmount.Mul(bondUnits).Quo(totalBondUnits)
		h.BondValue = totalBondValue.Mul(bondUnits).Quo(totalBondUnits)
	}
	if !totalDebtUnits.IsZero() {
		h.DebtAmount = totalDebtAmount.Mul(debtUnits).Quo(totalDebtUnits)
		h.DebtValue = totalDebtValue.Mul(debtUnits).Quo(totalDebtUnits)
	}
	if !h.BondValue.IsZero() {
		ltv := math.LegacyNewDecFromInt(h.DebtValue).Quo(math.LegacyNewDecFromInt(h.BondValue))
		h.LTV = &ltv
	}
	return h, nil
}

// fairPoolValue returns 2 * sqrt(primaryValue * secondaryValue), the
// imbalance-invariant valuation of the whole pool. The product of two
// 128-bit values needs 256 bits; the square root brings it back into the
// 128-bit domain.
func fairPoolValue(primaryValue, secondaryValue math.Int) math.Int {
	a, _ := uint256.FromBig(primaryValue.BigInt())
	b, _ := uint256.FromBig(secondaryValue.BigInt())

	product := new(uint256.Int).Mul(a, b)
	root := new(uint256.Int).Sqrt(product)
	root.Lsh(root, 1)

	return math.NewIntFromBigInt(root.ToBig())
}
