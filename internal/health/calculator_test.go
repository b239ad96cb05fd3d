package health_test

import (
	"context"
	"testing"

	"cosmossdk.io/math"

	"FarmLedger/internal/adapter/mock"
	"FarmLedger/internal/asset"
	"FarmLedger/internal/health"
)

var (
	primary   = asset.Fungible("mir0000")
	secondary = asset.Intrinsic("uusd")
	liqToken  = asset.Fungible("lp0000")
)

type fixture struct {
	pair   *mock.Pair
	gen    *mock.Generator
	market *mock.MoneyMarket
	calc   *health.Calculator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pair := mock.NewPair(primary, secondary, liqToken, asset.ZeroTax())
	pair.Seed(1_000_000, 10_000_000, 1_000_000)

	gen := mock.NewGenerator()
	market := mock.NewMoneyMarket()

	oracle := mock.NewOracle()
	oracle.SetPrice(primary, math.LegacyNewDec(10))
	oracle.SetPrice(secondary, math.LegacyNewDec(1))

	return &fixture{
		pair:   pair,
		gen:    gen,
		market: market,
		calc:   health.NewCalculator(pair, gen, market, oracle, mock.EngineStaker()),
	}
}

func (f *fixture) compute(t *testing.T, bondUnits, debtUnits, totalBond, totalDebt int64) health.Health {
	t.Helper()
	h, err := f.calc.Compute(context.Background(), primary, secondary,
		math.NewInt(bondUnits), math.NewInt(debtUnits),
		math.NewInt(totalBond), math.NewInt(totalDebt))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	return h
}

func TestComputeValuesProRataShare(t *testing.T) {
	f := newFixture(t)
	f.gen.Bond(context.Background(), liqToken, math.NewInt(100_000))
	f.market.SetDebt(mock.EngineStaker(), math.NewInt(1_000_000))

	// Fair pool value: 2*sqrt(10_000_000 * 10_000_000) = 20_000_000.
	// 100_000 of 1_000_000 shares are bonded, the user holds half the units.
	h := f.compute(t, 50, 1, 100, 2)

	if !h.BondAmount.Equal(math.NewInt(50_000)) {
		t.Fatalf("bond amount = %s, want 50000", h.BondAmount)
	}
	if !h.BondValue.Equal(math.NewInt(1_000_000)) {
		t.Fatalf("bond value = %s, want 1000000", h.BondValue)
	}
	if !h.DebtValue.Equal(math.NewInt(500_000)) {
		t.Fatalf("debt value = %s, want 500000", h.DebtValue)
	}
	if h.LTV == nil || !h.LTV.Equal(math.LegacyMustNewDecFromStr("0.5")) {
		t.Fatalf("ltv = %v, want 0.5", h.LTV)
	}
}

func TestFairValueIgnoresPoolImbalance(t *testing.T) {
	f := newFixture(t)
	f.gen.Bond(context.Background(), liqToken, math.NewInt(100_000))

	balanced := f.compute(t, 100, 0, 100, 0)

	// Rebalance the pool without changing its invariant: the product of the
	// side values stays 1e14, so the fair valuation must not move.
	f.pair.Seed(2_000_000, 5_000_000, 1_000_000)
	shifted := f.compute(t, 100, 0, 100, 0)

	if !balanced.BondValue.Equal(shifted.BondValue) {
		t.Fatalf("valuation moved with pool balance: %s vs %s", balanced.BondValue, shifted.BondValue)
	}
}

func TestLTVUndefinedWithoutBondValue(t *testing.T) {
	f := newFixture(t)
	f.market.SetDebt(mock.EngineStaker(), math.NewInt(1_000_000))

	h := f.compute(t, 0, 1, 0, 1)

	if !h.BondValue.IsZero() {
		t.Fatalf("bond value = %s, want 0", h.BondValue)
	}
	if !h.DebtValue.Equal(math.NewInt(1_000_000)) {
		t.Fatalf("debt value = %s, want 1000000", h.DebtValue)
	}
	if h.LTV != nil {
		t.Fatalf("ltv = %v, want undefined", h.LTV)
	}
}

func TestDebtFreePositionHasZeroLTV(t *testing.T) {
	f := newFixture(t)
	f.gen.Bond(context.Background(), liqToken, math.NewInt(100_000))

	h := f.compute(t, 100, 0, 100, 0)

	if h.LTV == nil || !h.LTV.IsZero() {
		t.Fatalf("ltv = %v, want 0", h.LTV)
	}
}

func TestEmptyPoolValuesToZero(t *testing.T) {
	f := newFixture(t)
	f.pair.Seed(0, 0, 0)
	f.gen.Bond(context.Background(), liqToken, math.NewInt(100_000))

	h := f.compute(t, 100, 0, 100, 0)

	if !h.BondValue.IsZero() {
		t.Fatalf("bond value = %s, want 0 for empty pool", h.BondValue)
	}
}
