// Package adapter defines the typed facades over the engine's external
// collaborators: the AMM pair, the liquidity-token reward generator, the
// money market, the price oracle, and the host bank. Implementations are
// collaborator-specific and opaque to the engine; the engine invokes the
// operations below and observes only what they report.
package adapter

import (
	"context"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
)

// PoolInfo is the result of a pair pool query.
type PoolInfo struct {
	PrimaryDepth   math.Int
	SecondaryDepth math.Int
	ShareSupply    math.Int
}

// Pair is an AMM pool holding the primary and secondary assets. The three
// execute operations are observed: their effect is only known from the
// attribute stream in the returned receipt, which the caller parses with
// the helpers in receipt.go. Amounts reported for intrinsic assets are
// pre-tax.
type Pair interface {
	ProvideLiquidity(ctx context.Context, assets [2]asset.Asset, slippage *math.LegacyDec) (Receipt, error)
	WithdrawLiquidity(ctx context.Context, shares math.Int) (Receipt, error)
	Swap(ctx context.Context, offer asset.Asset, beliefPrice, maxSpread *math.LegacyDec) (Receipt, error)
	QueryPool(ctx context.Context) (PoolInfo, error)

	// LiquidityToken returns the pool's share token.
	LiquidityToken() asset.Info
	// AssetInfos returns the two pooled assets, primary first.
	AssetInfos() [2]asset.Info
}

// Generator stakes liquidity tokens and accrues rewards. Bond and Unbond
// implicitly withdraw any pending rewards to the staker.
type Generator interface {
	Bond(ctx context.Context, liquidityToken asset.Info, amount math.Int) error
	Unbond(ctx context.Context, liquidityToken asset.Info, amount math.Int) error
	ClaimRewards(ctx context.Context, liquidityToken asset.Info) error
	QueryBonded(ctx context.Context, staker uuid.UUID, liquidityToken asset.Info) (math.Int, error)
	QueryRewards(ctx context.Context, staker uuid.UUID, liquidityToken asset.Info) ([]asset.Asset, error)
}

// MoneyMarket lends the secondary asset against the engine's credit line.
type MoneyMarket interface {
	Borrow(ctx context.Context, a asset.Asset) error
	Repay(ctx context.Context, a asset.Asset) error
	QueryDebt(ctx context.Context, borrower uuid.UUID, info asset.Info) (math.Int, error)
}

// Oracle reports asset prices measured in the secondary asset.
type Oracle interface {
	QueryPrice(ctx context.Context, info asset.Info) (math.LegacyDec, error)
}

// Bank moves assets between the engine and external accounts. Send delivers
// an already-tax-deducted amount; TransferFrom pulls a fungible token from
// the owner under a prior allowance.
type Bank interface {
	Send(ctx context.Context, recipient uuid.UUID, a asset.Asset) error
	TransferFrom(ctx context.Context, owner uuid.UUID, a asset.Asset) error
}
