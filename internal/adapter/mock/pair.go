// Package mock provides deterministic in-memory collaborators. They back
// the engine's test suite and the daemon's sim mode; their arithmetic is
// intentionally simple (constant product, no trading commission) so test
// expectations stay exact.
package mock

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/math"

	"FarmLedger/internal/adapter"
	"FarmLedger/internal/asset"
)

// Pair is a constant-product AMM pool over two assets. Attribute streams
// report pre-tax amounts, matching the host chain's pair contracts.
type Pair struct {
	primary   asset.Info
	secondary asset.Info
	liqToken  asset.Info
	taxes     asset.TaxTable

	PrimaryDepth   math.Int
	SecondaryDepth math.Int
	ShareSupply    math.Int
}

func NewPair(primary, secondary, liqToken asset.Info, taxes asset.TaxTable) *Pair {
	return &Pair{
		primary:        primary,
		secondary:      secondary,
		liqToken:       liqToken,
		taxes:          taxes,
		PrimaryDepth:   math.ZeroInt(),
		SecondaryDepth: math.ZeroInt(),
		ShareSupply:    math.ZeroInt(),
	}
}

// Seed sets the pool depths and share supply directly.
func (p *Pair) Seed(primaryDepth, secondaryDepth, shareSupply int64) {
	p.PrimaryDepth = math.NewInt(primaryDepth)
	p.SecondaryDepth = math.NewInt(secondaryDepth)
	p.ShareSupply = math.NewInt(shareSupply)
}

func (p *Pair) LiquidityToken() asset.Info {
	return p.liqToken
}

func (p *Pair) AssetInfos() [2]asset.Info {
	return [2]asset.Info{p.primary, p.secondary}
}

func (p *Pair) QueryPool(ctx context.Context) (adapter.PoolInfo, error) {
	return adapter.PoolInfo{
		PrimaryDepth:   p.PrimaryDepth,
		SecondaryDepth: p.SecondaryDepth,
		ShareSupply:    p.ShareSupply,
	}, nil
}

func (p *Pair) ProvideLiquidity(ctx context.Context, assets [2]asset.Asset, slippage *math.LegacyDec) (adapter.Receipt, error) {
	var primaryIn, secondaryIn math.Int
	for _, a := range assets {
		switch {
		case a.Info.Equal(p.primary):
			primaryIn = a.Amount
		case a.Info.Equal(p.secondary):
			secondaryIn = a.Amount
		default:
			return adapter.Receipt{}, fmt.Errorf("asset %s is not pooled here", a.Info.Label())
		}
	}
	if primaryIn.IsNil() || secondaryIn.IsNil() || primaryIn.IsZero() || secondaryIn.IsZero() {
		return adapter.Receipt{}, fmt.Errorf("provide requires both pooled assets")
	}

	var minted math.Int
	if p.ShareSupply.IsZero() {
		minted = integerSqrt(primaryIn.Mul(secondaryIn))
	} else {
		byPrimary := p.ShareSupply.Mul(primaryIn).Quo(p.PrimaryDepth)
		bySecondary := p.ShareSupply.Mul(secondaryIn).Quo(p.SecondaryDepth)
		minted = math.MinInt(byPrimary, bySecondary)
	}

	p.PrimaryDepth = p.PrimaryDepth.Add(primaryIn)
	p.SecondaryDepth = p.SecondaryDepth.Add(secondaryIn)
	p.ShareSupply = p.ShareSupply.Add(minted)

	return adapter.Receipt{Attributes: []adapter.Attribute{
		{Key: "action", Value: "provide_liquidity"},
		{Key: "share", Value: minted.String()},
	}}, nil
}

func (p *Pair) WithdrawLiquidity(ctx context.Context, shares math.Int) (adapter.Receipt, error) {
	if shares.GT(p.ShareSupply) {
		return adapter.Receipt{}, fmt.Errorf("withdraw %s shares exceeds supply %s", shares, p.ShareSupply)
	}
	refundPrimary := p.PrimaryDepth.Mul(shares).Quo(p.ShareSupply)
	refundSecondary := p.SecondaryDepth.Mul(shares).Quo(p.ShareSupply)

	p.PrimaryDepth = p.PrimaryDepth.Sub(refundPrimary)
	p.SecondaryDepth = p.SecondaryDepth.Sub(refundSecondary)
	p.ShareSupply = p.ShareSupply.Sub(shares)

	refunds := strings.Join([]string{
		refundPrimary.String() + p.primary.Label(),
		refundSecondary.String() + p.secondary.Label(),
	}, ", ")

	return adapter.Receipt{Attributes: []adapter.Attribute{
		{Key: "action", Value: "withdraw_liquidity"},
		{Key: "refund_assets", Value: refunds},
	}}, nil
}

func (p *Pair) Swap(ctx context.Context, offer asset.Asset, beliefPrice, maxSpread *math.LegacyDec) (adapter.Receipt, error) {
	var offerDepth, askDepth math.Int
	var askInfo asset.Info
	switch {
	case offer.Info.Equal(p.primary):
		offerDepth, askDepth, askInfo = p.PrimaryDepth, p.SecondaryDepth, p.secondary
	case offer.Info.Equal(p.secondary):
		offerDepth, askDepth, askInfo = p.SecondaryDepth, p.PrimaryDepth, p.primary
	default:
		return adapter.Receipt{}, fmt.Errorf("asset %s is not pooled here", offer.Info.Label())
	}

	returnAmount := askDepth.Mul(offer.Amount).Quo(offerDepth.Add(offer.Amount))

	if beliefPrice != nil && maxSpread != nil {
		expected := beliefPrice.MulInt(offer.Amount)
		floor := expected.Mul(math.LegacyOneDec().Sub(*maxSpread)).TruncateInt()
		if returnAmount.LT(floor) {
			return adapter.Receipt{}, fmt.Errorf("swap spread exceeds tolerance: return %s < floor %s", returnAmount, floor)
		}
	}

	if offer.Info.Equal(p.primary) {
		p.PrimaryDepth = p.PrimaryDepth.Add(offer.Amount)
		p.SecondaryDepth = p.SecondaryDepth.Sub(returnAmount)
	} else {
		p.SecondaryDepth = p.SecondaryDepth.Add(offer.Amount)
		p.PrimaryDepth = p.PrimaryDepth.Sub(returnAmount)
	}

	// The pair reports the pre-tax return and the tax it will withhold on
	// delivery, like the host chain's pair contract.
	tax := returnAmount.Sub(p.taxes.DeductTax(asset.New(askInfo, returnAmount)).Amount)

	return adapter.Receipt{Attributes: []adapter.Attribute{
		{Key: "action", Value: "swap"},
		{Key: "return_amount", Value: returnAmount.String()},
		{Key: "tax_amount", Value: tax.String()},
	}}, nil
}

func integerSqrt(v math.Int) math.Int {
	return math.NewIntFromBigInt(new(big.Int).Sqrt(v.BigInt()))
}
