package engine

import (
	"context"
	"fmt"

	"cosmossdk.io/math"

	"FarmLedger/internal/adapter"
	"FarmLedger/internal/asset"
	"FarmLedger/internal/event"
	"FarmLedger/internal/state"
)

// execute dispatches one sub-operation.
func (e *Engine) execute(ctx context.Context, op SubOp) error {
	var err error
	switch op.Kind {
	case SubOpBond:
		err = e.bond(ctx, op)
	case SubOpUnbond:
		err = e.unbond(ctx, op)
	case SubOpBorrow:
		err = e.borrow(ctx, op)
	case SubOpRepay:
		err = e.repay(ctx, op)
	case SubOpSwap:
		err = e.swap(ctx, op)
	case SubOpProvideLiquidity:
		err = e.provideLiquidity(ctx, op)
	case SubOpWithdrawLiquidity:
		err = e.withdrawLiquidity(ctx, op)
	case SubOpRefund:
		err = e.refund(ctx, op)
	case SubOpAssertHealth:
		err = e.assertHealth(ctx, op)
	case SubOpSnapshot:
		err = e.snapshot(ctx, op)
	default:
		err = fmt.Errorf("%w: unknown sub-operation %d", ErrInvalidArgument, op.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op.Kind, err)
	}
	if e.metrics != nil {
		e.metrics.SubOpsExecuted.WithLabelValues(op.Kind.String()).Inc()
	}
	return nil
}

// bond stakes the owner's whole unlocked liquidity-token balance at the
// generator and mints bond units against the pre-bond bonded amount. The
// reward account bonds without minting: its share of the pool is everyone's.
func (e *Engine) bond(ctx context.Context, op SubOp) error {
	liqToken := e.pair.LiquidityToken()
	ledger := e.store.UnlockedOf(op.User)
	amount := ledger.AmountOf(liqToken)
	if amount.IsZero() {
		return fmt.Errorf("%w: no unlocked liquidity tokens", ErrMissingPrecondition)
	}

	if err := e.sweepRewards(ctx, liqToken); err != nil {
		return err
	}

	st := e.store.State()
	if op.User != state.RewardAccount {
		bondedBefore, err := e.gen.QueryBonded(ctx, e.account, liqToken)
		if err != nil {
			return fmt.Errorf("%w: query bonded: %v", ErrExternal, err)
		}
		var minted math.Int
		switch {
		case st.TotalBondUnits.IsZero():
			minted = amount.Mul(state.UnitScale)
		case bondedBefore.IsZero():
			return fmt.Errorf("%w: bond units exist but nothing is bonded", ErrArithmetic)
		default:
			minted = st.TotalBondUnits.Mul(amount).Quo(bondedBefore)
		}
		pos := e.store.GetOrCreatePosition(op.User)
		pos.BondUnits = pos.BondUnits.Add(minted)
		st.TotalBondUnits = st.TotalBondUnits.Add(minted)
		e.attr("bond_units_minted", minted.String())
	}

	if err := ledger.Deduct(asset.New(liqToken, amount)); err != nil {
		return fmt.Errorf("%w: %v", ErrArithmetic, err)
	}
	if err := e.gen.Bond(ctx, liqToken, amount); err != nil {
		return fmt.Errorf("%w: generator bond: %v", ErrExternal, err)
	}
	e.attr("bond_amount", amount.String())
	return nil
}

// unbond burns bond units, unstakes the proportional liquidity-token amount,
// and credits it to the owner's unlocked ledger.
func (e *Engine) unbond(ctx context.Context, op SubOp) error {
	units := *op.Amount
	pos := e.store.GetOrCreatePosition(op.User)
	if pos.BondUnits.IsZero() {
		return fmt.Errorf("%w: position holds no bond units", ErrMissingPrecondition)
	}
	if units.IsZero() {
		return fmt.Errorf("%w: zero unbond units", ErrInvalidArgument)
	}
	if units.GT(pos.BondUnits) {
		return fmt.Errorf("%w: unbond %s units exceeds held %s", ErrArithmetic, units, pos.BondUnits)
	}

	liqToken := e.pair.LiquidityToken()
	if err := e.sweepRewards(ctx, liqToken); err != nil {
		return err
	}

	st := e.store.State()
	bonded, err := e.gen.QueryBonded(ctx, e.account, liqToken)
	if err != nil {
		return fmt.Errorf("%w: query bonded: %v", ErrExternal, err)
	}
	amount := bonded.Mul(units).Quo(st.TotalBondUnits)

	pos.BondUnits = pos.BondUnits.Sub(units)
	st.TotalBondUnits = st.TotalBondUnits.Sub(units)

	if err := e.gen.Unbond(ctx, liqToken, amount); err != nil {
		return fmt.Errorf("%w: generator unbond: %v", ErrExternal, err)
	}
	e.store.UnlockedOf(op.User).Add(asset.New(liqToken, amount))
	e.attr("unbond_units", units.String())
	e.attr("unbond_amount", amount.String())
	return nil
}

// borrow draws the secondary asset from the money market, mints debt units
// against the pre-borrow debt, and credits the drawn amount unlocked.
func (e *Engine) borrow(ctx context.Context, op SubOp) error {
	amount := *op.Amount
	if amount.IsZero() {
		return nil
	}
	cfg := e.store.Config()
	st := e.store.State()

	debtBefore, err := e.market.QueryDebt(ctx, e.account, cfg.SecondaryAsset)
	if err != nil {
		return fmt.Errorf("%w: query debt: %v", ErrExternal, err)
	}
	var minted math.Int
	switch {
	case st.TotalDebtUnits.IsZero():
		minted = amount.Mul(state.UnitScale)
	case debtBefore.IsZero():
		return fmt.Errorf("%w: debt units exist but no debt outstanding", ErrArithmetic)
	default:
		minted = st.TotalDebtUnits.Mul(amount).Quo(debtBefore)
	}

	pos := e.store.GetOrCreatePosition(op.User)
	pos.DebtUnits = pos.DebtUnits.Add(minted)
	st.TotalDebtUnits = st.TotalDebtUnits.Add(minted)

	if err := e.market.Borrow(ctx, asset.New(cfg.SecondaryAsset, amount)); err != nil {
		return fmt.Errorf("%w: money market borrow: %v", ErrExternal, err)
	}
	// The market sends the borrowed amount; transit tax is withheld on the
	// way, so only the post-tax deliverable lands unlocked.
	e.store.UnlockedOf(op.User).Add(e.taxes.DeductTax(asset.New(cfg.SecondaryAsset, amount)))
	e.attr("borrow_amount", amount.String())
	e.attr("debt_units_minted", minted.String())
	return nil
}

// repay clears debt with unlocked secondary assets. The repaid amount is
// clamped to the position's current debt; repaying everything burns the
// position's debt units exactly, so no dust unit survives a full repayment.
func (e *Engine) repay(ctx context.Context, op SubOp) error {
	requested := *op.Amount
	pos := e.store.GetOrCreatePosition(op.User)
	if requested.IsZero() {
		if !pos.DebtUnits.IsZero() {
			return fmt.Errorf("%w: zero repay against outstanding debt", ErrInvalidArgument)
		}
		return nil
	}
	if pos.DebtUnits.IsZero() {
		return nil
	}

	cfg := e.store.Config()
	st := e.store.State()
	totalDebt, err := e.market.QueryDebt(ctx, e.account, cfg.SecondaryAsset)
	if err != nil {
		return fmt.Errorf("%w: query debt: %v", ErrExternal, err)
	}
	userDebt := totalDebt.Mul(pos.DebtUnits).Quo(st.TotalDebtUnits)
	if userDebt.IsZero() {
		return nil
	}

	actual := math.MinInt(requested, userDebt)
	var burned math.Int
	if actual.Equal(userDebt) {
		burned = pos.DebtUnits
	} else {
		burned = pos.DebtUnits.Mul(actual).Quo(userDebt)
	}

	// The money market must receive the full repaid amount, so the sender
	// is debited the amount plus its transfer tax.
	debit := e.taxes.AddTax(asset.New(cfg.SecondaryAsset, actual))
	if err := e.store.UnlockedOf(op.User).Deduct(debit); err != nil {
		return fmt.Errorf("%w: %v", ErrArithmetic, err)
	}

	pos.DebtUnits = pos.DebtUnits.Sub(burned)
	st.TotalDebtUnits = st.TotalDebtUnits.Sub(burned)

	if err := e.market.Repay(ctx, asset.New(cfg.SecondaryAsset, actual)); err != nil {
		return fmt.Errorf("%w: money market repay: %v", ErrExternal, err)
	}
	e.attr("repay_amount", actual.String())
	e.attr("debt_units_burned", burned.String())
	return nil
}

// swap trades the offer asset on the matching pair. The effect is observed:
// the credited return amount comes from the pair's receipt, not from any
// local simulation.
func (e *Engine) swap(ctx context.Context, op SubOp) error {
	cfg := e.store.Config()

	var pr adapter.Pair
	var ask asset.Info
	switch {
	case op.OfferInfo.Equal(cfg.PrimaryAsset):
		pr, ask = e.pair, cfg.SecondaryAsset
	case op.OfferInfo.Equal(cfg.RewardAsset) && e.rwdPair != nil:
		pr, ask = e.rwdPair, cfg.SecondaryAsset
	default:
		return fmt.Errorf("%w: no pair trades %s", ErrInvalidArgument, op.OfferInfo.Label())
	}

	ledger := e.store.UnlockedOf(op.User)
	amount := ledger.AmountOf(op.OfferInfo)
	if op.Amount != nil {
		amount = *op.Amount
	}
	deliver := e.taxes.DeductTax(asset.New(op.OfferInfo, amount))
	if deliver.Amount.IsZero() {
		return nil
	}
	debit := e.taxes.AddTax(deliver)
	if err := ledger.Deduct(debit); err != nil {
		return fmt.Errorf("%w: %v", ErrArithmetic, err)
	}

	e.store.SetTransientUser(op.User)
	receipt, err := pr.Swap(ctx, deliver, op.BeliefPrice, op.MaxSpread)
	if err != nil {
		return fmt.Errorf("%w: pair swap: %v", ErrExternal, err)
	}
	return e.replySwap(receipt, ask)
}

// replySwap credits the swap return to the transient owner.
func (e *Engine) replySwap(receipt adapter.Receipt, ask asset.Info) error {
	owner, ok := e.store.TakeTransientUser()
	if !ok {
		return fmt.Errorf("%w: swap reply without transient user", ErrInvariant)
	}
	result, err := adapter.ParseSwapResult(receipt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternal, err)
	}
	credited := e.taxes.DeductTax(asset.New(ask, result.ReturnAmount))
	e.store.UnlockedOf(owner).Add(credited)
	e.attr("swap_return_amount", result.ReturnAmount.String())
	e.attr("swap_tax_amount", result.TaxAmount.String())
	return nil
}

// provideLiquidity commits the owner's whole unlocked primary and secondary
// balances to the pool. Minted shares are observed from the receipt.
func (e *Engine) provideLiquidity(ctx context.Context, op SubOp) error {
	cfg := e.store.Config()
	ledger := e.store.UnlockedOf(op.User)

	primaryAmt := ledger.AmountOf(cfg.PrimaryAsset)
	secondaryAmt := ledger.AmountOf(cfg.SecondaryAsset)
	if primaryAmt.IsZero() || secondaryAmt.IsZero() {
		return fmt.Errorf("%w: need both pooled assets unlocked, have %s %s / %s %s",
			ErrMissingPrecondition,
			primaryAmt, cfg.PrimaryAsset.Label(), secondaryAmt, cfg.SecondaryAsset.Label())
	}

	deliverP := e.taxes.DeductTax(asset.New(cfg.PrimaryAsset, primaryAmt))
	deliverS := e.taxes.DeductTax(asset.New(cfg.SecondaryAsset, secondaryAmt))
	if err := ledger.Deduct(e.taxes.AddTax(deliverP)); err != nil {
		return fmt.Errorf("%w: %v", ErrArithmetic, err)
	}
	if err := ledger.Deduct(e.taxes.AddTax(deliverS)); err != nil {
		return fmt.Errorf("%w: %v", ErrArithmetic, err)
	}

	e.store.SetTransientUser(op.User)
	receipt, err := e.pair.ProvideLiquidity(ctx, [2]asset.Asset{deliverP, deliverS}, op.Slippage)
	if err != nil {
		return fmt.Errorf("%w: pair provide: %v", ErrExternal, err)
	}
	return e.replyProvideLiquidity(receipt)
}

func (e *Engine) replyProvideLiquidity(receipt adapter.Receipt) error {
	owner, ok := e.store.TakeTransientUser()
	if !ok {
		return fmt.Errorf("%w: provide reply without transient user", ErrInvariant)
	}
	shares, err := adapter.ParseShareMinted(receipt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternal, err)
	}
	e.store.UnlockedOf(owner).Add(asset.New(e.pair.LiquidityToken(), shares))
	e.attr("shares_minted", shares.String())
	return nil
}

// withdrawLiquidity burns the owner's whole unlocked liquidity-token balance
// and credits the two refunded pool assets, tax-adjusted, from the receipt.
func (e *Engine) withdrawLiquidity(ctx context.Context, op SubOp) error {
	liqToken := e.pair.LiquidityToken()
	ledger := e.store.UnlockedOf(op.User)
	amount := ledger.AmountOf(liqToken)
	if amount.IsZero() {
		return fmt.Errorf("%w: no unlocked liquidity tokens", ErrMissingPrecondition)
	}
	if err := ledger.Deduct(asset.New(liqToken, amount)); err != nil {
		return fmt.Errorf("%w: %v", ErrArithmetic, err)
	}

	e.store.SetTransientUser(op.User)
	receipt, err := e.pair.WithdrawLiquidity(ctx, amount)
	if err != nil {
		return fmt.Errorf("%w: pair withdraw: %v", ErrExternal, err)
	}
	return e.replyWithdrawLiquidity(receipt)
}

func (e *Engine) replyWithdrawLiquidity(receipt adapter.Receipt) error {
	owner, ok := e.store.TakeTransientUser()
	if !ok {
		return fmt.Errorf("%w: withdraw reply without transient user", ErrInvariant)
	}
	infos := e.pair.AssetInfos()
	refunds, err := adapter.ParseWithdrawRefunds(receipt, infos[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternal, err)
	}
	ledger := e.store.UnlockedOf(owner)
	for _, r := range refunds {
		ledger.Add(e.taxes.DeductTax(r))
		e.attr("withdraw_refund", r.String())
	}
	return nil
}

// refund pays out a fraction of every unlocked entry to the recipient. A
// 100% refund closes each entry entirely; the sub-tax rounding dust is not
// worth keeping a position alive for.
func (e *Engine) refund(ctx context.Context, op SubOp) error {
	ledger := e.store.UnlockedOf(op.User)
	full := op.Percentage.Equal(math.LegacyOneDec())

	for _, entry := range ledger.Clone() {
		refundAmt := op.Percentage.MulInt(entry.Amount).TruncateInt()
		deliver := e.taxes.DeductTax(asset.New(entry.Info, refundAmt))

		debit := e.taxes.AddTax(deliver)
		if full {
			debit = entry
		}
		if deliver.Amount.IsZero() && !full {
			continue
		}
		if err := ledger.Deduct(debit); err != nil {
			return fmt.Errorf("%w: %v", ErrArithmetic, err)
		}
		if deliver.Amount.IsZero() {
			continue
		}
		if err := e.bank.Send(ctx, op.Recipient, deliver); err != nil {
			return fmt.Errorf("%w: bank send: %v", ErrExternal, err)
		}
		e.attr("refund", deliver.String())
	}
	return nil
}

// assertHealth recomputes the position's valuation and rejects the action
// if its loan-to-value ratio ended up above the configured maximum.
func (e *Engine) assertHealth(ctx context.Context, op SubOp) error {
	h, err := e.positionHealth(ctx, op.User)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternal, err)
	}
	cfg := e.store.Config()
	if h.LTV == nil {
		// Undefined LTV is only acceptable for a debt-free position.
		if h.DebtValue.IsPositive() {
			return fmt.Errorf("%w: debt %s outstanding with no collateral", ErrInvariant, h.DebtValue)
		}
	} else if h.LTV.GT(cfg.MaxLTV) {
		return fmt.Errorf("%w: ltv %s exceeds max %s", ErrInvariant, h.LTV, cfg.MaxLTV)
	}

	bondUnits, debtUnits := unitHoldings(e.store, op.User)
	user := op.User
	e.emit(event.TypePositionChanged, &user, event.PositionChanged{
		User:      user,
		BondUnits: bondUnits,
		DebtUnits: debtUnits,
		BondValue: h.BondValue,
		DebtValue: h.DebtValue,
		LTV:       h.LTV,
	})
	return nil
}

// sweepRewards books the generator's pending rewards into the shared reward
// scratch. Bond and unbond implicitly withdraw whatever has accrued, so the
// amounts must be accounted before the generator call or they are lost until
// nothing claims them.
func (e *Engine) sweepRewards(ctx context.Context, liqToken asset.Info) error {
	rewards, err := e.gen.QueryRewards(ctx, e.account, liqToken)
	if err != nil {
		return fmt.Errorf("%w: query rewards: %v", ErrExternal, err)
	}
	scratch := e.store.UnlockedOf(state.RewardAccount)
	for _, r := range rewards {
		scratch.Add(r)
	}
	return nil
}

// snapshot records the position and its valuation for off-chain indexers.
// Nothing in the engine reads a snapshot back.
func (e *Engine) snapshot(ctx context.Context, op SubOp) error {
	h, err := e.positionHealth(ctx, op.User)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternal, err)
	}
	var snap state.Position
	if p, ok := e.store.Position(op.User); ok {
		snap = state.Position{
			BondUnits: p.BondUnits,
			DebtUnits: p.DebtUnits,
			Unlocked:  p.Unlocked.Clone(),
		}
	} else {
		snap = *state.NewPosition()
	}

	entry := state.SnapshotEntry{Sequence: e.sequence, Position: snap, Health: h}
	e.store.WriteSnapshot(op.User, entry)

	user := op.User
	e.emit(event.TypePositionSnapshot, &user, event.PositionSnapshot{
		User:     user,
		Sequence: e.sequence,
		Position: snap,
		Health:   h,
	})
	return nil
}
