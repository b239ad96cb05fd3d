package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
	"FarmLedger/internal/event"
	"FarmLedger/internal/state"
)

// ActionKind discriminates the steps of an UpdatePosition request.
type ActionKind int32

const (
	ActionUnknown ActionKind = iota
	ActionDeposit
	ActionBorrow
	ActionRepay
	ActionBond
	ActionUnbond
	ActionSwap
)

func (k ActionKind) String() string {
	switch k {
	case ActionDeposit:
		return "deposit"
	case ActionBorrow:
		return "borrow"
	case ActionRepay:
		return "repay"
	case ActionBond:
		return "bond"
	case ActionUnbond:
		return "unbond"
	case ActionSwap:
		return "swap"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind by name for the HTTP surface.
func (k ActionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ActionKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "deposit":
		*k = ActionDeposit
	case "borrow":
		*k = ActionBorrow
	case "repay":
		*k = ActionRepay
	case "bond":
		*k = ActionBond
	case "unbond":
		*k = ActionUnbond
	case "swap":
		*k = ActionSwap
	default:
		return fmt.Errorf("unknown action kind %q", name)
	}
	return nil
}

// Action is one user-requested step. Steps are compiled into sub-operations
// and applied in request order, always followed by a full self-refund, a
// health assertion, and a snapshot.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Deposit.
	Asset asset.Asset `json:"asset,omitempty"`

	// Borrow and Repay: an asset amount. Unbond: bond units.
	Amount math.Int `json:"amount,omitempty"`

	// Bond.
	Slippage *math.LegacyDec `json:"slippage,omitempty"`

	// Swap.
	SwapOffer   asset.Info      `json:"swap_offer,omitempty"`
	SwapAmount  *math.Int       `json:"swap_amount,omitempty"`
	BeliefPrice *math.LegacyDec `json:"belief_price,omitempty"`
	MaxSpread   *math.LegacyDec `json:"max_spread,omitempty"`
}

func DepositAction(a asset.Asset) Action {
	return Action{Kind: ActionDeposit, Asset: a}
}

func BorrowAction(amount math.Int) Action {
	return Action{Kind: ActionBorrow, Amount: amount}
}

func RepayAction(amount math.Int) Action {
	return Action{Kind: ActionRepay, Amount: amount}
}

func BondAction(slippage *math.LegacyDec) Action {
	return Action{Kind: ActionBond, Slippage: slippage}
}

func UnbondAction(units math.Int) Action {
	return Action{Kind: ActionUnbond, Amount: units}
}

func SwapAction(offer asset.Info, amount *math.Int, beliefPrice, maxSpread *math.LegacyDec) Action {
	return Action{Kind: ActionSwap, SwapOffer: offer, SwapAmount: amount, BeliefPrice: beliefPrice, MaxSpread: maxSpread}
}

// UpdatePosition applies an arbitrary sequence of steps to the caller's
// position. Whatever the steps leave unlocked is refunded to the caller, and
// the position must end healthy.
func (e *Engine) UpdatePosition(ctx context.Context, caller uuid.UUID, actions []Action, sent asset.List) (*Result, error) {
	if caller == state.RewardAccount {
		return nil, fmt.Errorf("%w: reserved account", ErrInvalidArgument)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no actions", ErrInvalidArgument)
	}

	var deposits []asset.Asset
	var ops []SubOp
	for _, a := range actions {
		switch a.Kind {
		case ActionDeposit:
			if a.Asset.Amount.IsNil() || !a.Asset.Amount.IsPositive() {
				return nil, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidArgument)
			}
			deposits = append(deposits, a.Asset)
		case ActionBorrow:
			if a.Amount.IsNil() {
				return nil, fmt.Errorf("%w: borrow amount missing", ErrInvalidArgument)
			}
			ops = append(ops, Borrow(caller, a.Amount))
		case ActionRepay:
			if a.Amount.IsNil() {
				return nil, fmt.Errorf("%w: repay amount missing", ErrInvalidArgument)
			}
			ops = append(ops, Repay(caller, a.Amount))
		case ActionBond:
			ops = append(ops, ProvideLiquidity(caller, a.Slippage), Bond(caller))
		case ActionUnbond:
			if a.Amount.IsNil() {
				return nil, fmt.Errorf("%w: unbond units missing", ErrInvalidArgument)
			}
			ops = append(ops, Unbond(caller, a.Amount), WithdrawLiquidity(caller))
		case ActionSwap:
			ops = append(ops, Swap(caller, a.SwapOffer, a.SwapAmount, a.BeliefPrice, a.MaxSpread))
		default:
			return nil, fmt.Errorf("%w: unknown action kind %d", ErrInvalidArgument, a.Kind)
		}
	}
	ops = append(ops,
		Refund(caller, caller, math.LegacyOneDec()),
		AssertHealth(caller),
		Snapshot(caller),
	)

	prep := func(ctx context.Context) error {
		return e.applyDeposits(ctx, caller, deposits, sent)
	}
	return e.runAction(ctx, "update_position", prep, ops)
}

// IncreasePosition is the composed leverage entry: deposit the pooled
// assets, borrow whatever secondary amount balances the deposit against the
// current pool ratio, provide, and bond.
func (e *Engine) IncreasePosition(ctx context.Context, caller uuid.UUID, primaryDeposit, secondaryDeposit math.Int, slippage *math.LegacyDec, sent asset.List) (*Result, error) {
	if caller == state.RewardAccount {
		return nil, fmt.Errorf("%w: reserved account", ErrInvalidArgument)
	}
	if !primaryDeposit.IsPositive() {
		return nil, fmt.Errorf("%w: primary deposit must be positive", ErrInvalidArgument)
	}
	if secondaryDeposit.IsNegative() {
		return nil, fmt.Errorf("%w: negative secondary deposit", ErrInvalidArgument)
	}
	cfg := e.store.Config()

	pool, err := e.pair.QueryPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: query pool: %v", ErrExternal, err)
	}
	if pool.PrimaryDepth.IsZero() {
		return nil, fmt.Errorf("%w: pool has no primary depth", ErrArithmetic)
	}
	// The secondary amount the pool wants alongside the primary deposit,
	// less what the caller supplied themselves.
	matched := primaryDeposit.Mul(pool.SecondaryDepth).Quo(pool.PrimaryDepth)
	shortfall := matched.Sub(secondaryDeposit)
	if shortfall.IsNegative() {
		shortfall = math.ZeroInt()
	}

	deposits := []asset.Asset{asset.New(cfg.PrimaryAsset, primaryDeposit)}
	if secondaryDeposit.IsPositive() {
		deposits = append(deposits, asset.New(cfg.SecondaryAsset, secondaryDeposit))
	}
	ops := []SubOp{
		Borrow(caller, shortfall),
		ProvideLiquidity(caller, slippage),
		Bond(caller),
		AssertHealth(caller),
		Snapshot(caller),
	}
	prep := func(ctx context.Context) error {
		return e.applyDeposits(ctx, caller, deposits, sent)
	}
	return e.runAction(ctx, "increase_position", prep, ops)
}

// ReducePosition unwinds part of a position: unbond, withdraw, swap primary
// proceeds into the secondary asset, repay, and refund the rest.
func (e *Engine) ReducePosition(ctx context.Context, caller uuid.UUID, units math.Int, swapAmount *math.Int, repayAmount math.Int) (*Result, error) {
	if caller == state.RewardAccount {
		return nil, fmt.Errorf("%w: reserved account", ErrInvalidArgument)
	}
	if units.IsNil() || repayAmount.IsNil() {
		return nil, fmt.Errorf("%w: units and repay amount are required", ErrInvalidArgument)
	}
	cfg := e.store.Config()
	ops := []SubOp{
		Unbond(caller, units),
		WithdrawLiquidity(caller),
		Swap(caller, cfg.PrimaryAsset, swapAmount, nil, nil),
		Repay(caller, repayAmount),
		AssertHealth(caller),
		Refund(caller, caller, math.LegacyOneDec()),
		Snapshot(caller),
	}
	return e.runAction(ctx, "reduce_position", nil, ops)
}

// PayDebt repays debt with shipped secondary assets; any excess over the
// position's debt comes straight back to the caller.
func (e *Engine) PayDebt(ctx context.Context, caller uuid.UUID, repayAmount math.Int, sent asset.List) (*Result, error) {
	if caller == state.RewardAccount {
		return nil, fmt.Errorf("%w: reserved account", ErrInvalidArgument)
	}
	if !repayAmount.IsPositive() {
		return nil, fmt.Errorf("%w: repay amount must be positive", ErrInvalidArgument)
	}
	cfg := e.store.Config()
	shipped := sent.AmountOf(cfg.SecondaryAsset)
	if shipped.IsZero() {
		return nil, fmt.Errorf("%w: no %s shipped", ErrInvalidArgument, cfg.SecondaryAsset.Label())
	}
	deposits := []asset.Asset{asset.New(cfg.SecondaryAsset, shipped)}
	ops := []SubOp{
		Repay(caller, repayAmount),
		AssertHealth(caller),
		Refund(caller, caller, math.LegacyOneDec()),
		Snapshot(caller),
	}
	prep := func(ctx context.Context) error {
		return e.applyDeposits(ctx, caller, deposits, sent)
	}
	return e.runAction(ctx, "pay_debt", prep, ops)
}

// Harvest claims accrued generator rewards, skims the fee to the treasury,
// and reinvests the remainder through the reward scratch account: swap half,
// provide, bond. No units are minted, so every position's stake grows
// pro rata.
func (e *Engine) Harvest(ctx context.Context, caller uuid.UUID, beliefPrice, maxSpread, slippage *math.LegacyDec) (*Result, error) {
	cfg := e.store.Config()
	if !cfg.IsOperator(caller) {
		return nil, fmt.Errorf("%w: %s is not an operator", ErrUnauthorized, caller)
	}

	liqToken := e.pair.LiquidityToken()
	rewards, err := e.gen.QueryRewards(ctx, e.account, liqToken)
	if err != nil {
		return nil, fmt.Errorf("%w: query rewards: %v", ErrExternal, err)
	}
	amount := asset.List(rewards).AmountOf(cfg.RewardAsset)
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: no rewards accrued", ErrMissingPrecondition)
	}

	fee := cfg.FeeRate.MulInt(amount).TruncateInt()
	afterFee := amount.Sub(fee)
	half := afterFee.QuoRaw(2)

	prep := func(ctx context.Context) error {
		if err := e.gen.ClaimRewards(ctx, liqToken); err != nil {
			return fmt.Errorf("%w: claim rewards: %v", ErrExternal, err)
		}
		if fee.IsPositive() {
			deliver := e.taxes.DeductTax(asset.New(cfg.RewardAsset, fee))
			if err := e.bank.Send(ctx, cfg.Treasury, deliver); err != nil {
				return fmt.Errorf("%w: fee transfer: %v", ErrExternal, err)
			}
		}
		e.store.UnlockedOf(state.RewardAccount).Add(asset.New(cfg.RewardAsset, afterFee))
		e.attr("harvest_fee", fee.String())
		e.attr("harvest_reward", afterFee.String())
		e.emit(event.TypeHarvested, nil, event.Harvested{
			FeeAmount:            fee,
			RewardAmountAfterFee: afterFee,
		})
		return nil
	}
	ops := []SubOp{
		Swap(state.RewardAccount, cfg.RewardAsset, &half, beliefPrice, maxSpread),
		ProvideLiquidity(state.RewardAccount, slippage),
		Bond(state.RewardAccount),
	}
	res, err := e.runAction(ctx, "harvest", prep, ops)
	if err == nil && e.metrics != nil {
		e.metrics.Harvests.Inc()
	}
	return res, err
}

// Liquidate closes out an unhealthy position: unstake everything, dissolve
// the liquidity, swap the primary proceeds, clear the debt, pay the
// liquidator the bonus fraction, and return the rest to the position owner.
func (e *Engine) Liquidate(ctx context.Context, liquidator, user uuid.UUID) (*Result, error) {
	if user == state.RewardAccount {
		return nil, fmt.Errorf("%w: reserved account", ErrInvalidArgument)
	}
	pos, ok := e.store.Position(user)
	if !ok {
		return nil, fmt.Errorf("%w: no position for %s", ErrMissingPrecondition, user)
	}
	h, err := e.positionHealth(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternal, err)
	}
	cfg := e.store.Config()
	if h.LTV == nil || !h.LTV.GT(cfg.MaxLTV) {
		return nil, fmt.Errorf("%w: position is healthy", ErrMissingPrecondition)
	}

	bondUnits := pos.BondUnits
	debtUnits := pos.DebtUnits

	prep := func(ctx context.Context) error {
		e.emit(event.TypeLiquidated, &user, event.Liquidated{
			Liquidator: liquidator,
			User:       user,
			BondUnits:  bondUnits,
			DebtUnits:  debtUnits,
			BondValue:  h.BondValue,
			DebtValue:  h.DebtValue,
			LTV:        h.LTV,
		})
		return nil
	}

	var ops []SubOp
	if bondUnits.IsPositive() {
		ops = append(ops, Unbond(user, bondUnits), WithdrawLiquidity(user))
	}
	ops = append(ops,
		Swap(user, cfg.PrimaryAsset, nil, nil, nil),
		Repay(user, h.DebtAmount),
		Refund(user, liquidator, cfg.BonusRate),
		Refund(user, user, math.LegacyOneDec()),
	)

	res, err := e.runAction(ctx, "liquidate", prep, ops)
	if err == nil && e.metrics != nil {
		e.metrics.Liquidations.Inc()
	}
	return res, err
}

// UpdateConfig atomically replaces the governance configuration.
func (e *Engine) UpdateConfig(ctx context.Context, caller uuid.UUID, cfg state.Config) (*Result, error) {
	if caller != e.store.Config().Governance {
		return nil, fmt.Errorf("%w: only governance may update config", ErrUnauthorized)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	prep := func(ctx context.Context) error {
		e.store.SetConfig(cfg)
		e.emit(event.TypeConfigUpdated, nil, event.ConfigUpdated{Config: cfg})
		return nil
	}
	return e.runAction(ctx, "update_config", prep, nil)
}

// Callback runs a bare sub-operation. Only the engine's own account may
// invoke it; the endpoint exists so external senders are rejected loudly
// instead of silently mutating positions.
func (e *Engine) Callback(ctx context.Context, sender uuid.UUID, op SubOp) (*Result, error) {
	if sender != e.account {
		return nil, fmt.Errorf("%w: callbacks accepted only from the engine itself", ErrUnauthorized)
	}
	return e.runAction(ctx, "callback", nil, []SubOp{op})
}

// applyDeposits verifies shipped funds against the declared deposits and
// credits them to the caller's unlocked ledger. Fungible tokens are pulled
// under the caller's allowance; intrinsic coins must arrive with the action.
func (e *Engine) applyDeposits(ctx context.Context, caller uuid.UUID, deposits []asset.Asset, sent asset.List) error {
	if err := asset.AssertSentFunds(deposits, sent); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	ledger := e.store.UnlockedOf(caller)
	for _, d := range deposits {
		if !d.Info.IsIntrinsic() {
			if err := e.bank.TransferFrom(ctx, caller, d); err != nil {
				return fmt.Errorf("%w: transfer from %s: %v", ErrExternal, caller, err)
			}
		}
		ledger.Add(d)
		e.attr("deposit", d.String())
	}
	return nil
}
