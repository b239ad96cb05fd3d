package engine

import (
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
)

// SubOpKind discriminates sub-operations.
type SubOpKind int32

const (
	SubOpUnknown SubOpKind = iota
	SubOpBond
	SubOpUnbond
	SubOpBorrow
	SubOpRepay
	SubOpSwap
	SubOpProvideLiquidity
	SubOpWithdrawLiquidity
	SubOpRefund
	SubOpAssertHealth
	SubOpSnapshot
)

func (k SubOpKind) String() string {
	switch k {
	case SubOpBond:
		return "bond"
	case SubOpUnbond:
		return "unbond"
	case SubOpBorrow:
		return "borrow"
	case SubOpRepay:
		return "repay"
	case SubOpSwap:
		return "swap"
	case SubOpProvideLiquidity:
		return "provide_liquidity"
	case SubOpWithdrawLiquidity:
		return "withdraw_liquidity"
	case SubOpRefund:
		return "refund"
	case SubOpAssertHealth:
		return "assert_health"
	case SubOpSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// SubOp is one step of a compiled action. Fields beyond Kind and User are
// populated per kind; a nil Amount means "everything unlocked".
type SubOp struct {
	Kind SubOpKind

	// The position the step operates on.
	User uuid.UUID

	// Unbond: bond units to burn. Borrow, Repay, Swap: an asset amount.
	Amount *math.Int

	// Swap: the asset offered.
	OfferInfo asset.Info

	// Swap: price guards forwarded to the pair, either may be nil.
	BeliefPrice *math.LegacyDec
	MaxSpread   *math.LegacyDec

	// ProvideLiquidity: tolerance forwarded to the pair, may be nil.
	Slippage *math.LegacyDec

	// Refund: where the funds go and what fraction of each entry.
	Recipient  uuid.UUID
	Percentage math.LegacyDec
}

func Bond(user uuid.UUID) SubOp {
	return SubOp{Kind: SubOpBond, User: user}
}

func Unbond(user uuid.UUID, units math.Int) SubOp {
	return SubOp{Kind: SubOpUnbond, User: user, Amount: &units}
}

func Borrow(user uuid.UUID, amount math.Int) SubOp {
	return SubOp{Kind: SubOpBorrow, User: user, Amount: &amount}
}

func Repay(user uuid.UUID, amount math.Int) SubOp {
	return SubOp{Kind: SubOpRepay, User: user, Amount: &amount}
}

// Swap offers `amount` of `offer`; a nil amount swaps the whole unlocked
// balance of the offer asset.
func Swap(user uuid.UUID, offer asset.Info, amount *math.Int, beliefPrice, maxSpread *math.LegacyDec) SubOp {
	return SubOp{
		Kind:        SubOpSwap,
		User:        user,
		OfferInfo:   offer,
		Amount:      amount,
		BeliefPrice: beliefPrice,
		MaxSpread:   maxSpread,
	}
}

func ProvideLiquidity(user uuid.UUID, slippage *math.LegacyDec) SubOp {
	return SubOp{Kind: SubOpProvideLiquidity, User: user, Slippage: slippage}
}

func WithdrawLiquidity(user uuid.UUID) SubOp {
	return SubOp{Kind: SubOpWithdrawLiquidity, User: user}
}

func Refund(user, recipient uuid.UUID, percentage math.LegacyDec) SubOp {
	return SubOp{Kind: SubOpRefund, User: user, Recipient: recipient, Percentage: percentage}
}

func AssertHealth(user uuid.UUID) SubOp {
	return SubOp{Kind: SubOpAssertHealth, User: user}
}

func Snapshot(user uuid.UUID) SubOp {
	return SubOp{Kind: SubOpSnapshot, User: user}
}
