package asset

import (
	"cosmossdk.io/math"
)

// ExemptDenom is the intrinsic denomination that carries no transfer fee.
const ExemptDenom = "luna"

// TaxTable mirrors the host chain's transfer-fee oracles: one flat rate plus
// a per-denomination cap. Fungible tokens and the exempt denom are untaxed.
//
// Every native transfer distinguishes two quantities: the deliverable amount
// (what the recipient receives) and the debited amount (what the sender is
// charged). DeductTax maps requested -> deliverable; AddTax maps
// deliverable -> debited.
type TaxTable struct {
	Rate math.LegacyDec
	Caps map[string]math.Int
}

// ZeroTax returns a table that charges nothing anywhere.
func ZeroTax() TaxTable {
	return TaxTable{Rate: math.LegacyZeroDec()}
}

func (t TaxTable) taxable(info Info) bool {
	return info.IsIntrinsic() && info.Denom != ExemptDenom && !t.Rate.IsZero()
}

func (t TaxTable) clampToCap(denom string, tax math.Int) math.Int {
	if cap, ok := t.Caps[denom]; ok && tax.GT(cap) {
		return cap
	}
	return tax
}

// DeductTax returns the deliverable part of a requested amount:
//
//	deliverable = amount - min(amount - amount/(1+rate), cap)
//
// The division truncates toward zero at 18 fractional digits, matching the
// host chain's fee computation exactly.
func (t TaxTable) DeductTax(a Asset) Asset {
	if !t.taxable(a.Info) || a.Amount.IsZero() {
		return a
	}
	net := math.LegacyNewDecFromInt(a.Amount).
		Quo(math.LegacyOneDec().Add(t.Rate)).
		TruncateInt()
	tax := t.clampToCap(a.Info.Denom, a.Amount.Sub(net))
	return Asset{Info: a.Info, Amount: a.Amount.Sub(tax)}
}

// TaxOf returns the fee charged on top of a deliverable amount:
// min(amount * rate, cap).
func (t TaxTable) TaxOf(a Asset) math.Int {
	if !t.taxable(a.Info) || a.Amount.IsZero() {
		return math.ZeroInt()
	}
	tax := t.Rate.MulInt(a.Amount).TruncateInt()
	return t.clampToCap(a.Info.Denom, tax)
}

// AddTax returns the amount debited from the sender when delivering a.
func (t TaxTable) AddTax(a Asset) Asset {
	return Asset{Info: a.Info, Amount: a.Amount.Add(t.TaxOf(a))}
}
