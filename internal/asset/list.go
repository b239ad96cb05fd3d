package asset

import (
	"fmt"
	"strings"

	"cosmossdk.io/math"
)

// List is a sparse, order-preserving asset ledger. Entries with the same
// Info are merged on insertion; entries that reach zero are purged. The
// list never holds a negative amount.
type List []Asset

// AmountOf returns the held amount of an asset, zero if absent.
func (l List) AmountOf(info Info) math.Int {
	for _, a := range l {
		if a.Info.Equal(info) {
			return a.Amount
		}
	}
	return math.ZeroInt()
}

// Add merges an asset into the list. Zero adds are no-ops.
func (l *List) Add(a Asset) {
	if a.Amount.IsZero() {
		return
	}
	for i := range *l {
		if (*l)[i].Info.Equal(a.Info) {
			(*l)[i].Amount = (*l)[i].Amount.Add(a.Amount)
			return
		}
	}
	*l = append(*l, a)
}

// Deduct subtracts an asset from the list using checked arithmetic; an
// underflow is a hard fault for the caller. Entries that reach zero are
// removed.
func (l *List) Deduct(a Asset) error {
	if a.Amount.IsZero() {
		return nil
	}
	for i := range *l {
		if !(*l)[i].Info.Equal(a.Info) {
			continue
		}
		if (*l)[i].Amount.LT(a.Amount) {
			return fmt.Errorf("deduct %s: only %s unlocked", a, (*l)[i].Amount)
		}
		(*l)[i].Amount = (*l)[i].Amount.Sub(a.Amount)
		if (*l)[i].Amount.IsZero() {
			*l = append((*l)[:i], (*l)[i+1:]...)
		}
		return nil
	}
	return fmt.Errorf("deduct %s: asset not unlocked", a)
}

// Clone returns a deep copy.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}

// IsZero reports whether the list holds no nonzero entry.
func (l List) IsZero() bool {
	for _, a := range l {
		if !a.Amount.IsZero() {
			return false
		}
	}
	return true
}

func (l List) String() string {
	if len(l) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(l))
	for _, a := range l {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ",")
}
