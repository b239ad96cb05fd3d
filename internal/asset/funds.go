package asset

import (
	"fmt"
)

// AssertSentFunds verifies that the intrinsic coins shipped with an action
// match the expected deposits exactly. Extra coins and missing coins are
// both rejected: accepting extras would strand value on the engine account.
// Fungible deposits are ignored here; they are pulled via transfer-from.
func AssertSentFunds(expected []Asset, sent List) error {
	wanted := make(List, 0, len(expected))
	for _, e := range expected {
		if !e.Info.IsIntrinsic() || e.Amount.IsZero() {
			continue
		}
		wanted.Add(e)
	}

	for _, w := range wanted {
		got := sent.AmountOf(w.Info)
		if !got.Equal(w.Amount) {
			return fmt.Errorf("sent funds mismatch for %s: expected %s, received %s",
				w.Info.Label(), w.Amount, got)
		}
	}
	for _, s := range sent {
		if s.Amount.IsZero() {
			continue
		}
		if wanted.AmountOf(s.Info).IsZero() {
			return fmt.Errorf("unexpected funds received: %s", s)
		}
	}
	return nil
}
