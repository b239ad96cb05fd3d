package asset

import (
	"fmt"

	"cosmossdk.io/math"
)

// Info identifies an asset. Exactly one of the two fields is set: Token for
// a fungible token contract, Denom for an intrinsic (chain-native) coin.
// Two Infos are equal iff they are structurally equal.
type Info struct {
	Token string `json:"token,omitempty"`
	Denom string `json:"denom,omitempty"`
}

// Fungible returns the Info for a fungible token contract.
func Fungible(token string) Info {
	return Info{Token: token}
}

// Intrinsic returns the Info for a chain-native denomination.
func Intrinsic(denom string) Info {
	return Info{Denom: denom}
}

// IsIntrinsic reports whether the asset is a chain-native coin.
func (i Info) IsIntrinsic() bool {
	return i.Denom != ""
}

// IsEmpty reports whether the Info identifies nothing.
func (i Info) IsEmpty() bool {
	return i.Token == "" && i.Denom == ""
}

// Label returns the identifier collaborators use in their attribute streams.
func (i Info) Label() string {
	if i.IsIntrinsic() {
		return i.Denom
	}
	return i.Token
}

func (i Info) Equal(o Info) bool {
	return i == o
}

// Asset is an Info with an amount.
type Asset struct {
	Info   Info     `json:"info"`
	Amount math.Int `json:"amount"`
}

func New(info Info, amount math.Int) Asset {
	return Asset{Info: info, Amount: amount}
}

// NewInt64 is a convenience constructor for literals.
func NewInt64(info Info, amount int64) Asset {
	return Asset{Info: info, Amount: math.NewInt(amount)}
}

func (a Asset) String() string {
	return fmt.Sprintf("%s%s", a.Amount, a.Info.Label())
}
