package adapter

import (
	"fmt"
	"strings"

	"cosmossdk.io/math"

	"FarmLedger/internal/asset"
)

// Attribute is one key/value entry in a collaborator's side-channel
// notification stream.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Receipt is the notification stream a collaborator emits for one observed
// operation. The engine's reply handlers parse it with the helpers below.
type Receipt struct {
	Attributes []Attribute `json:"attributes"`
}

// Get returns the first value for a key.
func (r Receipt) Get(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func (r Receipt) intAttr(key string) (math.Int, error) {
	v, ok := r.Get(key)
	if !ok {
		return math.Int{}, fmt.Errorf("receipt missing attribute %q", key)
	}
	n, ok := math.NewIntFromString(v)
	if !ok {
		return math.Int{}, fmt.Errorf("receipt attribute %q is not an integer: %q", key, v)
	}
	return n, nil
}

// ParseShareMinted extracts the liquidity-token amount minted by a
// provide-liquidity operation.
func ParseShareMinted(r Receipt) (math.Int, error) {
	return r.intAttr("share")
}

// SwapResult holds the parsed outcome of a swap.
type SwapResult struct {
	ReturnAmount math.Int
	TaxAmount    math.Int
}

// ParseSwapResult extracts the return and tax amounts of a swap. The return
// amount is pre-tax for intrinsic ask assets.
func ParseSwapResult(r Receipt) (SwapResult, error) {
	ret, err := r.intAttr("return_amount")
	if err != nil {
		return SwapResult{}, err
	}
	tax, err := r.intAttr("tax_amount")
	if err != nil {
		return SwapResult{}, err
	}
	return SwapResult{ReturnAmount: ret, TaxAmount: tax}, nil
}

// ParseWithdrawRefunds extracts the two refund amounts of a
// withdraw-liquidity operation. The attribute value is a comma-separated
// coin list ("1000000uusd, 250000mir0000"); each label is resolved against
// the candidate infos. Refunded intrinsic amounts are pre-tax.
func ParseWithdrawRefunds(r Receipt, candidates []asset.Info) ([]asset.Asset, error) {
	v, ok := r.Get("refund_assets")
	if !ok {
		return nil, fmt.Errorf("receipt missing attribute %q", "refund_assets")
	}

	var out []asset.Asset
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		split := 0
		for split < len(part) && part[split] >= '0' && part[split] <= '9' {
			split++
		}
		if split == 0 || split == len(part) {
			return nil, fmt.Errorf("malformed refund coin %q", part)
		}
		amount, ok := math.NewIntFromString(part[:split])
		if !ok {
			return nil, fmt.Errorf("malformed refund amount in %q", part)
		}
		label := part[split:]
		info, err := resolveLabel(label, candidates)
		if err != nil {
			return nil, err
		}
		out = append(out, asset.New(info, amount))
	}
	return out, nil
}

func resolveLabel(label string, candidates []asset.Info) (asset.Info, error) {
	for _, c := range candidates {
		if c.Label() == label {
			return c, nil
		}
	}
	return asset.Info{}, fmt.Errorf("refund coin label %q matches no pooled asset", label)
}
