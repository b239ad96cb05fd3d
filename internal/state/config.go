package state

import (
	"fmt"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
)

// Config bounds, enforced whenever a config is written.
var (
	minMaxLTV    = math.LegacyNewDecWithPrec(75, 2) // 0.75
	maxMaxLTV    = math.LegacyNewDecWithPrec(90, 2) // 0.90
	maxFeeRate   = math.LegacyNewDecWithPrec(20, 2) // 0.20
	maxBonusRate = math.LegacyNewDecWithPrec(10, 2) // 0.10
)

// Config is the engine's governance-controlled configuration. It is
// immutable for the duration of any single action; UpdateConfig replaces it
// atomically.
type Config struct {
	PrimaryAsset   asset.Info `json:"primary_asset"`
	SecondaryAsset asset.Info `json:"secondary_asset"`
	RewardAsset    asset.Info `json:"reward_asset"`

	Treasury   uuid.UUID   `json:"treasury"`
	Governance uuid.UUID   `json:"governance"`
	Operators  []uuid.UUID `json:"operators"`

	MaxLTV    math.LegacyDec `json:"max_ltv"`
	FeeRate   math.LegacyDec `json:"fee_rate"`
	BonusRate math.LegacyDec `json:"bonus_rate"`
}

// Validate checks the ratio bounds and asset identities.
func (c Config) Validate() error {
	if c.PrimaryAsset.IsEmpty() || c.SecondaryAsset.IsEmpty() || c.RewardAsset.IsEmpty() {
		return fmt.Errorf("config: all three assets must be set")
	}
	if c.PrimaryAsset.Equal(c.SecondaryAsset) {
		return fmt.Errorf("config: primary and secondary assets must differ")
	}
	if c.Governance == uuid.Nil {
		return fmt.Errorf("config: governance account must be set")
	}
	if c.MaxLTV.IsNil() || c.FeeRate.IsNil() || c.BonusRate.IsNil() {
		return fmt.Errorf("config: max_ltv, fee_rate, and bonus_rate must all be set")
	}
	if c.MaxLTV.LT(minMaxLTV) || c.MaxLTV.GT(maxMaxLTV) {
		return fmt.Errorf("config: max_ltv %s outside [%s, %s]", c.MaxLTV, minMaxLTV, maxMaxLTV)
	}
	if c.FeeRate.IsNegative() || c.FeeRate.GT(maxFeeRate) {
		return fmt.Errorf("config: fee_rate %s outside [0, %s]", c.FeeRate, maxFeeRate)
	}
	if c.BonusRate.IsNegative() || c.BonusRate.GT(maxBonusRate) {
		return fmt.Errorf("config: bonus_rate %s outside [0, %s]", c.BonusRate, maxBonusRate)
	}
	return nil
}

// IsOperator reports whether the account may call Harvest.
func (c Config) IsOperator(account uuid.UUID) bool {
	for _, op := range c.Operators {
		if op == account {
			return true
		}
	}
	return false
}

func (c Config) clone() Config {
	out := c
	out.Operators = append([]uuid.UUID(nil), c.Operators...)
	return out
}
