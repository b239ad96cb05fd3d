package state_test

import (
	"encoding/json"
	"testing"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
	"FarmLedger/internal/state"
)

var (
	userA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	userB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func validConfig() state.Config {
	return state.Config{
		PrimaryAsset:   asset.Fungible("mir0000"),
		SecondaryAsset: asset.Intrinsic("uusd"),
		RewardAsset:    asset.Fungible("mir0000"),
		Governance:     uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		MaxLTV:         math.LegacyMustNewDecFromStr("0.75"),
		FeeRate:        math.LegacyMustNewDecFromStr("0.10"),
		BonusRate:      math.LegacyMustNewDecFromStr("0.05"),
	}
}

func TestConfigValidateBounds(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*state.Config){
		"ltv_below_floor":   func(c *state.Config) { c.MaxLTV = math.LegacyMustNewDecFromStr("0.74") },
		"ltv_above_ceiling": func(c *state.Config) { c.MaxLTV = math.LegacyMustNewDecFromStr("0.91") },
		"fee_negative":      func(c *state.Config) { c.FeeRate = math.LegacyMustNewDecFromStr("-0.01") },
		"fee_above_ceiling": func(c *state.Config) { c.FeeRate = math.LegacyMustNewDecFromStr("0.21") },
		"bonus_above_ceil":  func(c *state.Config) { c.BonusRate = math.LegacyMustNewDecFromStr("0.11") },
		"same_assets":       func(c *state.Config) { c.SecondaryAsset = c.PrimaryAsset },
		"missing_asset":     func(c *state.Config) { c.RewardAsset = asset.Info{} },
		"no_governance":     func(c *state.Config) { c.Governance = uuid.Nil },
		"nil_ratio":         func(c *state.Config) { c.MaxLTV = math.LegacyDec{} },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestCheckpointRestoreDiscardsMutations(t *testing.T) {
	s := state.NewStore(validConfig())
	p := s.GetOrCreatePosition(userA)
	p.BondUnits = math.NewInt(100)
	s.State().TotalBondUnits = math.NewInt(100)

	cp := s.Checkpoint()

	p.BondUnits = math.NewInt(999)
	s.State().TotalBondUnits = math.NewInt(999)
	s.GetOrCreatePosition(userB).DebtUnits = math.NewInt(5)
	s.State().PendingRewards.Add(asset.NewInt64(asset.Fungible("mir0000"), 7))
	s.SetTransientUser(userB)
	s.WriteSnapshot(userA, state.SnapshotEntry{Sequence: 42})

	s.Restore(cp)

	got, ok := s.Position(userA)
	if !ok || !got.BondUnits.Equal(math.NewInt(100)) {
		t.Fatalf("position not restored: %+v", got)
	}
	if _, ok := s.Position(userB); ok {
		t.Fatal("position created after checkpoint survived restore")
	}
	if !s.State().TotalBondUnits.Equal(math.NewInt(100)) {
		t.Fatalf("total bond units = %s, want 100", s.State().TotalBondUnits)
	}
	if !s.State().PendingRewards.IsZero() {
		t.Fatalf("pending rewards = %s, want empty", s.State().PendingRewards)
	}
	if !s.TransientEmpty() {
		t.Fatal("transient slot survived restore")
	}
	if _, ok := s.Snapshot(userA); ok {
		t.Fatal("snapshot written after checkpoint survived restore")
	}
}

func TestCheckpointIsDeepCopy(t *testing.T) {
	s := state.NewStore(validConfig())
	p := s.GetOrCreatePosition(userA)
	p.Unlocked.Add(asset.NewInt64(asset.Intrinsic("uusd"), 100))

	cp := s.Checkpoint()
	p.Unlocked.Add(asset.NewInt64(asset.Intrinsic("uusd"), 900))

	s.Restore(cp)
	got, _ := s.Position(userA)
	if amt := got.Unlocked.AmountOf(asset.Intrinsic("uusd")); !amt.Equal(math.NewInt(100)) {
		t.Fatalf("unlocked = %s, want 100 (checkpoint shared the ledger)", amt)
	}
}

func TestPurgeIfEmpty(t *testing.T) {
	s := state.NewStore(validConfig())

	s.GetOrCreatePosition(userA)
	s.PurgeIfEmpty(userA)
	if _, ok := s.Position(userA); ok {
		t.Fatal("empty position not purged")
	}

	p := s.GetOrCreatePosition(userB)
	p.Unlocked.Add(asset.NewInt64(asset.Intrinsic("uusd"), 1))
	s.PurgeIfEmpty(userB)
	if _, ok := s.Position(userB); !ok {
		t.Fatal("position with unlocked assets was purged")
	}
}

func TestUnlockedOfRewardAccount(t *testing.T) {
	s := state.NewStore(validConfig())

	l := s.UnlockedOf(state.RewardAccount)
	l.Add(asset.NewInt64(asset.Fungible("mir0000"), 500))

	if got := s.State().PendingRewards.AmountOf(asset.Fungible("mir0000")); !got.Equal(math.NewInt(500)) {
		t.Fatalf("pending rewards = %s, want 500", got)
	}
	if _, ok := s.Position(state.RewardAccount); ok {
		t.Fatal("reward account must not materialize a position")
	}
}

func TestTransientUserSlot(t *testing.T) {
	s := state.NewStore(validConfig())

	if _, ok := s.TakeTransientUser(); ok {
		t.Fatal("empty slot yielded a user")
	}
	s.SetTransientUser(userA)
	if s.TransientEmpty() {
		t.Fatal("slot empty after set")
	}
	u, ok := s.TakeTransientUser()
	if !ok || u != userA {
		t.Fatalf("took %v, want %v", u, userA)
	}
	if !s.TransientEmpty() {
		t.Fatal("slot not cleared by take")
	}
}

func TestValidateUnitConservation(t *testing.T) {
	s := state.NewStore(validConfig())
	s.GetOrCreatePosition(userA).BondUnits = math.NewInt(60)
	s.GetOrCreatePosition(userB).BondUnits = math.NewInt(40)
	s.State().TotalBondUnits = math.NewInt(100)

	if err := s.ValidateUnitConservation(); err != nil {
		t.Fatalf("conserved state rejected: %v", err)
	}

	s.State().TotalBondUnits = math.NewInt(101)
	if err := s.ValidateUnitConservation(); err == nil {
		t.Fatal("expected conservation violation")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := state.NewStore(validConfig())
	p := s.GetOrCreatePosition(userA)
	p.BondUnits = math.NewInt(100)
	p.Unlocked.Add(asset.NewInt64(asset.Intrinsic("uusd"), 250))
	s.State().TotalBondUnits = math.NewInt(100)
	s.State().PendingRewards.Add(asset.NewInt64(asset.Fungible("mir0000"), 9))
	s.WriteSnapshot(userA, state.SnapshotEntry{Sequence: 7, Position: *p})

	// Through JSON, the way the state archive stores it.
	data, err := json.Marshal(s.Export())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var exported state.Exported
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored := state.Import(exported)

	got, ok := restored.Position(userA)
	if !ok || !got.BondUnits.Equal(math.NewInt(100)) {
		t.Fatalf("position lost in round trip: %+v", got)
	}
	if amt := got.Unlocked.AmountOf(asset.Intrinsic("uusd")); !amt.Equal(math.NewInt(250)) {
		t.Fatalf("unlocked = %s, want 250", amt)
	}
	if !restored.State().TotalBondUnits.Equal(math.NewInt(100)) {
		t.Fatalf("total bond units = %s, want 100", restored.State().TotalBondUnits)
	}
	snap, ok := restored.Snapshot(userA)
	if !ok || snap.Sequence != 7 {
		t.Fatalf("snapshot lost in round trip: %+v", snap)
	}
	if err := restored.ValidateUnitConservation(); err != nil {
		t.Fatalf("restored store not conserved: %v", err)
	}
}

func TestImportEmptyExport(t *testing.T) {
	s := state.Import(state.Exported{Config: validConfig()})
	if s.State() == nil {
		t.Fatal("nil state after empty import")
	}
	if users := s.Users(); len(users) != 0 {
		t.Fatalf("users = %v, want none", users)
	}
}
