package query_test

import (
	"context"
	"errors"
	"testing"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FarmLedger/internal/adapter/mock"
	"FarmLedger/internal/asset"
	"FarmLedger/internal/engine"
	"FarmLedger/internal/query"
	"FarmLedger/internal/state"
)

var (
	primaryInfo   = asset.Fungible("mir0000")
	secondaryInfo = asset.Intrinsic("uusd")
	liqTokenInfo  = asset.Fungible("lp0000")

	userA      = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	treasury   = uuid.MustParse("00000000-0000-0000-0000-0000000000d4")
	governance = uuid.MustParse("00000000-0000-0000-0000-0000000000e5")
)

// newService starts an engine loop over fresh mocks and returns the query
// service bound to it. The loop stops with the test context.
func newService(t *testing.T) (*query.Service, *engine.Engine, context.Context) {
	t.Helper()

	taxes := asset.ZeroTax()
	pair := mock.NewPair(primaryInfo, secondaryInfo, liqTokenInfo, taxes)
	pair.Seed(1_000_000, 10_000_000, 1_000_000)

	oracle := mock.NewOracle()
	oracle.SetPrice(primaryInfo, math.LegacyNewDec(10))
	oracle.SetPrice(secondaryInfo, math.LegacyNewDec(1))

	cfg := state.Config{
		PrimaryAsset:   primaryInfo,
		SecondaryAsset: secondaryInfo,
		RewardAsset:    primaryInfo,
		Treasury:       treasury,
		Governance:     governance,
		MaxLTV:         math.LegacyMustNewDecFromStr("0.75"),
		FeeRate:        math.LegacyMustNewDecFromStr("0.10"),
		BonusRate:      math.LegacyMustNewDecFromStr("0.05"),
	}

	eng := engine.New(state.NewStore(cfg), engine.Collaborators{
		PrimaryPair: pair,
		Generator:   mock.NewGenerator(),
		Market:      mock.NewMoneyMarket(),
		Oracle:      oracle,
		Bank:        mock.NewBank(),
	}, taxes, mock.EngineStaker(), 0, nil, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)

	return query.NewService(eng, nil, zerolog.Nop()), eng, ctx
}

// deposit opens a leveraged position for userA through the engine loop.
func deposit(t *testing.T, ctx context.Context, eng *engine.Engine) {
	t.Helper()
	var err error
	if dErr := eng.Dispatch(ctx, func(c context.Context) {
		_, err = eng.IncreasePosition(c, userA,
			math.NewInt(100_000), math.ZeroInt(), nil, nil)
	}); dErr != nil {
		t.Fatalf("dispatch: %v", dErr)
	}
	if err != nil {
		t.Fatalf("increase position: %v", err)
	}
}

func TestConfigQuery(t *testing.T) {
	svc, _, ctx := newService(t)

	cfg, err := svc.Config(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !cfg.PrimaryAsset.Equal(primaryInfo) {
		t.Fatalf("primary asset = %+v", cfg.PrimaryAsset)
	}
}

func TestStateQueryReflectsActions(t *testing.T) {
	svc, eng, ctx := newService(t)

	before, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !before.TotalBondUnits.IsZero() || before.Sequence != 0 {
		t.Fatalf("fresh state = %+v", before)
	}

	deposit(t, ctx, eng)

	after, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if after.TotalBondUnits.IsZero() {
		t.Fatal("bond units still zero after deposit")
	}
	if after.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", after.Sequence)
	}
}

func TestPositionQuery(t *testing.T) {
	svc, eng, ctx := newService(t)

	if _, err := svc.Position(ctx, userA); !errors.Is(err, query.ErrNotFound) {
		t.Fatalf("missing position error = %v, want ErrNotFound", err)
	}

	deposit(t, ctx, eng)

	view, err := svc.Position(ctx, userA)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if view.User != userA || view.BondUnits.IsZero() {
		t.Fatalf("view = %+v", view)
	}

	views, err := svc.Positions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(views) != 1 || views[0].User != userA {
		t.Fatalf("views = %+v", views)
	}
}

func TestHealthQuery(t *testing.T) {
	svc, eng, ctx := newService(t)
	deposit(t, ctx, eng)

	h, err := svc.Health(ctx, userA)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.LTV == nil {
		t.Fatal("ltv undefined for leveraged position")
	}
	if h.LTV.GT(math.LegacyMustNewDecFromStr("0.75")) {
		t.Fatalf("fresh position over the limit: ltv = %s", h.LTV)
	}
}

func TestSnapshotQuery(t *testing.T) {
	svc, eng, ctx := newService(t)

	if _, err := svc.Snapshot(ctx, userA); !errors.Is(err, query.ErrNotFound) {
		t.Fatalf("missing snapshot error = %v, want ErrNotFound", err)
	}

	deposit(t, ctx, eng)

	snap, err := svc.Snapshot(ctx, userA)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Sequence != 0 {
		t.Fatalf("snapshot sequence = %d, want 0 (first action)", snap.Sequence)
	}
	if snap.Position.BondUnits.IsZero() {
		t.Fatal("snapshot carries no bond units")
	}
}

func TestQueriesAfterContextCancel(t *testing.T) {
	svc, _, _ := newService(t)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Config(cancelled); err == nil {
		t.Fatal("expected dispatch failure on cancelled context")
	}
}
