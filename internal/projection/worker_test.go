package projection_test

import (
	"context"
	"database/sql"
	"testing"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/event"
	"FarmLedger/internal/persistence"
	"FarmLedger/internal/projection"
	"FarmLedger/internal/testutil"
)

func setup(t *testing.T) *sql.DB {
	t.Helper()
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := persistence.NewMigrator(db, "../../migrations").Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// drive runs a worker over the given envelopes and waits for it to finish.
func drive(t *testing.T, db *sql.DB, envs ...*event.Envelope) {
	t.Helper()

	ch := make(chan *event.Envelope, len(envs))
	for _, env := range envs {
		ch <- env
	}
	close(ch)

	if err := projection.NewWorker(db, ch).Run(context.Background()); err != nil {
		t.Fatalf("worker run: %v", err)
	}
}

func positionChanged(seq int64, user uuid.UUID, bondUnits, debtUnits int64) *event.Envelope {
	ltv := math.LegacyMustNewDecFromStr("0.5")
	p := event.PositionChanged{
		User:      user,
		BondUnits: math.NewInt(bondUnits),
		DebtUnits: math.NewInt(debtUnits),
		BondValue: math.NewInt(bondUnits * 10),
		DebtValue: math.NewInt(debtUnits * 5),
	}
	if bondUnits > 0 {
		p.LTV = &ltv
	}
	return &event.Envelope{Sequence: seq, Type: event.TypePositionChanged, User: &user, Payload: p}
}

func TestPositionProjectionUpsertAndDelete(t *testing.T) {
	db := setup(t)
	ctx := context.Background()
	user := uuid.New()

	drive(t, db,
		positionChanged(1, user, 100, 50),
		positionChanged(2, user, 200, 50),
	)

	var bondUnits string
	err := db.QueryRowContext(ctx,
		`SELECT bond_units FROM projections.positions WHERE user_id = $1`, user.String()).Scan(&bondUnits)
	if err != nil {
		t.Fatalf("read position: %v", err)
	}
	if bondUnits != "200" {
		t.Fatalf("bond_units = %s, want latest 200", bondUnits)
	}

	var watermark int64
	if err := db.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'`).Scan(&watermark); err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	if watermark != 2 {
		t.Fatalf("watermark = %d, want 2", watermark)
	}

	// A fully unwound position clears its row.
	drive(t, db, positionChanged(3, user, 0, 0))
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projections.positions WHERE user_id = $1`, user.String()).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("unwound position still projected")
	}
}

func TestLiquidationClearsPositionAndRecordsHistory(t *testing.T) {
	db := setup(t)
	ctx := context.Background()
	user := uuid.New()
	liquidator := uuid.New()

	drive(t, db,
		positionChanged(1, user, 100, 50),
		&event.Envelope{
			Sequence: 2,
			Type:     event.TypeLiquidated,
			User:     &user,
			Payload: event.Liquidated{
				Liquidator: liquidator,
				User:       user,
				BondUnits:  math.NewInt(100),
				DebtUnits:  math.NewInt(50),
				BondValue:  math.NewInt(1_000),
				DebtValue:  math.NewInt(800),
			},
		},
	)

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projections.positions WHERE user_id = $1`, user.String()).Scan(&count); err != nil {
		t.Fatalf("count positions: %v", err)
	}
	if count != 0 {
		t.Fatal("liquidated position still projected")
	}

	var gotLiquidator string
	if err := db.QueryRowContext(ctx,
		`SELECT liquidator FROM projections.liquidation_history WHERE sequence = 2`).Scan(&gotLiquidator); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if gotLiquidator != liquidator.String() {
		t.Fatalf("liquidator = %s, want %s", gotLiquidator, liquidator)
	}
}

func TestHarvestHistory(t *testing.T) {
	db := setup(t)
	ctx := context.Background()

	drive(t, db, &event.Envelope{
		Sequence: 1,
		Type:     event.TypeHarvested,
		Payload: event.Harvested{
			FeeAmount:            math.NewInt(100_000),
			RewardAmountAfterFee: math.NewInt(900_000),
		},
	})

	var fee string
	if err := db.QueryRowContext(ctx,
		`SELECT fee_amount FROM projections.harvest_history WHERE sequence = 1`).Scan(&fee); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if fee != "100000" {
		t.Fatalf("fee = %s, want 100000", fee)
	}
}
