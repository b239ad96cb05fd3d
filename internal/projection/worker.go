// Package projection maintains read-optimized Postgres tables from the
// engine's event stream. Projections are eventually consistent: the engine
// feeds them over a non-blocking channel and drops on backpressure, and a
// lagging projection is rebuilt from the event log.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"FarmLedger/internal/event"
)

// Worker updates projection tables from committed envelopes.
type Worker struct {
	db        *sql.DB
	inputChan <-chan *event.Envelope
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan *event.Envelope) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run drains the projection channel until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-w.inputChan:
			if !ok {
				return nil
			}
			if err := w.process(ctx, env); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", env.Sequence, err)
				// Continue; the table is rebuilt from farm.events when needed.
			}
			w.lastSeq = env.Sequence
		}
	}
}

func (w *Worker) process(ctx context.Context, env *event.Envelope) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch p := env.Payload.(type) {
	case event.PositionChanged:
		if err := w.upsertPosition(ctx, tx, env.Sequence, p); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	case event.Liquidated:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.liquidation_history
				(sequence, user_id, liquidator, bond_units, debt_units, bond_value, debt_value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (sequence) DO NOTHING
		`, env.Sequence, p.User.String(), p.Liquidator.String(),
			p.BondUnits.String(), p.DebtUnits.String(),
			p.BondValue.String(), p.DebtValue.String()); err != nil {
			return fmt.Errorf("liquidation projection: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM projections.positions WHERE user_id = $1`, p.User.String()); err != nil {
			return fmt.Errorf("clear liquidated position: %w", err)
		}
	case event.Harvested:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.harvest_history (sequence, fee_amount, reward_amount, created_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (sequence) DO NOTHING
		`, env.Sequence, p.FeeAmount.String(), p.RewardAmountAfterFee.String()); err != nil {
			return fmt.Errorf("harvest projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, env.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (w *Worker) upsertPosition(ctx context.Context, tx *sql.Tx, seq int64, p event.PositionChanged) error {
	if p.BondUnits.IsZero() && p.DebtUnits.IsZero() {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM projections.positions WHERE user_id = $1`, p.User.String())
		return err
	}

	ltv := sql.NullString{}
	if p.LTV != nil {
		ltv = sql.NullString{String: p.LTV.String(), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(user_id, bond_units, debt_units, bond_value, debt_value, ltv, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			bond_units = EXCLUDED.bond_units,
			debt_units = EXCLUDED.debt_units,
			bond_value = EXCLUDED.bond_value,
			debt_value = EXCLUDED.debt_value,
			ltv = EXCLUDED.ltv,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
		WHERE projections.positions.last_sequence <= EXCLUDED.last_sequence
	`, p.User.String(), p.BondUnits.String(), p.DebtUnits.String(),
		p.BondValue.String(), p.DebtValue.String(), ltv, seq)
	return err
}

// Rebuild repopulates the positions projection from the event log, taking
// the latest position_changed row per user.
func Rebuild(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.positions`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.positions
			(user_id, bond_units, debt_units, bond_value, debt_value, ltv, last_sequence, updated_at)
		SELECT DISTINCT ON (user_id)
			user_id,
			payload->>'bond_units',
			payload->>'debt_units',
			payload->>'bond_value',
			payload->>'debt_value',
			payload->>'ltv',
			sequence,
			NOW()
		FROM farm.events
		WHERE event_type = 'position_changed'
		ORDER BY user_id, sequence DESC
	`)
	if err != nil {
		return fmt.Errorf("rebuild positions: %w", err)
	}

	// Liquidated users have no live position.
	_, err = db.ExecContext(ctx, `
		DELETE FROM projections.positions p
		USING farm.events e
		WHERE e.event_type = 'liquidated'
		  AND e.user_id = p.user_id
		  AND e.sequence >= p.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("clear liquidated positions: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
