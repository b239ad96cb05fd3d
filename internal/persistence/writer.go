package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FarmLedger/internal/event"
)

// EventRow is a row in farm.events. UserID is empty for system-wide events.
type EventRow struct {
	Sequence   int64
	EventType  string
	UserID     string
	Payload    []byte
	Attributes []byte
	CreatedAt  time.Time
}

// SnapshotRow is a row in farm.position_snapshots. One row per user,
// replaced on every snapshot.
type SnapshotRow struct {
	UserID    string
	Sequence  int64
	Position  []byte
	Health    []byte
	UpdatedAt time.Time
}

// Record is one persistable action output: the event row plus, for snapshot
// events, the position snapshot upsert.
type Record struct {
	Event    EventRow
	Snapshot *SnapshotRow
}

// RecordFromEnvelope converts an engine envelope into its persistable form.
func RecordFromEnvelope(env *event.Envelope, now time.Time) (Record, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal payload: %w", err)
	}
	attrs, err := json.Marshal(env.Attributes)
	if err != nil {
		return Record{}, fmt.Errorf("marshal attributes: %w", err)
	}
	userID := ""
	if env.User != nil {
		userID = env.User.String()
	}
	rec := Record{Event: EventRow{
		Sequence:   env.Sequence,
		EventType:  env.Type.String(),
		UserID:     userID,
		Payload:    payload,
		Attributes: attrs,
		CreatedAt:  now,
	}}

	if snap, ok := env.Payload.(event.PositionSnapshot); ok {
		position, err := json.Marshal(snap.Position)
		if err != nil {
			return Record{}, fmt.Errorf("marshal position: %w", err)
		}
		health, err := json.Marshal(snap.Health)
		if err != nil {
			return Record{}, fmt.Errorf("marshal health: %w", err)
		}
		rec.Snapshot = &SnapshotRow{
			UserID:    snap.User.String(),
			Sequence:  snap.Sequence,
			Position:  position,
			Health:    health,
			UpdatedAt: now,
		}
	}
	return rec, nil
}

// EventLogWriter writes events and snapshots to Postgres using multi-row
// INSERTs inside the worker's transaction.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch appends a batch to farm.events. Re-inserting the same
// (sequence, event_type, user_id) is a no-op so retried flushes stay
// idempotent.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO farm.events
		(sequence, event_type, user_id, payload, attributes, created_at)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*6)

	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			e.Sequence, e.EventType, e.UserID, e.Payload, e.Attributes, e.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence, event_type, user_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteSnapshotBatch upserts position snapshots, keeping only the newest row
// per user, like the in-memory snapshot map.
func (w *EventLogWriter) WriteSnapshotBatch(ctx context.Context, tx *sql.Tx, snaps []SnapshotRow) error {
	for _, s := range snaps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO farm.position_snapshots (user_id, sequence, position, health, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE
			SET sequence = EXCLUDED.sequence,
			    position = EXCLUDED.position,
			    health = EXCLUDED.health,
			    updated_at = EXCLUDED.updated_at
			WHERE farm.position_snapshots.sequence <= EXCLUDED.sequence
		`, s.UserID, s.Sequence, s.Position, s.Health, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert snapshot for %s: %w", s.UserID, err)
		}
	}
	return nil
}

// LatestSequence returns the highest persisted sequence, -1 for an empty log.
func (w *EventLogWriter) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM farm.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
