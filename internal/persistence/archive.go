package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FarmLedger/internal/state"
)

// StateArchive stores full engine-state dumps for warm restarts. The daemon
// saves one on shutdown and periodically in between; on startup the newest
// archive restores the store and the sequence counter without replay.
type StateArchive struct {
	db *sql.DB
}

func NewStateArchive(db *sql.DB) *StateArchive {
	return &StateArchive{db: db}
}

// archiveData is the serialized payload of one archive row.
type archiveData struct {
	Sequence  int64          `json:"sequence"`
	Store     state.Exported `json:"store"`
	CreatedAt time.Time      `json:"created_at"`
}

// Save persists a full dump of the store keyed by the engine sequence.
func (a *StateArchive) Save(ctx context.Context, sequence int64, store *state.Store) error {
	data, err := json.Marshal(archiveData{
		Sequence:  sequence,
		Store:     store.Export(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal state archive: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO farm.state_archives (archive_id, sequence, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $4
	`, uuid.New(), sequence, data, len(data))
	return err
}

// LoadLatest returns the newest archived store and its sequence, or a nil
// store when no archive exists (cold start).
func (a *StateArchive) LoadLatest(ctx context.Context) (*state.Store, int64, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT data FROM farm.state_archives
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("load state archive: %w", err)
	}

	var arch archiveData
	if err := json.Unmarshal(data, &arch); err != nil {
		return nil, 0, fmt.Errorf("unmarshal state archive: %w", err)
	}
	return state.Import(arch.Store), arch.Sequence, nil
}

// Prune deletes archives older than the given sequence, keeping restart
// candidates bounded.
func (a *StateArchive) Prune(ctx context.Context, keepFromSequence int64) error {
	_, err := a.db.ExecContext(ctx, `
		DELETE FROM farm.state_archives WHERE sequence < $1
	`, keepFromSequence)
	return err
}
