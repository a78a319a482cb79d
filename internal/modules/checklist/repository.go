package checklist

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// SQLiteStore is a Store backed by a SQLite table. State is encoded with
// msgpack so map keys survive without column churn when checklist
// templates change.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore creates the mirror table if needed and returns the store.
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) (*SQLiteStore, error) {
	schema := `CREATE TABLE IF NOT EXISTS checklist_mirror (
		deal_id TEXT PRIMARY KEY,
		state BLOB NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create checklist_mirror table: %w", err)
	}
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("repo", "checklist_mirror").Logger(),
	}, nil
}

// Get returns the mirrored state for a deal, or nil when none is held.
func (s *SQLiteStore) Get(dealID string) (*State, error) {
	var blob []byte
	err := s.db.QueryRow(
		`SELECT state FROM checklist_mirror WHERE deal_id = ?`, dealID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror for deal %s: %w", dealID, err)
	}

	var state State
	if err := msgpack.Unmarshal(blob, &state); err != nil {
		// A corrupt row is dropped rather than returned. The CRM copy
		// is authoritative and will repopulate the mirror on next save.
		s.log.Warn().Err(err).Str("deal_id", dealID).Msg("Dropping corrupt mirror row")
		_ = s.Delete(dealID)
		return nil, nil
	}
	return &state, nil
}

// Put upserts the mirrored state for a deal.
func (s *SQLiteStore) Put(dealID string, state *State) error {
	blob, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for deal %s: %w", dealID, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO checklist_mirror (deal_id, state, version, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(deal_id) DO UPDATE SET
		   state = excluded.state,
		   version = excluded.version,
		   updated_at = excluded.updated_at`,
		dealID, blob, state.Version, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mirror for deal %s: %w", dealID, err)
	}
	return nil
}

// Delete removes the mirrored state for a deal.
func (s *SQLiteStore) Delete(dealID string) error {
	_, err := s.db.Exec(`DELETE FROM checklist_mirror WHERE deal_id = ?`, dealID)
	if err != nil {
		return fmt.Errorf("failed to delete mirror for deal %s: %w", dealID, err)
	}
	return nil
}

// ListDealIDs returns the deal IDs with mirrored state.
func (s *SQLiteStore) ListDealIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT deal_id FROM checklist_mirror ORDER BY deal_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mirror rows: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan mirror row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirror rows: %w", err)
	}
	return ids, nil
}
