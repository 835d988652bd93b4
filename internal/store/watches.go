package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// PersistWatch upserts the JSON-serialised WatchTrade used for recovery.
func (s *Store) PersistWatch(w types.WatchTrade) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return s.withWriteRetry(func() error {
		_, err := s.trades.Exec(`
			INSERT INTO watch_trades_persist (id, symbol, status, payload, updated_at)
			VALUES (?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload, updated_at=excluded.updated_at`,
			w.ID, w.Symbol, string(w.Status), string(payload), time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// DeleteWatch removes a watch's persisted row (called on any terminal status).
func (s *Store) DeleteWatch(id string) error {
	return s.withWriteRetry(func() error {
		_, err := s.trades.Exec(`DELETE FROM watch_trades_persist WHERE id = ?`, id)
		return err
	})
}

// UpdateWatchStatus updates only the status column of a persisted watch
// without requiring the full payload to be re-marshalled by the caller.
func (s *Store) UpdateWatchStatus(id string, status types.WatchStatus) error {
	return s.withWriteRetry(func() error {
		row := s.trades.QueryRow(`SELECT payload FROM watch_trades_persist WHERE id = ?`, id)
		var payload string
		if err := row.Scan(&payload); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		var w types.WatchTrade
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			return err
		}
		w.Status = status
		updated, err := json.Marshal(w)
		if err != nil {
			return err
		}
		_, err = s.trades.Exec(`
			UPDATE watch_trades_persist SET status=?, payload=?, updated_at=? WHERE id=?`,
			string(status), string(updated), time.Now().UTC().Format(time.RFC3339Nano), id,
		)
		return err
	})
}

// LoadActiveWatches returns every persisted watch whose status is
// "watching" — used only at start-up for recovery.
func (s *Store) LoadActiveWatches() ([]types.WatchTrade, error) {
	rows, err := s.trades.Query(`SELECT payload FROM watch_trades_persist WHERE status = ?`, string(types.WatchStatusWatching))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.WatchTrade
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var w types.WatchTrade
		if err := json.Unmarshal([]byte(payload), &w); err != nil {
			continue
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
