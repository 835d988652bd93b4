package store

import (
	"database/sql"
	"time"

	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// SaveContext writes the persistent mirror of a daily ContextEntry.
func (s *Store) SaveContext(entry types.ContextEntry) error {
	return s.withWriteRetry(func() error {
		_, err := s.context.Exec(`
			INSERT INTO macro_context (symbol, date, macro_context, fundamentals, fetched_at)
			VALUES (?,?,?,?,?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				macro_context=excluded.macro_context, fundamentals=excluded.fundamentals, fetched_at=excluded.fetched_at`,
			entry.Symbol, entry.Date, entry.MacroContext, entry.Fundamentals,
			entry.FetchedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// LoadContext returns the persisted context entry for (symbol, date), if any.
func (s *Store) LoadContext(symbol, date string) (types.ContextEntry, bool, error) {
	row := s.context.QueryRow(`
		SELECT symbol, date, macro_context, fundamentals, fetched_at
		FROM macro_context WHERE symbol = ? AND date = ?`, symbol, date)

	var e types.ContextEntry
	var fetchedAt string
	if err := row.Scan(&e.Symbol, &e.Date, &e.MacroContext, &e.Fundamentals, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return types.ContextEntry{}, false, nil
		}
		return types.ContextEntry{}, false, err
	}
	e.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
	return e, true, nil
}

// SaveAdapterCache persists one macro adapter's raw payload under its own
// cache horizon, independent of the combined context text.
func (s *Store) SaveAdapterCache(adapter, key, payload string) error {
	return s.withWriteRetry(func() error {
		_, err := s.fundamentals.Exec(`
			INSERT INTO adapter_cache (adapter, cache_key, payload, fetched_at)
			VALUES (?,?,?,?)
			ON CONFLICT(adapter, cache_key) DO UPDATE SET payload=excluded.payload, fetched_at=excluded.fetched_at`,
			adapter, key, payload, time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// LoadAdapterCache returns the cached payload and its age, if present.
func (s *Store) LoadAdapterCache(adapter, key string) (payload string, age time.Duration, ok bool) {
	row := s.fundamentals.QueryRow(`SELECT payload, fetched_at FROM adapter_cache WHERE adapter=? AND cache_key=?`, adapter, key)
	var fetchedAt string
	if err := row.Scan(&payload, &fetchedAt); err != nil {
		return "", 0, false
	}
	t, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return "", 0, false
	}
	return payload, time.Since(t), true
}
