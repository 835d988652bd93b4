// Package store provides transactional persistence of trades, watches,
// scan metadata and the daily macro-context cache. All writes go through
// a single serialised path; reads are unrestricted.
package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config configures the Store's on-disk layout.
type Config struct {
	DataDir          string
	BusyTimeout      time.Duration
	WriteRetries     int
	WriteRetryDelay  time.Duration
}

// DefaultConfig returns sensible defaults for Config.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:         dataDir,
		BusyTimeout:     5 * time.Second,
		WriteRetries:    3,
		WriteRetryDelay: 50 * time.Millisecond,
	}
}

// Store is the single-writer SQLite-backed persistence layer.
type Store struct {
	logger *zap.Logger
	config Config

	// writeMu serialises every mutating statement across all three
	// databases, matching the "single serialised writer" contract.
	writeMu sync.Mutex

	trades  *sql.DB
	context *sql.DB
	fundamentals *sql.DB
}

// Open creates (or attaches to) the on-disk databases and applies
// migrations idempotently.
func Open(logger *zap.Logger, config Config) (*Store, error) {
	s := &Store{logger: logger.Named("store"), config: config}

	var err error
	s.trades, err = openDB(filepath.Join(config.DataDir, "trades.db"), config.BusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open trades.db: %w", err)
	}
	s.context, err = openDB(filepath.Join(config.DataDir, "market_context_cache.db"), config.BusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open market_context_cache.db: %w", err)
	}
	s.fundamentals, err = openDB(filepath.Join(config.DataDir, "fundamentals_cache.db"), config.BusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open fundamentals_cache.db: %w", err)
	}

	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func openDB(path string, busyTimeout time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite tolerates exactly one writer; a single connection avoids
	// SQLITE_BUSY under our own lock and is cheap for a single process.
	db.SetMaxOpenConns(1)
	return db, nil
}

// init creates tables and applies additive schema migrations.
func (s *Store) init() error {
	schemas := []struct {
		db  *sql.DB
		ddl []string
	}{
		{s.trades, tradesSchema},
		{s.context, contextSchema},
		{s.fundamentals, fundamentalsSchema},
	}
	for _, sc := range schemas {
		for _, stmt := range sc.ddl {
			if _, err := sc.db.Exec(stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
	}
	return s.applyMigrations()
}

var tradesSchema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		bias TEXT NOT NULL,
		entry_min REAL, entry_max REAL, stop_loss REAL, tp1 REAL, tp2 REAL,
		sl_pips REAL, tp1_pips REAL, tp2_pips REAL,
		ticket_tp1 INTEGER, ticket_tp2 INTEGER,
		lots_tp1 REAL, lots_tp2 REAL,
		actual_entry REAL, actual_sl REAL, actual_tp1 REAL, actual_tp2 REAL,
		checklist_score INTEGER, confidence TEXT, entry_status TEXT,
		price_zone TEXT, trend_alignment TEXT, counter_trend INTEGER,
		tp1_hit INTEGER NOT NULL DEFAULT 0,
		tp2_hit INTEGER NOT NULL DEFAULT 0,
		sl_hit INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT 'open',
		pnl_pips REAL NOT NULL DEFAULT 0,
		pnl_money REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		executed_at TEXT,
		closed_at TEXT,
		post_trade_review TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_outcome ON trades(outcome)`,
	`CREATE TABLE IF NOT EXISTS scan_metadata (
		symbol TEXT PRIMARY KEY,
		last_scan_at TEXT NOT NULL,
		last_scan_date TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS watch_trades_persist (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

var contextSchema = []string{
	`CREATE TABLE IF NOT EXISTS macro_context (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		macro_context TEXT NOT NULL,
		fundamentals TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (symbol, date)
	)`,
}

var fundamentalsSchema = []string{
	`CREATE TABLE IF NOT EXISTS adapter_cache (
		adapter TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		payload TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (adapter, cache_key)
	)`,
}

// migrations lists additive ALTER TABLE statements applied in order;
// errors from a column that already exists are tolerated, matching the
// original system's error-tolerant migration loop.
var migrations = []string{
	`ALTER TABLE trades ADD COLUMN post_trade_review TEXT`,
}

func (s *Store) applyMigrations() error {
	for _, stmt := range migrations {
		if _, err := s.trades.Exec(stmt); err != nil {
			// SQLite reports "duplicate column name" for an already-applied
			// migration; anything else is a real failure.
			if !isDuplicateColumnErr(err) {
				return fmt.Errorf("migration %q: %w", stmt, err)
			}
		}
	}
	return nil
}

func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

// Close releases the underlying database handles.
func (s *Store) Close() error {
	for _, db := range []*sql.DB{s.trades, s.context, s.fundamentals} {
		if db != nil {
			_ = db.Close()
		}
	}
	return nil
}

// withWriteRetry serialises and retries a mutating function a bounded
// number of times on transient SQLITE_BUSY conditions.
func (s *Store) withWriteRetry(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for attempt := 0; attempt <= s.config.WriteRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusyErr(err) {
			return err
		}
		time.Sleep(s.config.WriteRetryDelay)
	}
	return fmt.Errorf("after %d retries: %w", s.config.WriteRetries, err)
}

func isBusyErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

func nullFloat(d decimal.Decimal) sql.NullFloat64 {
	if d.IsZero() {
		return sql.NullFloat64{Float64: 0, Valid: false}
	}
	f, _ := d.Float64()
	return sql.NullFloat64{Float64: f, Valid: true}
}

func decFromNull(n sql.NullFloat64) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return decimal.NewFromFloat(n.Float64)
}

func timeOrNil(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTimeOrNil(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
