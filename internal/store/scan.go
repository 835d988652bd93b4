package store

import "time"

// RecordScanCompleted updates scan metadata for a symbol after a full
// analysis completes.
func (s *Store) RecordScanCompleted(symbol string, ts time.Time) error {
	return s.withWriteRetry(func() error {
		_, err := s.trades.Exec(`
			INSERT INTO scan_metadata (symbol, last_scan_at, last_scan_date)
			VALUES (?,?,?)
			ON CONFLICT(symbol) DO UPDATE SET last_scan_at=excluded.last_scan_at, last_scan_date=excluded.last_scan_date`,
			symbol, ts.UTC().Format(time.RFC3339Nano), ts.Format("2006-01-02"),
		)
		return err
	})
}

// ScanRecord is the stored (timestamp, date) pair for a symbol's most
// recent completed full analysis.
type ScanRecord struct {
	LastScanAt   time.Time
	LastScanDate string
}

// LastScan returns the stored scan record, or ok=false if absent.
func (s *Store) LastScan(symbol string) (rec ScanRecord, ok bool, err error) {
	row := s.trades.QueryRow(`SELECT last_scan_at, last_scan_date FROM scan_metadata WHERE symbol = ?`, symbol)
	var ts string
	if scanErr := row.Scan(&ts, &rec.LastScanDate); scanErr != nil {
		return ScanRecord{}, false, nil
	}
	rec.LastScanAt, _ = time.Parse(time.RFC3339Nano, ts)
	return rec, true, nil
}
