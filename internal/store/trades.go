package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// LogTradeQueued inserts a TradeRecord in queued status. Idempotent on id:
// re-inserting the same id is a no-op rather than an error.
func (s *Store) LogTradeQueued(record types.TradeRecord) error {
	return s.withWriteRetry(func() error {
		_, err := s.trades.Exec(`
			INSERT INTO trades (
				id, symbol, bias, entry_min, entry_max, stop_loss, tp1, tp2,
				sl_pips, tp1_pips, tp2_pips, checklist_score, confidence,
				entry_status, price_zone, trend_alignment, counter_trend,
				status, outcome, created_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO NOTHING`,
			record.ID, record.Symbol, string(record.Bias),
			f(record.EntryMin), f(record.EntryMax), f(record.StopLoss), f(record.TP1), f(record.TP2),
			f(record.SLPips), f(record.TP1Pips), f(record.TP2Pips),
			record.ChecklistScore, string(record.Confidence),
			string(record.EntryStatus), record.PriceZone, record.TrendAlignment, boolInt(record.CounterTrend),
			string(types.TradeStatusQueued), string(types.OutcomeOpen),
			record.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// LogTradeExecuted advances a trade to executed or failed and records
// the broker-side levels and tickets. Idempotent: replaying the same
// payload when the record is already in that status produces no delta.
func (s *Store) LogTradeExecuted(id string, report types.TradeExecutionReport) error {
	status := types.TradeStatusExecuted
	if report.Status == "failed" {
		status = types.TradeStatusFailed
	}
	return s.withWriteRetry(func() error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err := s.trades.Exec(`
			UPDATE trades SET
				status = ?, ticket_tp1 = ?, ticket_tp2 = ?, lots_tp1 = ?, lots_tp2 = ?,
				actual_entry = ?, actual_sl = ?, actual_tp1 = ?, actual_tp2 = ?,
				executed_at = COALESCE(executed_at, ?)
			WHERE id = ?`,
			string(status), report.TicketTP1, report.TicketTP2, f(report.LotsTP1), f(report.LotsTP2),
			f(report.ActualEntry), f(report.ActualSL), f(report.ActualTP1), f(report.ActualTP2),
			now, id,
		)
		return err
	})
}

// closeState mirrors the resolved/unresolved columns needed to run the
// close algorithm from spec §4.1.
type closeState struct {
	tp1Hit, tp2Hit, slHit, cancelled bool
	slPips, tp1Pips, tp2Pips         decimal.Decimal
	pnlMoney                         decimal.Decimal
	status                           types.TradeRecordStatus
}

// LogTradeClosed runs the critical close algorithm: monetary P&L
// accumulates on every call; pip P&L and outcome are derived once, on
// resolution.
//
//	SL only            -> -sl_pips,           loss
//	TP1 and TP2         -> tp1_pips+tp2_pips,  full_win
//	TP1 then SL (runner) -> tp1_pips,          partial_win
//	cancelled            -> 0,                 cancelled
func (s *Store) LogTradeClosed(report types.TradeCloseReport) error {
	return s.withWriteRetry(func() error {
		row := s.trades.QueryRow(`
			SELECT tp1_hit, tp2_hit, sl_hit, cancelled, sl_pips, tp1_pips, tp2_pips, pnl_money, status
			FROM trades WHERE id = ?`, report.TradeID)

		var cs closeState
		var tp1i, tp2i, sli, canci int
		var slP, tp1P, tp2P, pnlMoney sql.NullFloat64
		var status string
		if err := row.Scan(&tp1i, &tp2i, &sli, &canci, &slP, &tp1P, &tp2P, &pnlMoney, &status); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("no such trade: %s", report.TradeID)
			}
			return err
		}
		cs.tp1Hit, cs.tp2Hit, cs.slHit, cs.cancelled = tp1i != 0, tp2i != 0, sli != 0, canci != 0
		cs.slPips, cs.tp1Pips, cs.tp2Pips = decFromNull(slP), decFromNull(tp1P), decFromNull(tp2P)
		cs.pnlMoney = decFromNull(pnlMoney)
		cs.status = types.TradeRecordStatus(status)

		// Step 1: accumulate monetary P&L on every call, including late
		// manual closes after resolution (documented open question, §9).
		cs.pnlMoney = cs.pnlMoney.Add(report.Profit)

		// Step 2: set the corresponding hit flag / cancellation.
		switch report.Reason {
		case types.CloseReasonTP1:
			cs.tp1Hit = true
		case types.CloseReasonTP2:
			cs.tp2Hit = true
		case types.CloseReasonSL:
			cs.slHit = true
		case types.CloseReasonCancelled:
			cs.cancelled = true
		}

		alreadyResolved := cs.status == types.TradeStatusClosed

		// Step 3: resolved iff sl_hit OR (tp1_hit AND tp2_hit) OR cancelled.
		resolvedNow := cs.slHit || (cs.tp1Hit && cs.tp2Hit) || cs.cancelled

		var outcome types.TradeOutcome
		var pnlPips decimal.Decimal
		var closedAt *string

		if alreadyResolved {
			// Re-derive nothing: a second report after resolution only adds
			// money, never re-transitions pips/outcome.
			now := time.Now().UTC().Format(time.RFC3339Nano)
			closedAt = &now
			_, err := s.trades.Exec(`
				UPDATE trades SET tp1_hit=?, tp2_hit=?, sl_hit=?, cancelled=?, pnl_money=?
				WHERE id = ?`,
				boolInt(cs.tp1Hit), boolInt(cs.tp2Hit), boolInt(cs.slHit), boolInt(cs.cancelled),
				fd(cs.pnlMoney), report.TradeID,
			)
			return err
		}

		if resolvedNow {
			// Step 4: derive pip P&L and outcome.
			switch {
			case cs.cancelled:
				pnlPips, outcome = decimal.Zero, types.OutcomeCancelled
			case cs.slHit && !cs.tp1Hit && !cs.tp2Hit:
				pnlPips, outcome = cs.slPips.Neg(), types.OutcomeLoss
			case cs.tp1Hit && cs.tp2Hit:
				pnlPips, outcome = cs.tp1Pips.Add(cs.tp2Pips), types.OutcomeFullWin
			case cs.tp1Hit && cs.slHit:
				pnlPips, outcome = cs.tp1Pips, types.OutcomePartialWin
			default:
				pnlPips, outcome = decimal.Zero, types.OutcomeOpen
			}
			now := time.Now().UTC().Format(time.RFC3339Nano)
			closedAt = &now

			_, err := s.trades.Exec(`
				UPDATE trades SET
					tp1_hit=?, tp2_hit=?, sl_hit=?, cancelled=?,
					pnl_money=?, pnl_pips=?, outcome=?, status=?, closed_at=?
				WHERE id = ?`,
				boolInt(cs.tp1Hit), boolInt(cs.tp2Hit), boolInt(cs.slHit), boolInt(cs.cancelled),
				fd(cs.pnlMoney), fd(pnlPips), string(outcome), string(types.TradeStatusClosed), *closedAt,
				report.TradeID,
			)
			return err
		}

		// Step 5 (partial, unresolved): persist accumulated money and hit
		// flags only; status/outcome remain open.
		_, err := s.trades.Exec(`
			UPDATE trades SET tp1_hit=?, tp2_hit=?, sl_hit=?, cancelled=?, pnl_money=?
			WHERE id = ?`,
			boolInt(cs.tp1Hit), boolInt(cs.tp2Hit), boolInt(cs.slHit), boolInt(cs.cancelled),
			fd(cs.pnlMoney), report.TradeID,
		)
		return err
	})
}

// CleanupStaleOpenTrades force-closes any outcome=open record older than
// maxAge, marking it cancelled so the books balance.
func (s *Store) CleanupStaleOpenTrades(maxAge time.Duration, logger *zap.Logger) (int, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339Nano)
	var affected int
	err := s.withWriteRetry(func() error {
		res, err := s.trades.Exec(`
			UPDATE trades SET status=?, outcome=?, closed_at=?
			WHERE outcome = 'open' AND created_at < ?`,
			string(types.TradeStatusClosed), string(types.OutcomeCancelled),
			time.Now().UTC().Format(time.RFC3339Nano), cutoff,
		)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		affected = int(n)
		return nil
	})
	if affected > 0 && logger != nil {
		logger.Warn("force-closed stale open trades", zap.Int("count", affected))
	}
	return affected, err
}

// RecentTrades returns up to limit most recent trades, optionally filtered
// by symbol.
func (s *Store) RecentTrades(symbol string, limit int) ([]types.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.trades.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// OpenTrades returns every trade whose outcome is still "open".
func (s *Store) OpenTrades() ([]types.TradeRecord, error) {
	rows, err := s.trades.Query(`SELECT `+tradeColumns+` FROM trades WHERE outcome = 'open' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// RecentClosedForPair returns the N most recent closed trades for a symbol,
// used by the feedback aggregator.
func (s *Store) RecentClosedForPair(symbol string, n int) ([]types.TradeRecord, error) {
	rows, err := s.trades.Query(`
		SELECT `+tradeColumns+` FROM trades
		WHERE symbol = ? AND status = 'closed'
		ORDER BY closed_at DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// Stats aggregates performance over the trailing `days` days, optionally
// scoped to one symbol.
type Stats struct {
	TotalTrades   int
	Wins          int
	Losses        int
	PartialWins   int
	WinRate       decimal.Decimal
	TotalPnLPips  decimal.Decimal
	TotalPnLMoney decimal.Decimal
}

// Stats computes aggregate performance for the trailing window.
func (s *Store) Stats(symbol string, days int) (Stats, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339Nano)
	query := `SELECT outcome, pnl_pips, pnl_money FROM trades WHERE status='closed' AND created_at >= ?`
	args := []any{cutoff}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	rows, err := s.trades.Query(query, args...)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var outcome string
		var pips, money sql.NullFloat64
		if err := rows.Scan(&outcome, &pips, &money); err != nil {
			return Stats{}, err
		}
		st.TotalTrades++
		st.TotalPnLPips = st.TotalPnLPips.Add(decFromNull(pips))
		st.TotalPnLMoney = st.TotalPnLMoney.Add(decFromNull(money))
		switch types.TradeOutcome(outcome) {
		case types.OutcomeFullWin:
			st.Wins++
		case types.OutcomePartialWin:
			st.PartialWins++
			st.Wins++
		case types.OutcomeLoss:
			st.Losses++
		}
	}
	if st.TotalTrades > 0 {
		st.WinRate = decimal.NewFromInt(int64(st.Wins)).Div(decimal.NewFromInt(int64(st.TotalTrades)))
	}
	return st, nil
}

// ClosedTradesSince returns every closed trade with created_at >= cutoff,
// for report rendering that needs per-pair/per-confidence breakdowns Stats
// does not aggregate.
func (s *Store) ClosedTradesSince(cutoff time.Time) ([]types.TradeRecord, error) {
	rows, err := s.trades.Query(`
		SELECT `+tradeColumns+` FROM trades
		WHERE status = 'closed' AND created_at >= ?
		ORDER BY created_at DESC`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// DailyPnL returns today's summed monetary P&L across all symbols —
// used by the Risk Gate's drawdown check.
func (s *Store) DailyPnL() (decimal.Decimal, error) {
	startOfDay := time.Now().Truncate(24 * time.Hour).UTC().Format(time.RFC3339Nano)
	row := s.trades.QueryRow(`
		SELECT COALESCE(SUM(pnl_money), 0) FROM trades WHERE created_at >= ?`, startOfDay)
	var total float64
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(total), nil
}

// OpenTradeCount returns the number of currently open trades, used by the
// Risk Gate's max-open-trades check.
func (s *Store) OpenTradeCount() (int, error) {
	row := s.trades.QueryRow(`SELECT COUNT(*) FROM trades WHERE outcome = 'open'`)
	var n int
	err := row.Scan(&n)
	return n, err
}

// ScreeningStats reports how many symbols had their most recent completed
// full analysis within the trailing `days`; it does not split has_setup
// from no-setup. This coordinator does not log screener-only calls to the trades table
// (only setups that become trades are durable), so screening stats are
// derived from scan_metadata cadence instead of a dedicated log.
func (s *Store) ScreeningStats(days int) (scans int, err error) {
	cutoff := time.Now().AddDate(0, 0, -days).UTC().Format(time.RFC3339Nano)
	row := s.trades.QueryRow(`SELECT COUNT(*) FROM scan_metadata WHERE last_scan_at >= ?`, cutoff)
	err = row.Scan(&scans)
	return scans, err
}

const tradeColumns = `
	id, symbol, bias, entry_min, entry_max, stop_loss, tp1, tp2, sl_pips, tp1_pips, tp2_pips,
	ticket_tp1, ticket_tp2, lots_tp1, lots_tp2, actual_entry, actual_sl, actual_tp1, actual_tp2,
	checklist_score, confidence, entry_status, price_zone, trend_alignment, counter_trend,
	tp1_hit, tp2_hit, sl_hit, cancelled, status, outcome, pnl_pips, pnl_money,
	created_at, executed_at, closed_at, post_trade_review`

func scanTrades(rows *sql.Rows) ([]types.TradeRecord, error) {
	var out []types.TradeRecord
	for rows.Next() {
		var r types.TradeRecord
		var bias, confidence, entryStatus, status, outcome string
		var counterTrend, tp1Hit, tp2Hit, slHit, cancelled int
		var entryMin, entryMax, stopLoss, tp1, tp2, slPips, tp1Pips, tp2Pips sql.NullFloat64
		var lotsTP1, lotsTP2, actualEntry, actualSL, actualTP1, actualTP2 sql.NullFloat64
		var pnlPips, pnlMoney sql.NullFloat64
		var createdAt string
		var executedAt, closedAt, postTradeReview sql.NullString

		if err := rows.Scan(
			&r.ID, &r.Symbol, &bias, &entryMin, &entryMax, &stopLoss, &tp1, &tp2, &slPips, &tp1Pips, &tp2Pips,
			&r.TicketTP1, &r.TicketTP2, &lotsTP1, &lotsTP2, &actualEntry, &actualSL, &actualTP1, &actualTP2,
			&r.ChecklistScore, &confidence, &entryStatus, &r.PriceZone, &r.TrendAlignment, &counterTrend,
			&tp1Hit, &tp2Hit, &slHit, &cancelled, &status, &outcome, &pnlPips, &pnlMoney,
			&createdAt, &executedAt, &closedAt, &postTradeReview,
		); err != nil {
			return nil, err
		}

		r.Bias, r.Confidence, r.EntryStatus = types.Bias(bias), types.Confidence(confidence), types.EntryStatus(entryStatus)
		r.Status, r.Outcome = types.TradeRecordStatus(status), types.TradeOutcome(outcome)
		r.CounterTrend = counterTrend != 0
		r.TP1Hit, r.TP2Hit, r.SLHit, r.Cancelled = tp1Hit != 0, tp2Hit != 0, slHit != 0, cancelled != 0
		r.EntryMin, r.EntryMax, r.StopLoss, r.TP1, r.TP2 = decFromNull(entryMin), decFromNull(entryMax), decFromNull(stopLoss), decFromNull(tp1), decFromNull(tp2)
		r.SLPips, r.TP1Pips, r.TP2Pips = decFromNull(slPips), decFromNull(tp1Pips), decFromNull(tp2Pips)
		r.LotsTP1, r.LotsTP2 = decFromNull(lotsTP1), decFromNull(lotsTP2)
		r.ActualEntry, r.ActualSL, r.ActualTP1, r.ActualTP2 = decFromNull(actualEntry), decFromNull(actualSL), decFromNull(actualTP1), decFromNull(actualTP2)
		r.PnLPips, r.PnLMoney = decFromNull(pnlPips), decFromNull(pnlMoney)
		r.PostTradeReview = postTradeReview.String

		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		r.ExecutedAt = parseTimeOrNil(executedAt)
		r.ClosedAt = parseTimeOrNil(closedAt)

		out = append(out, r)
	}
	return out, rows.Err()
}

func f(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func fd(d decimal.Decimal) float64 { return f(d) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
