package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"levelbot/internal/model"
)

// Journal persists trades and signals to SQLite for analysis and audit.
// It implements model.TradeSink and model.SignalSink.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id           TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		direction    TEXT NOT NULL,
		pattern      TEXT NOT NULL,
		entry        REAL NOT NULL,
		stop         REAL NOT NULL,
		take         REAL NOT NULL,
		initial_stop REAL NOT NULL,
		risk         REAL NOT NULL,
		stop_moved   INTEGER NOT NULL DEFAULT 0,
		level_price  REAL NOT NULL,
		level_kind   TEXT NOT NULL,
		opened_ts    INTEGER NOT NULL,
		result       TEXT NOT NULL DEFAULT '',
		closed_ts    INTEGER,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, opened_ts);

	CREATE TABLE IF NOT EXISTS signals (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol      TEXT NOT NULL,
		pattern     TEXT NOT NULL,
		direction   TEXT NOT NULL,
		candle_ts   INTEGER NOT NULL,
		close       REAL NOT NULL,
		level_price REAL NOT NULL,
		level_kind  TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, candle_ts);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// PublishTrade upserts t. Calling it again when the trade closes updates the
// stop, result and close time in place.
func (j *Journal) PublishTrade(ctx context.Context, t model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var closedTs sql.NullInt64
	if t.ClosedAt != nil {
		closedTs = sql.NullInt64{Int64: t.ClosedAt.Timestamp, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (id, symbol, direction, pattern, entry, stop, take, initial_stop, risk,
		                     stop_moved, level_price, level_kind, opened_ts, result, closed_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   stop = excluded.stop,
		   stop_moved = excluded.stop_moved,
		   result = excluded.result,
		   closed_ts = excluded.closed_ts,
		   updated_at = CURRENT_TIMESTAMP`,
		t.ID, t.Symbol, string(t.Direction), string(t.Pattern),
		t.EntryPrice, t.StopPrice, t.TakePrice, t.InitialStop, t.RiskAmount,
		t.StopMoved, t.Level.Price, string(t.Level.Kind), t.OpenedAt.Timestamp,
		string(t.Result), closedTs,
	)
	if err != nil {
		return fmt.Errorf("journal trade %s: %w", t.ID, err)
	}
	return nil
}

// PublishSignal appends a signal row.
func (j *Journal) PublishSignal(ctx context.Context, symbol string, m model.SignalMatch) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO signals (symbol, pattern, direction, candle_ts, close, level_price, level_kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		symbol, string(m.Pattern), string(m.Direction), m.Candle.Timestamp,
		m.Candle.Close, m.Level.Price, string(m.Level.Kind),
	)
	if err != nil {
		return fmt.Errorf("journal signal: %w", err)
	}
	return nil
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Pattern    string  `json:"pattern"`
	Entry      float64 `json:"entry"`
	Stop       float64 `json:"stop"`
	Take       float64 `json:"take"`
	Risk       float64 `json:"risk"`
	StopMoved  bool    `json:"stop_moved"`
	LevelPrice float64 `json:"level_price"`
	OpenedAt   string  `json:"opened_at"`
	Result     string  `json:"result"`
	ClosedAt   string  `json:"closed_at,omitempty"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, symbol, direction, pattern, entry, stop, take, risk, stop_moved,
		        level_price, opened_ts, result, closed_ts
		 FROM trades ORDER BY opened_ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var (
			t        TradeRecord
			openedTs int64
			closedTs sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Direction, &t.Pattern, &t.Entry, &t.Stop,
			&t.Take, &t.Risk, &t.StopMoved, &t.LevelPrice, &openedTs, &t.Result, &closedTs); err != nil {
			continue
		}
		t.OpenedAt = time.UnixMilli(openedTs).UTC().Format(time.RFC3339)
		if closedTs.Valid {
			t.ClosedAt = time.UnixMilli(closedTs.Int64).UTC().Format(time.RFC3339)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CountSignals returns the number of journaled signals for symbol.
func (j *Journal) CountSignals(symbol string) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM signals WHERE symbol = ?`, symbol).Scan(&n)
	return n, err
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
