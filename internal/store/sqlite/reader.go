package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"levelbot/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backtests and level restore.
// It implements model.CandleSource.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Candles returns the stored candles of symbol/interval with ts >= fromMs,
// ordered by timestamp ascending.
func (r *Reader) Candles(ctx context.Context, symbol, interval string, fromMs int64) ([]model.Candle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, COALESCE(volume, 0)
		FROM candles
		WHERE symbol = ? AND interval = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, interval, fromMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadCandles is Candles without a context.
func (r *Reader) ReadCandles(symbol, interval string, fromMs int64) ([]model.Candle, error) {
	return r.Candles(context.Background(), symbol, interval, fromMs)
}

// Symbols lists the symbols stored for interval.
func (r *Reader) Symbols(interval string) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM candles WHERE interval = ? ORDER BY symbol`, interval)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadLatestLevels loads the most recent level snapshot of symbol.
// Returns nil, nil when none was saved.
func (r *Reader) ReadLatestLevels(symbol string) ([]model.Level, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM level_snapshots
		WHERE symbol = ?
		ORDER BY id DESC
		LIMIT 1
	`, symbol).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read level snapshot: %w", err)
	}

	var levels []model.Level
	if err := json.Unmarshal([]byte(data), &levels); err != nil {
		return nil, fmt.Errorf("unmarshal level snapshot: %w", err)
	}
	return levels, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
