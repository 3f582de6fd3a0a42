package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"levelbot/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	keepSnapshots     = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/levels.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It implements model.CandleWriter and model.LevelStore.
type Writer struct {
	db *sql.DB

	// OnCommit is called with the duration of every committed batch in Run.
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			PRIMARY KEY (symbol, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS level_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_level_snapshots_symbol ON level_snapshots(symbol, id);
	`)
	return err
}

// WriteCandles upserts candles for symbol/interval in one transaction.
func (w *Writer) WriteCandles(symbol, interval string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	bars := make([]model.Bar, len(candles))
	for i, c := range candles {
		bars[i] = model.Bar{Symbol: symbol, Interval: interval, Candle: c}
	}
	return w.insertBatch(bars)
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			d := time.Since(start)
			log.Printf("[sqlite] committed %d candles in %v", len(batch), d)
			if w.OnCommit != nil {
				w.OnCommit(d)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of bars in a single transaction.
func (w *Writer) insertBatch(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		c := b.Candle
		_, err := stmt.Exec(b.Symbol, b.Interval, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s %s ts=%d: %w", b.Symbol, b.Interval, c.Timestamp, err)
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored candle timestamp (ms) for a
// symbol and interval. Returns 0 if no candles exist.
func (w *Writer) GetLastTimestamp(symbol, interval string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// SaveLevels stores a JSON snapshot of the level arena for symbol and keeps
// the newest few snapshots per symbol.
func (w *Writer) SaveLevels(ctx context.Context, symbol string, levels []model.Level) error {
	data, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("marshal levels: %w", err)
	}

	_, err = w.db.ExecContext(ctx,
		`INSERT INTO level_snapshots (symbol, data, created_at) VALUES (?, ?, ?)`,
		symbol, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite insert level snapshot: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		DELETE FROM level_snapshots
		WHERE symbol = ? AND id NOT IN (
			SELECT id FROM level_snapshots WHERE symbol = ? ORDER BY id DESC LIMIT ?
		)`, symbol, symbol, keepSnapshots)
	if err != nil {
		log.Printf("[sqlite] prune level snapshots warning: %v", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
