package model

import "context"

// ── Adapter Port Interfaces ──
// The engines never touch storage or the network. These interfaces describe
// what the adapters (SQLite, Redis, Binance, notifiers) provide around them.

// CandleSource supplies an ordered candle history for a symbol and interval.
type CandleSource interface {
	// Candles returns candles with Timestamp >= fromMs, oldest first.
	Candles(ctx context.Context, symbol, interval string, fromMs int64) ([]Candle, error)
}

// CandleWriter persists fetched candles.
type CandleWriter interface {
	// WriteCandles upserts candles for a symbol and interval.
	WriteCandles(symbol, interval string, candles []Candle) error

	// Close releases underlying resources.
	Close() error
}

// SignalSink receives every match that opened (or tried to open) a trade.
type SignalSink interface {
	PublishSignal(ctx context.Context, symbol string, m SignalMatch) error
}

// TradeSink receives trades when they open and again when they resolve.
type TradeSink interface {
	PublishTrade(ctx context.Context, t Trade) error
}

// LevelStore keeps the latest level snapshot per symbol.
type LevelStore interface {
	SaveLevels(ctx context.Context, symbol string, levels []Level) error
}
