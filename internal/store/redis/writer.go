package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"levelbot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	signalStreamMaxLen = 5000
	tradeStreamMaxLen  = 5000
	candleStreamMaxLen = 2000
	defaultLatestTTL   = 30 * time.Minute
	tradeTTL           = 7 * 24 * time.Hour
)

// Key builders. Every key is scoped by symbol so one Redis serves many bots.
func SignalStreamKey(symbol string) string  { return "signals:" + symbol }
func SignalChannel(symbol string) string    { return "pub:signal:" + symbol }
func TradeStreamKey(symbol string) string   { return "trades:" + symbol }
func TradeKey(id string) string             { return "trade:" + id }
func TradeChannel(symbol string) string     { return "pub:trade:" + symbol }
func LevelsKey(symbol string) string        { return "levels:latest:" + symbol }
func LevelsChannel(symbol string) string    { return "pub:levels:" + symbol }
func CandleStreamKey(symbol, interval string) string {
	return "candle:" + interval + ":" + symbol
}
func CandleLatestKey(symbol, interval string) string {
	return "candle:" + interval + ":latest:" + symbol
}
func CandleChannel(symbol, interval string) string {
	return "pub:candle:" + interval + ":" + symbol
}

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures   int           // consecutive failures before the breaker opens (default 5)
	CoolDown      time.Duration // breaker cool-down (default 10s)
	MaxBufferSize int           // writes kept while the breaker is open (default 10000)

	// Optional hooks, for metrics.
	OnStateChange func(from, to State)
	OnBuffer      func()
	OnFlush       func(count int)
}

// Writer publishes signals, trades, level snapshots and live candles to Redis
// with XADD/SET/PUBLISH pipelines. Pipelines run through a circuit breaker;
// while it is open, writes are buffered and replayed once it closes.
//
// Writer implements model.SignalSink, model.TradeSink and model.LevelStore.
type Writer struct {
	client *goredis.Client
	cb     *CircuitBreaker
	buf    *outageBuffer
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker returns the circuit breaker guarding the writer.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig) *Writer {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 10 * time.Second
	}
	w := &Writer{
		client: client,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.CoolDown),
	}
	w.cb.OnStateChange = cfg.OnStateChange
	w.buf = newOutageBuffer(w, cfg.MaxBufferSize)
	w.buf.OnBuffer = cfg.OnBuffer
	w.buf.OnFlush = cfg.OnFlush
	return w
}

// PublishSignal appends m to the symbol's signal stream and publishes it.
func (w *Writer) PublishSignal(ctx context.Context, symbol string, m model.SignalMatch) error {
	return w.write(ctx, pendingWrite{Kind: kindSignal, Symbol: symbol, Data: m.JSON()})
}

// PublishTrade stores the latest state of t, appends it to the symbol's
// trade stream and publishes it.
func (w *Writer) PublishTrade(ctx context.Context, t model.Trade) error {
	return w.write(ctx, pendingWrite{Kind: kindTrade, Symbol: t.Symbol, Key: t.ID, Data: t.JSON()})
}

// SaveLevels replaces the cached level snapshot of symbol and publishes it.
func (w *Writer) SaveLevels(ctx context.Context, symbol string, levels []model.Level) error {
	data, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("marshal levels: %w", err)
	}
	return w.write(ctx, pendingWrite{Kind: kindLevels, Symbol: symbol, Data: data})
}

// WriteCandle stores a closed live candle: SET latest, XADD, PUBLISH.
func (w *Writer) WriteCandle(ctx context.Context, symbol, interval string, c model.Candle) error {
	return w.write(ctx, pendingWrite{Kind: kindCandle, Symbol: symbol, Key: interval, Data: c.JSON()})
}

// write sends pw through the breaker, buffering it when the breaker is open.
func (w *Writer) write(ctx context.Context, pw pendingWrite) error {
	err := w.cb.Execute(func() error { return w.exec(ctx, pw) })
	if err == ErrCircuitOpen {
		w.buf.add(pw)
		return nil
	}
	return err
}

// exec runs the pipeline for one write.
func (w *Writer) exec(ctx context.Context, pw pendingWrite) error {
	data := string(pw.Data)
	pipe := w.client.Pipeline()

	switch pw.Kind {
	case kindSignal:
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: SignalStreamKey(pw.Symbol),
			MaxLen: signalStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, SignalChannel(pw.Symbol), data)

	case kindTrade:
		pipe.Set(ctx, TradeKey(pw.Key), data, tradeTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: TradeStreamKey(pw.Symbol),
			MaxLen: tradeStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, TradeChannel(pw.Symbol), data)

	case kindLevels:
		pipe.Set(ctx, LevelsKey(pw.Symbol), data, 0)
		pipe.Publish(ctx, LevelsChannel(pw.Symbol), data)

	case kindCandle:
		interval := pw.Key
		pipe.Set(ctx, CandleLatestKey(pw.Symbol, interval), data, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: CandleStreamKey(pw.Symbol, interval),
			MaxLen: candleStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, CandleChannel(pw.Symbol, interval), data)

	default:
		return fmt.Errorf("redis: unknown write kind %q", pw.Kind)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis %s pipeline for %s: %w", pw.Kind, pw.Symbol, err)
	}
	return nil
}

// Pending returns the number of writes buffered during an outage.
func (w *Writer) Pending() int { return w.buf.len() }

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
