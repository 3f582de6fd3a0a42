package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"levelbot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "signalbot"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader reads what Writer publishes: level snapshots, signal and trade
// streams, and live candles consumed through a consumer group.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	r := NewReaderWithClient(client, cfg)
	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, r.consumerGroup, r.consumerName)
	return r, nil
}

// NewReaderWithClient wraps an existing client without pinging it.
func NewReaderWithClient(client *goredis.Client, cfg ReaderConfig) *Reader {
	group := cfg.ConsumerGroup
	if group == "" {
		group = "signalbot"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}
	return &Reader{client: client, consumerGroup: group, consumerName: consumer}
}

// LatestLevels returns the cached level snapshot of symbol. A missing key
// yields an empty slice.
func (r *Reader) LatestLevels(ctx context.Context, symbol string) ([]model.Level, error) {
	data, err := r.client.Get(ctx, LevelsKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get levels %s: %w", symbol, err)
	}
	var levels []model.Level
	if err := json.Unmarshal(data, &levels); err != nil {
		return nil, fmt.Errorf("unmarshal levels %s: %w", symbol, err)
	}
	return levels, nil
}

// RecentSignals returns up to n signals of symbol, newest first.
func (r *Reader) RecentSignals(ctx context.Context, symbol string, n int64) ([]model.SignalMatch, error) {
	msgs, err := r.client.XRevRangeN(ctx, SignalStreamKey(symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange signals %s: %w", symbol, err)
	}
	out := make([]model.SignalMatch, 0, len(msgs))
	for _, msg := range msgs {
		var m model.SignalMatch
		if decodeMessage(msg, &m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// RecentTrades returns up to n trade events of symbol, newest first. A trade
// appears once when opened and again when it resolves.
func (r *Reader) RecentTrades(ctx context.Context, symbol string, n int64) ([]model.Trade, error) {
	msgs, err := r.client.XRevRangeN(ctx, TradeStreamKey(symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange trades %s: %w", symbol, err)
	}
	out := make([]model.Trade, 0, len(msgs))
	for _, msg := range msgs {
		var t model.Trade
		if decodeMessage(msg, &t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Trade returns the latest stored state of one trade.
func (r *Reader) Trade(ctx context.Context, id string) (model.Trade, bool, error) {
	var t model.Trade
	data, err := r.client.Get(ctx, TradeKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return t, false, nil
	}
	if err != nil {
		return t, false, fmt.Errorf("get trade %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, false, fmt.Errorf("unmarshal trade %s: %w", id, err)
	}
	return t, true, nil
}

// EnsureConsumerGroup creates the consumer group on streams if missing.
// Fresh groups start at "$" (only new messages).
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeCandles reads closed candles from candle streams with XREADGROUP
// and sends them to out. Blocks until ctx is cancelled.
func (r *Reader) ConsumeCandles(ctx context.Context, streams []string, out chan<- model.Bar) error {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			symbol, interval, ok := ParseCandleStreamKey(stream.Stream)
			for _, msg := range stream.Messages {
				var c model.Candle
				if !ok || !decodeMessage(msg, &c) {
					// ACK bad messages so they are not redelivered forever
					r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
					continue
				}

				select {
				case out <- model.Bar{Symbol: symbol, Interval: interval, Candle: c}:
				case <-ctx.Done():
					return ctx.Err()
				}
				r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
}

// ParseCandleStreamKey splits "candle:{interval}:{symbol}".
func ParseCandleStreamKey(key string) (symbol, interval string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "candle" || parts[1] == "latest" {
		return "", "", false
	}
	return parts[2], parts[1], true
}

func decodeMessage(msg goredis.XMessage, v interface{}) bool {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		log.Printf("[redis-reader] unmarshal %s: %v", msg.ID, err)
		return false
	}
	return true
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
