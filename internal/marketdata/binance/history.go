// Package binance fetches historical klines from the Binance spot REST API.
package binance

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"levelbot/internal/model"

	gobinance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

// MaxPageSize is the largest kline page the REST endpoint returns.
const MaxPageSize = 1000

// PageFunc fetches one page of klines starting at startMs.
type PageFunc func(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]*gobinance.Kline, error)

// Config configures the fetcher.
type Config struct {
	APIKey    string
	SecretKey string

	RequestsPerSecond float64 // default 10
	MaxRetries        int     // default 3
}

// Fetcher pages through klines with rate limiting and exponential backoff.
// Only closed klines are returned.
type Fetcher struct {
	page       PageFunc
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

// NewFetcher creates a fetcher backed by the go-binance spot client.
func NewFetcher(cfg Config) *Fetcher {
	client := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	page := func(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]*gobinance.Kline, error) {
		return client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startMs).
			Limit(limit).
			Do(ctx)
	}
	return NewFetcherWithPage(page, cfg)
}

// NewFetcherWithPage creates a fetcher over an arbitrary page source.
func NewFetcherWithPage(page PageFunc, cfg Config) *Fetcher {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Fetcher{
		page:       page,
		limiter:    rate.NewLimiter(rate.Limit(rps), 20),
		maxRetries: retries,
		backoff:    100 * time.Millisecond,
		now:        time.Now,
	}
}

// FetchRange returns closed candles with open time in [startMs, endMs),
// oldest first.
func (f *Fetcher) FetchRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]model.Candle, error) {
	nowMs := f.now().UnixMilli()
	var out []model.Candle

	for cursor := startMs; cursor < endMs; {
		klines, err := f.fetchPage(ctx, symbol, interval, cursor)
		if err != nil {
			return out, err
		}
		if len(klines) == 0 {
			break
		}

		last := cursor
		for _, k := range klines {
			last = k.OpenTime
			if k.OpenTime < cursor || k.OpenTime >= endMs || k.CloseTime >= nowMs {
				continue
			}
			c, err := ToCandle(k)
			if err != nil {
				log.Printf("[binance] skipping kline %s %d: %v", symbol, k.OpenTime, err)
				continue
			}
			out = append(out, c)
		}

		if len(klines) < MaxPageSize || last < cursor {
			break
		}
		cursor = last + 1
	}
	return out, nil
}

// FetchRecent returns the latest n closed candles of an interval.
func (f *Fetcher) FetchRecent(ctx context.Context, symbol, interval string, n int, step time.Duration) ([]model.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	end := f.now()
	start := end.Add(-time.Duration(n+1) * step)
	candles, err := f.FetchRange(ctx, symbol, interval, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	return candles, nil
}

// Candles implements model.CandleSource by fetching up to now.
func (f *Fetcher) Candles(ctx context.Context, symbol, interval string, fromMs int64) ([]model.Candle, error) {
	return f.FetchRange(ctx, symbol, interval, fromMs, f.now().UnixMilli())
}

func (f *Fetcher) fetchPage(ctx context.Context, symbol, interval string, startMs int64) ([]*gobinance.Kline, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := f.page(ctx, symbol, interval, startMs, MaxPageSize)
		if err == nil {
			return klines, nil
		}
		lastErr = err

		if attempt == f.maxRetries {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * f.backoff
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("binance klines %s %s from %d: %w", symbol, interval, startMs, lastErr)
}

// ToCandle converts a REST kline into a validated candle.
func ToCandle(k *gobinance.Kline) (model.Candle, error) {
	var (
		c   model.Candle
		err error
	)
	c.Timestamp = k.OpenTime
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&c.Open, k.Open},
		{&c.High, k.High},
		{&c.Low, k.Low},
		{&c.Close, k.Close},
		{&c.Volume, k.Volume},
	} {
		if *f.dst, err = strconv.ParseFloat(f.src, 64); err != nil {
			return model.Candle{}, fmt.Errorf("parse %q: %w", f.src, err)
		}
	}
	if err := c.Validate(); err != nil {
		return model.Candle{}, err
	}
	return c, nil
}
