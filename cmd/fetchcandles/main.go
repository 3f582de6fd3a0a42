// cmd/fetchcandles downloads closed klines from Binance into the SQLite
// candle store, resuming after the newest stored candle.
//
// Usage:
//
//	go run ./cmd/fetchcandles -symbols=BTCUSDT,ETHUSDT -interval=1h -limit=5000
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"levelbot/config"
	"levelbot/internal/marketdata/binance"
	sqlitestore "levelbot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fetch] config: %v", err)
	}

	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite candle database")
	symbols := flag.String("symbols", strings.Join(cfg.Symbols, ","), "Comma-separated symbols")
	interval := flag.String("interval", cfg.Interval, "Kline interval")
	limit := flag.Int("limit", cfg.HistoryLimit, "Candles to fetch when the store is empty")
	flag.Parse()

	step, err := config.ParseInterval(*interval)
	if err != nil {
		log.Fatalf("[fetch] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	os.MkdirAll(filepath.Dir(*dbPath), 0o755)
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[fetch] sqlite open failed: %v", err)
	}
	defer w.Close()

	f := binance.NewFetcher(binance.Config{APIKey: cfg.BinanceAPIKey, SecretKey: cfg.BinanceSecretKey})
	now := time.Now()

	for _, sym := range strings.Split(*symbols, ",") {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}

		start := now.Add(-time.Duration(*limit) * step).UnixMilli()
		last, err := w.GetLastTimestamp(sym, *interval)
		if err != nil {
			log.Printf("[fetch] %s: last timestamp: %v", sym, err)
		} else if last > 0 {
			start = last + 1
		}

		candles, err := f.FetchRange(ctx, sym, *interval, start, now.UnixMilli())
		if err != nil {
			log.Printf("[fetch] %s: %v", sym, err)
			continue
		}
		if err := w.WriteCandles(sym, *interval, candles); err != nil {
			log.Printf("[fetch] %s: write: %v", sym, err)
			continue
		}
		log.Printf("[fetch] %s %s: stored %d candles", sym, *interval, len(candles))
	}
}
