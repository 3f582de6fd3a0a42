package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"levelbot/config"
	"levelbot/internal/api"
	"levelbot/internal/backtest"
	"levelbot/internal/execution"
	"levelbot/internal/livebot"
	"levelbot/internal/logger"
	"levelbot/internal/marketdata/binance"
	"levelbot/internal/marketdata/bus"
	"levelbot/internal/marketdata/replay"
	"levelbot/internal/marketdata/ws"
	"levelbot/internal/metrics"
	"levelbot/internal/model"
	"levelbot/internal/notification"
	"levelbot/internal/portfolio"
	redisstore "levelbot/internal/store/redis"
	sqlitestore "levelbot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalbot] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[signalbot] config: %v", err)
	}
	logger.Init("signalbot", logger.ParseLevel(cfg.LogLevel))

	replayFrom := flag.Int64("replay-from", 0, "Replay stored candles from this Unix ms instead of streaming (0=live)")
	speed := flag.Float64("speed", 0, "Replay speed multiplier (0=as fast as possible)")
	redisFeed := flag.Bool("redis-feed", false, "Consume candle streams from Redis instead of Binance")
	flag.Parse()

	step, err := cfg.IntervalDuration()
	if err != nil {
		log.Fatalf("[signalbot] %v", err)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(cfg.Symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite candle store + journal ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[signalbot] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
	}
	health.SetSQLiteOK(true)

	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[signalbot] sqlite reader failed: %v", err)
	}
	defer sqlReader.Close()

	journal, err := execution.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[signalbot] journal init failed: %v", err)
	}
	defer journal.Close()

	// ---- Redis (optional) ----
	var redisWriter *redisstore.Writer
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			OnStateChange: func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			},
			OnBuffer: func() { prom.RedisBufferedWrites.Inc() },
		})
		if err != nil {
			log.Printf("[signalbot] WARNING: redis init failed: %v (continuing without redis)", err)
			redisWriter = nil
		} else {
			health.CheckRedis(ctx, redisWriter.Client())
			log.Println("[signalbot] redis writer ready")
		}
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Notifications ----
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[signalbot] telegram alerts enabled")
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[signalbot] webhook alerts enabled")
	}
	alerts := notification.NewSink(notifiers)

	// ---- Executor sinks ----
	pf := portfolio.New()
	exec := execution.NewExecutor(1024)
	exec.AddSignalSink(journal)
	exec.AddSignalSink(alerts)
	exec.AddTradeSink(journal)
	exec.AddTradeSink(alerts)
	exec.AddTradeSink(pf)
	if redisWriter != nil {
		exec.AddSignalSink(redisWriter)
		exec.AddTradeSink(redisWriter)
	}

	// ---- Live service + warm-up ----
	svc := livebot.New(livebot.Config{
		Symbols:      cfg.Symbols,
		HistoryCap:   cfg.HistoryLimit,
		RebuildEvery: cfg.RebuildEvery(),
		Params:       func(symbol string) backtest.Params { return cfg.Params(symbol) },
	}, exec, prom)
	svc.AddLevelStore(sqlWriter)
	if redisWriter != nil {
		svc.AddLevelStore(redisWriter)
	}

	fetcher := binance.NewFetcher(binance.Config{APIKey: cfg.BinanceAPIKey, SecretKey: cfg.BinanceSecretKey})
	load := func(ctx context.Context, symbol string) ([]model.Candle, error) {
		return loadHistory(ctx, symbol, cfg.Interval, cfg.HistoryLimit, step, sqlReader, sqlWriter, fetcher)
	}
	if *replayFrom > 0 {
		load = func(ctx context.Context, symbol string) ([]model.Candle, error) {
			return storedBefore(ctx, sqlReader, symbol, cfg.Interval, *replayFrom, cfg.HistoryLimit, step)
		}
	}
	if err := svc.Warmup(ctx, load); err != nil {
		log.Fatalf("[signalbot] warm-up failed: %v", err)
	}
	health.SetSymbols(svc.Symbols())

	// ---- HTTP API + event stream ----
	hub := api.NewHub(200)
	go hub.Run(ctx, exec.Results())

	router := api.NewRouter(api.Deps{
		State:     svc,
		Portfolio: pf,
		Compound:  portfolio.DefaultCompoundParams(),
		Health:    health,
		Hub:       hub,
	})
	httpSrv := metrics.NewServer(cfg.HTTPAddr, health, router)
	httpSrv.Start()

	// ---- Closed-kline stream → fan-out ----
	barCh := make(chan model.Bar, 1024)
	fanout := bus.New(1024)
	fanout.OnDrop = func(subscriber string) {
		prom.SinkErrors.WithLabelValues("fanout_" + subscriber).Inc()
	}
	botIn := fanout.Subscribe("bot")
	sqliteIn := fanout.Subscribe("sqlite")
	healthIn := fanout.Subscribe("health")
	var redisIn <-chan model.Bar
	if redisWriter != nil && !*redisFeed {
		redisIn = fanout.Subscribe("redis")
	}
	go fanout.Run(ctx, barCh)

	go sqlWriter.Run(ctx, sqliteIn)
	go func() {
		for bar := range healthIn {
			health.SetLastCandleTime(bar.Candle.Time())
		}
	}()
	if redisIn != nil {
		go func() {
			for bar := range redisIn {
				if err := redisWriter.WriteCandle(ctx, bar.Symbol, bar.Interval, bar.Candle); err != nil {
					log.Printf("[signalbot] redis candle %s: %v", bar.Symbol, err)
				}
			}
		}()
	}

	if *replayFrom > 0 {
		go func() {
			defer close(barCh)
			n, err := replay.New(sqlReader).Run(ctx, svc.Symbols(), cfg.Interval, *replayFrom, *speed, barCh)
			if err != nil && ctx.Err() == nil {
				log.Printf("[signalbot] replay error: %v", err)
			}
			log.Printf("[signalbot] replay finished after %d candles", n)
		}()
	} else if *redisFeed {
		if redisWriter == nil {
			log.Fatal("[signalbot] -redis-feed needs REDIS_ADDR")
		}
		host, _ := os.Hostname()
		reader := redisstore.NewReaderWithClient(redisWriter.Client(), redisstore.ReaderConfig{ConsumerName: host})
		streams := make([]string, 0, len(svc.Symbols()))
		for _, sym := range svc.Symbols() {
			streams = append(streams, redisstore.CandleStreamKey(sym, cfg.Interval))
		}
		if err := reader.EnsureConsumerGroup(ctx, streams); err != nil {
			log.Fatalf("[signalbot] redis consumer group: %v", err)
		}
		go func() {
			if err := reader.ConsumeCandles(ctx, streams, barCh); err != nil && ctx.Err() == nil {
				log.Printf("[signalbot] redis feed error: %v", err)
			}
		}()
		log.Printf("[signalbot] consuming %d candle streams from redis", len(streams))
	} else {
		stream, err := ws.New(ws.Config{
			BaseURL:  cfg.BinanceWSURL,
			Symbols:  svc.Symbols(),
			Interval: cfg.Interval,
		})
		if err != nil {
			log.Fatalf("[signalbot] ws init failed: %v", err)
		}
		stream.OnConnect = func() { health.SetWSConnected(true) }
		stream.OnDisconnect = func() { health.SetWSConnected(false) }
		stream.OnReconnect = func() { prom.WSReconnects.Inc() }
		go func() {
			if err := stream.Start(ctx, barCh); err != nil {
				log.Printf("[signalbot] ws error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx, botIn)
	}()

	log.Println("[signalbot] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[signalbot] ║  Level Signal Bot                                        ║")
	log.Println("[signalbot] ║  [Binance WS] → [levels/signals/sim] → [sinks + API]     ║")
	log.Printf("[signalbot] ║  Symbols: %-46v ║", svc.Symbols())
	log.Printf("[signalbot] ║  Interval: %-45s ║", cfg.Interval)
	log.Printf("[signalbot] ║  HTTP: %-49s ║", cfg.HTTPAddr)
	log.Println("[signalbot] ╚══════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal (or the end of a replay) ----
	select {
	case <-sigCh:
		log.Println("[signalbot] shutdown signal received, cleaning up...")
	case <-done:
		log.Println("[signalbot] input exhausted, cleaning up...")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Println("[signalbot] timed out waiting for workers")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	total := pf.Total()
	log.Printf("[signalbot] session: %d trades, %d wins, %d losses, %d break-even, %d open",
		total.Trades, total.Wins, total.Losses, total.BreakEven, total.Open)
	log.Println("[signalbot] shutdown complete.")
}

// loadHistory returns the last limit closed candles of symbol. Stored candles
// are topped up from Binance when the store is short or stale, and the
// fetched candles are written back.
func loadHistory(ctx context.Context, symbol, interval string, limit int, step time.Duration,
	src model.CandleSource, dst model.CandleWriter, fetcher *binance.Fetcher) ([]model.Candle, error) {

	from := time.Now().Add(-time.Duration(limit) * step).UnixMilli()
	stored, err := src.Candles(ctx, symbol, interval, from)
	if err != nil {
		log.Printf("[signalbot] %s: stored history unavailable: %v", symbol, err)
		stored = nil
	}

	fresh := len(stored) > 0 && time.Since(stored[len(stored)-1].Time()) < 2*step
	if len(stored) >= limit/2 && fresh {
		log.Printf("[signalbot] %s: %d candles from sqlite", symbol, len(stored))
		return stored, nil
	}

	fetched, err := fetcher.FetchRecent(ctx, symbol, interval, limit, step)
	if err != nil {
		if len(stored) > 0 {
			log.Printf("[signalbot] %s: fetch failed (%v), using %d stored candles", symbol, err, len(stored))
			return stored, nil
		}
		return nil, err
	}
	if err := dst.WriteCandles(symbol, interval, fetched); err != nil {
		log.Printf("[signalbot] %s: store fetched candles: %v", symbol, err)
	}
	log.Printf("[signalbot] %s: %d candles from binance", symbol, len(fetched))
	return fetched, nil
}

// storedBefore returns up to limit stored candles strictly before toMs, for
// warming up a replay.
func storedBefore(ctx context.Context, src model.CandleSource, symbol, interval string, toMs int64, limit int, step time.Duration) ([]model.Candle, error) {
	from := toMs - int64(limit)*step.Milliseconds()
	candles, err := src.Candles(ctx, symbol, interval, from)
	if err != nil {
		return nil, err
	}
	n := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp >= toMs })
	return candles[:n], nil
}
