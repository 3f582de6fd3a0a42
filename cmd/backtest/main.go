// cmd/backtest replays historical candles from SQLite through the level
// detector, signal evaluator and trade simulator, then scores the trades.
//
// Usage:
//
//	go run ./cmd/backtest -symbol=BTCUSDT -interval=1h -fetch=2000 -json=trades.json -levels
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"levelbot/config"
	"levelbot/internal/backtest"
	"levelbot/internal/execution"
	"levelbot/internal/marketdata/binance"
	"levelbot/internal/model"
	"levelbot/internal/portfolio"
	sqlitestore "levelbot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}

	// Flags
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite candle database")
	symbol := flag.String("symbol", cfg.Symbols[0], "Symbol to backtest")
	interval := flag.String("interval", cfg.Interval, "Kline interval")
	fromMs := flag.Int64("from", 0, "Unix milliseconds to start from (0=all)")
	fetch := flag.Int("fetch", 0, "Fetch this many recent candles from Binance into SQLite first")
	jsonPath := flag.String("json", "", "Write per-trade records to this JSON file")
	listLevels := flag.Bool("levels", false, "Print every detected level")
	journalPath := flag.String("journal", "", "Record signals and trades into this SQLite journal")
	scored := flag.Bool("scored", cfg.ScoredPinBar, "Use the scored pin-bar classifier")
	single := flag.Bool("single", cfg.SingleOpenTrade, "Allow only one open trade at a time")
	legacy := flag.Bool("legacy-scoring", false, "Charge break-even and open trades in the compounding report")
	flag.Parse()

	sym := strings.ToUpper(*symbol)
	params := cfg.Params(sym)
	params.Signals.UseScoredPinBar = *scored
	params.Session.SingleOpenTrade = *single

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if *fetch > 0 {
		if err := fetchInto(ctx, cfg, *dbPath, sym, *interval, *fetch); err != nil {
			log.Fatalf("[backtest] fetch failed: %v", err)
		}
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	candles, err := reader.Candles(ctx, sym, *interval, *fromMs)
	if err != nil {
		log.Fatalf("[backtest] read candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[backtest] no %s %s candles in %s (try -fetch)", sym, *interval, *dbPath)
	}
	log.Printf("[backtest] loaded %d candles %s → %s", len(candles),
		candles[0].Time().Format(time.RFC3339), candles[len(candles)-1].Time().Format(time.RFC3339))

	res, err := backtest.Run(candles, params)
	if err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}

	if *listLevels {
		printLevels(res.Levels)
	}
	for _, t := range res.Trades {
		printTrade(t)
	}

	if *jsonPath != "" {
		if err := writeJSON(*jsonPath, res.Trades); err != nil {
			log.Fatalf("[backtest] write json: %v", err)
		}
		log.Printf("[backtest] wrote %d trades to %s", len(res.Trades), *jsonPath)
	}

	if *journalPath != "" {
		if err := journal(ctx, *journalPath, res); err != nil {
			log.Fatalf("[backtest] journal: %v", err)
		}
	}

	printSummary(res, params, *legacy)
}

func fetchInto(ctx context.Context, cfg *config.Config, dbPath, symbol, interval string, n int) error {
	step, err := config.ParseInterval(interval)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dirOf(dbPath), 0o755); err != nil {
		return err
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		return err
	}
	defer w.Close()

	f := binance.NewFetcher(binance.Config{APIKey: cfg.BinanceAPIKey, SecretKey: cfg.BinanceSecretKey})
	candles, err := f.FetchRecent(ctx, symbol, interval, n, step)
	if err != nil {
		return err
	}
	log.Printf("[backtest] fetched %d %s %s candles", len(candles), symbol, interval)
	return w.WriteCandles(symbol, interval, candles)
}

func writeJSON(path string, trades []model.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := backtest.WriteTradesJSON(f, trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func journal(ctx context.Context, path string, res backtest.Result) error {
	j, err := execution.NewJournal(path)
	if err != nil {
		return err
	}
	defer j.Close()
	for _, m := range res.Signals {
		if err := j.PublishSignal(ctx, res.Symbol, m); err != nil {
			return err
		}
	}
	for _, t := range res.Trades {
		if err := j.PublishTrade(ctx, t); err != nil {
			return err
		}
	}
	log.Printf("[backtest] journaled %d signals and %d trades to %s", len(res.Signals), len(res.Trades), path)
	return nil
}

func printLevels(levels []model.Level) {
	fmt.Println("Levels:")
	for _, l := range levels {
		state := "spent"
		if l.Active {
			state = "active"
		}
		fmt.Printf("  #%-4d %-4s %12.4f  formed %s  confirmed %s  %s\n",
			l.ID, l.Kind, l.Price,
			time.UnixMilli(l.FormedAt).UTC().Format("2006-01-02 15:04"),
			time.UnixMilli(l.ConfirmedAt).UTC().Format("2006-01-02 15:04"),
			state)
	}
	fmt.Println()
}

func printTrade(t model.Trade) {
	outcome := string(portfolio.Classify(t))
	closed := "-"
	if t.ClosedAt != nil {
		closed = t.ClosedAt.Time().Format("2006-01-02 15:04")
	}
	fmt.Printf("  %s %-5s %-17s entry %.4f stop %.4f take %.4f  closed %s  %s\n",
		t.OpenedAt.Time().Format("2006-01-02 15:04"), t.Direction, t.Pattern,
		t.EntryPrice, t.InitialStop, t.TakePrice, closed, outcome)
}

func printSummary(res backtest.Result, p backtest.Params, legacy bool) {
	s := portfolio.Summarize(res.Trades)
	cp := portfolio.DefaultCompoundParams()
	cp.RewardMultiple = p.Risk.RewardMultiple
	cp.LegacyScoring = legacy
	curve := portfolio.Compound(res.Trades, cp)

	active := 0
	for _, l := range res.Levels {
		if l.Active {
			active++
		}
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", res.Symbol)
	fmt.Printf("║  Candles:           %-16d ║\n", res.Candles)
	fmt.Printf("║  Levels (active):   %-16s ║\n", fmt.Sprintf("%d (%d)", len(res.Levels), active))
	fmt.Printf("║  Signals:           %-16d ║\n", len(res.Signals))
	fmt.Printf("║  Rejected:          %-16d ║\n", len(res.Rejections))
	fmt.Printf("║  Trades:            %-16d ║\n", s.Trades)
	fmt.Printf("║  Win / Loss / BE:   %-16s ║\n", fmt.Sprintf("%d / %d / %d", s.Wins, s.Losses, s.BreakEven))
	fmt.Printf("║  Open:              %-16d ║\n", s.Open)
	fmt.Printf("║  Win rate:          %-16s ║\n", fmt.Sprintf("%.1f%%", s.WinRate))
	fmt.Printf("║  Net R:             %-16.2f ║\n", s.NetR)
	fmt.Printf("║  Fixed income:      %-16.2f ║\n", s.FixedIncomeFor(cp))
	fmt.Printf("║  Compound equity:   %-16.2f ║\n", curve.Final)
	fmt.Printf("║  Max drawdown:      %-16s ║\n", fmt.Sprintf("%.2f%%", curve.MaxDrawdownPct))
	fmt.Println("╚══════════════════════════════════════╝")
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}
