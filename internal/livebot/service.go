package livebot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"sync"
	"time"

	"levelbot/internal/backtest"
	"levelbot/internal/execution"
	"levelbot/internal/logger"
	"levelbot/internal/metrics"
	"levelbot/internal/model"
)

// HistoryFunc loads the warm-up history of a symbol, oldest first.
type HistoryFunc func(ctx context.Context, symbol string) ([]model.Candle, error)

// Config configures the service.
type Config struct {
	Symbols      []string
	HistoryCap   int // candles kept per symbol for level rebuilds
	RebuildEvery int // rebuild levels every N candles, 0 disables

	// Params returns the engine settings of a symbol.
	Params func(symbol string) backtest.Params
}

// Service owns one Bot per symbol. Run dispatches each bar to its symbol's
// worker goroutine; events go to the executor's sinks.
type Service struct {
	cfg  Config
	exec *execution.Executor
	prom *metrics.Metrics

	mu          sync.RWMutex
	bots        map[string]*Bot
	levelStores []model.LevelStore

	eventCh chan execution.Event
}

// New creates a service. prom may be nil.
func New(cfg Config, exec *execution.Executor, prom *metrics.Metrics) *Service {
	if cfg.Params == nil {
		cfg.Params = func(symbol string) backtest.Params {
			p := backtest.DefaultParams()
			p.Session.Symbol = symbol
			return p
		}
	}
	svc := &Service{
		cfg:     cfg,
		exec:    exec,
		prom:    prom,
		bots:    make(map[string]*Bot),
		eventCh: make(chan execution.Event, 1024),
	}
	if prom != nil {
		exec.OnSinkError = func(ev execution.Event, err error) {
			prom.SinkErrors.WithLabelValues(string(ev.Kind)).Inc()
		}
	}
	return svc
}

// AddLevelStore registers a store that receives the level set after warm-up
// and after every rebuild.
func (svc *Service) AddLevelStore(ls model.LevelStore) {
	svc.levelStores = append(svc.levelStores, ls)
}

// Warmup builds a bot for every configured symbol from load. A symbol whose
// history fails to load is skipped and logged; Warmup fails only if no
// symbol could be started.
func (svc *Service) Warmup(ctx context.Context, load HistoryFunc) error {
	started := 0
	for _, sym := range svc.cfg.Symbols {
		history, err := load(ctx, sym)
		if err != nil {
			log.Printf("[livebot] %s: history load failed: %v", sym, err)
			continue
		}
		bot, err := NewBot(svc.cfg.Params(sym), history, svc.cfg.HistoryCap, svc.cfg.RebuildEvery)
		if err != nil {
			log.Printf("[livebot] %s: %v", sym, err)
			continue
		}

		svc.mu.Lock()
		svc.bots[sym] = bot
		svc.mu.Unlock()
		started++

		snap := bot.Snapshot()
		log.Printf("[livebot] %s warmed up: %d candles, %d levels (%d active)",
			sym, len(history), len(snap.Levels), len(snap.ActiveLevels))
		svc.saveLevels(ctx, sym, snap.Levels)
		if svc.prom != nil {
			svc.prom.ActiveLevels.WithLabelValues(sym).Set(float64(len(snap.ActiveLevels)))
		}
	}
	if started == 0 {
		return errors.New("livebot: no symbol could be warmed up")
	}
	return nil
}

// Bot returns the bot of symbol.
func (svc *Service) Bot(symbol string) (*Bot, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	b, ok := svc.bots[symbol]
	return b, ok
}

// Symbols returns the running symbols, sorted.
func (svc *Service) Symbols() []string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	out := make([]string, 0, len(svc.bots))
	for s := range svc.bots {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of one symbol's state.
func (svc *Service) Snapshot(symbol string) (Snapshot, bool) {
	b, ok := svc.Bot(symbol)
	if !ok {
		return Snapshot{}, false
	}
	return b.Snapshot(), true
}

// Run starts the executor and one worker per symbol, then dispatches bars
// until ctx is cancelled or barCh is closed. Bars of unknown symbols are
// dropped.
func (svc *Service) Run(ctx context.Context, barCh <-chan model.Bar) {
	var execWG sync.WaitGroup
	execWG.Add(1)
	go func() {
		defer execWG.Done()
		svc.exec.Run(ctx, svc.eventCh)
	}()

	var wg sync.WaitGroup
	workers := make(map[string]chan model.Candle)
	for _, sym := range svc.Symbols() {
		bot, _ := svc.Bot(sym)
		ch := make(chan model.Candle, 64)
		workers[sym] = ch
		wg.Add(1)
		go func(bot *Bot, ch <-chan model.Candle) {
			defer wg.Done()
			for c := range ch {
				svc.handle(ctx, bot, c)
			}
		}(bot, ch)
	}

	log.Printf("[livebot] running %d symbols", len(workers))
	defer func() {
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
		close(svc.eventCh)
		execWG.Wait()
		log.Println("[livebot] stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			ch, ok := workers[bar.Symbol]
			if !ok {
				log.Printf("[livebot] dropping bar for unknown symbol %s", bar.Symbol)
				continue
			}
			select {
			case ch <- bar.Candle:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handle steps one candle and emits its events.
func (svc *Service) handle(ctx context.Context, bot *Bot, c model.Candle) {
	sym := bot.Symbol()
	ctx = logger.ForCandle(ctx, sym, c.Timestamp)

	start := time.Now()
	res, rebuilt, err := bot.Step(c)
	if svc.prom != nil {
		svc.prom.StepDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		slog.Warn("step failed", append(logger.LogWithTrace(ctx), "error", err)...)
		return
	}

	for _, ev := range Events(sym, res) {
		select {
		case svc.eventCh <- ev:
		case <-ctx.Done():
			return
		}
	}
	if !res.Empty() {
		slog.Info("candle processed", append(logger.LogWithTrace(ctx),
			"signals", len(res.Signals),
			"opened", len(res.Opened),
			"closed", len(res.Closed),
			"pruned", len(res.Pruned),
		)...)
	}

	active := bot.ActiveLevelCount()
	if rebuilt {
		snap := bot.Snapshot()
		slog.Info("levels rebuilt", append(logger.LogWithTrace(ctx), "levels", len(snap.Levels), "active", active)...)
		svc.saveLevels(ctx, sym, snap.Levels)
	}
	svc.observe(sym, res, rebuilt, active)
}

// Events converts a step result into executor events: closed trades first,
// then signals, then opened trades.
func Events(symbol string, res backtest.StepResult) []execution.Event {
	out := make([]execution.Event, 0, len(res.Closed)+len(res.Signals)+len(res.Opened))
	for i := range res.Closed {
		out = append(out, execution.Event{Kind: execution.EventTradeClosed, Symbol: symbol, Trade: &res.Closed[i]})
	}
	for i := range res.Signals {
		out = append(out, execution.Event{Kind: execution.EventSignal, Symbol: symbol, Match: &res.Signals[i]})
	}
	for i := range res.Opened {
		out = append(out, execution.Event{Kind: execution.EventTradeOpened, Symbol: symbol, Trade: &res.Opened[i]})
	}
	return out
}

func (svc *Service) saveLevels(ctx context.Context, symbol string, lv []model.Level) {
	for _, ls := range svc.levelStores {
		if err := ls.SaveLevels(ctx, symbol, lv); err != nil {
			log.Printf("[livebot] %s: save levels: %v", symbol, err)
		}
	}
}

func (svc *Service) observe(sym string, res backtest.StepResult, rebuilt bool, active int) {
	m := svc.prom
	if m == nil {
		return
	}
	m.CandlesTotal.WithLabelValues(sym).Inc()
	for _, s := range res.Signals {
		m.SignalsTotal.WithLabelValues(sym, string(s.Pattern), string(s.Direction)).Inc()
	}
	m.TradesOpened.WithLabelValues(sym).Add(float64(len(res.Opened)))
	for _, t := range res.Closed {
		m.TradesClosed.WithLabelValues(sym, closeLabel(t)).Inc()
	}
	for _, r := range res.Rejected {
		m.Rejections.WithLabelValues(sym, rejectionLabel(r)).Inc()
	}
	m.LevelsPruned.WithLabelValues(sym).Add(float64(len(res.Pruned)))
	if rebuilt {
		m.LevelRebuilds.WithLabelValues(sym).Inc()
	}
	m.ActiveLevels.WithLabelValues(sym).Set(float64(active))
}

func closeLabel(t model.Trade) string {
	if t.Result == model.ResultStop && t.StopMoved {
		return "breakeven"
	}
	return string(t.Result)
}

func rejectionLabel(r backtest.Rejection) string {
	switch {
	case errors.Is(r.Err, backtest.ErrTradeOpen):
		return "trade_open"
	case errors.Is(r.Err, model.ErrZeroRisk):
		return "zero_risk"
	default:
		return "other"
	}
}

// String describes the service for startup logs.
func (svc *Service) String() string {
	return fmt.Sprintf("livebot(%v, rebuild every %d)", svc.Symbols(), svc.cfg.RebuildEvery)
}
