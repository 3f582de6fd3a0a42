package livebot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"levelbot/internal/backtest"
	"levelbot/internal/execution"
	"levelbot/internal/metrics"
	"levelbot/internal/model"
	"levelbot/internal/portfolio"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minute = int64(60_000)

// history is 30 flat candles with a swing low at 90 on candle 8.
func history() []model.Candle {
	out := make([]model.Candle, 30)
	for i := range out {
		out[i] = model.Candle{Timestamp: int64(i) * minute, Open: 99, High: 100, Low: 98, Close: 99}
	}
	out[8].Low = 90
	return out
}

func hammer() model.Candle {
	return model.Candle{Timestamp: 30 * minute, Open: 95, High: 96.5, Low: 89.5, Close: 96}
}

func spike() model.Candle {
	return model.Candle{Timestamp: 31 * minute, Open: 99, High: 116, Low: 98, Close: 99}
}

func params(symbol string) backtest.Params {
	p := backtest.DefaultParams()
	p.Session.Symbol = symbol
	return p
}

func TestNewBot_ShortHistory(t *testing.T) {
	_, err := NewBot(params("BTCUSDT"), history()[:5], 100, 0)
	assert.ErrorIs(t, err, ErrShortHistory)
}

func TestBot_TradesFromFirstLiveCandle(t *testing.T) {
	b, err := NewBot(params("BTCUSDT"), history(), 100, 0)
	require.NoError(t, err)

	snap := b.Snapshot()
	require.Len(t, snap.ActiveLevels, 1)
	assert.Equal(t, 90.0, snap.ActiveLevels[0].Price)
	assert.Equal(t, 0, snap.Steps)
	assert.Equal(t, 30, snap.History)

	res, rebuilt, err := b.Step(hammer())
	require.NoError(t, err)
	assert.False(t, rebuilt)
	require.Len(t, res.Opened, 1)
	assert.Equal(t, []int{0}, res.Pruned)

	res, _, err = b.Step(spike())
	require.NoError(t, err)
	require.Len(t, res.Closed, 1)
	assert.Equal(t, model.ResultTake, res.Closed[0].Result)
	assert.Equal(t, 0, b.ActiveLevelCount())
}

func TestBot_RebuildsLevels(t *testing.T) {
	b, err := NewBot(params("BTCUSDT"), history(), 64, 2)
	require.NoError(t, err)

	_, rebuilt, err := b.Step(hammer())
	require.NoError(t, err)
	assert.False(t, rebuilt)

	_, rebuilt, err = b.Step(spike())
	require.NoError(t, err)
	assert.True(t, rebuilt)

	snap := b.Snapshot()
	assert.Equal(t, 1, snap.Rebuilds)
	assert.Equal(t, 32, snap.History)
	require.Len(t, snap.Levels, 1)
	assert.False(t, snap.Levels[0].Active, "replay prunes the level the hammer touched")
	assert.Len(t, snap.Trades, 1, "trades survive a rebuild")
}

func TestNewBot_CapacityFitsHistory(t *testing.T) {
	b, err := NewBot(params("BTCUSDT"), history(), 4, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, b.Snapshot().History)
}

func TestBot_RejectsStaleCandle(t *testing.T) {
	b, err := NewBot(params("BTCUSDT"), history(), 100, 0)
	require.NoError(t, err)
	_, _, err = b.Step(history()[29])
	assert.ErrorIs(t, err, backtest.ErrOutOfOrder)
}

func TestEvents_Order(t *testing.T) {
	res := backtest.StepResult{
		Closed:  []model.Trade{{ID: "old"}},
		Signals: []model.SignalMatch{{Pattern: model.PatternPinBar}},
		Opened:  []model.Trade{{ID: "new"}},
	}
	evs := Events("BTCUSDT", res)
	require.Len(t, evs, 3)
	assert.Equal(t, execution.EventTradeClosed, evs[0].Kind)
	assert.Equal(t, "old", evs[0].Trade.ID)
	assert.Equal(t, execution.EventSignal, evs[1].Kind)
	assert.Equal(t, execution.EventTradeOpened, evs[2].Kind)
	assert.Equal(t, "new", evs[2].Trade.ID)
}

type recordingStore struct {
	mu    sync.Mutex
	saves map[string]int
}

func (r *recordingStore) SaveLevels(_ context.Context, symbol string, _ []model.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves[symbol]++
	return nil
}

type signalCounter struct {
	mu sync.Mutex
	n  int
}

func (s *signalCounter) PublishSignal(context.Context, string, model.SignalMatch) error {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func TestService_RunEndToEnd(t *testing.T) {
	exec := execution.NewExecutor(16)
	pf := portfolio.New()
	signals := &signalCounter{}
	exec.AddTradeSink(pf)
	exec.AddSignalSink(signals)

	prom := metrics.NewMetricsWith(prometheus.NewRegistry())
	svc := New(Config{Symbols: []string{"BTCUSDT", "ETHUSDT"}, HistoryCap: 100, RebuildEvery: 1, Params: params}, exec, prom)
	store := &recordingStore{saves: map[string]int{}}
	svc.AddLevelStore(store)

	load := func(_ context.Context, symbol string) ([]model.Candle, error) {
		if symbol == "ETHUSDT" {
			return nil, errors.New("no data")
		}
		return history(), nil
	}
	require.NoError(t, svc.Warmup(context.Background(), load))
	assert.Equal(t, []string{"BTCUSDT"}, svc.Symbols())

	barCh := make(chan model.Bar, 4)
	barCh <- model.Bar{Symbol: "BTCUSDT", Interval: "1m", Candle: hammer()}
	barCh <- model.Bar{Symbol: "ETHUSDT", Interval: "1m", Candle: hammer()}
	barCh <- model.Bar{Symbol: "BTCUSDT", Interval: "1m", Candle: spike()}
	close(barCh)

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background(), barCh)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the bar channel closed")
	}

	trades := pf.Trades("BTCUSDT")
	require.Len(t, trades, 1)
	assert.Equal(t, model.ResultTake, trades[0].Result)
	assert.Equal(t, 1, pf.Summary("BTCUSDT").Wins)

	signals.mu.Lock()
	assert.Equal(t, 1, signals.n)
	signals.mu.Unlock()

	snap, ok := svc.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Steps)
	assert.Equal(t, 2, snap.Rebuilds)

	// warm-up plus one save per rebuild
	assert.Equal(t, 3, store.saves["BTCUSDT"])
	_, ok = svc.Snapshot("ETHUSDT")
	assert.False(t, ok)
}

func TestService_WarmupFailsWithoutSymbols(t *testing.T) {
	svc := New(Config{Symbols: []string{"BTCUSDT"}}, execution.NewExecutor(1), nil)
	err := svc.Warmup(context.Background(), func(context.Context, string) ([]model.Candle, error) {
		return history()[:3], nil
	})
	assert.Error(t, err)
}
