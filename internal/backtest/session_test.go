package backtest

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelbot/internal/execution"
	"levelbot/internal/levels"
	"levelbot/internal/model"
	"levelbot/internal/strategy"
)

const minute = int64(60_000)

func flat(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Timestamp: int64(i) * minute, Open: 99, High: 100, Low: 98, Close: 99}
	}
	return out
}

// hammer is a long pin bar whose wick reaches low.
func hammer(ts int64, low float64) model.Candle {
	return model.Candle{Timestamp: ts, Open: 95, High: 96.5, Low: low, Close: 96}
}

func TestRun_DetectTradeAndResolve(t *testing.T) {
	candles := flat(30)
	candles[8].Low = 90
	candles[15] = hammer(candles[15].Timestamp, 89.5)
	candles[20].High = 116

	res, err := Run(candles, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 30, res.Candles)

	require.NotEmpty(t, res.Levels)
	assert.Equal(t, 90.0, res.Levels[0].Price)
	assert.False(t, res.Levels[0].Active, "the hammer touched the level")

	require.Len(t, res.Signals, 1)
	assert.Equal(t, model.PatternPinBar, res.Signals[0].Pattern)
	assert.Equal(t, candles[15].Timestamp, res.Signals[0].Candle.Timestamp)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, model.Long, tr.Direction)
	assert.Equal(t, 96.0, tr.EntryPrice)
	assert.InDelta(t, 9.75, tr.RiskAmount, 1e-9)
	assert.Equal(t, model.ResultTake, tr.Result)
	require.NotNil(t, tr.ClosedAt)
	assert.Equal(t, candles[20].Timestamp, tr.ClosedAt.Timestamp)
}

func TestRun_NoLevelsNoTrades(t *testing.T) {
	res, err := Run(flat(40), DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, res.Levels)
	assert.Empty(t, res.Signals)
	assert.Empty(t, res.Trades)
}

func newSession(t *testing.T, cfg Config, lv []model.Level) *Session {
	t.Helper()
	eval, err := strategy.NewEvaluator(strategy.DefaultConfig())
	require.NoError(t, err)
	sim, err := execution.NewSimulator(execution.DefaultRiskParams())
	require.NoError(t, err)
	return NewSession(cfg, levels.NewTracker(lv, levels.DefaultConfig()), eval, sim)
}

func twoLevels() []model.Level {
	return []model.Level{
		{Price: 90, Kind: model.LevelLow, Active: true},
		{Price: 95, Kind: model.LevelLow, Active: true},
	}
}

func stepAll(t *testing.T, s *Session, candles []model.Candle) []StepResult {
	t.Helper()
	var out []StepResult
	for _, c := range candles {
		r, err := s.Step(c)
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestSession_SingleOpenTradePolicy(t *testing.T) {
	candles := flat(10)
	for i := range candles {
		candles[i].Timestamp += minute
	}
	candles[9] = hammer(candles[9].Timestamp, 89.5)

	s := newSession(t, DefaultConfig(), twoLevels())
	steps := stepAll(t, s, candles)
	last := steps[len(steps)-1]

	require.Len(t, last.Signals, 2)
	require.Len(t, last.Opened, 1)
	assert.Equal(t, 90.0, last.Opened[0].Level.Price, "first match wins")
	require.Len(t, last.Rejected, 1)
	assert.ErrorIs(t, last.Rejected[0].Err, ErrTradeOpen)
	assert.ElementsMatch(t, []int{0, 1}, last.Pruned)
	assert.Len(t, s.OpenTrades(), 1)
	assert.Len(t, s.Rejections(), 1)

	relaxed := newSession(t, Config{Symbol: "BTCUSDT"}, twoLevels())
	steps = stepAll(t, relaxed, candles)
	assert.Len(t, steps[len(steps)-1].Opened, 2)
	assert.Len(t, relaxed.OpenTrades(), 2)
}

func TestSession_WaitsForFullWindow(t *testing.T) {
	candles := flat(9)
	for i := range candles {
		candles[i].Timestamp += minute
	}
	candles[8] = hammer(candles[8].Timestamp, 89.5)

	s := newSession(t, DefaultConfig(), twoLevels())
	steps := stepAll(t, s, candles)
	assert.Empty(t, steps[8].Signals)
	// Pruning still runs on every candle.
	assert.Len(t, steps[8].Pruned, 2)
	assert.Empty(t, s.ActiveLevels())
}

func TestSession_RejectsOutOfOrder(t *testing.T) {
	s := newSession(t, DefaultConfig(), nil)
	_, err := s.Step(model.Candle{Timestamp: 10, Open: 1, High: 1, Low: 1, Close: 1})
	require.NoError(t, err)
	_, err = s.Step(model.Candle{Timestamp: 10, Open: 1, High: 1, Low: 1, Close: 1})
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 1, s.Steps())
}

func TestSession_PrimeFillsWindow(t *testing.T) {
	history := flat(9)
	for i := range history {
		history[i].Timestamp += minute
	}

	s := newSession(t, DefaultConfig(), twoLevels())
	require.NoError(t, s.Prime(history))
	assert.Equal(t, 0, s.Steps())
	assert.Len(t, s.ActiveLevels(), 2, "priming does not prune")

	_, err := s.Step(history[8])
	assert.ErrorIs(t, err, ErrOutOfOrder)

	r, err := s.Step(hammer(10*minute, 89.5))
	require.NoError(t, err)
	assert.Len(t, r.Signals, 2)
	assert.Len(t, r.Opened, 1)

	assert.ErrorIs(t, s.Prime(history[:1]), ErrOutOfOrder)
}

func TestWriteTradesJSON(t *testing.T) {
	candles := flat(30)
	candles[8].Low = 90
	candles[15] = hammer(candles[15].Timestamp, 89.5)
	candles[20].High = 116
	res, err := Run(candles, DefaultParams())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTradesJSON(&buf, res.Trades))

	var recs []TradeRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &recs))
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "buy", r.Type)
	assert.Equal(t, "pin_bar", r.Pattern)
	assert.True(t, r.IsSuccessful)
	assert.Equal(t, "1970-01-01T00:15:00Z", r.OpenedAt)
	require.NotNil(t, r.ClosedAt)
	assert.Equal(t, "1970-01-01T00:20:00Z", *r.ClosedAt)
	assert.Equal(t, "1970-01-01T00:08:00Z", r.LevelFrom)
	assert.Equal(t, 89.5, r.CandleLow)
}
