package execution

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelbot/internal/model"
)

func candle(ts int64, o, h, l, c float64) model.Candle {
	return model.Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c}
}

var lowLevel = model.Level{ID: 3, Price: 0.5, Kind: model.LevelLow, Active: true}

func openLong(t *testing.T, p RiskParams) model.Trade {
	t.Helper()
	tr, err := OpenTrade(candle(1, 1.0, 1.3, 0.5, 1.2), model.PatternPinBar, lowLevel, "BTCUSDT", model.Long, p)
	require.NoError(t, err)
	return tr
}

func TestOpenTrade_LongReferenceSizing(t *testing.T) {
	tr := openLong(t, DefaultRiskParams())

	assert.InDelta(t, 1.05, tr.RiskAmount, 1e-9)
	assert.InDelta(t, 0.15, tr.StopPrice, 1e-9)
	assert.InDelta(t, 3.3, tr.TakePrice, 1e-9)
	assert.Equal(t, 1.2, tr.EntryPrice)
	assert.Equal(t, tr.StopPrice, tr.InitialStop)
	assert.True(t, tr.IsOpen())
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, "BTCUSDT", tr.Symbol)
	assert.Equal(t, lowLevel, tr.Level)

	ratio, err := tr.RiskReward().Ratio()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ratio, 1e-9)
}

func TestOpenTrade_ShortMirrored(t *testing.T) {
	c := candle(1, 10, 12, 9.5, 11)
	tr, err := OpenTrade(c, model.PatternRailwayTracks, model.Level{Kind: model.LevelHigh}, "ETHUSDT", model.Short, DefaultRiskParams())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, tr.RiskAmount, 1e-9)
	assert.InDelta(t, 12.5, tr.StopPrice, 1e-9)
	assert.InDelta(t, 8.0, tr.TakePrice, 1e-9)

	rr := tr.RiskReward()
	assert.InDelta(t, 1.5, rr.Risk, 1e-9)
	assert.InDelta(t, 3.0, rr.Reward, 1e-9)
}

func TestOpenTrade_ZeroRisk(t *testing.T) {
	// Close on the low: no lower wick to size a long from.
	_, err := OpenTrade(candle(1, 2, 3, 1, 1), model.PatternPinBar, lowLevel, "X", model.Long, DefaultRiskParams())
	assert.True(t, errors.Is(err, model.ErrZeroRisk))

	_, err = OpenTrade(candle(1, 2, 3, 1, 3), model.PatternPinBar, lowLevel, "X", model.Short, DefaultRiskParams())
	assert.True(t, errors.Is(err, model.ErrZeroRisk))

	_, err = model.RiskReward{Risk: 0, Reward: 1}.Ratio()
	assert.ErrorIs(t, err, model.ErrZeroRisk)
}

func TestOpenTrade_RejectsBadInput(t *testing.T) {
	_, err := OpenTrade(candle(1, 2, 1, 3, 2), model.PatternPinBar, lowLevel, "X", model.Long, DefaultRiskParams())
	assert.ErrorIs(t, err, model.ErrInvalidCandle)

	_, err = OpenTrade(candle(1, 2, 3, 1, 2), model.PatternPinBar, lowLevel, "X", model.Long, RiskParams{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = OpenTrade(candle(1, 2, 3, 1, 2), model.PatternPinBar, lowLevel, "X", "sideways", DefaultRiskParams())
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestUpdateTrades_ReferenceScenario(t *testing.T) {
	p := DefaultRiskParams()

	stop := []model.Trade{openLong(t, p)}
	idx := UpdateTrades(stop, candle(2, 1.2, 1.3, 0.05, 1.0), p)
	assert.Equal(t, []int{0}, idx)
	assert.Equal(t, model.ResultStop, stop[0].Result)
	require.NotNil(t, stop[0].ClosedAt)
	assert.Equal(t, int64(2), stop[0].ClosedAt.Timestamp)

	take := []model.Trade{openLong(t, p)}
	UpdateTrades(take, candle(2, 1.2, 3.4, 1.1, 3.0), p)
	assert.Equal(t, model.ResultTake, take[0].Result)

	both := []model.Trade{openLong(t, p)}
	UpdateTrades(both, candle(2, 1.2, 3.4, 0.05, 3.0), p)
	assert.Equal(t, model.ResultStop, both[0].Result, "stop wins when both are hit")
}

func TestUpdateTrades_ShortPriority(t *testing.T) {
	p := DefaultRiskParams()
	tr, err := OpenTrade(candle(1, 10, 12, 9.5, 11), model.PatternPinBar, model.Level{}, "X", model.Short, p)
	require.NoError(t, err)

	trades := []model.Trade{tr}
	UpdateTrades(trades, candle(2, 11, 11.5, 10, 10.5), p)
	assert.True(t, trades[0].IsOpen())

	UpdateTrades(trades, candle(3, 10, 13, 7, 8), p)
	assert.Equal(t, model.ResultStop, trades[0].Result)
}

func TestUpdateTrades_ChecksEveryOpenTrade(t *testing.T) {
	p := DefaultRiskParams()
	// opened from a candle at ts 0, resolved by a candle sharing that ts
	tr, err := OpenTrade(candle(0, 1.0, 1.3, 0.5, 1.2), model.PatternPinBar, lowLevel, "BTCUSDT", model.Long, p)
	require.NoError(t, err)
	trades := []model.Trade{tr}

	closed := UpdateTrades(trades, candle(0, 1.0, 1.1, 0.05, 0.9), p)
	assert.Equal(t, []int{0}, closed)
	assert.Equal(t, model.ResultStop, trades[0].Result)

	// the opening candle itself stays inside stop and take
	tr2 := openLong(t, p)
	trades = []model.Trade{tr2}
	assert.Empty(t, UpdateTrades(trades, tr2.OpenedAt, p))
	assert.True(t, trades[0].IsOpen())
}

func TestUpdateTrades_Terminality(t *testing.T) {
	p := DefaultRiskParams()
	r := rand.New(rand.NewSource(99))
	for run := 0; run < 100; run++ {
		trades := []model.Trade{openLong(t, p)}
		var result model.TradeResult
		var closedAt *model.Candle
		for ts := int64(2); ts < 60; ts++ {
			mid := 0.5 + r.Float64()*3
			c := candle(ts, mid, mid+r.Float64(), mid-r.Float64(), mid)
			UpdateTrades(trades, c, p)
			if result == model.ResultOpen {
				result, closedAt = trades[0].Result, trades[0].ClosedAt
				continue
			}
			require.Equal(t, result, trades[0].Result)
			require.Equal(t, *closedAt, *trades[0].ClosedAt)
		}
	}
}

func TestUpdateTrades_BreakEven(t *testing.T) {
	p := DefaultRiskParams()
	p.BreakEvenAtR = 1
	trades := []model.Trade{openLong(t, p)}

	// High reaches entry + 1R = 2.25 without touching the target.
	UpdateTrades(trades, candle(2, 1.2, 2.3, 1.1, 2.0), p)
	require.True(t, trades[0].IsOpen())
	assert.True(t, trades[0].StopMoved)
	assert.Equal(t, trades[0].EntryPrice, trades[0].StopPrice)
	assert.InDelta(t, 0.15, trades[0].InitialStop, 1e-9)

	UpdateTrades(trades, candle(3, 2.0, 2.1, 1.19, 1.5), p)
	assert.Equal(t, model.ResultStop, trades[0].Result)

	rr := trades[0].RiskReward()
	assert.InDelta(t, 1.05, rr.Risk, 1e-9, "ratio uses the initial stop")
}

func TestSimulator(t *testing.T) {
	_, err := NewSimulator(RiskParams{RiskMultiplier: 1})
	assert.ErrorIs(t, err, ErrInvalidParams)

	sim, err := NewSimulator(DefaultRiskParams())
	require.NoError(t, err)

	m := model.SignalMatch{Pattern: model.PatternPinBar, Direction: model.Long, Candle: candle(1, 1.0, 1.3, 0.5, 1.2), Level: lowLevel}
	tr, err := sim.Open(m, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, sim.OpenCount())

	_, err = sim.Open(model.SignalMatch{Direction: model.Long, Candle: candle(1, 2, 3, 1, 1)}, "BTCUSDT")
	assert.ErrorIs(t, err, model.ErrZeroRisk)
	assert.Len(t, sim.Trades(), 1)

	assert.Empty(t, sim.Update(candle(2, 1.2, 1.4, 1.0, 1.3)))
	closed := sim.Update(candle(3, 1.3, 3.5, 1.0, 3.4))
	require.Len(t, closed, 1)
	assert.Equal(t, tr.ID, closed[0].ID)
	assert.Equal(t, model.ResultTake, closed[0].Result)
	assert.Zero(t, sim.OpenCount())
}
