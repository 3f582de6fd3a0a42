// Package execution simulates trades opened from signal matches and routes
// their lifecycle events to sinks.
//
// The simulator is a paper book: no orders leave the process. Each trade goes
// OPEN -> TAKE or OPEN -> STOP exactly once.
package execution

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"levelbot/internal/model"
)

// ErrInvalidParams is returned for out-of-range risk settings.
var ErrInvalidParams = errors.New("invalid risk params")

// RiskParams sizes stops and targets from the signal candle's wick.
type RiskParams struct {
	RiskMultiplier float64 `json:"risk_multiplier"` // wick * multiplier = risk
	RewardMultiple float64 `json:"reward_multiple"` // take = entry +/- multiple * risk
	BreakEvenAtR   float64 `json:"breakeven_at_r"`  // 0 disables the break-even stop move
}

// DefaultRiskParams returns 1.5x wick risk and a 2R target.
func DefaultRiskParams() RiskParams {
	return RiskParams{RiskMultiplier: 1.5, RewardMultiple: 2.0}
}

// Validate rejects non-positive multipliers and a negative break-even trigger.
func (p RiskParams) Validate() error {
	switch {
	case !(p.RiskMultiplier > 0):
		return fmt.Errorf("%w: risk multiplier %g", ErrInvalidParams, p.RiskMultiplier)
	case !(p.RewardMultiple > 0):
		return fmt.Errorf("%w: reward multiple %g", ErrInvalidParams, p.RewardMultiple)
	case p.BreakEvenAtR < 0:
		return fmt.Errorf("%w: break-even at %gR", ErrInvalidParams, p.BreakEvenAtR)
	}
	return nil
}

// OpenTrade builds a trade entered at c.Close.
//
//	long:  risk = max(close-low, 0) * RiskMultiplier, stop = close-risk, take = close+RewardMultiple*risk
//	short: risk = max(high-close, 0) * RiskMultiplier, stop = close+risk, take = close-RewardMultiple*risk
//
// A zero wick yields ErrZeroRisk instead of a degenerate trade.
func OpenTrade(c model.Candle, pattern model.Pattern, level model.Level, symbol string, d model.Direction, p RiskParams) (model.Trade, error) {
	if err := c.Validate(); err != nil {
		return model.Trade{}, err
	}
	if err := p.Validate(); err != nil {
		return model.Trade{}, err
	}

	var wick float64
	switch d {
	case model.Long:
		wick = math.Max(c.Close-c.Low, 0)
	case model.Short:
		wick = math.Max(c.High-c.Close, 0)
	default:
		return model.Trade{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidParams, d)
	}
	risk := wick * p.RiskMultiplier
	if risk <= 0 {
		return model.Trade{}, fmt.Errorf("%w: %s %s at ts=%d", model.ErrZeroRisk, pattern, d, c.Timestamp)
	}

	t := model.Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Direction:  d,
		EntryPrice: c.Close,
		RiskAmount: risk,
		OpenedAt:   c,
		Pattern:    pattern,
		Level:      level,
	}
	if d == model.Long {
		t.StopPrice = c.Close - risk
		t.TakePrice = c.Close + p.RewardMultiple*risk
	} else {
		t.StopPrice = c.Close + risk
		t.TakePrice = c.Close - p.RewardMultiple*risk
	}
	t.InitialStop = t.StopPrice
	return t, nil
}

// UpdateTrades resolves every open trade against c and returns the indices of
// the trades it closed. Stops are checked before takes. Closed trades are never
// touched again. Candle order is the caller's concern: Session rejects
// out-of-order candles before they get here.
//
// With p.BreakEvenAtR > 0, a trade that survives c and has moved BreakEvenAtR
// risk units in its favour gets its stop moved to entry. The move applies from
// the next candle on.
func UpdateTrades(trades []model.Trade, c model.Candle, p RiskParams) []int {
	var closed []int
	for i := range trades {
		t := &trades[i]
		if !t.IsOpen() {
			continue
		}
		if r := resolve(t, c); r != model.ResultOpen {
			cc := c
			t.Result = r
			t.ClosedAt = &cc
			closed = append(closed, i)
			continue
		}
		if p.BreakEvenAtR > 0 && !t.StopMoved {
			moveToBreakEven(t, c, p.BreakEvenAtR)
		}
	}
	return closed
}

func resolve(t *model.Trade, c model.Candle) model.TradeResult {
	if t.Direction == model.Short {
		switch {
		case c.High >= t.StopPrice:
			return model.ResultStop
		case c.Low <= t.TakePrice:
			return model.ResultTake
		}
		return model.ResultOpen
	}
	switch {
	case c.Low <= t.StopPrice:
		return model.ResultStop
	case c.High >= t.TakePrice:
		return model.ResultTake
	}
	return model.ResultOpen
}

func moveToBreakEven(t *model.Trade, c model.Candle, atR float64) {
	trigger := atR * t.RiskAmount
	if t.Direction == model.Short {
		if c.Low <= t.EntryPrice-trigger {
			t.StopPrice = t.EntryPrice
			t.StopMoved = true
		}
		return
	}
	if c.High >= t.EntryPrice+trigger {
		t.StopPrice = t.EntryPrice
		t.StopMoved = true
	}
}

// Simulator keeps every trade of one symbol in an arena. Not safe for
// concurrent use.
type Simulator struct {
	params RiskParams
	trades []model.Trade
	open   int
}

// NewSimulator validates p and returns an empty simulator.
func NewSimulator(p RiskParams) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{params: p, trades: make([]model.Trade, 0, 64)}, nil
}

// Params returns the risk settings.
func (s *Simulator) Params() RiskParams { return s.params }

// Open opens a trade from m and stores it.
func (s *Simulator) Open(m model.SignalMatch, symbol string) (model.Trade, error) {
	t, err := OpenTrade(m.Candle, m.Pattern, m.Level, symbol, m.Direction, s.params)
	if err != nil {
		return model.Trade{}, err
	}
	s.trades = append(s.trades, t)
	s.open++
	return t, nil
}

// Update resolves open trades against c and returns copies of the ones it
// closed.
func (s *Simulator) Update(c model.Candle) []model.Trade {
	idx := UpdateTrades(s.trades, c, s.params)
	out := make([]model.Trade, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.trades[i])
	}
	s.open -= len(idx)
	return out
}

// OpenCount returns the number of unresolved trades.
func (s *Simulator) OpenCount() int { return s.open }

// Trades returns a copy of every trade, oldest first.
func (s *Simulator) Trades() []model.Trade {
	out := make([]model.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}
