package notification

import (
	"fmt"
	"time"

	"levelbot/internal/backtest"
	"levelbot/internal/model"
)

// EventKind names what an alert reports.
type EventKind string

const (
	EventSignal      EventKind = "signal"
	EventTradeOpened EventKind = "trade_opened"
	EventTradeClosed EventKind = "trade_closed"
	EventMessage     EventKind = "message"
)

// Trade outcomes as reported to channels. A stop hit after the stop was moved
// to entry is a break-even, not a loss.
const (
	OutcomeOpen       = "open"
	OutcomeTakeProfit = "take_profit"
	OutcomeStopLoss   = "stop_loss"
	OutcomeBreakEven  = "break_even"
)

// SignalRecord is the wire form of a pattern match at a level.
type SignalRecord struct {
	Symbol      string       `json:"symbol"`
	Type        string       `json:"type"` // buy | sell
	Pattern     string       `json:"pattern"`
	CandleAt    string       `json:"candle_at"`
	Candle      model.Candle `json:"candle"`
	LevelKind   string       `json:"level_kind"`
	LevelPrice  float64      `json:"level_price"`
	LevelFrom   string       `json:"level_from"`
	ConfirmedAt string       `json:"level_confirmed_at"`
}

// NewSignalRecord flattens m for symbol.
func NewSignalRecord(symbol string, m model.SignalMatch) SignalRecord {
	return SignalRecord{
		Symbol:      symbol,
		Type:        side(m.Direction),
		Pattern:     string(m.Pattern),
		CandleAt:    isoMs(m.Candle.Timestamp),
		Candle:      m.Candle,
		LevelKind:   string(m.Level.Kind),
		LevelPrice:  m.Level.Price,
		LevelFrom:   isoMs(m.Level.FormedAt),
		ConfirmedAt: isoMs(m.Level.ConfirmedAt),
	}
}

// TradeRecord is the backtest export row of a trade plus the live fields a
// channel needs: the current stop, the outcome and the exit price.
type TradeRecord struct {
	ID string `json:"id"`
	backtest.TradeRecord
	CurrentStop float64  `json:"current_stop"`
	RiskAmount  float64  `json:"risk_amount"`
	RiskReward  *float64 `json:"risk_reward,omitempty"`
	Outcome     string   `json:"outcome"`
	ExitPrice   *float64 `json:"exit_price,omitempty"`
}

// NewTradeRecord flattens t. RiskReward is nil when the trade has zero risk.
func NewTradeRecord(t model.Trade) TradeRecord {
	r := TradeRecord{
		ID:          t.ID,
		TradeRecord: backtest.NewTradeRecord(t),
		CurrentStop: t.StopPrice,
		RiskAmount:  t.RiskAmount,
		Outcome:     OutcomeOpen,
	}
	if ratio, err := t.RiskReward().Ratio(); err == nil {
		r.RiskReward = &ratio
	}

	switch t.Result {
	case model.ResultTake:
		r.Outcome = OutcomeTakeProfit
		exit := t.TakePrice
		r.ExitPrice = &exit
	case model.ResultStop:
		r.Outcome = OutcomeStopLoss
		if t.StopMoved {
			r.Outcome = OutcomeBreakEven
		}
		exit := t.StopPrice
		r.ExitPrice = &exit
	}
	return r
}

func (r TradeRecord) riskRewardText() string {
	if r.RiskReward == nil {
		return "n/a"
	}
	return fmt.Sprintf("1:%.2f", *r.RiskReward)
}

func side(d model.Direction) string {
	if d == model.Short {
		return "sell"
	}
	return "buy"
}

func isoMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
