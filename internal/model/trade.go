package model

import (
	"encoding/json"
	"errors"
)

// ErrZeroRisk is returned when a trade or ratio would be built on zero risk.
var ErrZeroRisk = errors.New("zero risk")

// TradeResult is the terminal outcome of a simulated trade.
type TradeResult string

const (
	ResultOpen TradeResult = ""
	ResultTake TradeResult = "take"
	ResultStop TradeResult = "stop"
)

// Trade is a simulated directional position opened from a SignalMatch.
// Result and ClosedAt are set at most once; a closed trade never reopens.
type Trade struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Direction   Direction   `json:"direction"`
	EntryPrice  float64     `json:"entry_price"`
	StopPrice   float64     `json:"stop_price"`
	TakePrice   float64     `json:"take_price"`
	InitialStop float64     `json:"initial_stop"`
	RiskAmount  float64     `json:"risk_amount"`
	StopMoved   bool        `json:"stop_moved"`
	OpenedAt    Candle      `json:"opened_at"`
	Pattern     Pattern     `json:"pattern"`
	Level       Level       `json:"level"`
	Result      TradeResult `json:"result,omitempty"`
	ClosedAt    *Candle     `json:"closed_at,omitempty"`
}

// IsOpen reports whether the trade has not been resolved yet.
func (t *Trade) IsOpen() bool { return t.Result == ResultOpen }

// RiskReward returns the entry-to-stop and entry-to-take distances.
func (t *Trade) RiskReward() RiskReward {
	risk := t.EntryPrice - t.InitialStop
	reward := t.TakePrice - t.EntryPrice
	if t.Direction == Short {
		risk, reward = -risk, -reward
	}
	return RiskReward{Risk: risk, Reward: reward}
}

// JSON returns the JSON-encoded trade.
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// RiskReward pairs potential loss and potential gain of a trade.
type RiskReward struct {
	Risk   float64 `json:"risk"`
	Reward float64 `json:"reward"`
}

// Ratio returns Reward / Risk, or ErrZeroRisk when Risk is zero.
func (rr RiskReward) Ratio() (float64, error) {
	if rr.Risk == 0 {
		return 0, ErrZeroRisk
	}
	return rr.Reward / rr.Risk, nil
}
