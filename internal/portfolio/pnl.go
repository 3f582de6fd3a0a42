package portfolio

import (
	"fmt"

	"levelbot/internal/model"
)

// Outcome classifies a trade for scoring.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeBreakEven Outcome = "breakeven" // stopped out after the stop moved to entry
	OutcomeOpen      Outcome = "open"
)

// Classify returns the scoring outcome of t.
func Classify(t model.Trade) Outcome {
	switch t.Result {
	case model.ResultTake:
		return OutcomeWin
	case model.ResultStop:
		if t.StopMoved {
			return OutcomeBreakEven
		}
		return OutcomeLoss
	}
	return OutcomeOpen
}

// RMultiple returns the realized result of a closed trade in units of its
// initial risk: +RewardMultiple for a take, -1 for a stop, 0 at break-even.
func RMultiple(t model.Trade) (float64, error) {
	rr := t.RiskReward()
	if rr.Risk == 0 {
		return 0, fmt.Errorf("trade %s: %w", t.ID, model.ErrZeroRisk)
	}
	var exit float64
	switch t.Result {
	case model.ResultTake:
		exit = t.TakePrice
	case model.ResultStop:
		exit = t.StopPrice
	default:
		return 0, nil
	}
	move := exit - t.EntryPrice
	if t.Direction == model.Short {
		move = -move
	}
	return move / rr.Risk, nil
}

// Summary scores a set of trades.
type Summary struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	BreakEven int     `json:"breakeven"`
	Open      int     `json:"open"`
	WinRate   float64 `json:"win_rate"` // percent of closed trades
	NetR      float64 `json:"net_r"`
}

// Closed returns the number of resolved trades.
func (s Summary) Closed() int { return s.Wins + s.Losses + s.BreakEven }

// FixedIncome is the account result when every trade risks riskPerTrade:
// wins pay riskPerTrade*rewardMultiple, losses cost riskPerTrade, break-even
// trades pay nothing.
func (s Summary) FixedIncome(riskPerTrade, rewardMultiple float64) float64 {
	return float64(s.Wins)*riskPerTrade*rewardMultiple - float64(s.Losses)*riskPerTrade
}

// FixedIncomeFor is FixedIncome at p's risk and reward. With p.LegacyScoring
// each break-even trade is credited one riskPerTrade.
func (s Summary) FixedIncomeFor(p CompoundParams) float64 {
	income := s.FixedIncome(p.RiskPerTrade, p.RewardMultiple)
	if p.LegacyScoring {
		income += float64(s.BreakEven) * p.RiskPerTrade
	}
	return income
}

// Summarize scores trades. Zero-risk trades count toward the outcome totals
// but add nothing to NetR.
func Summarize(trades []model.Trade) Summary {
	var s Summary
	for _, t := range trades {
		s.Trades++
		switch Classify(t) {
		case OutcomeWin:
			s.Wins++
		case OutcomeLoss:
			s.Losses++
		case OutcomeBreakEven:
			s.BreakEven++
		default:
			s.Open++
			continue
		}
		if r, err := RMultiple(t); err == nil {
			s.NetR += r
		}
	}
	if n := s.Closed(); n > 0 {
		s.WinRate = float64(s.Wins) / float64(n) * 100
	}
	return s
}
