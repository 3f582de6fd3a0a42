package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"levelbot/internal/model"
)

// CompoundParams drives the compounding equity simulation.
type CompoundParams struct {
	InitialEquity  float64 `json:"initial_equity"`
	RiskPerTrade   float64 `json:"risk_per_trade"`
	RewardMultiple float64 `json:"reward_multiple"`
	GrowthStep     float64 `json:"growth_step"` // scale risk once equity reaches base*GrowthStep
	RiskScale      float64 `json:"risk_scale"`

	// LegacyScoring switches to the older report arithmetic: Compound walks
	// every trade in opening order and charges the risk for anything but a
	// take (break-even and still-open trades included), while
	// Summary.FixedIncomeFor credits one risk per break-even trade.
	LegacyScoring bool `json:"legacy_scoring"`
}

// DefaultCompoundParams returns 1000 starting equity, 50 risk per trade,
// 2R targets and 20% risk growth per 20% equity growth.
func DefaultCompoundParams() CompoundParams {
	return CompoundParams{
		InitialEquity:  1000,
		RiskPerTrade:   50,
		RewardMultiple: 2,
		GrowthStep:     1.2,
		RiskScale:      1.2,
	}
}

// EquityPoint is the account state after one booked trade.
type EquityPoint struct {
	Ts     int64   `json:"ts"`
	Equity float64 `json:"equity"`
	Risk   float64 `json:"risk"`
}

// EquityCurve is the outcome of Compound.
type EquityCurve struct {
	Points         []EquityPoint `json:"points"`
	Final          float64       `json:"final"`
	Income         float64       `json:"income"`
	FinalRisk      float64       `json:"final_risk"`
	Peak           float64       `json:"peak"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
}

// Compound replays closed trades in closing order against a growing account.
// Before each trade, if equity has reached base*GrowthStep the risk is
// multiplied by RiskScale and the base moves to the current equity. Open
// trades are ignored and break-even trades leave equity unchanged, unless
// p.LegacyScoring is set. Arithmetic is decimal so repeated 1.2 scaling does
// not drift.
func Compound(trades []model.Trade, p CompoundParams) EquityCurve {
	booked := scoredTrades(trades, p.LegacyScoring)

	initial := decimal.NewFromFloat(p.InitialEquity)
	equity, base, peak := initial, initial, initial
	risk := decimal.NewFromFloat(p.RiskPerTrade)
	reward := decimal.NewFromFloat(p.RewardMultiple)
	step := decimal.NewFromFloat(p.GrowthStep)
	scale := decimal.NewFromFloat(p.RiskScale)
	hundred := decimal.NewFromInt(100)
	maxDD := decimal.Zero

	curve := EquityCurve{Points: make([]EquityPoint, 0, len(booked))}
	for _, t := range booked {
		if equity.GreaterThanOrEqual(base.Mul(step)) {
			risk = risk.Mul(scale)
			base = equity
		}
		switch o := Classify(t); {
		case o == OutcomeWin:
			equity = equity.Add(risk.Mul(reward))
		case o == OutcomeLoss, p.LegacyScoring:
			equity = equity.Sub(risk)
		}
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if peak.IsPositive() {
			if dd := peak.Sub(equity).Div(peak).Mul(hundred); dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
		curve.Points = append(curve.Points, EquityPoint{
			Ts:     scoredAt(t),
			Equity: equity.InexactFloat64(),
			Risk:   risk.InexactFloat64(),
		})
	}

	curve.Final = equity.InexactFloat64()
	curve.Income = equity.Sub(initial).InexactFloat64()
	curve.FinalRisk = risk.InexactFloat64()
	curve.Peak = peak.InexactFloat64()
	curve.MaxDrawdownPct = maxDD.Round(4).InexactFloat64()
	return curve
}

// scoredTrades orders the trades Compound books: closed ones by closing time,
// or with legacy every trade by opening time.
func scoredTrades(trades []model.Trade, legacy bool) []model.Trade {
	out := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if legacy || (!t.IsOpen() && t.ClosedAt != nil) {
			out = append(out, t)
		}
	}
	if legacy {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].OpenedAt.Timestamp < out[j].OpenedAt.Timestamp
		})
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClosedAt.Timestamp < out[j].ClosedAt.Timestamp
	})
	return out
}

// scoredAt is the closing time of t, or its opening time while it is open.
func scoredAt(t model.Trade) int64 {
	if t.ClosedAt != nil {
		return t.ClosedAt.Timestamp
	}
	return t.OpenedAt.Timestamp
}
