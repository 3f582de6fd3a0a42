package backtest

import (
	"levelbot/internal/execution"
	"levelbot/internal/levels"
	"levelbot/internal/model"
	"levelbot/internal/strategy"
)

// Params bundles everything a backtest run needs.
type Params struct {
	Session Config
	Levels  levels.Config
	Signals strategy.Config
	Risk    execution.RiskParams
}

// DefaultParams returns the reference settings of every engine.
func DefaultParams() Params {
	return Params{
		Session: DefaultConfig(),
		Levels:  levels.DefaultConfig(),
		Signals: strategy.DefaultConfig(),
		Risk:    execution.DefaultRiskParams(),
	}
}

// Result is the outcome of a full run.
type Result struct {
	Symbol     string              `json:"symbol"`
	Candles    int                 `json:"candles"`
	Levels     []model.Level       `json:"levels"`
	Signals    []model.SignalMatch `json:"signals"`
	Trades     []model.Trade       `json:"trades"`
	Rejections []Rejection         `json:"rejections"`
}

// NewSessionFor detects levels over history and returns a fresh session
// primed with them.
func NewSessionFor(history []model.Candle, p Params) (*Session, error) {
	det, err := levels.NewDetector(p.Levels)
	if err != nil {
		return nil, err
	}
	eval, err := strategy.NewEvaluator(p.Signals)
	if err != nil {
		return nil, err
	}
	sim, err := execution.NewSimulator(p.Risk)
	if err != nil {
		return nil, err
	}
	tracker := levels.NewTracker(det.Detect(history), p.Levels)
	return NewSession(p.Session, tracker, eval, sim), nil
}

// Run detects levels over the whole history once, then steps through it.
// Candles must be in strictly increasing timestamp order.
func Run(candles []model.Candle, p Params) (Result, error) {
	s, err := NewSessionFor(candles, p)
	if err != nil {
		return Result{}, err
	}
	for _, c := range candles {
		if _, err := s.Step(c); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Symbol:     p.Session.Symbol,
		Candles:    len(candles),
		Levels:     s.Levels(),
		Signals:    s.Signals(),
		Trades:     s.Trades(),
		Rejections: s.Rejections(),
	}, nil
}
