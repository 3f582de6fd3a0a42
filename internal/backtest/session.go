// Package backtest drives the level, signal and trade engines over a candle
// sequence, one candle at a time.
//
// Per candle the session:
//  1. resolves open trades against the candle,
//  2. evaluates the newest window against the levels active at the candle,
//  3. opens trades from the matches (subject to the single-open-trade policy),
//  4. prunes the levels the candle touched.
package backtest

import (
	"errors"
	"fmt"

	"levelbot/internal/execution"
	"levelbot/internal/levels"
	"levelbot/internal/model"
	"levelbot/internal/ringbuf"
	"levelbot/internal/strategy"
)

// ErrTradeOpen rejects a match while the single-open-trade policy holds a trade.
var ErrTradeOpen = errors.New("another trade is open")

// ErrOutOfOrder is returned when a candle is not newer than the previous one.
var ErrOutOfOrder = errors.New("candle out of order")

// Config holds driver policy.
type Config struct {
	Symbol          string `json:"symbol"`
	SingleOpenTrade bool   `json:"single_open_trade"`
}

// DefaultConfig returns the reference policy: one open trade at a time.
func DefaultConfig() Config {
	return Config{Symbol: "BTCUSDT", SingleOpenTrade: true}
}

// Rejection records a match that did not open a trade.
type Rejection struct {
	Match  model.SignalMatch `json:"match"`
	Reason string            `json:"reason"`
	Err    error             `json:"-"`
}

// StepResult is everything one candle changed.
type StepResult struct {
	Candle   model.Candle        `json:"candle"`
	Closed   []model.Trade       `json:"closed,omitempty"`
	Signals  []model.SignalMatch `json:"signals,omitempty"`
	Opened   []model.Trade       `json:"opened,omitempty"`
	Rejected []Rejection         `json:"rejected,omitempty"`
	Pruned   []int               `json:"pruned,omitempty"`
}

// Empty reports whether the step changed nothing.
func (r StepResult) Empty() bool {
	return len(r.Closed)+len(r.Signals)+len(r.Opened)+len(r.Pruned) == 0
}

// Session owns one symbol's tracker, simulator and candle window.
// It is a single-writer state machine: call Step from one goroutine.
type Session struct {
	cfg     Config
	tracker *levels.Tracker
	eval    *strategy.Evaluator
	sim     *execution.Simulator
	window  *ringbuf.History

	signals    []model.SignalMatch
	rejections []Rejection
	steps      int
	lastTs     int64
	started    bool
}

// NewSession wires the engines. The tracker should already hold the
// detected levels.
func NewSession(cfg Config, tracker *levels.Tracker, eval *strategy.Evaluator, sim *execution.Simulator) *Session {
	return &Session{
		cfg:     cfg,
		tracker: tracker,
		eval:    eval,
		sim:     sim,
		window:  ringbuf.New(model.WindowSize),
	}
}

// Step advances the session by one candle.
func (s *Session) Step(c model.Candle) (StepResult, error) {
	if s.started && c.Timestamp <= s.lastTs {
		return StepResult{}, fmt.Errorf("%w: ts=%d after ts=%d", ErrOutOfOrder, c.Timestamp, s.lastTs)
	}
	s.started = true
	s.steps++
	s.lastTs = c.Timestamp

	res := StepResult{Candle: c}
	res.Closed = s.sim.Update(c)

	s.window.Push(c)
	if w, ok := s.window.Window(); ok {
		res.Signals = s.eval.EvaluateNewest(w, s.tracker.ActiveLevels(c.Timestamp))
		for _, m := range res.Signals {
			if s.cfg.SingleOpenTrade && s.sim.OpenCount() > 0 {
				res.Rejected = append(res.Rejected, Rejection{Match: m, Reason: ErrTradeOpen.Error(), Err: ErrTradeOpen})
				continue
			}
			t, err := s.sim.Open(m, s.cfg.Symbol)
			if err != nil {
				res.Rejected = append(res.Rejected, Rejection{Match: m, Reason: err.Error(), Err: err})
				continue
			}
			res.Opened = append(res.Opened, t)
		}
	}

	res.Pruned = s.tracker.Prune(c)

	s.signals = append(s.signals, res.Signals...)
	s.rejections = append(s.rejections, res.Rejected...)
	return res, nil
}

// Prime fills the candle window from history without evaluating, trading or
// pruning, so the first stepped candle can already produce signals. Later
// steps must be newer than the last primed candle.
func (s *Session) Prime(history []model.Candle) error {
	for _, c := range history {
		if s.started && c.Timestamp <= s.lastTs {
			return fmt.Errorf("%w: ts=%d after ts=%d", ErrOutOfOrder, c.Timestamp, s.lastTs)
		}
		s.started = true
		s.lastTs = c.Timestamp
		s.window.Push(c)
	}
	return nil
}

// Config returns the driver policy.
func (s *Session) Config() Config { return s.cfg }

// Steps returns how many candles were processed.
func (s *Session) Steps() int { return s.steps }

// Levels returns a copy of the level arena.
func (s *Session) Levels() []model.Level { return s.tracker.Levels() }

// ActiveLevels returns the levels usable after the last processed candle.
func (s *Session) ActiveLevels() []model.Level { return s.tracker.ActiveLevels(s.lastTs + 1) }

// Trades returns a copy of every trade.
func (s *Session) Trades() []model.Trade { return s.sim.Trades() }

// OpenTrades returns the unresolved trades.
func (s *Session) OpenTrades() []model.Trade {
	var out []model.Trade
	for _, t := range s.sim.Trades() {
		if t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

// Signals returns every match seen so far.
func (s *Session) Signals() []model.SignalMatch {
	out := make([]model.SignalMatch, len(s.signals))
	copy(out, s.signals)
	return out
}

// Rejections returns every match that did not open a trade.
func (s *Session) Rejections() []Rejection {
	out := make([]Rejection, len(s.rejections))
	copy(out, s.rejections)
	return out
}

// ReplaceLevels swaps in a fresh tracker, keeping trades and the window.
// Used when the live bot rebuilds its level set.
func (s *Session) ReplaceLevels(t *levels.Tracker) { s.tracker = t }
