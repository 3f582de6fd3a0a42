// Package livebot runs level/signal/trade sessions over a live candle feed,
// one goroutine per symbol, and fans the resulting events out to sinks.
package livebot

import (
	"errors"
	"fmt"
	"sync"

	"levelbot/internal/backtest"
	"levelbot/internal/levels"
	"levelbot/internal/model"
	"levelbot/internal/ringbuf"
)

// ErrShortHistory is returned when the warm-up history cannot produce levels.
var ErrShortHistory = errors.New("history too short")

// Bot owns one symbol's session and a bounded candle history used to
// rebuild levels. Step must be called from a single goroutine; Snapshot may
// be called from any.
type Bot struct {
	mu sync.RWMutex

	params       backtest.Params
	history      *ringbuf.History
	session      *backtest.Session
	rebuildEvery int
	sinceRebuild int
	rebuilds     int
	last         model.Candle
}

// NewBot detects levels over history, replays their pruning and primes the
// pattern window, so the next live candle is evaluated immediately.
// historyCap bounds the candles kept for rebuilds; rebuildEvery <= 0
// disables rebuilding.
func NewBot(p backtest.Params, history []model.Candle, historyCap, rebuildEvery int) (*Bot, error) {
	if len(history) < p.Levels.MinCandles() {
		return nil, fmt.Errorf("%w: %s has %d candles, need %d", ErrShortHistory, p.Session.Symbol, len(history), p.Levels.MinCandles())
	}
	if historyCap < len(history) {
		historyCap = len(history)
	}

	tracker, err := levels.Build(history, p.Levels)
	if err != nil {
		return nil, err
	}
	s, err := backtest.NewSessionFor(nil, p)
	if err != nil {
		return nil, err
	}
	s.ReplaceLevels(tracker)
	if err := s.Prime(history); err != nil {
		return nil, err
	}

	b := &Bot{
		params:       p,
		history:      ringbuf.New(historyCap),
		session:      s,
		rebuildEvery: rebuildEvery,
		last:         history[len(history)-1],
	}
	for _, c := range history {
		b.history.Push(c)
	}
	return b, nil
}

// Symbol returns the traded symbol.
func (b *Bot) Symbol() string { return b.params.Session.Symbol }

// Step runs one closed candle through the session. rebuilt reports whether
// the level set was re-detected after the step.
func (b *Bot) Step(c model.Candle) (res backtest.StepResult, rebuilt bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err = b.session.Step(c)
	if err != nil {
		return res, false, err
	}
	b.history.Push(c)
	b.last = c
	b.sinceRebuild++

	if b.rebuildEvery > 0 && b.sinceRebuild >= b.rebuildEvery {
		if err := b.rebuildLocked(); err != nil {
			return res, false, err
		}
		rebuilt = true
	}
	return res, rebuilt, nil
}

// Rebuild re-detects levels over the kept history and replays their pruning.
// Open trades are kept.
func (b *Bot) Rebuild() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rebuildLocked()
}

func (b *Bot) rebuildLocked() error {
	tracker, err := levels.Build(b.history.All(), b.params.Levels)
	if err != nil {
		return fmt.Errorf("rebuild levels %s: %w", b.Symbol(), err)
	}
	b.session.ReplaceLevels(tracker)
	b.sinceRebuild = 0
	b.rebuilds++
	return nil
}

// Snapshot is a copy of a bot's state for readers.
type Snapshot struct {
	Symbol       string               `json:"symbol"`
	Steps        int                  `json:"steps"`
	Rebuilds     int                  `json:"rebuilds"`
	History      int                  `json:"history"`
	LastCandle   model.Candle         `json:"last_candle"`
	Levels       []model.Level        `json:"levels"`
	ActiveLevels []model.Level        `json:"active_levels"`
	Trades       []model.Trade        `json:"trades"`
	OpenTrades   []model.Trade        `json:"open_trades"`
	Signals      []model.SignalMatch  `json:"signals"`
	Rejections   []backtest.Rejection `json:"rejections"`
}

// Snapshot copies the bot's state.
func (b *Bot) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Symbol:       b.Symbol(),
		Steps:        b.session.Steps(),
		Rebuilds:     b.rebuilds,
		History:      b.history.Len(),
		LastCandle:   b.last,
		Levels:       b.session.Levels(),
		ActiveLevels: b.session.ActiveLevels(),
		Trades:       b.session.Trades(),
		OpenTrades:   b.session.OpenTrades(),
		Signals:      b.session.Signals(),
		Rejections:   b.session.Rejections(),
	}
}

// ActiveLevelCount returns how many levels are in force after the last candle.
func (b *Bot) ActiveLevelCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.session.ActiveLevels())
}
