// Package portfolio scores simulated trades: outcome counts, R multiples,
// fixed-risk income and a compounding equity curve.
//
// Portfolio keeps the latest state of every trade per symbol for readers
// such as the HTTP API.
package portfolio

import (
	"context"
	"sort"
	"sync"

	"levelbot/internal/model"
)

// Portfolio tracks trades across symbols. Safe for concurrent use.
type Portfolio struct {
	mu     sync.RWMutex
	trades map[string]map[string]model.Trade // symbol -> trade ID -> trade
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		trades: make(map[string]map[string]model.Trade),
	}
}

// Record stores t, replacing an earlier state of the same trade.
func (pf *Portfolio) Record(t model.Trade) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	bySym, ok := pf.trades[t.Symbol]
	if !ok {
		bySym = make(map[string]model.Trade)
		pf.trades[t.Symbol] = bySym
	}
	bySym[t.ID] = t
}

// PublishTrade records t; it lets the portfolio act as a trade sink.
func (pf *Portfolio) PublishTrade(_ context.Context, t model.Trade) error {
	pf.Record(t)
	return nil
}

// Trades returns the trades of symbol ordered by opening time.
func (pf *Portfolio) Trades(symbol string) []model.Trade {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]model.Trade, 0, len(pf.trades[symbol]))
	for _, t := range pf.trades[symbol] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Timestamp != out[j].OpenedAt.Timestamp {
			return out[i].OpenedAt.Timestamp < out[j].OpenedAt.Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Symbols returns the symbols with at least one trade, sorted.
func (pf *Portfolio) Symbols() []string {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]string, 0, len(pf.trades))
	for s := range pf.trades {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Summary scores the trades of symbol.
func (pf *Portfolio) Summary(symbol string) Summary {
	return Summarize(pf.Trades(symbol))
}

// Total scores every trade of every symbol.
func (pf *Portfolio) Total() Summary {
	var all []model.Trade
	for _, s := range pf.Symbols() {
		all = append(all, pf.Trades(s)...)
	}
	return Summarize(all)
}
