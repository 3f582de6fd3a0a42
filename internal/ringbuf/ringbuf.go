// Package ringbuf provides a bounded candle history that keeps the newest
// candles and overwrites the oldest once full. It backs the sliding
// evaluation window and the per-symbol history of the live bot.
package ringbuf

import "levelbot/internal/model"

// History is a fixed-capacity ring of candles, oldest first.
// Storage is a power of two for bitwise modulo. Not safe for concurrent use.
type History struct {
	buf   []model.Candle
	mask  uint64
	limit int

	head    uint64 // total pushes
	evicted uint64
}

// New creates a history holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	size := nextPow2(capacity)
	return &History{
		buf:   make([]model.Candle, size),
		mask:  uint64(size - 1),
		limit: capacity,
	}
}

// Push appends c, evicting the oldest candle when full. It reports whether
// an eviction happened.
func (h *History) Push(c model.Candle) bool {
	full := h.Len() == h.limit
	h.buf[h.head&h.mask] = c
	h.head++
	if full {
		h.evicted++
	}
	return full
}

// Len returns the number of candles held.
func (h *History) Len() int {
	if h.head < uint64(h.limit) {
		return int(h.head)
	}
	return h.limit
}

// Cap returns the capacity.
func (h *History) Cap() int { return h.limit }

// Full reports whether Len == Cap.
func (h *History) Full() bool { return h.Len() == h.limit }

// Evicted returns how many candles were overwritten.
func (h *History) Evicted() uint64 { return h.evicted }

// Newest returns the last pushed candle.
func (h *History) Newest() (model.Candle, bool) {
	if h.head == 0 {
		return model.Candle{}, false
	}
	return h.buf[(h.head-1)&h.mask], true
}

// Last returns up to n newest candles, oldest first, as a fresh slice.
func (h *History) Last(n int) []model.Candle {
	if n > h.Len() {
		n = h.Len()
	}
	if n <= 0 {
		return nil
	}
	out := make([]model.Candle, n)
	start := h.head - uint64(n)
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+uint64(i))&h.mask]
	}
	return out
}

// All returns every held candle, oldest first.
func (h *History) All() []model.Candle { return h.Last(h.Len()) }

// Window returns the newest model.WindowSize candles as a CandleWindow, or
// false while fewer candles are held.
func (h *History) Window() (model.CandleWindow, bool) {
	if h.Len() < model.WindowSize {
		return model.CandleWindow{}, false
	}
	w, err := model.NewCandleWindow(h.Last(model.WindowSize))
	return w, err == nil
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
