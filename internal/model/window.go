package model

import (
	"errors"
	"fmt"
)

// WindowSize is the fixed number of candles in a CandleWindow.
const WindowSize = 10

// ErrWindowSize is returned when a window is built from the wrong number of candles.
var ErrWindowSize = errors.New("candle window must contain exactly 10 candles")

// CandleWindow is a fixed-length run of consecutive candles, oldest first.
// It bounds the lookback available to pattern rules.
type CandleWindow struct {
	candles [WindowSize]Candle
}

// NewCandleWindow copies candles into a window. The slice must hold
// exactly WindowSize candles.
func NewCandleWindow(candles []Candle) (CandleWindow, error) {
	var w CandleWindow
	if len(candles) != WindowSize {
		return w, fmt.Errorf("%w: got %d", ErrWindowSize, len(candles))
	}
	copy(w.candles[:], candles)
	return w, nil
}

// Len always returns WindowSize.
func (w CandleWindow) Len() int { return WindowSize }

// At returns the candle at index i (0 = oldest).
func (w CandleWindow) At(i int) Candle { return w.candles[i] }

// Newest returns the last candle of the window.
func (w CandleWindow) Newest() Candle { return w.candles[WindowSize-1] }

// Candles returns a copy of the window contents, oldest first.
func (w CandleWindow) Candles() []Candle {
	out := make([]Candle, WindowSize)
	copy(out, w.candles[:])
	return out
}
