// Package levels finds liquidity levels in a candle history and tracks
// which of them are still in force as new candles arrive.
//
// Detection is causal: a swing extremum only becomes a level once
// ForwardConfirm further candles have failed to exceed it, and the level is
// only usable on candles strictly after that confirmation candle.
package levels

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for out-of-range detector settings.
var ErrInvalidConfig = errors.New("invalid level config")

// Config controls swing detection, price quantization and touch tolerance.
type Config struct {
	BackWindow     int     `json:"back_window"`     // candles looked back from a swing
	ForwardConfirm int     `json:"forward_confirm"` // candles that must not exceed the swing
	TickSize       float64 `json:"tick_size"`       // 0 disables quantization
	ClusterTicks   int     `json:"cluster_ticks"`   // same-kind merge distance in ticks
	TouchTicks     int     `json:"touch_ticks"`     // prune tolerance in ticks
}

// DefaultConfig returns the reference detector settings.
func DefaultConfig() Config {
	return Config{
		BackWindow:     6,
		ForwardConfirm: 2,
		ClusterTicks:   2,
		TouchTicks:     1,
	}
}

// Validate rejects settings the detector cannot run with.
func (c Config) Validate() error {
	switch {
	case c.BackWindow < 1:
		return fmt.Errorf("%w: back window %d < 1", ErrInvalidConfig, c.BackWindow)
	case c.ForwardConfirm < 1:
		return fmt.Errorf("%w: forward confirm %d < 1", ErrInvalidConfig, c.ForwardConfirm)
	case c.TickSize < 0:
		return fmt.Errorf("%w: negative tick size %g", ErrInvalidConfig, c.TickSize)
	case c.ClusterTicks < 0 || c.TouchTicks < 0:
		return fmt.Errorf("%w: negative tick multiple", ErrInvalidConfig)
	}
	return nil
}

// MinCandles is the shortest history that can produce a level.
func (c Config) MinCandles() int {
	return c.BackWindow + c.ForwardConfirm + 1
}

// TouchTolerance is the distance within which a candle counts as touching a level.
func (c Config) TouchTolerance() float64 {
	return float64(c.TouchTicks) * c.TickSize
}

// ClusterTolerance is the distance within which same-kind levels merge.
func (c Config) ClusterTolerance() float64 {
	return float64(c.ClusterTicks) * c.TickSize
}
