// Package strategy evaluates price-action patterns against liquidity levels.
//
// The pattern catalogue is closed: pin bar (long/short), bullish engulfing and
// railway tracks (long/short). The Evaluator composes them in a fixed order
// and emits one SignalMatch per firing pattern and actionable level.
package strategy

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for out-of-range pattern thresholds.
var ErrInvalidConfig = errors.New("invalid signal config")

// Config holds the pattern thresholds.
type Config struct {
	PinBodyRatio   float64 `json:"pin_body_ratio"`  // body < ratio*range
	PinTailRatio   float64 `json:"pin_tail_ratio"`  // tail > ratio*body
	RailsBodyDiff  float64 `json:"rails_body_diff"` // |b1-b2|/max(b1,b2) < diff
	RailsTolerance float64 `json:"rails_tolerance"` // open/close mirror tolerance, fraction of max body

	UseScoredPinBar bool    `json:"use_scored_pin_bar"`
	ScoreThreshold  float64 `json:"score_threshold"` // 0..100
}

// DefaultConfig returns the reference thresholds with the hard-threshold pin bar.
func DefaultConfig() Config {
	return Config{
		PinBodyRatio:   0.3,
		PinTailRatio:   2.0,
		RailsBodyDiff:  0.2,
		RailsTolerance: 0.2,
		ScoreThreshold: 60,
	}
}

// Validate rejects thresholds the patterns cannot run with.
func (c Config) Validate() error {
	switch {
	case c.PinBodyRatio <= 0 || c.PinBodyRatio > 1:
		return fmt.Errorf("%w: pin body ratio %g not in (0,1]", ErrInvalidConfig, c.PinBodyRatio)
	case c.PinTailRatio <= 0:
		return fmt.Errorf("%w: pin tail ratio %g <= 0", ErrInvalidConfig, c.PinTailRatio)
	case c.RailsBodyDiff <= 0 || c.RailsBodyDiff > 1:
		return fmt.Errorf("%w: rails body diff %g not in (0,1]", ErrInvalidConfig, c.RailsBodyDiff)
	case c.RailsTolerance < 0:
		return fmt.Errorf("%w: rails tolerance %g < 0", ErrInvalidConfig, c.RailsTolerance)
	case c.ScoreThreshold < 0 || c.ScoreThreshold > 100:
		return fmt.Errorf("%w: score threshold %g not in [0,100]", ErrInvalidConfig, c.ScoreThreshold)
	}
	return nil
}
