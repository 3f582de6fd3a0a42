package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidCandle is returned when a candle violates the OHLC ordering
// invariant or carries a non-finite price.
var ErrInvalidCandle = errors.New("invalid candle")

// Candle is an immutable OHLC bar for one symbol and interval.
// Timestamp is the bar open time in milliseconds since the Unix epoch.
type Candle struct {
	Timestamp int64   `json:"ts"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume,omitempty"`
}

// Time returns the candle open time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// Range returns High - Low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// LowerWick returns the distance from the body bottom to the low.
func (c Candle) LowerWick() float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// UpperWick returns the distance from the high to the body top.
func (c Candle) UpperWick() float64 {
	return c.High - math.Max(c.Open, c.Close)
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Contains reports whether price lies inside [Low, High].
func (c Candle) Contains(price float64) bool {
	return c.Low <= price && price <= c.High
}

// Validate checks low <= min(open,close) <= max(open,close) <= high.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite price at ts=%d", ErrInvalidCandle, c.Timestamp)
		}
	}
	if c.Low > math.Min(c.Open, c.Close) || math.Max(c.Open, c.Close) > c.High {
		return fmt.Errorf("%w: ts=%d o=%g h=%g l=%g c=%g", ErrInvalidCandle,
			c.Timestamp, c.Open, c.High, c.Low, c.Close)
	}
	return nil
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Bar is a candle tagged with its market, as streamed by the live feed.
type Bar struct {
	Symbol   string
	Interval string
	Candle   Candle
}
