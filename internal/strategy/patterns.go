package strategy

import (
	"math"

	"levelbot/internal/model"
)

// IsPinBarLong reports a non-bearish candle with a small body and a long
// lower wick.
//
//	body  < PinBodyRatio * range
//	lower > PinTailRatio * body
func IsPinBarLong(c model.Candle, cfg Config) bool {
	if c.Range() <= 0 || c.Close < c.Open {
		return false
	}
	body := c.Body()
	return body < cfg.PinBodyRatio*c.Range() && c.LowerWick() > cfg.PinTailRatio*body
}

// IsPinBarShort mirrors IsPinBarLong: non-bullish, long upper wick.
func IsPinBarShort(c model.Candle, cfg Config) bool {
	if c.Range() <= 0 || c.Close > c.Open {
		return false
	}
	body := c.Body()
	return body < cfg.PinBodyRatio*c.Range() && c.UpperWick() > cfg.PinTailRatio*body
}

// IsBullishEngulfing reports a bullish candle whose body covers the body of
// a bearish predecessor.
func IsBullishEngulfing(prev, curr model.Candle) bool {
	return prev.Bearish() &&
		curr.Bullish() &&
		curr.Close > prev.Open &&
		curr.Open < prev.Close
}

// IsRailwayTracksLong reports a bearish candle followed by a bullish one of
// near-equal body that mirrors its open and close.
func IsRailwayTracksLong(prev, curr model.Candle, cfg Config) bool {
	if !prev.Bearish() || !curr.Bullish() {
		return false
	}
	return railsMirror(prev, curr, cfg)
}

// IsRailwayTracksShort is the direction-mirrored IsRailwayTracksLong.
func IsRailwayTracksShort(prev, curr model.Candle, cfg Config) bool {
	if !prev.Bullish() || !curr.Bearish() {
		return false
	}
	return railsMirror(prev, curr, cfg)
}

func railsMirror(prev, curr model.Candle, cfg Config) bool {
	b1, b2 := prev.Body(), curr.Body()
	maxBody := math.Max(b1, b2)
	if b1 <= 0 || b2 <= 0 {
		return false
	}
	if math.Abs(b1-b2)/maxBody >= cfg.RailsBodyDiff {
		return false
	}
	tol := cfg.RailsTolerance * maxBody
	return math.Abs(curr.Open-prev.Close) <= tol && math.Abs(curr.Close-prev.Open) <= tol
}
