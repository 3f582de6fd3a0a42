package model

import "encoding/json"

// Pattern names a price-action rule in the closed pattern catalogue.
type Pattern string

const (
	PatternPinBar           Pattern = "pin_bar"
	PatternBullishEngulfing Pattern = "bullish_engulfing"
	PatternRailwayTracks    Pattern = "railway_tracks"
)

// Direction is the side a signal or trade takes.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// SignalMatch records that Pattern fired on Candle because Level was in force.
type SignalMatch struct {
	Pattern   Pattern   `json:"pattern"`
	Direction Direction `json:"direction"`
	Candle    Candle    `json:"candle"`
	Level     Level     `json:"level"`
}

// JSON returns the JSON-encoded match.
func (m SignalMatch) JSON() []byte {
	b, _ := json.Marshal(m)
	return b
}
