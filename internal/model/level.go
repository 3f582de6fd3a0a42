package model

import "encoding/json"

// LevelKind tells whether a level came from a swing high or a swing low.
type LevelKind string

const (
	LevelHigh LevelKind = "high"
	LevelLow  LevelKind = "low"
)

// Level is a liquidity level: a confirmed historical extremum.
//
// FormedAt is the timestamp of the extremum candle, ConfirmedAt the timestamp
// of the candle that completed the forward confirmation (ConfirmedAt >= FormedAt).
// ID is the level's index in the tracker arena. Active only ever goes from
// true to false.
type Level struct {
	ID          int       `json:"id"`
	Price       float64   `json:"price"`
	Kind        LevelKind `json:"kind"`
	FormedAt    int64     `json:"formed_at"`
	ConfirmedAt int64     `json:"confirmed_at"`
	Active      bool      `json:"active"`
}

// UsableAt reports whether the level is active and was confirmed strictly
// before ts. A level confirmed on the candle at ts is not yet usable.
func (l Level) UsableAt(ts int64) bool {
	return l.Active && l.ConfirmedAt < ts
}

// JSON returns the JSON-encoded level.
func (l Level) JSON() []byte {
	b, _ := json.Marshal(l)
	return b
}
