package strategy

import (
	"math"

	"levelbot/internal/model"
)

// Scored pin bar gates and weights. Weights add up to 100.
const (
	minTailToRange = 0.5
	minTailToBody  = 1.5

	wTailRange = 35.0
	wTailBody  = 25.0
	wHead      = 15.0
	wBody      = 10.0
	wPosition  = 10.0
	wColour    = 5.0
)

// PinBarScore breaks a scored pin bar down into its parts.
type PinBarScore struct {
	Direction model.Direction `json:"direction"`
	Score     float64         `json:"score"`
	TailRange float64         `json:"tail_range"`
	TailBody  float64         `json:"tail_body"` // +Inf for a zero body
	Gated     bool            `json:"gated"`     // failed the minimum tail ratios
}

// ScorePinBar grades c as a pin bar in direction d on a 0..100 scale.
//
// Unlike the hard-threshold rule it accepts either candle colour, so the two
// classifiers can disagree. A green close earns the colour bonus in both
// directions.
func ScorePinBar(c model.Candle, d model.Direction) PinBarScore {
	out := PinBarScore{Direction: d, Gated: true}
	rng := c.Range()
	if rng <= 0 {
		return out
	}

	mid := (c.Open + c.Close) / 2
	tail, head := c.LowerWick(), c.UpperWick()
	away := mid - c.Low
	if d == model.Short {
		tail, head = head, tail
		away = c.High - mid
	}
	body := c.Body()

	out.TailRange = tail / rng
	out.TailBody = math.Inf(1)
	if body > 0 {
		out.TailBody = tail / body
	}
	if out.TailRange < minTailToRange || out.TailBody < minTailToBody {
		return out
	}
	out.Gated = false

	score := clamp01((out.TailRange-minTailToRange)/(1-minTailToRange)) * wTailRange
	score += clamp01(out.TailBody/4) * wTailBody

	switch hr := head / rng; {
	case hr <= 0.1:
		score += wHead
	case hr <= 0.2:
		score += wHead / 2
	}
	switch br := body / rng; {
	case br <= 0.1:
		score += wBody
	case br <= 0.25:
		score += wBody / 2
	}
	// Body midpoint in the quarter of the range opposite the tail.
	if away/rng >= 0.75 {
		score += wPosition
	}
	if c.Bullish() {
		score += wColour
	}
	out.Score = score
	return out
}

// IsScoredPinBar reports whether the score of c in direction d reaches threshold.
func IsScoredPinBar(c model.Candle, d model.Direction, threshold float64) bool {
	s := ScorePinBar(c, d)
	return !s.Gated && s.Score >= threshold
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
