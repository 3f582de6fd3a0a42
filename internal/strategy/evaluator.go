package strategy

import "levelbot/internal/model"

// Evaluator matches the pattern catalogue against actionable levels.
// It is stateless and safe for concurrent use.
type Evaluator struct {
	cfg Config
}

// NewEvaluator validates cfg and returns an Evaluator.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg}, nil
}

// Config returns the evaluator thresholds.
func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate scans every candle of the window. Drivers normally keep only the
// matches on the newest candle (see NewestOnly and EvaluateNewest).
func (e *Evaluator) Evaluate(w model.CandleWindow, levels []model.Level) []model.SignalMatch {
	return e.EvaluateCandles(w.Candles(), levels)
}

// EvaluateNewest returns the matches on the newest candle of the window.
// It equals NewestOnly(Evaluate(w, levels)) without scanning older candles.
func (e *Evaluator) EvaluateNewest(w model.CandleWindow, levels []model.Level) []model.SignalMatch {
	return e.EvaluateAt(w.Candles(), w.Len()-1, levels)
}

// EvaluateCandles runs EvaluateAt for every index of candles, oldest first.
func (e *Evaluator) EvaluateCandles(candles []model.Candle, levels []model.Level) []model.SignalMatch {
	var out []model.SignalMatch
	for i := range candles {
		out = append(out, e.EvaluateAt(candles, i, levels)...)
	}
	return out
}

// EvaluateAt evaluates candles[i], using candles[i-1] for two-candle
// patterns. Patterns are tried in a fixed order: pin bar, bullish
// engulfing, railway tracks.
func (e *Evaluator) EvaluateAt(candles []model.Candle, i int, levels []model.Level) []model.SignalMatch {
	if i < 0 || i >= len(candles) {
		return nil
	}
	c := candles[i]
	buy, sell := actionable(c, levels)
	if len(buy) == 0 && len(sell) == 0 {
		return nil
	}

	var out []model.SignalMatch
	emit := func(p model.Pattern, d model.Direction, side []model.Level) {
		for _, lvl := range side {
			out = append(out, model.SignalMatch{Pattern: p, Direction: d, Candle: c, Level: lvl})
		}
	}

	if len(buy) > 0 && e.pinBar(c, model.Long) {
		emit(model.PatternPinBar, model.Long, buy)
	}
	if len(sell) > 0 && e.pinBar(c, model.Short) {
		emit(model.PatternPinBar, model.Short, sell)
	}
	if i == 0 {
		return out
	}
	prev := candles[i-1]
	if len(buy) > 0 && IsBullishEngulfing(prev, c) {
		emit(model.PatternBullishEngulfing, model.Long, buy)
	}
	if len(buy) > 0 && IsRailwayTracksLong(prev, c, e.cfg) {
		emit(model.PatternRailwayTracks, model.Long, buy)
	}
	if len(sell) > 0 && IsRailwayTracksShort(prev, c, e.cfg) {
		emit(model.PatternRailwayTracks, model.Short, sell)
	}
	return out
}

func (e *Evaluator) pinBar(c model.Candle, d model.Direction) bool {
	if e.cfg.UseScoredPinBar {
		return IsScoredPinBar(c, d, e.cfg.ScoreThreshold)
	}
	if d == model.Short {
		return IsPinBarShort(c, e.cfg)
	}
	return IsPinBarLong(c, e.cfg)
}

// Actionable reports whether lvl can act on candle c: active, formed and
// confirmed strictly before c, and inside c's range.
func Actionable(lvl model.Level, c model.Candle) bool {
	return lvl.Active &&
		lvl.ConfirmedAt < c.Timestamp &&
		lvl.FormedAt < c.Timestamp &&
		c.Contains(lvl.Price)
}

// actionable splits the levels acting on c into buy side (lows) and sell
// side (highs), keeping input order.
func actionable(c model.Candle, levels []model.Level) (buy, sell []model.Level) {
	for _, lvl := range levels {
		if !Actionable(lvl, c) {
			continue
		}
		if lvl.Kind == model.LevelLow {
			buy = append(buy, lvl)
		} else {
			sell = append(sell, lvl)
		}
	}
	return buy, sell
}

// NewestOnly keeps the matches whose candle has timestamp ts.
func NewestOnly(matches []model.SignalMatch, ts int64) []model.SignalMatch {
	var out []model.SignalMatch
	for _, m := range matches {
		if m.Candle.Timestamp == ts {
			out = append(out, m)
		}
	}
	return out
}
