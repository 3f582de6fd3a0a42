package levels

import (
	"sort"

	"levelbot/internal/model"
)

// Detector builds level sets from candle histories. It holds no state across
// calls except the last list it built.
type Detector struct {
	cfg  Config
	last []model.Level
}

// NewDetector validates cfg and returns a Detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the detector settings.
func (d *Detector) Config() Config { return d.cfg }

// Detect runs Detect with the detector's config and remembers the result.
func (d *Detector) Detect(candles []model.Candle) []model.Level {
	d.last = Detect(candles, d.cfg)
	return d.Levels()
}

// Levels returns a copy of the last built list.
func (d *Detector) Levels() []model.Level {
	out := make([]model.Level, len(d.last))
	copy(out, d.last)
	return out
}

// Detect returns the confirmed swing highs and lows of candles, sorted by
// FormedAt, quantized and clustered per cfg. IDs are assigned in order.
// Histories shorter than cfg.MinCandles() yield no levels.
func Detect(candles []model.Candle, cfg Config) []model.Level {
	n := len(candles)
	if n < cfg.MinCandles() || cfg.BackWindow < 1 || cfg.ForwardConfirm < 1 {
		return nil
	}

	var raw []model.Level
	for i := cfg.BackWindow; i < n-cfg.ForwardConfirm; i++ {
		confirmedAt := candles[i+cfg.ForwardConfirm].Timestamp
		if isSwingHigh(candles, i, cfg) {
			raw = append(raw, model.Level{
				Price:       RoundToTick(candles[i].High, cfg.TickSize),
				Kind:        model.LevelHigh,
				FormedAt:    candles[i].Timestamp,
				ConfirmedAt: confirmedAt,
				Active:      true,
			})
		}
		if isSwingLow(candles, i, cfg) {
			raw = append(raw, model.Level{
				Price:       RoundToTick(candles[i].Low, cfg.TickSize),
				Kind:        model.LevelLow,
				FormedAt:    candles[i].Timestamp,
				ConfirmedAt: confirmedAt,
				Active:      true,
			})
		}
	}

	sort.SliceStable(raw, func(a, b int) bool { return raw[a].FormedAt < raw[b].FormedAt })

	out := cluster(raw, cfg.ClusterTolerance())
	for i := range out {
		out[i].ID = i
	}
	return out
}

// isSwingHigh: strictly above both neighbours and the back window, and not
// exceeded by any candle of the forward confirmation window.
func isSwingHigh(c []model.Candle, i int, cfg Config) bool {
	h := c[i].High
	if h <= c[i-1].High || h <= c[i+1].High {
		return false
	}
	for j := i - cfg.BackWindow; j < i; j++ {
		if c[j].High >= h {
			return false
		}
	}
	for j := i + 1; j <= i+cfg.ForwardConfirm; j++ {
		if c[j].High > h {
			return false
		}
	}
	return true
}

func isSwingLow(c []model.Candle, i int, cfg Config) bool {
	l := c[i].Low
	if l >= c[i-1].Low || l >= c[i+1].Low {
		return false
	}
	for j := i - cfg.BackWindow; j < i; j++ {
		if c[j].Low <= l {
			return false
		}
	}
	for j := i + 1; j <= i+cfg.ForwardConfirm; j++ {
		if c[j].Low < l {
			return false
		}
	}
	return true
}

// cluster drops a level when it sits within tol of the last kept level of the
// same kind. One left-to-right pass; the earliest level of a run survives.
func cluster(levels []model.Level, tol float64) []model.Level {
	out := make([]model.Level, 0, len(levels))
	lastKept := map[model.LevelKind]float64{}
	for _, lvl := range levels {
		if prev, ok := lastKept[lvl.Kind]; ok && withinTolerance(lvl.Price, prev, tol) {
			continue
		}
		lastKept[lvl.Kind] = lvl.Price
		out = append(out, lvl)
	}
	return out
}
