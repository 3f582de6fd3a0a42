package levels

import "levelbot/internal/model"

// Tracker owns the active flag of a level set. Levels live in an arena
// indexed by Level.ID; every state change goes through Deactivate so there is
// exactly one place that mutates a level.
//
// A Tracker is not safe for concurrent use. Drivers give each symbol its own
// tracker and mutate it from a single goroutine.
type Tracker struct {
	cfg    Config
	levels []model.Level
}

// NewTracker copies levels into a fresh arena. IDs are reassigned to match
// arena positions.
func NewTracker(levels []model.Level, cfg Config) *Tracker {
	arena := make([]model.Level, len(levels))
	copy(arena, levels)
	for i := range arena {
		arena[i].ID = i
	}
	return &Tracker{cfg: cfg, levels: arena}
}

// Build detects levels in candles and replays the same candles through
// Prune, yielding the state a sequential driver would have reached after the
// last candle.
func Build(candles []model.Candle, cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := NewTracker(Detect(candles, cfg), cfg)
	t.Replay(candles)
	return t, nil
}

// ActiveLevels returns the levels that are active and were confirmed strictly
// before asOf.
func (t *Tracker) ActiveLevels(asOf int64) []model.Level {
	var out []model.Level
	for _, lvl := range t.levels {
		if lvl.UsableAt(asOf) {
			out = append(out, lvl)
		}
	}
	return out
}

// Prune deactivates every confirmed, active level whose price (widened by
// the touch tolerance) lies within the candle's range. It returns the IDs it
// deactivated.
func (t *Tracker) Prune(c model.Candle) []int {
	tol := t.cfg.TouchTolerance()
	var touched []int
	for i := range t.levels {
		lvl := t.levels[i]
		if !lvl.UsableAt(c.Timestamp) {
			continue
		}
		if c.Low <= lvl.Price+tol && c.High >= lvl.Price-tol {
			touched = append(touched, i)
		}
	}
	for _, id := range touched {
		t.Deactivate(id)
	}
	return touched
}

// Replay prunes against each candle in order and returns how many levels
// were deactivated in total.
func (t *Tracker) Replay(candles []model.Candle) int {
	n := 0
	for _, c := range candles {
		n += len(t.Prune(c))
	}
	return n
}

// Deactivate marks level id inactive. It reports whether the call changed
// anything; unknown IDs and already inactive levels are no-ops.
func (t *Tracker) Deactivate(id int) bool {
	if id < 0 || id >= len(t.levels) || !t.levels[id].Active {
		return false
	}
	t.levels[id].Active = false
	return true
}

// Level returns the level with the given ID.
func (t *Tracker) Level(id int) (model.Level, bool) {
	if id < 0 || id >= len(t.levels) {
		return model.Level{}, false
	}
	return t.levels[id], true
}

// Levels returns a copy of the whole arena, active and archived.
func (t *Tracker) Levels() []model.Level {
	out := make([]model.Level, len(t.levels))
	copy(out, t.levels)
	return out
}

// ActiveCount returns the number of levels still active.
func (t *Tracker) ActiveCount() int {
	n := 0
	for _, lvl := range t.levels {
		if lvl.Active {
			n++
		}
	}
	return n
}

// Len returns the arena size.
func (t *Tracker) Len() int { return len(t.levels) }
