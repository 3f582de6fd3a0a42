package strategy

import (
	"math"
	"math/rand"
	"testing"

	"levelbot/internal/model"
)

// reflect mirrors c through price p: highs become lows and the body flips.
func reflect(c model.Candle, p float64) model.Candle {
	return model.Candle{
		Timestamp: c.Timestamp,
		Open:      2*p - c.Open,
		High:      2*p - c.Low,
		Low:       2*p - c.High,
		Close:     2*p - c.Close,
	}
}

func greenBonus(c model.Candle) float64 {
	if c.Bullish() {
		return wColour
	}
	return 0
}

func TestPinBar_PointReflectionSymmetry(t *testing.T) {
	cfg := DefaultConfig()
	r := rand.New(rand.NewSource(11))
	fired := 0
	for i := 0; i < 5000; i++ {
		o := float64(90 + r.Intn(20))
		c := float64(90 + r.Intn(20))
		h := max(o, c) + float64(r.Intn(12))
		l := min(o, c) - float64(r.Intn(12))
		orig := candle(int64(i), o, h, l, c)
		mirror := reflect(orig, 100)

		long, short := IsPinBarLong(orig, cfg), IsPinBarShort(mirror, cfg)
		if long != short {
			t.Fatalf("asymmetric pin bar: %+v long=%v, mirror %+v short=%v", orig, long, mirror, short)
		}
		if long {
			fired++
			if orig.Body() != mirror.Body() || orig.LowerWick() != mirror.UpperWick() {
				t.Fatalf("ratios differ for %+v vs %+v", orig, mirror)
			}
		}
		if IsPinBarShort(orig, cfg) != IsPinBarLong(mirror, cfg) {
			t.Fatalf("asymmetric short pin bar on %+v", orig)
		}

		// mirroring flips the colour, so compare without the green bonus
		sl, ss := ScorePinBar(orig, model.Long), ScorePinBar(mirror, model.Short)
		if math.Abs((sl.Score-greenBonus(orig))-(ss.Score-greenBonus(mirror))) > 1e-9 || sl.Gated != ss.Gated {
			t.Fatalf("scored asymmetry on %+v: %+v vs %+v", orig, sl, ss)
		}
	}
	if fired == 0 {
		t.Fatal("generator never produced a pin bar")
	}
}

func TestIsPinBarLong(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name string
		c    model.Candle
		want bool
	}{
		{"classic hammer", candle(0, 109, 110, 100, 110), true},
		{"doji with tail", candle(0, 105, 105, 100, 105), true},
		{"bearish body", candle(0, 110, 110.5, 100, 109), false},
		{"body too large", candle(0, 104, 110, 100, 108), false},
		{"tail too short", candle(0, 108, 110, 107.5, 109), false},
		{"zero range", candle(0, 100, 100, 100, 100), false},
	}
	for _, tc := range cases {
		if got := IsPinBarLong(tc.c, cfg); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsBullishEngulfing(t *testing.T) {
	prev := candle(0, 105, 106, 99, 100)
	if !IsBullishEngulfing(prev, candle(1, 99, 108, 98, 107)) {
		t.Error("expected engulfing")
	}
	if IsBullishEngulfing(prev, candle(1, 101, 108, 98, 107)) {
		t.Error("open above prior close must not engulf")
	}
	if IsBullishEngulfing(prev, candle(1, 99, 106, 98, 105)) {
		t.Error("close equal to prior open must not engulf")
	}
	if IsBullishEngulfing(candle(0, 100, 106, 99, 105), candle(1, 99, 108, 98, 107)) {
		t.Error("bullish predecessor must not engulf")
	}
}

func TestRailwayTracks(t *testing.T) {
	cfg := DefaultConfig()
	bear := candle(0, 105, 106, 99, 100)
	bull := candle(1, 100, 106, 99, 105)

	if !IsRailwayTracksLong(bear, bull, cfg) {
		t.Error("expected long rails")
	}
	if !IsRailwayTracksShort(bull, bear, cfg) {
		t.Error("expected short rails")
	}
	if IsRailwayTracksLong(bull, bear, cfg) || IsRailwayTracksShort(bear, bull, cfg) {
		t.Error("wrong colour order must not match")
	}
	// Body ratio 2/7 breaks the 0.2 body-difference limit.
	if IsRailwayTracksLong(bear, candle(1, 100, 108, 99, 107), cfg) {
		t.Error("unequal bodies must not match")
	}
	// Equal bodies, but shifted 2 points: tolerance is 0.2*5 = 1.
	if IsRailwayTracksLong(bear, candle(1, 102, 108, 101, 107), cfg) {
		t.Error("shifted bodies must not match")
	}
	flat := candle(1, 100, 100, 100, 100)
	if IsRailwayTracksLong(bear, flat, cfg) {
		t.Error("zero body must not match")
	}
}

// The two pin bar classifiers are not nested: each accepts a candle the other rejects.
func TestScoredAndThresholdPinBarDiverge(t *testing.T) {
	cfg := DefaultConfig()
	set := []struct {
		name            string
		c               model.Candle
		threshold, scor bool
	}{
		{"strong hammer", candle(0, 109, 110, 100, 110), true, true},
		{"red hammer", candle(0, 100, 100.2, 90, 99), false, true},
		{"short tail vs range", candle(0, 100, 104, 98, 100.5), true, false},
		{"no tail", candle(0, 100, 110, 100, 101), false, false},
	}
	for _, tc := range set {
		th := IsPinBarLong(tc.c, cfg)
		sc := IsScoredPinBar(tc.c, model.Long, cfg.ScoreThreshold)
		if th != tc.threshold || sc != tc.scor {
			t.Errorf("%s: threshold=%v scored=%v (score %+v), want %v/%v",
				tc.name, th, sc, ScorePinBar(tc.c, model.Long), tc.threshold, tc.scor)
		}
	}
}

func TestScorePinBar_Bounds(t *testing.T) {
	s := ScorePinBar(candle(0, 109.5, 110, 100, 110), model.Long)
	if s.Gated || s.Score <= 90 || s.Score > 100 {
		t.Fatalf("unexpected score %+v", s)
	}
	// Same candle scored as a short is gated: the upper wick is empty.
	if s := ScorePinBar(candle(0, 109.5, 110, 100, 110), model.Short); !s.Gated {
		t.Fatalf("expected gated short, got %+v", s)
	}
}

func TestScorePinBar_GreenBonusBothDirections(t *testing.T) {
	// Shooting stars differing only in close colour.
	green := candle(0, 10, 14, 9.9, 10.5)
	red := candle(0, 10.5, 14, 9.9, 10)

	g, r := ScorePinBar(green, model.Short), ScorePinBar(red, model.Short)
	if g.Gated || r.Gated {
		t.Fatalf("expected both to pass the gates: %+v %+v", g, r)
	}
	if math.Abs(g.Score-r.Score-wColour) > 1e-9 {
		t.Fatalf("green short = %.2f, red short = %.2f, want a %.0f point gap", g.Score, r.Score, wColour)
	}

	hg, hr := ScorePinBar(reflect(red, 50), model.Long), ScorePinBar(reflect(green, 50), model.Long)
	if math.Abs(hg.Score-hr.Score-wColour) > 1e-9 {
		t.Fatalf("green long = %.2f, red long = %.2f", hg.Score, hr.Score)
	}
}
