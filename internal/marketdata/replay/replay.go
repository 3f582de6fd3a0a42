// Package replay feeds stored candles into the live pipeline at a chosen
// speed, as a dry run of the signal bot without a WebSocket connection.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"levelbot/internal/model"
)

// MaxGap caps the sleep between two replayed candles.
const MaxGap = 5 * time.Second

// Replayer reads candles from a CandleSource and emits them as bars.
type Replayer struct {
	src   model.CandleSource
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by src.
func New(src model.CandleSource) *Replayer {
	return &Replayer{src: src, sleep: sleepCtx}
}

// Run replays candles of every symbol with ts >= fromMs into outCh, merged
// in timestamp order. speed scales the real gap between candles: 60 plays
// an hour of 1m candles in a minute, 0 replays as fast as possible. Returns
// the number of bars emitted; ctx cancellation returns ctx.Err().
func (r *Replayer) Run(ctx context.Context, symbols []string, interval string, fromMs int64, speed float64, outCh chan<- model.Bar) (int, error) {
	var bars []model.Bar
	for _, sym := range symbols {
		candles, err := r.src.Candles(ctx, sym, interval, fromMs)
		if err != nil {
			return 0, err
		}
		for _, c := range candles {
			bars = append(bars, model.Bar{Symbol: sym, Interval: interval, Candle: c})
		}
	}
	if len(bars) == 0 {
		log.Println("[replay] no candles found")
		return 0, nil
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Candle.Timestamp < bars[j].Candle.Timestamp
	})
	log.Printf("[replay] loaded %d candles across %d symbols, speed=%.1fx", len(bars), len(symbols), speed)

	var prevTs int64
	emitted := 0
	for _, b := range bars {
		if speed > 0 && prevTs != 0 {
			if gap := time.Duration(b.Candle.Timestamp-prevTs) * time.Millisecond; gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > MaxGap {
					scaled = MaxGap
				}
				if err := r.sleep(ctx, scaled); err != nil {
					return emitted, err
				}
			}
		}
		prevTs = b.Candle.Timestamp

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return emitted, ctx.Err()
		case outCh <- b:
			emitted++
		}
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return emitted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
