package redis

import (
	"context"
	"log"
	"sync"
	"time"
)

type writeKind string

const (
	kindSignal writeKind = "signal"
	kindTrade  writeKind = "trade"
	kindLevels writeKind = "levels"
	kindCandle writeKind = "candle"
)

// pendingWrite is a fully encoded write. Key carries the trade ID or the
// candle interval.
type pendingWrite struct {
	Kind   writeKind
	Symbol string
	Key    string
	Data   []byte
}

// outageBuffer keeps writes rejected by an open breaker and replays them
// once the breaker closes. When full, the oldest write is dropped.
type outageBuffer struct {
	w *Writer

	mu      sync.Mutex
	pending []pendingWrite
	max     int
	dropped int

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

func newOutageBuffer(w *Writer, max int) *outageBuffer {
	if max <= 0 {
		max = 10000
	}
	b := &outageBuffer{w: w, max: max, pending: make([]pendingWrite, 0, 64)}

	prev := w.cb.OnStateChange
	w.cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go b.flush()
		}
	}
	return b
}

func (b *outageBuffer) add(pw pendingWrite) {
	b.mu.Lock()
	if len(b.pending) >= b.max {
		b.pending = b.pending[1:]
		b.dropped++
	}
	b.pending = append(b.pending, pw)
	cb := b.OnBuffer
	b.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (b *outageBuffer) take() []pendingWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = make([]pendingWrite, 0, 64)
	return out
}

// flush replays buffered writes in order. A write that fails again goes
// back to the buffer.
func (b *outageBuffer) flush() {
	toFlush := b.take()
	if len(toFlush) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	flushed := 0
	for _, pw := range toFlush {
		if err := b.w.write(ctx, pw); err != nil {
			log.Printf("[redis] replay %s for %s failed: %v", pw.Kind, pw.Symbol, err)
			b.add(pw)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered writes", flushed)
	if b.OnFlush != nil {
		b.OnFlush(flushed)
	}
}

func (b *outageBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
