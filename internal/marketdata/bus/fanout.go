package bus

import (
	"context"
	"log"
	"sync"

	"levelbot/internal/model"
)

// FanOut broadcasts closed candles from one input channel to named
// subscribers. A full subscriber channel drops the candle for that
// subscriber only, so a slow store never stalls signal evaluation.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Bar
	names   []string
	bufSize int

	// OnDrop is called when a candle is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe(name string) <-chan model.Bar {
	ch := make(chan model.Bar, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed, then closes every
// output channel.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Bar) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- bar:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] subscriber %s full, dropping %s %d", f.names[i], bar.Symbol, bar.Candle.Timestamp)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns the fill level of each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
