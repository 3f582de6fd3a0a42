package execution

import (
	"context"
	"log"

	"levelbot/internal/model"
)

// EventKind tells what happened in an Event.
type EventKind string

const (
	EventSignal      EventKind = "SIGNAL"
	EventTradeOpened EventKind = "OPENED"
	EventTradeClosed EventKind = "CLOSED"
)

// Event is one lifecycle fact produced by a session step.
type Event struct {
	Kind   EventKind          `json:"kind"`
	Symbol string             `json:"symbol"`
	Match  *model.SignalMatch `json:"match,omitempty"`
	Trade  *model.Trade       `json:"trade,omitempty"`
}

// Executor fans lifecycle events out to signal and trade sinks.
// A failing sink is logged and skipped; the others still receive the event.
type Executor struct {
	signalSinks []model.SignalSink
	tradeSinks  []model.TradeSink
	resultCh    chan Event

	// OnSinkError is called for every failed delivery (for metrics).
	OnSinkError func(ev Event, err error)
}

// NewExecutor creates an executor. Delivered events are echoed on Results;
// the echo is dropped when nobody reads it.
func NewExecutor(resultBufferSize int) *Executor {
	return &Executor{
		resultCh: make(chan Event, resultBufferSize),
	}
}

// AddSignalSink registers a sink for EventSignal.
func (e *Executor) AddSignalSink(s model.SignalSink) { e.signalSinks = append(e.signalSinks, s) }

// AddTradeSink registers a sink for trade open/close events.
func (e *Executor) AddTradeSink(s model.TradeSink) { e.tradeSinks = append(e.tradeSinks, s) }

// Results returns the channel of delivered events.
func (e *Executor) Results() <-chan Event {
	return e.resultCh
}

// Run consumes events and delivers them.
// Blocks until ctx is cancelled or eventCh is closed.
func (e *Executor) Run(ctx context.Context, eventCh <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			e.Deliver(ctx, ev)
		}
	}
}

// Deliver sends one event to every matching sink and returns the number of
// sink failures.
func (e *Executor) Deliver(ctx context.Context, ev Event) int {
	failed := 0
	switch {
	case ev.Kind == EventSignal && ev.Match != nil:
		for _, s := range e.signalSinks {
			if err := s.PublishSignal(ctx, ev.Symbol, *ev.Match); err != nil {
				log.Printf("[executor] %s signal sink error: %v", ev.Symbol, err)
				e.sinkError(ev, err)
				failed++
			}
		}
	case ev.Trade != nil:
		for _, s := range e.tradeSinks {
			if err := s.PublishTrade(ctx, *ev.Trade); err != nil {
				log.Printf("[executor] %s trade %s sink error: %v", ev.Symbol, ev.Trade.ID, err)
				e.sinkError(ev, err)
				failed++
			}
		}
	default:
		log.Printf("[executor] dropping malformed %s event for %s", ev.Kind, ev.Symbol)
		return 0
	}

	select {
	case e.resultCh <- ev:
	default:
	}
	return failed
}

func (e *Executor) sinkError(ev Event, err error) {
	if e.OnSinkError != nil {
		e.OnSinkError(ev, err)
	}
}
