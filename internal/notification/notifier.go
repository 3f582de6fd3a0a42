// Package notification delivers signal and trade alerts to external channels
// (log, Telegram, webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"levelbot/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Event, Signal and Trade carry
// the structured record behind a signal or trade alert; Title and Message are
// the one-line rendering used by the log backend.
type Alert struct {
	Level   AlertLevel
	Event   EventKind
	Symbol  string
	Title   string
	Message string
	Signal  *SignalRecord
	Trade   *TradeRecord
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlert formats a pattern match at a level.
func SignalAlert(symbol string, m model.SignalMatch) Alert {
	rec := NewSignalRecord(symbol, m)
	return Alert{
		Level:  AlertInfo,
		Event:  EventSignal,
		Symbol: symbol,
		Signal: &rec,
		Title:  fmt.Sprintf("%s %s %s", symbol, strings.ToUpper(string(m.Direction)), m.Pattern),
		Message: fmt.Sprintf("candle %s close %g at %s level %g",
			m.Candle.Time().Format("2006-01-02 15:04"), m.Candle.Close, m.Level.Kind, m.Level.Price),
	}
}

// TradeAlert formats a trade that was just opened or resolved.
func TradeAlert(t model.Trade) Alert {
	dir := strings.ToUpper(string(t.Direction))
	rec := NewTradeRecord(t)
	rr := rec.riskRewardText()

	if t.IsOpen() {
		return Alert{
			Level:  AlertInfo,
			Event:  EventTradeOpened,
			Symbol: t.Symbol,
			Trade:  &rec,
			Title:  fmt.Sprintf("%s %s opened (%s)", t.Symbol, dir, t.Pattern),
			Message: fmt.Sprintf("entry %g stop %g take %g risk %g R:R %s",
				t.EntryPrice, t.StopPrice, t.TakePrice, t.RiskAmount, rr),
		}
	}

	outcome := "TAKE PROFIT"
	level := AlertInfo
	if t.Result == model.ResultStop {
		outcome = "STOP LOSS"
		level = AlertWarning
		if t.StopMoved {
			outcome = "BREAK EVEN"
			level = AlertInfo
		}
	}
	return Alert{
		Level:   level,
		Event:   EventTradeClosed,
		Symbol:  t.Symbol,
		Trade:   &rec,
		Title:   fmt.Sprintf("%s %s %s", t.Symbol, dir, outcome),
		Message: fmt.Sprintf("entry %g exit %g R:R %s", t.EntryPrice, *rec.ExitPrice, rr),
	}
}

// Sink adapts a Notifier to the signal and trade sinks of the live bot.
type Sink struct {
	n Notifier
}

// NewSink wraps n.
func NewSink(n Notifier) *Sink {
	return &Sink{n: n}
}

func (s *Sink) PublishSignal(ctx context.Context, symbol string, m model.SignalMatch) error {
	return s.n.Send(ctx, SignalAlert(symbol, m))
}

func (s *Sink) PublishTrade(ctx context.Context, t model.Trade) error {
	return s.n.Send(ctx, TradeAlert(t))
}
