// Package ws streams closed klines from the Binance combined WebSocket
// endpoint and reconnects with exponential backoff.
//
// Each frame on the combined stream looks like:
//
//	{"stream":"btcusdt@kline_1h","data":{"e":"kline","s":"BTCUSDT","k":{"t":...,"i":"1h","o":"...","x":true}}}
//
// Only klines with "x": true (closed) are forwarded.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"levelbot/internal/model"

	"github.com/gorilla/websocket"
)

// DefaultBaseURL is the Binance spot combined stream endpoint.
const DefaultBaseURL = "wss://stream.binance.com:9443"

// Config holds configuration for the kline stream.
type Config struct {
	// BaseURL of the stream server, e.g. "wss://stream.binance.com:9443".
	BaseURL string

	Symbols  []string
	Interval string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// StreamURL builds the combined stream URL for all configured symbols.
func (c Config) StreamURL() string {
	names := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		names[i] = strings.ToLower(s) + "@kline_" + c.Interval
	}
	return strings.TrimRight(c.BaseURL, "/") + "/stream?streams=" + strings.Join(names, "/")
}

// Stream connects to the kline WebSocket and pushes closed candles into barCh.
type Stream struct {
	cfg Config

	// Optional hooks
	OnConnect    func()
	OnDisconnect func()
	OnReconnect  func()
}

// New creates a new Stream. Returns an error if the URL is unparseable or
// nothing is subscribed.
func New(cfg Config) (*Stream, error) {
	cfg.defaults()
	if len(cfg.Symbols) == 0 || cfg.Interval == "" {
		return nil, fmt.Errorf("ws: no symbols or interval")
	}
	if _, err := url.Parse(cfg.StreamURL()); err != nil {
		return nil, err
	}
	return &Stream{cfg: cfg}, nil
}

// Start streams closed candles into barCh until ctx is cancelled,
// reconnecting automatically on disconnect.
func (s *Stream) Start(ctx context.Context, barCh chan<- model.Bar) error {
	delay := s.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := s.runOnce(ctx, barCh)
		if err == nil {
			return nil
		}
		if connected {
			delay = s.cfg.ReconnectDelay
		}

		log.Printf("[ws] disconnected (%v), reconnecting in %s...", err, delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. A nil error means ctx was cancelled.
func (s *Stream) runOnce(ctx context.Context, barCh chan<- model.Bar) (bool, error) {
	u := s.cfg.StreamURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[ws] connected to %s", u)
	if s.OnConnect != nil {
		s.OnConnect()
	}
	if s.OnDisconnect != nil {
		defer s.OnDisconnect()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		bar, closed, err := ParseKline(raw)
		if err != nil {
			log.Printf("[ws] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if !closed {
			continue
		}

		select {
		case barCh <- bar:
		case <-ctx.Done():
			return true, nil
		}
	}
}

type combinedFrame struct {
	Stream string     `json:"stream"`
	Data   klineEvent `json:"data"`
}

type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime int64   `json:"t"`
		Interval string  `json:"i"`
		Open     float64 `json:"o,string"`
		High     float64 `json:"h,string"`
		Low      float64 `json:"l,string"`
		Close    float64 `json:"c,string"`
		Volume   float64 `json:"v,string"`
		Closed   bool    `json:"x"`
	} `json:"k"`
}

// ParseKline decodes a combined-stream kline frame. closed reports whether
// the kline is final.
func ParseKline(raw []byte) (bar model.Bar, closed bool, err error) {
	var f combinedFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return bar, false, err
	}
	ev := f.Data
	if ev.EventType != "kline" {
		return bar, false, fmt.Errorf("unexpected event %q", ev.EventType)
	}

	k := ev.Kline
	bar = model.Bar{
		Symbol:   ev.Symbol,
		Interval: k.Interval,
		Candle: model.Candle{
			Timestamp: k.OpenTime,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		},
	}
	if err := bar.Candle.Validate(); err != nil {
		return model.Bar{}, false, err
	}
	return bar, k.Closed, nil
}
