package backtest

import (
	"encoding/json"
	"io"
	"time"

	"levelbot/internal/model"
)

// TradeRecord is the flat per-trade export row.
type TradeRecord struct {
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // buy | sell
	Pattern      string  `json:"pattern"`
	OpenedAt     string  `json:"opened_at"`
	ClosedAt     *string `json:"closed_at"`
	Result       string  `json:"result"`
	OpenPrice    float64 `json:"open_price"`
	TakePrice    float64 `json:"take_price"`
	StopPrice    float64 `json:"stop_price"`
	StopMoved    bool    `json:"stop_moved"`
	IsSuccessful bool    `json:"is_successful"`
	LevelFrom    string  `json:"level_from"`
	LevelPrice   float64 `json:"level_price"`
	CandleOpen   float64 `json:"open_candle_price_open"`
	CandleClose  float64 `json:"open_candle_price_close"`
	CandleHigh   float64 `json:"open_candle_price_high"`
	CandleLow    float64 `json:"open_candle_price_low"`
}

func isoMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// NewTradeRecord flattens t.
func NewTradeRecord(t model.Trade) TradeRecord {
	side := "buy"
	if t.Direction == model.Short {
		side = "sell"
	}
	r := TradeRecord{
		Symbol:       t.Symbol,
		Type:         side,
		Pattern:      string(t.Pattern),
		OpenedAt:     isoMs(t.OpenedAt.Timestamp),
		Result:       string(t.Result),
		OpenPrice:    t.EntryPrice,
		TakePrice:    t.TakePrice,
		StopPrice:    t.InitialStop,
		StopMoved:    t.StopMoved,
		IsSuccessful: t.Result == model.ResultTake,
		LevelFrom:    isoMs(t.Level.FormedAt),
		LevelPrice:   t.Level.Price,
		CandleOpen:   t.OpenedAt.Open,
		CandleClose:  t.OpenedAt.Close,
		CandleHigh:   t.OpenedAt.High,
		CandleLow:    t.OpenedAt.Low,
	}
	if t.ClosedAt != nil {
		s := isoMs(t.ClosedAt.Timestamp)
		r.ClosedAt = &s
	}
	if r.Result == "" {
		r.Result = "open"
	}
	return r
}

// WriteTradesJSON writes trades as an indented JSON array of TradeRecord.
func WriteTradesJSON(w io.Writer, trades []model.Trade) error {
	recs := make([]TradeRecord, 0, len(trades))
	for _, t := range trades {
		recs = append(recs, NewTradeRecord(t))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}
