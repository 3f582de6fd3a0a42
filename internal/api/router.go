// Package api serves the live bot's state over HTTP: health, levels,
// trades, signals, strategy summaries, Prometheus metrics and a WebSocket
// stream of lifecycle events.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"levelbot/internal/livebot"
	"levelbot/internal/model"
	"levelbot/internal/portfolio"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StateProvider exposes per-symbol bot state.
type StateProvider interface {
	Symbols() []string
	Snapshot(symbol string) (livebot.Snapshot, bool)
}

// Deps are the read-only sources behind the routes. Hub and Health may be nil.
type Deps struct {
	State     StateProvider
	Portfolio *portfolio.Portfolio
	Compound  portfolio.CompoundParams
	Health    http.Handler
	Hub       *Hub
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	health := d.Health
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	mux.Handle("/api/v1/health", health)
	mux.Handle("/healthz", health)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/symbols", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.State.Symbols())
	})

	// GET /api/v1/levels?symbol=X[&active=true]
	mux.HandleFunc("/api/v1/levels", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := snapshot(w, r, d.State)
		if !ok {
			return
		}
		if boolParam(r, "active") {
			writeJSON(w, http.StatusOK, nonNil(snap.ActiveLevels))
			return
		}
		writeJSON(w, http.StatusOK, nonNil(snap.Levels))
	})

	// GET /api/v1/trades?symbol=X[&open=true]
	mux.HandleFunc("/api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := snapshot(w, r, d.State)
		if !ok {
			return
		}
		if boolParam(r, "open") {
			writeJSON(w, http.StatusOK, nonNil(snap.OpenTrades))
			return
		}
		writeJSON(w, http.StatusOK, nonNil(snap.Trades))
	})

	// GET /api/v1/signals?symbol=X[&limit=N], newest last
	mux.HandleFunc("/api/v1/signals", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := snapshot(w, r, d.State)
		if !ok {
			return
		}
		signals := snap.Signals
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 && n < len(signals) {
			signals = signals[len(signals)-n:]
		}
		writeJSON(w, http.StatusOK, nonNil(signals))
	})

	// GET /api/v1/summary[?symbol=X]
	mux.HandleFunc("/api/v1/summary", func(w http.ResponseWriter, r *http.Request) {
		if d.Portfolio == nil {
			writeError(w, http.StatusNotFound, "no portfolio")
			return
		}
		sym := strings.ToUpper(r.URL.Query().Get("symbol"))
		var trades []model.Trade
		if sym == "" {
			for _, s := range d.Portfolio.Symbols() {
				trades = append(trades, d.Portfolio.Trades(s)...)
			}
		} else {
			trades = d.Portfolio.Trades(sym)
		}
		summary := portfolio.Summarize(trades)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"symbol":       sym,
			"summary":      summary,
			"fixed_income": summary.FixedIncomeFor(d.Compound),
			"equity":       portfolio.Compound(trades, d.Compound),
		})
	})

	if d.Hub != nil {
		mux.HandleFunc("/api/v1/stream", d.Hub.ServeWS)
	}

	return mux
}

func snapshot(w http.ResponseWriter, r *http.Request, sp StateProvider) (livebot.Snapshot, bool) {
	sym := strings.ToUpper(r.URL.Query().Get("symbol"))
	if sym == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return livebot.Snapshot{}, false
	}
	snap, ok := sp.Snapshot(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol "+sym)
		return livebot.Snapshot{}, false
	}
	return snap, true
}

func boolParam(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
