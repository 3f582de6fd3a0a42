package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal bot.
type Metrics struct {
	CandlesTotal    *prometheus.CounterVec // labels: symbol
	SignalsTotal    *prometheus.CounterVec // labels: symbol, pattern, direction
	TradesOpened    *prometheus.CounterVec // labels: symbol
	TradesClosed    *prometheus.CounterVec // labels: symbol, result
	Rejections      *prometheus.CounterVec // labels: symbol, reason
	ActiveLevels    *prometheus.GaugeVec   // labels: symbol
	LevelsPruned    *prometheus.CounterVec // labels: symbol
	LevelRebuilds   *prometheus.CounterVec // labels: symbol
	StepDur         prometheus.Histogram
	SinkErrors      *prometheus.CounterVec // labels: sink
	WSReconnects    prometheus.Counter
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics registers all metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_candles_total",
			Help: "Closed candles stepped through a session",
		}, []string{"symbol"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_signals_total",
			Help: "Pattern matches at active levels",
		}, []string{"symbol", "pattern", "direction"}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_trades_opened_total",
			Help: "Simulated trades opened",
		}, []string{"symbol"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_trades_closed_total",
			Help: "Simulated trades resolved (by result)",
		}, []string{"symbol", "result"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_rejections_total",
			Help: "Matches that did not open a trade (by reason)",
		}, []string{"symbol", "reason"}),
		ActiveLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "levelbot_active_levels",
			Help: "Levels currently in force",
		}, []string{"symbol"}),
		LevelsPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_levels_pruned_total",
			Help: "Levels deactivated by a touching candle",
		}, []string{"symbol"}),
		LevelRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_level_rebuilds_total",
			Help: "Full level re-detections over history",
		}, []string{"symbol"}),
		StepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "levelbot_step_duration_seconds",
			Help:    "Session step latency per candle",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "levelbot_sink_errors_total",
			Help: "Failed deliveries to signal/trade sinks",
		}, []string{"sink"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelbot_ws_reconnects_total",
			Help: "Total kline WebSocket reconnection attempts",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "levelbot_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "levelbot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelbot_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "levelbot_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.SignalsTotal,
		m.TradesOpened,
		m.TradesClosed,
		m.Rejections,
		m.ActiveLevels,
		m.LevelsPruned,
		m.LevelRebuilds,
		m.StepDur,
		m.SinkErrors,
		m.WSReconnects,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool
	LastCandleTime time.Time
	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool
	Symbols        []string

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(s []string) {
	h.mu.Lock()
	h.Symbols = s
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb may be nil when
// Redis is disabled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Report is the JSON body of the health endpoint.
type Report struct {
	Status          string   `json:"status"`
	Uptime          string   `json:"uptime"`
	WSConnected     bool     `json:"ws_connected"`
	LastCandleTime  string   `json:"last_candle_time"`
	CandleAge       string   `json:"candle_age"`
	RedisEnabled    bool     `json:"redis_enabled"`
	RedisConnected  bool     `json:"redis_connected"`
	RedisLatencyMs  float64  `json:"redis_latency_ms"`
	SQLiteOK        bool     `json:"sqlite_ok"`
	SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
	Symbols         []string `json:"symbols"`
	LastCheckAt     string   `json:"last_check_at"`
}

// Report evaluates the overall status: "healthy", "degraded" (stream down,
// or an enabled dependency failing) or "unhealthy" (SQLite down).
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK

	if !h.WSConnected || (h.RedisEnabled && !h.RedisConnected) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	age := ""
	last := ""
	if !h.LastCandleTime.IsZero() {
		age = time.Since(h.LastCandleTime).Round(time.Second).String()
		last = h.LastCandleTime.UTC().Format(time.RFC3339)
	}

	return Report{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastCandleTime:  last,
		CandleAge:       age,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.UTC().Format(time.RFC3339),
	}, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(report)
}

// Server runs an HTTP server for a handler, e.g. the API router.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a server exposing /metrics and /healthz when handler is
// nil, or serving handler otherwise.
func NewServer(addr string, health *HealthStatus, handler http.Handler) *Server {
	if handler == nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/healthz", health)
		handler = mux
	}
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
