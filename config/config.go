package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"levelbot/internal/backtest"
	"levelbot/internal/execution"
	"levelbot/internal/levels"
	"levelbot/internal/strategy"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from the environment.
type Config struct {
	// Market
	Symbols      []string
	Interval     string
	HistoryLimit int

	// Binance
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceWSURL     string

	// Infrastructure
	SQLitePath    string
	RedisAddr     string // empty disables Redis
	RedisPassword string
	HTTPAddr      string
	LogLevel      string

	// Notifications
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// Levels
	LevelBackWindow     int
	LevelForwardConfirm int
	LevelTickSize       float64
	LevelClusterTicks   int
	LevelTouchTicks     int
	LevelRebuildEvery   int

	// Signals
	PinBodyRatio      float64
	PinTailRatio      float64
	RailsBodyDiff     float64
	RailsTolerance    float64
	ScoredPinBar      bool
	PinScoreThreshold float64

	// Risk
	RiskMultiplier  float64
	RewardMultiple  float64
	BreakEvenAtR    float64
	SingleOpenTrade bool
}

// Load reads an optional .env file, then environment variables with defaults.
// Values in the environment win over the .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	c := &Config{
		Symbols:      getList("SYMBOLS", []string{"BTCUSDT"}),
		Interval:     getEnv("INTERVAL", "1h"),
		HistoryLimit: getInt("HISTORY_LIMIT", 1000),

		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey: getEnv("BINANCE_SECRET_KEY", ""),
		BinanceWSURL:     getEnv("BINANCE_WS_URL", ""),

		SQLitePath:    getEnv("SQLITE_PATH", "data/levels.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":9096"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		LevelBackWindow:     getInt("LEVEL_BACK_WINDOW", 6),
		LevelForwardConfirm: getInt("LEVEL_FORWARD_CONFIRM", 2),
		LevelTickSize:       getFloat("LEVEL_TICK_SIZE", 0),
		LevelClusterTicks:   getInt("LEVEL_CLUSTER_TICKS", 2),
		LevelTouchTicks:     getInt("LEVEL_TOUCH_TICKS", 1),
		LevelRebuildEvery:   getInt("LEVEL_REBUILD_EVERY", 24),

		PinBodyRatio:      getFloat("PIN_BODY_RATIO", 0.3),
		PinTailRatio:      getFloat("PIN_TAIL_RATIO", 2.0),
		RailsBodyDiff:     getFloat("RAILS_BODY_DIFF", 0.2),
		RailsTolerance:    getFloat("RAILS_TOLERANCE", 0.2),
		ScoredPinBar:      getBool("SCORED_PIN_BAR", false),
		PinScoreThreshold: getFloat("PIN_SCORE_THRESHOLD", 60),

		RiskMultiplier:  getFloat("RISK_MULTIPLIER", 1.5),
		RewardMultiple:  getFloat("REWARD_MULTIPLE", 2.0),
		BreakEvenAtR:    getFloat("BREAKEVEN_AT_R", 0),
		SingleOpenTrade: getBool("SINGLE_OPEN_TRADE", true),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every typed sub-config.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("config: SYMBOLS is empty")
	}
	if err := c.Levels().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Signals().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Risk().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Levels returns the level detector settings.
func (c *Config) Levels() levels.Config {
	return levels.Config{
		BackWindow:     c.LevelBackWindow,
		ForwardConfirm: c.LevelForwardConfirm,
		TickSize:       c.LevelTickSize,
		ClusterTicks:   c.LevelClusterTicks,
		TouchTicks:     c.LevelTouchTicks,
	}
}

// Signals returns the pattern evaluator settings.
func (c *Config) Signals() strategy.Config {
	return strategy.Config{
		PinBodyRatio:    c.PinBodyRatio,
		PinTailRatio:    c.PinTailRatio,
		RailsBodyDiff:   c.RailsBodyDiff,
		RailsTolerance:  c.RailsTolerance,
		UseScoredPinBar: c.ScoredPinBar,
		ScoreThreshold:  c.PinScoreThreshold,
	}
}

// Risk returns the trade simulator settings.
func (c *Config) Risk() execution.RiskParams {
	return execution.RiskParams{
		RiskMultiplier: c.RiskMultiplier,
		RewardMultiple: c.RewardMultiple,
		BreakEvenAtR:   c.BreakEvenAtR,
	}
}

// Session returns the session settings for one symbol.
func (c *Config) Session(symbol string) backtest.Config {
	return backtest.Config{Symbol: symbol, SingleOpenTrade: c.SingleOpenTrade}
}

// Params bundles the sub-configs for one symbol.
func (c *Config) Params(symbol string) backtest.Params {
	return backtest.Params{
		Session: c.Session(symbol),
		Levels:  c.Levels(),
		Signals: c.Signals(),
		Risk:    c.Risk(),
	}
}

// RebuildEvery returns the level rebuild period in candles (0 disables).
func (c *Config) RebuildEvery() int {
	if c.LevelRebuildEvery < 0 {
		return 0
	}
	return c.LevelRebuildEvery
}

// IntervalDuration parses Interval ("1m", "4h", "1d", "1w").
func (c *Config) IntervalDuration() (time.Duration, error) {
	return ParseInterval(c.Interval)
}

// ParseInterval converts a Binance kline interval into a duration.
func ParseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("config: bad interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: bad interval %q", s)
	}
	unit := map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[s[len(s)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("config: bad interval unit %q", s)
	}
	return time.Duration(n) * unit, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
