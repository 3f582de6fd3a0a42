package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT"}, c.Symbols)
	assert.Equal(t, "1h", c.Interval)
	assert.Equal(t, "", c.RedisAddr)
	assert.Equal(t, ":9096", c.HTTPAddr)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 24, c.RebuildEvery())

	lv := c.Levels()
	assert.Equal(t, 6, lv.BackWindow)
	assert.Equal(t, 2, lv.ForwardConfirm)

	sig := c.Signals()
	assert.Equal(t, 0.3, sig.PinBodyRatio)
	assert.False(t, sig.UseScoredPinBar)

	risk := c.Risk()
	assert.Equal(t, 1.5, risk.RiskMultiplier)
	assert.Equal(t, 2.0, risk.RewardMultiple)

	s := c.Session("ETHUSDT")
	assert.Equal(t, "ETHUSDT", s.Symbol)
	assert.True(t, s.SingleOpenTrade)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYMBOLS", " btcusdt, ethusdt ,")
	t.Setenv("LEVEL_TICK_SIZE", "0.5")
	t.Setenv("SCORED_PIN_BAR", "true")
	t.Setenv("SINGLE_OPEN_TRADE", "false")
	t.Setenv("BREAKEVEN_AT_R", "1")
	t.Setenv("HISTORY_LIMIT", "not-a-number")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Symbols)
	assert.Equal(t, 0.5, c.Levels().TickSize)
	assert.True(t, c.Signals().UseScoredPinBar)
	assert.False(t, c.Session("BTCUSDT").SingleOpenTrade)
	assert.Equal(t, 1.0, c.Risk().BreakEvenAtR)
	assert.Equal(t, 1000, c.HistoryLimit)
}

func TestLoad_InvalidSubConfig(t *testing.T) {
	t.Setenv("LEVEL_BACK_WINDOW", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1m", time.Minute},
		{"15m", 15 * time.Minute},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		if err != nil {
			t.Fatalf("ParseInterval(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "h", "0h", "-1h", "1x", "1M"} {
		if _, err := ParseInterval(bad); err == nil {
			t.Errorf("ParseInterval(%q) expected error", bad)
		}
	}
}
