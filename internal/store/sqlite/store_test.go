package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"levelbot/internal/model"
)

func open(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "levels.db")
	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func series(n int, start int64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = model.Candle{Timestamp: start + int64(i)*3_600_000, Open: p, High: p + 2, Low: p - 1, Close: p + 1, Volume: 10}
	}
	return out
}

func TestWriteAndReadCandles(t *testing.T) {
	w, r := open(t)

	in := series(5, 1_700_000_000_000)
	// Reverse insert order: reads must still come back ascending.
	for i := len(in) - 1; i >= 0; i-- {
		require.NoError(t, w.WriteCandles("BTCUSDT", "1h", in[i:i+1]))
	}
	require.NoError(t, w.WriteCandles("ETHUSDT", "1h", series(2, 1_700_000_000_000)))

	got, err := r.Candles(context.Background(), "BTCUSDT", "1h", 0)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	got, err = r.ReadCandles("BTCUSDT", "1h", in[3].Timestamp)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	last, err := w.GetLastTimestamp("BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, in[4].Timestamp, last)

	last, err = w.GetLastTimestamp("BTCUSDT", "4h")
	require.NoError(t, err)
	assert.Zero(t, last)

	syms, err := r.Symbols("1h")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, syms)
}

func TestWriteCandles_Upserts(t *testing.T) {
	w, r := open(t)
	c := series(1, 0)
	require.NoError(t, w.WriteCandles("BTCUSDT", "1h", c))
	c[0].Close = 101.5
	require.NoError(t, w.WriteCandles("BTCUSDT", "1h", c))

	got, err := r.ReadCandles("BTCUSDT", "1h", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 101.5, got[0].Close)
}

func TestRun_FlushesOnClose(t *testing.T) {
	w, r := open(t)
	ch := make(chan model.Bar, 10)
	for _, c := range series(3, 0) {
		ch <- model.Bar{Symbol: "BTCUSDT", Interval: "1h", Candle: c}
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	got, err := r.ReadCandles("BTCUSDT", "1h", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestLevelSnapshots(t *testing.T) {
	w, r := open(t)
	ctx := context.Background()

	none, err := r.ReadLatestLevels("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, none)

	for i := 0; i < keepSnapshots+3; i++ {
		lv := []model.Level{{ID: 0, Price: float64(100 + i), Kind: model.LevelHigh, Active: true}}
		require.NoError(t, w.SaveLevels(ctx, "BTCUSDT", lv))
	}
	got, err := r.ReadLatestLevels("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, float64(100+keepSnapshots+2), got[0].Price)

	var n int
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM level_snapshots WHERE symbol = ?`, "BTCUSDT").Scan(&n))
	assert.Equal(t, keepSnapshots, n)
}
