package binance

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hour = int64(time.Hour / time.Millisecond)

func kline(openMs int64, o, h, l, c string) *gobinance.Kline {
	return &gobinance.Kline{
		OpenTime:  openMs,
		CloseTime: openMs + hour - 1,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    "12.5",
	}
}

// fakePages serves n hourly klines starting at 0, honouring startMs and limit.
func fakePages(n int, calls *int) PageFunc {
	return func(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]*gobinance.Kline, error) {
		*calls++
		var out []*gobinance.Kline
		for i := 0; i < n && len(out) < limit; i++ {
			ts := int64(i) * hour
			if ts < startMs {
				continue
			}
			p := strconv.Itoa(100 + i%7)
			out = append(out, kline(ts, p, "200", "50", p))
		}
		return out, nil
	}
}

func newTestFetcher(page PageFunc, now time.Time) *Fetcher {
	f := NewFetcherWithPage(page, Config{RequestsPerSecond: 1000})
	f.backoff = time.Millisecond
	f.now = func() time.Time { return now }
	return f
}

func TestToCandle(t *testing.T) {
	c, err := ToCandle(kline(hour, "1.5", "2", "1", "1.75"))
	require.NoError(t, err)
	assert.Equal(t, hour, c.Timestamp)
	assert.Equal(t, 1.5, c.Open)
	assert.Equal(t, 2.0, c.High)
	assert.Equal(t, 1.0, c.Low)
	assert.Equal(t, 1.75, c.Close)
	assert.Equal(t, 12.5, c.Volume)

	_, err = ToCandle(kline(0, "x", "2", "1", "1"))
	assert.Error(t, err)

	// high below close
	_, err = ToCandle(kline(0, "1", "1", "0.5", "2"))
	assert.Error(t, err)
}

func TestFetchRange_Paginates(t *testing.T) {
	calls := 0
	n := 2500
	now := time.UnixMilli(int64(n) * hour)
	f := newTestFetcher(fakePages(n, &calls), now)

	candles, err := f.FetchRange(context.Background(), "BTCUSDT", "1h", 0, now.UnixMilli())
	require.NoError(t, err)
	require.Len(t, candles, n)
	assert.Equal(t, 3, calls)
	for i := 1; i < len(candles); i++ {
		assert.Less(t, candles[i-1].Timestamp, candles[i].Timestamp)
	}
}

func TestFetchRange_DropsFormingKline(t *testing.T) {
	calls := 0
	// the last kline opened at 9h closes after now
	now := time.UnixMilli(9*hour + 10)
	f := newTestFetcher(fakePages(10, &calls), now)

	candles, err := f.Candles(context.Background(), "BTCUSDT", "1h", 0)
	require.NoError(t, err)
	require.Len(t, candles, 9)
	assert.Equal(t, 8*hour, candles[len(candles)-1].Timestamp)
}

func TestFetchRecent(t *testing.T) {
	calls := 0
	now := time.UnixMilli(100 * hour)
	f := newTestFetcher(fakePages(100, &calls), now)

	candles, err := f.FetchRecent(context.Background(), "BTCUSDT", "1h", 5, time.Hour)
	require.NoError(t, err)
	require.Len(t, candles, 5)
	assert.Equal(t, 95*hour, candles[0].Timestamp)
	assert.Equal(t, 99*hour, candles[4].Timestamp)
}

func TestFetchRange_RetriesThenFails(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	page := func(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]*gobinance.Kline, error) {
		calls++
		return nil, boom
	}
	f := newTestFetcher(page, time.UnixMilli(10*hour))

	_, err := f.FetchRange(context.Background(), "BTCUSDT", "1h", 0, 10*hour)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}
