package timeframe

import (
	"errors"
	"sync"
	"testing"
	"time"

	"TradeMind/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var end = time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

// mkSeries builds n bars for tf ending at endAt, closes start, start+step, ...
func mkSeries(symbol string, tf models.Timeframe, n int, endAt time.Time, start, step float64) []models.Bar {
	period, _ := tf.Duration()
	bars := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromFloat(start + float64(i)*step)
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			Timestamp: endAt.Add(-time.Duration(n-1-i) * period),
			Open:      c,
			High:      c.Add(decimal.NewFromFloat(0.5)),
			Low:       c.Sub(decimal.NewFromFloat(0.5)),
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func feed(t *testing.T, m *Manager, bars []models.Bar) {
	t.Helper()
	for _, b := range bars {
		require.NoError(t, m.AddBar(b.Symbol, b.Timeframe, b))
	}
}

func TestAddBarRejectsOutOfOrderAndWrongSymbol(t *testing.T) {
	m := NewManager()
	bars := mkSeries("SPY", models.TF1m, 2, end, 100, 1)
	feed(t, m, bars)

	err := m.AddBar("SPY", models.TF1m, bars[0])
	assert.True(t, errors.Is(err, ErrOutOfOrder))

	err = m.AddBar("QQQ", models.TF1m, bars[1])
	assert.True(t, errors.Is(err, ErrSymbol))

	assert.Error(t, m.AddBar("SPY", models.Timeframe("fortnight"), bars[1]))
}

func TestBufferIsBoundedAndCopied(t *testing.T) {
	m := NewManager(WithMaxBars(20))
	feed(t, m, mkSeries("SPY", models.TF1m, 30, end, 100, 1))

	all := m.GetBars("SPY", models.TF1m, 0)
	require.Len(t, all, 20)
	assert.True(t, all[0].Close.Equal(decimal.NewFromInt(110)))

	tail := m.GetBars("SPY", models.TF1m, 5)
	require.Len(t, tail, 5)
	tail[0].Close = decimal.Zero
	again := m.GetBars("SPY", models.TF1m, 5)
	assert.True(t, again[0].Close.Equal(decimal.NewFromInt(125)))
}

func TestStateAbsentUntilFiveBars(t *testing.T) {
	m := NewManager()
	bars := mkSeries("SPY", models.TF1m, 5, end, 100, 1)
	feed(t, m, bars[:4])
	assert.Nil(t, m.State("SPY", models.TF1m))

	feed(t, m, bars[4:])
	st := m.State("SPY", models.TF1m)
	require.NotNil(t, st)
	assert.Equal(t, 5, st.BarCount)
}

func TestStateDerivation(t *testing.T) {
	m := NewManager()
	feed(t, m, mkSeries("SPY", models.TF5m, 20, end, 100, 1))

	st := m.State("SPY", models.TF5m)
	require.NotNil(t, st)
	assert.Equal(t, models.TrendUp, st.Trend)
	assert.InDelta(t, 0.19, st.Momentum, 1e-9)
	assert.InDelta(t, 1.0, st.VolumeRatio, 1e-9)
	assert.GreaterOrEqual(t, st.Volatility, 0.0)
	assert.LessOrEqual(t, st.Volatility, 1.0)

	feed(t, m, mkSeries("IWM", models.TF5m, 20, end, 100, 0))
	assert.Equal(t, models.TrendNeutral, m.State("IWM", models.TF5m).Trend)
}

func TestConfluenceAllUp(t *testing.T) {
	m := NewManager()
	for _, tf := range []models.Timeframe{models.TF1m, models.TF5m, models.TF15m} {
		feed(t, m, mkSeries("SPY", tf, 20, end, 100, 1))
	}

	a := m.AnalyzeCrossTimeframe("SPY")
	require.True(t, a.Available)
	assert.True(t, a.Confluence)
	assert.False(t, a.Divergence)
	assert.Equal(t, models.TrendUp, a.DominantTrend)
	assert.InDelta(t, 0.25, a.ConfidenceAdjustment, 1e-12)
	require.Len(t, a.Timeframes, 3)
	assert.Equal(t, models.TF1m, a.Timeframes[0].Timeframe)
	assert.Equal(t, models.TF15m, a.Timeframes[2].Timeframe)
}

func TestDivergenceAndWeightedTrend(t *testing.T) {
	m := NewManager()
	feed(t, m, mkSeries("SPY", models.TF1m, 20, end, 120, -1))
	feed(t, m, mkSeries("SPY", models.TF5m, 20, end, 100, 1))
	feed(t, m, mkSeries("SPY", models.TF15m, 20, end, 100, 1))

	a := m.AnalyzeCrossTimeframe("SPY")
	assert.True(t, a.Divergence)
	assert.False(t, a.Confluence)
	assert.InDelta(t, -0.20, a.ConfidenceAdjustment, 1e-12)
	// slower timeframes carry more weight: (-1 + 2 + 3) / 6
	assert.InDelta(t, 4.0/6.0, a.WeightedTrend, 1e-12)
	assert.Equal(t, models.TrendUp, a.DominantTrend)
}

func TestCascadingAlignment(t *testing.T) {
	m := NewManager()
	feed(t, m, mkSeries("SPY", models.TF1m, 20, end, 100, 1))
	feed(t, m, mkSeries("SPY", models.TF5m, 20, end, 100, 1))
	feed(t, m, mkSeries("SPY", models.TF15m, 20, end, 100, 0))

	a := m.AnalyzeCrossTimeframe("SPY")
	assert.True(t, a.FastLeadsMedium)
	assert.False(t, a.MediumLeadsSlow)
	assert.InDelta(t, 0.15, a.ConfidenceAdjustment, 1e-12)
}

func TestSyncViolationIsDivergence(t *testing.T) {
	m := NewManager()
	feed(t, m, mkSeries("SPY", models.TF1m, 20, end, 100, 1))
	feed(t, m, mkSeries("SPY", models.TF5m, 20, end.Add(-2*time.Hour), 100, 1))

	a := m.AnalyzeCrossTimeframe("SPY")
	assert.True(t, a.SyncViolation)
	assert.True(t, a.Divergence)
	assert.False(t, a.Confluence)
	assert.InDelta(t, -0.25, a.ConfidenceAdjustment, 1e-12)
	assert.Equal(t, 2*time.Hour, a.MaxDrift)
}

func TestCrossTimeframeNeedsTwoLiveTimeframes(t *testing.T) {
	m := NewManager()
	assert.False(t, m.AnalyzeCrossTimeframe("SPY").Available)

	feed(t, m, mkSeries("SPY", models.TF1m, 20, end, 100, 1))
	feed(t, m, mkSeries("SPY", models.TF5m, 3, end, 100, 1)) // not live yet
	a := m.AnalyzeCrossTimeframe("SPY")
	assert.False(t, a.Available)
	assert.Equal(t, "insufficient_timeframes", a.Reason)
}

func TestHasSufficientData(t *testing.T) {
	m := NewManager()
	assert.False(t, m.HasSufficientData("SPY", 10))

	feed(t, m, mkSeries("SPY", models.TF1m, 20, end, 100, 1))
	feed(t, m, mkSeries("SPY", models.TF5m, 8, end, 100, 1))
	assert.False(t, m.HasSufficientData("SPY", 10))
	assert.True(t, m.HasSufficientData("SPY", 8))
}

func TestConcurrentAddAndAnalyze(t *testing.T) {
	m := NewManager(WithMaxBars(50))
	tfs := []models.Timeframe{models.TF1m, models.TF5m, models.TF15m}

	var wg sync.WaitGroup
	for _, tf := range tfs {
		wg.Add(1)
		go func(tf models.Timeframe) {
			defer wg.Done()
			for _, b := range mkSeries("SPY", tf, 200, end, 100, 0.1) {
				_ = m.AddBar("SPY", tf, b)
			}
		}(tf)
	}
	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
				a := m.AnalyzeCrossTimeframe("SPY")
				for _, st := range a.Timeframes {
					assert.GreaterOrEqual(t, st.BarCount, minStateBars)
				}
				_ = m.GetBars("SPY", models.TF1m, 10)
			}
		}
	}()
	wg.Wait()
	close(stop)
	readers.Wait()

	for _, tf := range tfs {
		assert.Len(t, m.GetBars("SPY", tf, 0), 50)
	}
}
