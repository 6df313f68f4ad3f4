package patterns

import (
	"TradeMind/internal/domain/models"
	"TradeMind/pkg/cache"

	"github.com/shopspring/decimal"
)

// Config holds the detection thresholds.
type Config struct {
	DojiBodyRatio        float64 // body/range below this is a doji
	HammerWickRatio      float64 // long wick must be at least this multiple of the body
	SpinningTopBodyRatio float64
	VolumeConfirmation   float64 // volume multiple of the trailing average
	TrendLookback        int
	VolumeLookback       int
	EarlyExitConfidence  float64
	CacheSize            int
}

func DefaultConfig() Config {
	return Config{
		DojiBodyRatio:        0.10,
		HammerWickRatio:      2.0,
		SpinningTopBodyRatio: 0.30,
		VolumeConfirmation:   1.5,
		TrendLookback:        5,
		VolumeLookback:       9,
		EarlyExitConfidence:  0.8,
		CacheSize:            1000,
	}
}

type Option func(*Config)

func WithThresholds(doji, hammerWick, spinningTop float64) Option {
	return func(c *Config) {
		c.DojiBodyRatio = doji
		c.HammerWickRatio = hammerWick
		c.SpinningTopBodyRatio = spinningTop
	}
}

func WithVolumeConfirmation(multiple float64) Option {
	return func(c *Config) { c.VolumeConfirmation = multiple }
}

func WithCacheSize(n int) Option {
	return func(c *Config) { c.CacheSize = n }
}

// cacheKey identifies a detection window by its last up to three bars.
type cacheKey struct {
	symbol     string
	t1, t2, t3 int64
}

// Detector recognises candlestick patterns on the tail of a bar series.
// It is safe for concurrent use.
type Detector struct {
	cfg   Config
	cache *cache.LRU[cacheKey, []models.DetectedPattern]
}

func NewDetector(opts ...Option) *Detector {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Detector{
		cfg:   cfg,
		cache: cache.NewLRU[cacheKey, []models.DetectedPattern](cfg.CacheSize),
	}
}

// barContext is what the rules need to know about the preceding bars.
type barContext struct {
	trend           models.Trend
	volumeConfirmed bool
}

// DetectPatterns classifies the last one to three bars. The returned slice
// is owned by the caller.
func (d *Detector) DetectPatterns(bars []models.Bar) []models.DetectedPattern {
	if len(bars) == 0 {
		return nil
	}

	key := keyFor(bars)
	if cached, ok := d.cache.Get(key); ok {
		return clonePatterns(cached)
	}

	found := d.detect(bars)
	d.cache.Set(key, clonePatterns(found))
	return found
}

func (d *Detector) detect(bars []models.Bar) []models.DetectedPattern {
	ctx := barContext{
		trend:           priorTrend(bars, d.cfg.TrendLookback),
		volumeConfirmed: volumeConfirmed(bars, d.cfg.VolumeLookback, d.cfg.VolumeConfirmation),
	}

	found := make([]models.DetectedPattern, 0, 4)
	found = append(found, d.singleBar(bars[len(bars)-1], ctx)...)
	if len(bars) >= 2 {
		found = append(found, d.twoBar(bars[len(bars)-2], bars[len(bars)-1], ctx)...)
	}

	strong := 0
	for _, p := range found {
		if p.Confidence > d.cfg.EarlyExitConfidence {
			strong++
		}
	}
	if strong >= 2 || len(bars) < 3 {
		return found
	}

	n := len(bars)
	return append(found, d.threeBar(bars[n-3], bars[n-2], bars[n-1], ctx)...)
}

// StrongestSignal returns the direction of the highest-confidence
// directional pattern. Equal bullish and bearish maxima cancel out.
func StrongestSignal(found []models.DetectedPattern) (models.Signal, float64) {
	var bull, bear float64
	for _, p := range found {
		switch p.Signal {
		case models.SignalBullish:
			bull = max(bull, p.Confidence)
		case models.SignalBearish:
			bear = max(bear, p.Confidence)
		}
	}
	switch {
	case bull > bear:
		return models.SignalBullish, bull
	case bear > bull:
		return models.SignalBearish, bear
	default:
		return models.SignalNeutral, 0
	}
}

// StrongestSignal is the method form used through service interfaces.
func (d *Detector) StrongestSignal(found []models.DetectedPattern) (models.Signal, float64) {
	return StrongestSignal(found)
}

// CacheStats reports pattern cache hits and misses.
func (d *Detector) CacheStats() (hits, misses int64) {
	hits, misses, _ = d.cache.Stats()
	return hits, misses
}

func keyFor(bars []models.Bar) cacheKey {
	n := len(bars)
	k := cacheKey{symbol: bars[n-1].Symbol, t3: bars[n-1].Timestamp.UnixNano()}
	if n >= 2 {
		k.t2 = bars[n-2].Timestamp.UnixNano()
	}
	if n >= 3 {
		k.t1 = bars[n-3].Timestamp.UnixNano()
	}
	return k
}

func clonePatterns(in []models.DetectedPattern) []models.DetectedPattern {
	if in == nil {
		return nil
	}
	out := make([]models.DetectedPattern, len(in))
	copy(out, in)
	return out
}

// priorTrend compares the bar before the current one against the SMA of the
// lookback window that ends there.
func priorTrend(bars []models.Bar, lookback int) models.Trend {
	prior := bars[:len(bars)-1]
	if len(prior) < 2 {
		return models.TrendNeutral
	}
	if len(prior) > lookback {
		prior = prior[len(prior)-lookback:]
	}

	sum := decimal.Zero
	for _, b := range prior {
		sum = sum.Add(b.Close)
	}
	sma := sum.Div(decimal.NewFromInt(int64(len(prior))))
	last := prior[len(prior)-1].Close

	switch {
	case last.GreaterThan(sma):
		return models.TrendUp
	case last.LessThan(sma):
		return models.TrendDown
	default:
		return models.TrendNeutral
	}
}

func volumeConfirmed(bars []models.Bar, lookback int, multiple float64) bool {
	prior := bars[:len(bars)-1]
	if len(prior) == 0 {
		return false
	}
	if len(prior) > lookback {
		prior = prior[len(prior)-lookback:]
	}
	var sum int64
	for _, b := range prior {
		sum += b.Volume
	}
	avg := float64(sum) / float64(len(prior))
	if avg <= 0 {
		return false
	}
	return float64(bars[len(bars)-1].Volume) >= multiple*avg
}

// ratio divides two decimals, returning 0 for a zero denominator.
func ratio(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return num.Div(den).InexactFloat64()
}

func confirmed(base, boost float64, ok bool) float64 {
	if ok {
		return min(1, base+boost)
	}
	return base
}
