package performance

import (
	"math"
	"sort"
	"sync"

	"TradeMind/internal/domain/models"
)

const (
	MinTrades   = 3
	BiasStep    = 0.02
	MaxBias     = 0.15
	EvalWindow  = 10
	goodWinRate = 0.6
	poorWinRate = 0.4
)

// Book tracks realised results per symbol and nudges a confidence bias
// toward symbols that have been paying off. The bias follows the last
// EvalWindow trades, so an early streak fades once results turn mixed.
type Book struct {
	mu      sync.RWMutex
	symbols map[string]models.SymbolPerformance
	recent  map[string][]float64
}

func NewBook() *Book {
	return &Book{
		symbols: make(map[string]models.SymbolPerformance),
		recent:  make(map[string][]float64),
	}
}

// Record adds a closed trade and re-evaluates the symbol's bias over the
// recent window. A window that is neither good nor poor moves the bias one
// step back toward zero.
func (b *Book) Record(symbol string, pnl float64) models.SymbolPerformance {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.symbols[symbol]
	p.Trades++
	if pnl > 0 {
		p.Wins++
	}
	p.CumulativePnL += pnl

	window := append(b.recent[symbol], pnl)
	if len(window) > EvalWindow {
		window = window[len(window)-EvalWindow:]
	}
	b.recent[symbol] = window

	if p.Trades >= MinTrades && len(window) >= MinTrades {
		switch wr, avg := windowStats(window); {
		case wr > goodWinRate && avg > 0:
			p.ConfidenceBias = math.Min(MaxBias, p.ConfidenceBias+BiasStep)
		case wr < poorWinRate && avg < 0:
			p.ConfidenceBias = math.Max(-MaxBias, p.ConfidenceBias-BiasStep)
		case p.ConfidenceBias > 0:
			p.ConfidenceBias = math.Max(0, p.ConfidenceBias-BiasStep)
		case p.ConfidenceBias < 0:
			p.ConfidenceBias = math.Min(0, p.ConfidenceBias+BiasStep)
		}
	}
	b.symbols[symbol] = p
	return p
}

func windowStats(pnls []float64) (winRate, avg float64) {
	wins, sum := 0, 0.0
	for _, v := range pnls {
		if v > 0 {
			wins++
		}
		sum += v
	}
	n := float64(len(pnls))
	return float64(wins) / n, sum / n
}

// Bias is the confidence adjustment for symbol, zero until it has enough
// trades.
func (b *Book) Bias(symbol string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.symbols[symbol]
	if !ok || p.Trades < MinTrades {
		return 0
	}
	return p.ConfidenceBias
}

func (b *Book) Get(symbol string) (models.SymbolPerformance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.symbols[symbol]
	return p, ok
}

// Symbols lists tracked symbols in lexical order.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.symbols))
	for s := range b.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (b *Book) Snapshot() map[string]models.SymbolPerformance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]models.SymbolPerformance, len(b.symbols))
	for k, v := range b.symbols {
		out[k] = v
	}
	return out
}

// Restore replaces the book. Recent windows are not checkpointed and start
// empty, so the restored bias holds until MinTrades new results arrive.
func (b *Book) Restore(m map[string]models.SymbolPerformance) {
	next := make(map[string]models.SymbolPerformance, len(m))
	for k, v := range m {
		v.ConfidenceBias = math.Max(-MaxBias, math.Min(MaxBias, v.ConfidenceBias))
		next[k] = v
	}
	b.mu.Lock()
	b.symbols = next
	b.recent = make(map[string][]float64)
	b.mu.Unlock()
}
