package usecase

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/services/features"
	"TradeMind/internal/services/rewards"
	"TradeMind/internal/services/rl"
	"TradeMind/pkg/logger"
)

const (
	observeEvery     = 5
	simulateEvery    = 2
	warmupThreshold  = 0.3
	warmupExploreMin = 0.20
)

type WarmupConfig struct {
	SimulatedCash         float64
	MaxCapitalPerPosition float64
	Seed                  int64 // zero seeds from the clock
}

// WarmupSimulator seeds the agent from history before live trading: an
// observation pass that only visits states, then a simulated trading pass
// against a private ledger. Exploration during replay uses the simulator's
// own rate and random source; the agent's live schedule is never touched.
type WarmupSimulator struct {
	cfg       WarmupConfig
	agent     *rl.Agent
	extractor *features.Extractor
	calc      rewards.Calculator
	log       *logger.Logger

	mu      sync.Mutex // one run at a time; guards rng
	rng     *rand.Rand
	explore float64
}

func NewWarmupSimulator(cfg WarmupConfig, agent *rl.Agent, extractor *features.Extractor, calc rewards.Calculator, log *logger.Logger) *WarmupSimulator {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.SimulatedCash <= 0 {
		cfg.SimulatedCash = 10000
	}
	if cfg.MaxCapitalPerPosition <= 0 {
		cfg.MaxCapitalPerPosition = 0.1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &WarmupSimulator{
		cfg:       cfg,
		agent:     agent,
		extractor: extractor,
		calc:      calc,
		log:       log,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Run replays history per symbol. observationFraction is the share of each
// series used for the observation pass. Replay explores at the live rate or
// warmupExploreMin, whichever is higher.
func (w *WarmupSimulator) Run(ctx context.Context, history map[string][]models.Bar, observationFraction float64) (models.WarmupSummary, error) {
	var sum models.WarmupSummary

	w.mu.Lock()
	defer w.mu.Unlock()
	w.explore = max(w.agent.ExplorationRate(), warmupExploreMin)

	if observationFraction < 0 {
		observationFraction = 0
	}
	if observationFraction > 1 {
		observationFraction = 1
	}

	symbols := make([]string, 0, len(history))
	for s := range history {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		bars := history[symbol]
		if len(bars) <= features.MinBars {
			sum.Skipped = append(sum.Skipped, symbol)
			continue
		}
		sum.Symbols++
		sum.BarsSeen += len(bars)

		split := int(observationFraction * float64(len(bars)))
		sum.StatesObserved += w.observe(symbol, bars, split)

		trades, updates, cash := w.simulate(symbol, bars, max(split, features.MinBars))
		sum.SimulatedTrades += trades
		sum.Updates += updates
		sum.FinalCash += cash
	}

	sum.QTableSize = w.agent.Size()
	w.log.Info("warmup complete",
		logger.Int("symbols", sum.Symbols),
		logger.Int("states_observed", sum.StatesObserved),
		logger.Int("simulated_trades", sum.SimulatedTrades),
		logger.Int("q_table_size", sum.QTableSize))
	return sum, nil
}

func (w *WarmupSimulator) observe(symbol string, bars []models.Bar, until int) int {
	seen := 0
	for i := features.MinBars - 1; i < until; i += observeEvery {
		ms := w.extractor.ExtractState(symbol, bars[:i+1], models.PortfolioSnapshot{})
		if !ms.Tradeable {
			continue
		}
		w.agent.Visit(rl.Discretize(ms))
		seen++
	}
	return seen
}

// ledger is the simulated long-only book for one symbol.
type ledger struct {
	symbol string
	cash   decimal.Decimal
	qty    decimal.Decimal
}

func (l *ledger) snapshot(price decimal.Decimal) models.PortfolioSnapshot {
	return models.PortfolioSnapshot{
		Equity:     l.cash.Add(l.qty.Mul(price)),
		LastPrices: map[string]decimal.Decimal{l.symbol: price},
		Positions:  map[string]decimal.Decimal{l.symbol: l.qty},
	}
}

// trade moves qty (signed) at price and returns notional traded.
func (l *ledger) trade(qty, price decimal.Decimal) decimal.Decimal {
	l.qty = l.qty.Add(qty)
	l.cash = l.cash.Sub(qty.Mul(price))
	return qty.Abs().Mul(price)
}

func (w *WarmupSimulator) simulate(symbol string, bars []models.Bar, from int) (trades, updates int, finalCash float64) {
	book := &ledger{symbol: symbol, cash: decimal.NewFromFloat(w.cfg.SimulatedCash)}

	var (
		prev       *rl.State
		prevAction models.Action
		prevEquity decimal.Decimal
		notional   decimal.Decimal
	)

	learn := func(next rl.State, equity decimal.Decimal, done bool) {
		if prev == nil {
			return
		}
		pnl := equity.Sub(prevEquity).InexactFloat64()
		reward := w.calc.Legacy(pnl, notional.InexactFloat64())
		if err := w.agent.ReplayUpdate(*prev, prevAction, reward, next, done); err != nil {
			w.log.Debug("warmup update skipped", logger.String("symbol", symbol), logger.Error(err))
			return
		}
		updates++
	}

	for i := from; i < len(bars); i += simulateEvery {
		price := bars[i].Close
		snap := book.snapshot(price)
		ms := w.extractor.ExtractState(symbol, bars[:i+1], snap)
		if !ms.Tradeable {
			continue
		}
		state := rl.Discretize(ms)
		learn(state, snap.Equity, false)

		action := w.agent.Explore(state, w.explore, w.rng)
		conf := w.agent.Confidence(state, action)
		notional = decimal.Zero
		if conf >= warmupThreshold {
			if qty := w.sizeFor(action, conf, snap.Equity, price, book.qty); !qty.IsZero() {
				notional = book.trade(qty, price)
				trades++
			}
		}

		s := state
		prev, prevAction = &s, action
		prevEquity = book.snapshot(price).Equity
	}

	// flatten at the last close; the episode ends here
	last := bars[len(bars)-1].Close
	notional = decimal.Zero
	if !book.qty.IsZero() {
		notional = book.trade(book.qty.Neg(), last)
	}
	if prev != nil {
		learn(*prev, book.snapshot(last).Equity, true)
	}
	return trades, updates, book.cash.InexactFloat64()
}

// sizeFor returns the signed quantity the simulated ledger trades for an
// action. The ledger never goes short.
func (w *WarmupSimulator) sizeFor(a models.Action, conf float64, equity, price, held decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	target := equity.Mul(decimal.NewFromFloat(conf * w.cfg.MaxCapitalPerPosition)).Div(price).Round(4)
	switch a {
	case models.ActionBuy:
		if held.IsPositive() {
			return decimal.Zero
		}
		return target
	case models.ActionSell:
		return held.Neg()
	case models.ActionIncreaseSize:
		if !held.IsPositive() {
			return decimal.Zero
		}
		return target.Div(decimal.NewFromInt(2)).Round(4)
	case models.ActionDecreaseSize:
		return held.Div(decimal.NewFromInt(2)).Round(4).Neg()
	}
	return decimal.Zero
}
