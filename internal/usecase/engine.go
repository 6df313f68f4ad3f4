package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/internal/domain/service"
	"TradeMind/internal/service/cache"
	"TradeMind/internal/services/features"
	"TradeMind/internal/services/patterns"
	"TradeMind/internal/services/performance"
	"TradeMind/internal/services/rewards"
	"TradeMind/internal/services/rl"
	"TradeMind/internal/services/timeframe"
	"TradeMind/pkg/logger"
)

type EngineConfig struct {
	Symbols          []string
	PrimaryTimeframe models.Timeframe
	// Lookback is how many primary bars the extractor sees.
	Lookback    int
	DecisionTTL time.Duration
	Training    bool
	// PersistRewards stores the rolling reward window in checkpoints.
	PersistRewards bool
}

// EngineDeps are the components the engine owns. Patterns and Store may be
// nil.
type EngineDeps struct {
	Timeframes *timeframe.Manager
	Patterns   *patterns.Detector
	Extractor  *features.Extractor
	Agent      *rl.Agent
	Tracker    *rewards.Tracker
	Perf       *performance.Book
	Decisions  *DecisionMaker
	Learner    *LearningCoordinator
	Simulator  *WarmupSimulator
	Portfolio  *Portfolio
	Store      drepo.CheckpointStore
	Metrics    service.DecisionMetrics
	Log        *logger.Logger
}

// memo is the last tradeable state and the action decided in it. The next
// fill for the symbol is credited to it.
type memo struct {
	state  rl.State
	action models.Action
}

// Engine wires the decision core for a set of symbols. All exported methods
// are safe for concurrent use.
type Engine struct {
	cfg EngineConfig
	EngineDeps

	last *cache.TTLCache[models.TradeDecision]

	memMu  sync.Mutex
	memory map[string]memo

	retrain chan struct{}
}

func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if cfg.PrimaryTimeframe == "" {
		cfg.PrimaryTimeframe = models.TF1m
	}
	if cfg.Lookback < features.MinBars {
		cfg.Lookback = 60
	}
	return &Engine{
		cfg:        cfg,
		EngineDeps: deps,
		last:       cache.NewTTLCache[models.TradeDecision](cfg.DecisionTTL),
		memory:     make(map[string]memo),
		retrain:    make(chan struct{}, 1),
	}
}

// OnBar ingests one closed bar. A primary-timeframe bar also triggers an
// evaluation whose decision is returned; other timeframes return nil.
func (e *Engine) OnBar(bar models.Bar) (*models.TradeDecision, error) {
	tf := bar.Timeframe
	if tf == "" {
		tf = e.cfg.PrimaryTimeframe
	}
	if err := e.Timeframes.AddBar(bar.Symbol, tf, bar); err != nil {
		return nil, fmt.Errorf("add bar %s %s: %w", bar.Symbol, tf, err)
	}
	if tf != e.cfg.PrimaryTimeframe {
		return nil, nil
	}
	e.Portfolio.UpdatePrice(bar.Symbol, bar.Close)
	d := e.Evaluate(bar.Symbol, bar.Timestamp)
	return &d, nil
}

// Evaluate runs one decision for symbol over the buffered primary bars.
func (e *Engine) Evaluate(symbol string, now time.Time) models.TradeDecision {
	bars := e.Timeframes.GetBars(symbol, e.cfg.PrimaryTimeframe, e.cfg.Lookback)
	snap := e.Portfolio.Snapshot()
	ms := e.Extractor.ExtractState(symbol, bars, snap)

	in := DecisionInput{
		Symbol:    symbol,
		State:     ms,
		Bars:      bars,
		Portfolio: snap,
		Now:       now,
		Training:  e.cfg.Training,
	}
	if ms.Tradeable {
		cross := e.Timeframes.AnalyzeCrossTimeframe(symbol)
		in.TimeframeDivergence = cross.Divergence
		in.EdgeCase = e.Extractor.CheckEdgeCases(symbol, bars, &cross)
	}

	d := e.Decisions.MakeDecision(in)
	if d.ShouldTrade {
		e.memMu.Lock()
		e.memory[symbol] = memo{state: rl.Discretize(ms), action: d.Action}
		e.memMu.Unlock()
	}
	e.last.Set(symbol, d)
	if e.Metrics != nil {
		e.Metrics.ObserveDecision(d)
	}
	e.Log.Debug("decision",
		logger.String("symbol", symbol),
		logger.String("action", d.Action.String()),
		logger.Bool("trade", d.ShouldTrade),
		logger.String("reason", d.Reason),
		logger.Float64("confidence", d.Confidence))
	return d
}

// HandleFill credits a fill to the last traded state of its symbol. The
// next state is extracted from the book after the fill is applied.
func (e *Engine) HandleFill(f models.Fill) LearningOutcome {
	e.Portfolio.ApplyFill(f)

	in := FillInput{Fill: f}
	e.memMu.Lock()
	m, ok := e.memory[f.Symbol]
	if ok && f.ClosesEpisode() {
		delete(e.memory, f.Symbol)
	}
	e.memMu.Unlock()

	if ok {
		last := m.state
		in.Last, in.LastAction = &last, m.action
		bars := e.Timeframes.GetBars(f.Symbol, e.cfg.PrimaryTimeframe, e.cfg.Lookback)
		if ms := e.Extractor.ExtractState(f.Symbol, bars, e.Portfolio.Snapshot()); ms.Tradeable {
			next := rl.Discretize(ms)
			in.Next = &next
		}
	}
	return e.Learner.HandleFill(in)
}

// SaveState writes a checkpoint. Snapshots are taken under each
// component's own lock; the write happens outside all of them.
func (e *Engine) SaveState(ctx context.Context) error {
	if e.Store == nil {
		return errors.New("no checkpoint store configured")
	}
	start := time.Now()
	q, eps := e.Agent.Snapshot()
	total, wins, pnl := e.Learner.Counters()
	cp := &models.Checkpoint{
		Version:           models.CheckpointVersion,
		SavedAt:           start.UTC(),
		QTable:            q,
		TotalTrades:       total,
		WinningTrades:     wins,
		CumulativePnL:     pnl,
		ExplorationRate:   eps,
		SymbolPerformance: e.Perf.Snapshot(),
	}
	if e.cfg.PersistRewards {
		cp.RewardMetrics = e.Tracker.Snapshot()
	}

	err := e.Store.Save(ctx, cp)
	if e.Metrics != nil {
		e.Metrics.ObserveCheckpoint("save", time.Since(start).Seconds(), err)
	}
	if err != nil {
		e.Log.Error("checkpoint save failed", logger.Error(err))
		return err
	}
	e.Log.Info("checkpoint saved",
		logger.Int("q_states", len(q)),
		logger.Int("trades", total),
		logger.Duration("took", time.Since(start)))
	return nil
}

// LoadState restores the last checkpoint. It never fails: on any error the
// engine keeps its current state and false is returned.
func (e *Engine) LoadState(ctx context.Context) bool {
	if e.Store == nil {
		return false
	}
	start := time.Now()
	cp, err := e.Store.Load(ctx)
	if e.Metrics != nil {
		e.Metrics.ObserveCheckpoint("load", time.Since(start).Seconds(), err)
	}
	if err != nil {
		if errors.Is(err, drepo.ErrCheckpointNotFound) {
			e.Log.Info("no checkpoint, starting fresh")
		} else {
			e.Log.Error("checkpoint load failed, starting fresh", logger.Error(err))
		}
		return false
	}

	e.Agent.Restore(cp.QTable, cp.ExplorationRate)
	e.Learner.RestoreCounters(cp.TotalTrades, cp.WinningTrades, cp.CumulativePnL)
	e.Perf.Restore(cp.SymbolPerformance)
	e.Tracker.Restore(cp.RewardMetrics)
	if e.Metrics != nil {
		e.Metrics.SetAgentState(e.Agent.ExplorationRate(), e.Agent.Size())
	}
	e.Log.Info("checkpoint loaded",
		logger.Int("version", cp.Version),
		logger.Time("saved_at", cp.SavedAt),
		logger.Int("q_states", len(cp.QTable)),
		logger.Bool("reward_metrics", cp.RewardMetrics != nil))
	return true
}

func (e *Engine) Warmup(ctx context.Context, history map[string][]models.Bar, observationFraction float64) (models.WarmupSummary, error) {
	if e.Simulator == nil {
		return models.WarmupSummary{}, errors.New("warmup simulator not configured")
	}
	sum, err := e.Simulator.Run(ctx, history, observationFraction)
	if e.Metrics != nil {
		e.Metrics.SetAgentState(e.Agent.ExplorationRate(), e.Agent.Size())
	}
	return sum, err
}

// RequestRetrain asks the retrain loop for a run. It never blocks; false
// means a request is already pending.
func (e *Engine) RequestRetrain() bool {
	select {
	case e.retrain <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) RetrainRequests() <-chan struct{} { return e.retrain }

func (e *Engine) Stats() models.EngineStats {
	total, wins, pnl := e.Learner.Counters()
	st := models.EngineStats{
		TotalTrades:      total,
		WinningTrades:    wins,
		CumulativePnL:    pnl,
		ExplorationRate:  e.Agent.ExplorationRate(),
		QTableSize:       e.Agent.Size(),
		LearningFailures: e.Learner.Failures(),
		Sharpe:           e.Tracker.Sharpe(),
		Sortino:          e.Tracker.Sortino(),
		Drawdown:         e.Tracker.Drawdown(),
		Streak:           e.Tracker.Streak(),
	}
	if math.IsInf(st.Sortino, 1) {
		st.Sortino, st.SortinoUnbounded = 0, true
	}
	if e.Patterns != nil {
		st.PatternCacheHits, st.PatternCacheMisses = e.Patterns.CacheStats()
	}
	return st
}

// LastDecision returns the newest decision for symbol while it is fresh.
func (e *Engine) LastDecision(symbol string) (models.TradeDecision, bool) {
	return e.last.Get(symbol)
}

// TimeframeStates lists the derived state of every configured timeframe
// that has enough history, plus the cross-timeframe verdict.
func (e *Engine) TimeframeStates(symbol string, tracked []models.Timeframe) ([]models.TimeframeState, models.CrossTimeframeAnalysis) {
	out := make([]models.TimeframeState, 0, len(tracked))
	for _, tf := range tracked {
		if st := e.Timeframes.State(symbol, tf); st != nil {
			out = append(out, *st)
		}
	}
	return out, e.Timeframes.AnalyzeCrossTimeframe(symbol)
}

// HasSufficientData reports whether every tracked timeframe of symbol holds
// at least minBars bars.
func (e *Engine) HasSufficientData(symbol string, minBars int) bool {
	return e.Timeframes.HasSufficientData(symbol, minBars)
}

func (e *Engine) Performance() map[string]models.SymbolPerformance {
	return e.Perf.Snapshot()
}

// Symbols returns the configured symbols, or every symbol seen so far.
func (e *Engine) Symbols() []string {
	if len(e.cfg.Symbols) > 0 {
		return append([]string(nil), e.cfg.Symbols...)
	}
	return e.Timeframes.Symbols()
}
