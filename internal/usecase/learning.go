package usecase

import (
	"fmt"
	"sync"
	"sync/atomic"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/domain/service"
	"TradeMind/internal/services/performance"
	"TradeMind/internal/services/rewards"
	"TradeMind/internal/services/rl"
	"TradeMind/internal/services/safeguards"
	"TradeMind/pkg/logger"
)

// FillInput pairs an execution report with the state and action that led
// to it. Next defaults to Last when unset.
type FillInput struct {
	Fill       models.Fill
	Last       *rl.State
	LastAction models.Action
	Next       *rl.State
}

// LearningOutcome reports what a fill did to the agent.
type LearningOutcome struct {
	Reward  float64
	Done    bool
	Updated bool
	Err     error
}

// LearningCoordinator turns fills into rewards, bookkeeping and Q updates.
type LearningCoordinator struct {
	agent   *rl.Agent
	tracker *rewards.Tracker
	perf    *performance.Book
	guards  *safeguards.Safeguards
	calc    rewards.Calculator
	metrics service.DecisionMetrics
	log     *logger.Logger

	initialEquity float64

	mu            sync.Mutex
	totalTrades   int
	winningTrades int
	cumulativePnL float64

	failures atomic.Int64
}

func NewLearningCoordinator(
	agent *rl.Agent,
	tracker *rewards.Tracker,
	perf *performance.Book,
	guards *safeguards.Safeguards,
	calc rewards.Calculator,
	initialEquity float64,
	metrics service.DecisionMetrics,
	log *logger.Logger,
) *LearningCoordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &LearningCoordinator{
		agent:         agent,
		tracker:       tracker,
		perf:          perf,
		guards:        guards,
		calc:          calc,
		initialEquity: initialEquity,
		metrics:       metrics,
		log:           log,
	}
}

// HandleFill updates statistics first and then applies the Q update. A
// failing update is logged and counted; the statistics stay updated.
func (c *LearningCoordinator) HandleFill(in FillInput) LearningOutcome {
	f := in.Fill
	pnl := f.RealisedPnL.InexactFloat64()
	notional := f.Notional().InexactFloat64()
	done := f.ClosesEpisode()

	c.mu.Lock()
	c.totalTrades++
	if pnl > 0 {
		c.winningTrades++
	}
	c.cumulativePnL += pnl
	equity := c.initialEquity + c.cumulativePnL
	c.mu.Unlock()

	c.perf.Record(f.Symbol, pnl)
	if pnl != 0 || done {
		c.tracker.Record(pnl, equity)
	}
	if c.guards != nil {
		if err := c.guards.RecordTrade(f.Timestamp, f.Symbol); err != nil {
			c.log.Warn("trade not recorded for cadence checks", logger.String("symbol", f.Symbol), logger.Error(err))
		}
	}

	out := LearningOutcome{Reward: c.calc.Reward(pnl, notional, c.tracker), Done: done}
	if c.metrics != nil {
		c.metrics.ObserveReward(f.Symbol, out.Reward)
	}
	if in.Last == nil {
		c.log.Debug("fill without prior decision, skipping update", logger.String("symbol", f.Symbol))
		return out
	}

	next := in.Last
	if in.Next != nil {
		next = in.Next
	}
	out.Err = c.update(*in.Last, in.LastAction, out.Reward, *next, done)
	if out.Err != nil {
		c.failures.Add(1)
		if c.metrics != nil {
			c.metrics.ObserveLearningFailure(f.Symbol)
		}
		c.log.Error("q update failed",
			logger.String("symbol", f.Symbol),
			logger.String("action", in.LastAction.String()),
			logger.Float64("reward", out.Reward),
			logger.Error(out.Err))
		return out
	}
	out.Updated = true
	if c.metrics != nil {
		exploration := c.agent.ExplorationRate()
		c.metrics.SetAgentState(exploration, c.agent.Size())
	}
	return out
}

func (c *LearningCoordinator) update(last rl.State, action models.Action, reward float64, next rl.State, done bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("q update panicked: %v", r)
		}
	}()
	return c.agent.UpdateQValue(last, action, reward, next, done)
}

// Counters returns total trades, winning trades and cumulative P&L.
func (c *LearningCoordinator) Counters() (total, wins int, pnl float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTrades, c.winningTrades, c.cumulativePnL
}

func (c *LearningCoordinator) RestoreCounters(total, wins int, pnl float64) {
	c.mu.Lock()
	c.totalTrades, c.winningTrades, c.cumulativePnL = total, wins, pnl
	c.mu.Unlock()
}

func (c *LearningCoordinator) Failures() int64 { return c.failures.Load() }

// Equity is the configured starting equity plus realised P&L.
func (c *LearningCoordinator) Equity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialEquity + c.cumulativePnL
}
