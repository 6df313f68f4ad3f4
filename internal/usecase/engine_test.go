package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	"TradeMind/internal/services/features"
	"TradeMind/internal/services/patterns"
	"TradeMind/internal/services/performance"
	"TradeMind/internal/services/rewards"
	"TradeMind/internal/services/rl"
	"TradeMind/internal/services/safeguards"
	"TradeMind/internal/services/timeframe"
)

type memoryStore struct {
	mu  sync.Mutex
	cp  *models.Checkpoint
	err error
}

func (s *memoryStore) Save(_ context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cp = cp
	return nil
}

func (s *memoryStore) Load(context.Context) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.cp == nil {
		return nil, drepo.ErrCheckpointNotFound
	}
	return s.cp, nil
}

func newTestEngine(store drepo.CheckpointStore) (*Engine, *fakeMetrics) {
	agent := greedyAgent()
	tracker := rewards.NewTracker(rewards.DefaultWindow)
	perf := performance.NewBook()
	guards := safeguards.New(safeguards.DefaultConfig(), nil)
	extractor := features.NewExtractor()
	metrics := &fakeMetrics{}

	e := NewEngine(EngineConfig{
		Symbols:          []string{"AAPL"},
		PrimaryTimeframe: models.TF1m,
		Lookback:         60,
		DecisionTTL:      time.Hour,
		PersistRewards:   true,
	}, EngineDeps{
		Timeframes: timeframe.NewManager(),
		Patterns:   patterns.NewDetector(),
		Extractor:  extractor,
		Agent:      agent,
		Tracker:    tracker,
		Perf:       perf,
		Decisions:  NewDecisionMaker(DefaultDecisionConfig(), agent, guards, perf, nil),
		Learner:    NewLearningCoordinator(agent, tracker, perf, guards, legacyCalc, 100000, metrics, nil),
		Simulator:  NewWarmupSimulator(WarmupConfig{}, agent, extractor, legacyCalc, nil),
		Portfolio:  NewPortfolio(decimal.NewFromInt(100000)),
		Store:      store,
		Metrics:    metrics,
	})
	return e, metrics
}

func feed(t *testing.T, e *Engine, bars []models.Bar) *models.TradeDecision {
	t.Helper()
	var last *models.TradeDecision
	for _, b := range bars {
		d, err := e.OnBar(b)
		require.NoError(t, err)
		last = d
	}
	return last
}

// primeCurrent gives the state the engine will see next the listed values.
func primeCurrent(e *Engine, symbol string, values map[models.Action]float64) rl.State {
	bars := e.Timeframes.GetBars(symbol, models.TF1m, 60)
	s := rl.Discretize(e.Extractor.ExtractState(symbol, bars, e.Portfolio.Snapshot()))
	prime(e.Agent, s, values)
	return s
}

func TestEngineOnBar(t *testing.T) {
	e, metrics := newTestEngine(&memoryStore{})
	bars := drift("AAPL", 30, 100, 0.05)

	d := feed(t, e, bars[:19])
	require.NotNil(t, d)
	assert.Equal(t, models.ReasonInsufficientData, d.Reason)

	d = feed(t, e, bars[19:])
	require.NotNil(t, d)
	assert.NotEqual(t, models.ReasonInsufficientData, d.Reason)
	assert.NotEmpty(t, d.StateKey)

	last, ok := e.LastDecision("AAPL")
	require.True(t, ok)
	assert.Equal(t, *d, last)
	assert.Len(t, metrics.decisions, 30)

	// a slower timeframe feeds analysis only
	slow := bars[29]
	slow.Timeframe = models.TF5m
	d, err := e.OnBar(slow)
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = e.OnBar(bars[3])
	assert.ErrorIs(t, err, timeframe.ErrOutOfOrder)

	snap := e.Portfolio.Snapshot()
	assert.True(t, snap.LastPrices["AAPL"].Equal(bars[29].Close))
}

func TestEngineHandleFillCreditsLastTrade(t *testing.T) {
	e, _ := newTestEngine(&memoryStore{})
	bars := drift("AAPL", 30, 100, 0.05)
	feed(t, e, bars[:29])

	// push the last bar through the tf manager by hand so the state can be
	// primed before the evaluation
	require.NoError(t, e.Timeframes.AddBar("AAPL", models.TF1m, bars[29]))
	e.Portfolio.UpdatePrice("AAPL", bars[29].Close)
	s := primeCurrent(e, "AAPL", map[models.Action]float64{models.ActionBuy: 2})

	d := e.Evaluate("AAPL", morning)
	require.True(t, d.ShouldTrade, d.Reason)
	assert.Equal(t, models.ActionBuy, d.Action)

	open := models.Fill{
		Symbol:      "AAPL",
		Timestamp:   morning,
		FillPrice:   bars[29].Close,
		SignedQty:   decimal.NewFromInt(50),
		NewPosition: decimal.NewFromInt(50),
	}
	out := e.HandleFill(open)
	require.NoError(t, out.Err)
	assert.True(t, out.Updated)
	assert.False(t, out.Done)

	v, _ := e.Agent.Values(s)
	assert.Less(t, v[models.ActionBuy], 2.0)
	assert.True(t, e.Portfolio.Snapshot().HasPosition("AAPL"))

	closing := open
	closing.SignedQty = decimal.NewFromInt(-50)
	closing.PreviousPosition = decimal.NewFromInt(50)
	closing.NewPosition = decimal.Zero
	closing.RealisedPnL = decimal.NewFromInt(25)
	out = e.HandleFill(closing)
	assert.True(t, out.Updated)
	assert.True(t, out.Done)

	// the episode is over; a stray fill has nothing to credit
	out = e.HandleFill(closing)
	assert.False(t, out.Updated)

	st := e.Stats()
	assert.Equal(t, 3, st.TotalTrades)
	assert.Equal(t, 2, st.WinningTrades)
	assert.InDelta(t, 50, st.CumulativePnL, 1e-9)
	assert.True(t, st.SortinoUnbounded)
	assert.Zero(t, st.Sortino)
	assert.Equal(t, 2, st.Streak)
}

func TestEngineCheckpointRoundTrip(t *testing.T) {
	store := &memoryStore{}
	e, metrics := newTestEngine(store)
	last := rl.State{Trend: models.TrendUp}
	prime(e.Agent, last, map[models.Action]float64{models.ActionSell: -0.4, models.ActionHold: 0.2})
	e.Learner.HandleFill(FillInput{Fill: closingFill(30), Last: &last, LastAction: models.ActionHold})
	e.Learner.HandleFill(FillInput{Fill: closingFill(-10)})

	require.NoError(t, e.SaveState(context.Background()))
	assert.Equal(t, 1, metrics.checkpoints["save_ok"])
	require.NotNil(t, store.cp.RewardMetrics)
	assert.Equal(t, models.CheckpointVersion, store.cp.Version)

	restored, _ := newTestEngine(store)
	require.True(t, restored.LoadState(context.Background()))

	wantQ, wantEps := e.Agent.Snapshot()
	gotQ, gotEps := restored.Agent.Snapshot()
	assert.Equal(t, wantQ, gotQ)
	assert.Equal(t, wantEps, gotEps)
	assert.Equal(t, e.Performance(), restored.Performance())
	assert.Equal(t, e.Stats(), restored.Stats())
}

func TestEngineLoadStateNeverFails(t *testing.T) {
	e, _ := newTestEngine(&memoryStore{})
	assert.False(t, e.LoadState(context.Background()))

	e, metrics := newTestEngine(&memoryStore{err: errors.New("primary and backup unreadable")})
	assert.False(t, e.LoadState(context.Background()))
	assert.Equal(t, 1, metrics.checkpoints["load_error"])
	assert.Error(t, e.SaveState(context.Background()))

	e, _ = newTestEngine(nil)
	assert.False(t, e.LoadState(context.Background()))
	assert.Error(t, e.SaveState(context.Background()))
}

func TestEngineLegacyCheckpointResetsRewardMetrics(t *testing.T) {
	store := &memoryStore{cp: &models.Checkpoint{
		Version:         1,
		QTable:          models.QTable{"abc": {1, 2, 3, 4, 5}},
		TotalTrades:     4,
		WinningTrades:   3,
		CumulativePnL:   12,
		ExplorationRate: 0.05,
	}}
	e, _ := newTestEngine(store)
	e.Tracker.Record(10, 100010)

	require.True(t, e.LoadState(context.Background()))
	assert.Zero(t, e.Tracker.Len())
	assert.Equal(t, 1, e.Agent.Size())
	assert.InDelta(t, 0.05, e.Agent.ExplorationRate(), 1e-12)
	assert.Equal(t, 4, e.Stats().TotalTrades)
}

func TestEngineRetrainRequestDoesNotBlock(t *testing.T) {
	e, _ := newTestEngine(nil)
	assert.True(t, e.RequestRetrain())
	assert.False(t, e.RequestRetrain())
	<-e.RetrainRequests()
	assert.True(t, e.RequestRetrain())
}

func TestEngineTimeframeStates(t *testing.T) {
	e, _ := newTestEngine(nil)
	feed(t, e, drift("AAPL", 10, 100, 0.05))
	states, cross := e.TimeframeStates("AAPL", []models.Timeframe{models.TF1m, models.TF5m})
	require.Len(t, states, 1)
	assert.Equal(t, models.TF1m, states[0].Timeframe)
	assert.Equal(t, "AAPL", cross.Symbol)
	assert.Equal(t, []string{"AAPL"}, e.Symbols())
}
