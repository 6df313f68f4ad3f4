package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/services/features"
	"TradeMind/internal/services/performance"
	"TradeMind/internal/services/rl"
	"TradeMind/internal/services/safeguards"
)

// 10:00 in New York, hours before the session close.
var morning = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

// drift builds n one-minute bars ending at morning whose close climbs by
// step per bar with a constant one-dollar range.
func drift(symbol string, n int, start, step float64) []models.Bar {
	bars := make([]models.Bar, n)
	half := decimal.NewFromFloat(0.5)
	for i := range bars {
		c := decimal.NewFromFloat(start + step*float64(i))
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timeframe: models.TF1m,
			Timestamp: morning.Add(time.Duration(i-n+1) * time.Minute),
			Open:      c,
			High:      c.Add(half),
			Low:       c.Sub(half),
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func flatBook() models.PortfolioSnapshot {
	return models.PortfolioSnapshot{
		Equity:     decimal.NewFromInt(100000),
		LastPrices: map[string]decimal.Decimal{},
		Positions:  map[string]decimal.Decimal{},
	}
}

func greedyAgent() *rl.Agent {
	cfg := rl.DefaultConfig()
	cfg.ExplorationRate = 0
	cfg.MinExploration = 0
	cfg.Seed = 7
	return rl.NewAgent(cfg)
}

// prime gives state the listed action values.
func prime(a *rl.Agent, s rl.State, values map[models.Action]float64) {
	var v models.ActionValues
	for act, q := range values {
		v[act] = q
	}
	q, eps := a.Snapshot()
	q[s.Key()] = v
	a.Restore(q, eps)
}

type decisionFixture struct {
	agent  *rl.Agent
	guards *safeguards.Safeguards
	perf   *performance.Book
	maker  *DecisionMaker
}

func newDecisionFixture(mutate func(*DecisionConfig)) *decisionFixture {
	cfg := DefaultDecisionConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f := &decisionFixture{
		agent:  greedyAgent(),
		guards: safeguards.New(safeguards.DefaultConfig(), nil),
		perf:   performance.NewBook(),
	}
	f.maker = NewDecisionMaker(cfg, f.agent, f.guards, f.perf, nil)
	return f
}

// input extracts the state for bars against book and primes its Q values.
func (f *decisionFixture) input(bars []models.Bar, book models.PortfolioSnapshot, values map[models.Action]float64) DecisionInput {
	symbol := bars[len(bars)-1].Symbol
	ms := features.NewExtractor().ExtractState(symbol, bars, book)
	if ms.Tradeable && values != nil {
		prime(f.agent, rl.Discretize(ms), values)
	}
	return DecisionInput{
		Symbol:    symbol,
		State:     ms,
		Bars:      bars,
		Portfolio: book,
		Now:       morning,
	}
}
