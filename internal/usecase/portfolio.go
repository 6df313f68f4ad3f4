package usecase

import (
	"sync"

	"github.com/shopspring/decimal"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/domain/service"
)

// Portfolio is the read model the extractor and the decision maker evaluate
// against: positions follow fill notifications, prices follow bars and
// equity is the starting equity plus realised P&L.
type Portfolio struct {
	mu        sync.RWMutex
	initial   decimal.Decimal
	realised  decimal.Decimal
	positions map[string]decimal.Decimal
	prices    map[string]decimal.Decimal
}

var _ service.PortfolioView = (*Portfolio)(nil)

func NewPortfolio(initialEquity decimal.Decimal) *Portfolio {
	return &Portfolio{
		initial:   initialEquity,
		positions: make(map[string]decimal.Decimal),
		prices:    make(map[string]decimal.Decimal),
	}
}

// ApplyFill sets the symbol's position to the fill's resulting position and
// books the realised P&L.
func (p *Portfolio) ApplyFill(f models.Fill) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realised = p.realised.Add(f.RealisedPnL)
	if f.ClosesEpisode() {
		delete(p.positions, f.Symbol)
	} else {
		p.positions[f.Symbol] = f.NewPosition
	}
	if f.FillPrice.IsPositive() {
		p.prices[f.Symbol] = f.FillPrice
	}
}

func (p *Portfolio) UpdatePrice(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

func (p *Portfolio) Equity() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initial.Add(p.realised)
}

// Snapshot returns copies; callers may keep them.
func (p *Portfolio) Snapshot() models.PortfolioSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := models.PortfolioSnapshot{
		Equity:     p.initial.Add(p.realised),
		LastPrices: make(map[string]decimal.Decimal, len(p.prices)),
		Positions:  make(map[string]decimal.Decimal, len(p.positions)),
	}
	for s, v := range p.prices {
		snap.LastPrices[s] = v
	}
	for s, v := range p.positions {
		snap.Positions[s] = v
	}
	return snap
}
