package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPortfolioFollowsFills(t *testing.T) {
	p := NewPortfolio(decimal.NewFromInt(10000))
	p.UpdatePrice("AAPL", decimal.NewFromInt(100))
	p.UpdatePrice("AAPL", decimal.Zero)

	open := closingFill(0)
	open.SignedQty = decimal.NewFromInt(10)
	open.PreviousPosition = decimal.Zero
	open.NewPosition = decimal.NewFromInt(10)
	p.ApplyFill(open)
	snap := p.Snapshot()
	assert.True(t, snap.Positions["AAPL"].Equal(decimal.NewFromInt(10)))
	assert.InDelta(t, 0.1, snap.PositionFraction("AAPL"), 1e-12)
	assert.Equal(t, 1, snap.OpenPositions())

	p.ApplyFill(closingFill(40))
	snap = p.Snapshot()
	assert.False(t, snap.HasPosition("AAPL"))
	assert.True(t, snap.Equity.Equal(decimal.NewFromInt(10040)))
	assert.True(t, p.Equity().Equal(decimal.NewFromInt(10040)))

	// snapshots are copies
	snap.Positions["MSFT"] = decimal.NewFromInt(1)
	assert.False(t, p.Snapshot().HasPosition("MSFT"))
}
