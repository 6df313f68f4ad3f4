package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is an execution report for a previously issued decision.
type Fill struct {
	Symbol           string          `json:"symbol" validate:"required"`
	Timestamp        time.Time       `json:"timestamp"`
	FillPrice        decimal.Decimal `json:"fill_price"`
	RealisedPnL      decimal.Decimal `json:"realised_pnl"`
	SignedQty        decimal.Decimal `json:"signed_qty"`
	PreviousPosition decimal.Decimal `json:"previous_position"`
	NewPosition      decimal.Decimal `json:"new_position"`
}

// Notional is |qty| * price.
func (f Fill) Notional() decimal.Decimal {
	return f.SignedQty.Abs().Mul(f.FillPrice)
}

// ClosesEpisode is true when the resulting position is negligible.
func (f Fill) ClosesEpisode() bool {
	return f.NewPosition.Abs().LessThan(NegligiblePosition)
}
