package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV candle. Prices are fixed-point; treat values as immutable.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

var ErrInvalidBar = errors.New("invalid bar")

// Validate checks OHLC consistency.
func (b Bar) Validate() error {
	switch {
	case b.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidBar)
	case b.Timestamp.IsZero():
		return fmt.Errorf("%w: zero timestamp", ErrInvalidBar)
	case !b.Low.IsPositive():
		return fmt.Errorf("%w: non-positive low %s", ErrInvalidBar, b.Low)
	case b.High.LessThan(b.Low):
		return fmt.Errorf("%w: high %s below low %s", ErrInvalidBar, b.High, b.Low)
	case b.Open.GreaterThan(b.High) || b.Open.LessThan(b.Low):
		return fmt.Errorf("%w: open %s outside [%s, %s]", ErrInvalidBar, b.Open, b.Low, b.High)
	case b.Close.GreaterThan(b.High) || b.Close.LessThan(b.Low):
		return fmt.Errorf("%w: close %s outside [%s, %s]", ErrInvalidBar, b.Close, b.Low, b.High)
	case b.Volume < 0:
		return fmt.Errorf("%w: negative volume", ErrInvalidBar)
	}
	return nil
}

func (b Bar) Range() decimal.Decimal { return b.High.Sub(b.Low) }

func (b Bar) Body() decimal.Decimal { return b.Close.Sub(b.Open).Abs() }

func (b Bar) UpperWick() decimal.Decimal { return b.High.Sub(decimal.Max(b.Open, b.Close)) }

func (b Bar) LowerWick() decimal.Decimal { return decimal.Min(b.Open, b.Close).Sub(b.Low) }

func (b Bar) IsBullish() bool { return b.Close.GreaterThan(b.Open) }

func (b Bar) IsBearish() bool { return b.Close.LessThan(b.Open) }

// Midpoint of the real body.
func (b Bar) Midpoint() decimal.Decimal {
	return b.Open.Add(b.Close).Div(decimal.NewFromInt(2))
}

// CloseFloat is a convenience for statistics that do not need exact arithmetic.
func (b Bar) CloseFloat() float64 { return b.Close.InexactFloat64() }

// Closes extracts close prices as floats.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Volumes extracts volumes as floats.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}
