// Package domain holds the data model shared by the backtesting engine: bars,
// signals, trade events, and run totals.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV sample for a fixed time interval.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Closes returns the close price of every bar, in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Timestamps returns the timestamp of every bar, in order.
func Timestamps(bars []Bar) []time.Time {
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Timestamp
	}
	return out
}

// Side is the direction of a fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PositionState is the scalar state of the position state machine.
type PositionState string

const (
	PositionFlat PositionState = "flat"
	PositionLong PositionState = "long"
)

// Signal is a raw entry or exit condition detected at bar Index. The engine
// decides whether it results in a fill; when it does, the fill happens at
// bar FillIndex for FillPrice.
type Signal struct {
	Side      Side
	Index     int
	FillIndex int
	FillPrice float64
	Reason    string
}

// TradeEvent is an immutable record of one fill.
type TradeEvent struct {
	Seq         int
	Timestamp   time.Time
	Side        Side
	FillPrice   decimal.Decimal
	Notional    decimal.Decimal
	Fee         decimal.Decimal
	Tax         decimal.Decimal
	NetCashFlow decimal.Decimal

	// RealizedProfit is set on sells only: the round trip's net cash flow
	// including fees and taxes of both fills.
	RealizedProfit decimal.Decimal

	Reason string
}

// RunTotals accumulates monotonically across one backtest run.
type RunTotals struct {
	GrossProfit decimal.Decimal
	TotalFee    decimal.Decimal
	TotalTax    decimal.Decimal
	TradeCount  int
}

// NetProfit returns GrossProfit - TotalFee - TotalTax.
func (t RunTotals) NetProfit() decimal.Decimal {
	return t.GrossProfit.Sub(t.TotalFee).Sub(t.TotalTax)
}
