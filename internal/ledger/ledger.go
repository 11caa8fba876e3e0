// Package ledger tracks the single open position of a backtest run and
// accounts for the cash flows, fees and taxes of every fill.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"eulerbt/internal/domain"
)

var (
	ErrAlreadyLong = errors.New("ledger: position already open")
	ErrNotLong     = errors.New("ledger: no open position")
	ErrBadPrice    = errors.New("ledger: fill price is not finite")
)

// Costs describes how a fill price turns into money.
type Costs struct {
	PointValue decimal.Decimal // currency per price point
	Fee        decimal.Decimal // flat currency per fill
	TaxRate    decimal.Decimal // fraction of notional per fill
}

// NewCosts builds Costs from plain configuration values.
func NewCosts(pointValue, fee, taxRate float64) Costs {
	return Costs{
		PointValue: decimal.NewFromFloat(pointValue),
		Fee:        decimal.NewFromFloat(fee),
		TaxRate:    decimal.NewFromFloat(taxRate),
	}
}

// PointCosts accounts in raw price points with no fee or tax.
func PointCosts() Costs {
	return Costs{PointValue: decimal.NewFromInt(1)}
}

// Position is either Flat or Long.
type Position interface {
	State() domain.PositionState
	isPosition()
}

// Flat holds no position.
type Flat struct{}

func (Flat) State() domain.PositionState { return domain.PositionFlat }
func (Flat) isPosition()                 {}

// Long is a single open unit.
type Long struct {
	EntryTime     time.Time
	EntryPrice    decimal.Decimal
	EntryNotional decimal.Decimal
	EntryCashFlow decimal.Decimal // negative: notional + fee + tax paid
}

func (Long) State() domain.PositionState { return domain.PositionLong }
func (Long) isPosition()                 {}

// Ledger owns the position slot, the event log and the running totals of one
// run. It is not safe for concurrent use; parallel runs need one Ledger each.
type Ledger struct {
	costs  Costs
	pos    Position
	events []domain.TradeEvent
	totals domain.RunTotals
}

// New creates a flat Ledger.
func New(costs Costs) *Ledger {
	return &Ledger{costs: costs, pos: Flat{}}
}

// Costs returns the cost model the ledger was created with.
func (l *Ledger) Costs() Costs { return l.costs }

// Position returns the current position.
func (l *Ledger) Position() Position { return l.pos }

// State returns the current position state.
func (l *Ledger) State() domain.PositionState { return l.pos.State() }

// Open buys one unit at price.
func (l *Ledger) Open(ts time.Time, price float64, reason string) (domain.TradeEvent, error) {
	if _, ok := l.pos.(Flat); !ok {
		return domain.TradeEvent{}, ErrAlreadyLong
	}
	fill, err := fillPrice(price)
	if err != nil {
		return domain.TradeEvent{}, err
	}

	notional := fill.Mul(l.costs.PointValue)
	tax := notional.Mul(l.costs.TaxRate)
	net := notional.Add(l.costs.Fee).Add(tax).Neg()

	l.pos = Long{
		EntryTime:     ts,
		EntryPrice:    fill,
		EntryNotional: notional,
		EntryCashFlow: net,
	}

	return l.record(domain.TradeEvent{
		Timestamp:   ts,
		Side:        domain.SideBuy,
		FillPrice:   fill,
		Notional:    notional,
		Fee:         l.costs.Fee,
		Tax:         tax,
		NetCashFlow: net,
		Reason:      reason,
	}), nil
}

// Close sells the open unit at price and realizes the round trip.
func (l *Ledger) Close(ts time.Time, price float64, reason string) (domain.TradeEvent, error) {
	long, ok := l.pos.(Long)
	if !ok {
		return domain.TradeEvent{}, ErrNotLong
	}
	fill, err := fillPrice(price)
	if err != nil {
		return domain.TradeEvent{}, err
	}

	notional := fill.Mul(l.costs.PointValue)
	tax := notional.Mul(l.costs.TaxRate)
	net := notional.Sub(l.costs.Fee.Add(tax))

	l.totals.GrossProfit = l.totals.GrossProfit.Add(notional.Sub(long.EntryNotional))
	l.pos = Flat{}

	return l.record(domain.TradeEvent{
		Timestamp:      ts,
		Side:           domain.SideSell,
		FillPrice:      fill,
		Notional:       notional,
		Fee:            l.costs.Fee,
		Tax:            tax,
		NetCashFlow:    net,
		RealizedProfit: net.Add(long.EntryCashFlow),
		Reason:         reason,
	}), nil
}

func fillPrice(price float64) (decimal.Decimal, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrBadPrice, price)
	}
	return decimal.NewFromFloat(price), nil
}

func (l *Ledger) record(ev domain.TradeEvent) domain.TradeEvent {
	ev.Seq = len(l.events) + 1
	l.events = append(l.events, ev)
	l.totals.TotalFee = l.totals.TotalFee.Add(ev.Fee)
	l.totals.TotalTax = l.totals.TotalTax.Add(ev.Tax)
	l.totals.TradeCount++
	return ev
}

// Events returns a copy of the event log.
func (l *Ledger) Events() []domain.TradeEvent {
	out := make([]domain.TradeEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Totals returns the running totals.
func (l *Ledger) Totals() domain.RunTotals { return l.totals }
