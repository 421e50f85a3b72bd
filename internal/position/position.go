// Package position tracks signed net exposure per instrument and the
// realized PnL that accrues as fills cross it.
package position

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/errs"
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Position is the signed net exposure in one instrument. AvgEntryPrice
// reverts to the zero-sentinel once Quantity returns to flat.
type Position struct {
	InstrumentID  instrument.ID
	Quantity      ticks.Quantity // signed: >0 long, <0 short
	AvgEntryPrice ticks.Price
	RealizedPnL   ticks.CurrencyAmount
	LastUpdateUs  int64
}

// ApplyFill folds fill into p across three cases: same-sign add,
// opposite-sign reduce, and opposite-sign-with-overflow flip (close
// fully, then open the residual at the fill price). Returns the
// updated Position; p is not mutated in place so callers under a
// map-wide mutex can publish the new value atomically.
func ApplyFill(p Position, inst instrument.Instrument, fill router.Fill) Position {
	signedFillQty := fill.Quantity
	if fill.Side == ticks.Sell {
		signedFillQty = -signedFillQty
	}

	out := p
	out.LastUpdateUs = fill.TimestampUs

	switch {
	case p.Quantity == 0 || sameSign(p.Quantity, signedFillQty):
		out.Quantity = p.Quantity + signedFillQty
		out.AvgEntryPrice = weightedAvg(p.Quantity, p.AvgEntryPrice, signedFillQty, fill.Price)

	default:
		oldAbs := abs(p.Quantity)
		fillAbs := abs(signedFillQty)
		closing := oldAbs
		if fillAbs < closing {
			closing = fillAbs
		}
		sign := int64(1)
		if p.Quantity < 0 {
			sign = -1
		}

		delta := realizedDelta(fill.Price, p.AvgEntryPrice, closing, sign, inst)
		out.RealizedPnL = ticks.NewCurrencyAmount(p.RealizedPnL.Amount.Add(delta), inst.DenominationCurrency())

		remaining := fillAbs - closing
		if remaining == 0 {
			out.Quantity = p.Quantity + signedFillQty
			if out.Quantity == 0 {
				out.AvgEntryPrice = 0
			}
		} else {
			flipSign := int64(1)
			if signedFillQty < 0 {
				flipSign = -1
			}
			out.Quantity = ticks.Quantity(flipSign * int64(remaining))
			out.AvgEntryPrice = fill.Price
		}
	}

	return out
}

func sameSign(a, b ticks.Quantity) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(q ticks.Quantity) ticks.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// weightedAvg computes (|oldQty|*oldAvg + |addQty|*addPrice) / (|oldQty|+|addQty|)
// in decimal, for adding to an existing same-sign position.
func weightedAvg(oldQty ticks.Quantity, oldAvg ticks.Price, addQty ticks.Quantity, addPrice ticks.Price) ticks.Price {
	oldAbs := abs(oldQty).ToDecimal()
	addAbs := abs(addQty).ToDecimal()
	denom := oldAbs.Add(addAbs)
	if denom.IsZero() {
		return 0
	}
	numerator := oldAbs.Mul(oldAvg.ToDecimal()).Add(addAbs.Mul(addPrice.ToDecimal()))
	return ticks.FromDecimal(numerator.Div(denom))
}

// realizedDelta computes (fill_price − old_avg)·closed_qty·sign·multiplier.
func realizedDelta(fillPrice, oldAvg ticks.Price, closedQty ticks.Quantity, sign int64, inst instrument.Instrument) decimal.Decimal {
	mult := inst.ContractMultiplier.ToDecimal()
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}
	priceDelta := fillPrice.ToDecimal().Sub(oldAvg.ToDecimal())
	return priceDelta.Mul(closedQty.ToDecimal()).Mul(decimal.NewFromInt(sign)).Mul(mult)
}

// Book is the concurrent position map every inbound Fill is folded
// into. A coarse mutex guards it during ApplyFill — position arithmetic
// is short and uncontended in practice.
type Book struct {
	mu        sync.Mutex
	positions map[instrument.ID]Position
	registry  *instrument.Registry
}

// NewBook creates an empty position book backed by registry for
// per-instrument contract multiplier / denomination currency lookups.
func NewBook(registry *instrument.Registry) *Book {
	return &Book{positions: make(map[instrument.ID]Position), registry: registry}
}

// Get returns the current position for id, or the zero Position if none
// has been opened yet.
func (b *Book) Get(id instrument.ID) Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[id]
}

// ApplyFill folds fill into the position book under the coarse mutex
// and returns the updated Position.
func (b *Book) ApplyFill(fill router.Fill) (Position, error) {
	inst, ok := b.registry.ByID(fill.InstrumentID)
	if !ok {
		return Position{}, fmt.Errorf("position: unknown instrument %d: %w", fill.InstrumentID, errs.ErrInputInvalid)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.positions[fill.InstrumentID]
	if p.InstrumentID == 0 {
		p.InstrumentID = fill.InstrumentID
	}
	updated := ApplyFill(p, inst, fill)
	b.positions[fill.InstrumentID] = updated
	return updated, nil
}

// All returns a snapshot of every tracked position.
func (b *Book) All() []Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}
