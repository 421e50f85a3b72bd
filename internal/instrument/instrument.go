// Package instrument is the immutable catalog of tradables: tick/lot
// rules, denomination logic, and the dense small-integer IDs the rest of
// the OMS uses to key order books, subscriptions, and positions.
//
// Instrument variants (Spot / PerpetualFuture{linear,inverse} /
// DatedFuture) are modeled as a tagged union: one struct with a Kind
// discriminant, and the per-variant rules (DenominationCurrency,
// ValueInDenom) become methods that switch on Kind.
package instrument

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Kind discriminates the Instrument variants.
type Kind int

const (
	Spot Kind = iota
	LinearPerpetual
	InversePerpetual
	DatedFuture
)

func (k Kind) String() string {
	switch k {
	case Spot:
		return "SPOT"
	case LinearPerpetual:
		return "LINEAR_PERPETUAL"
	case InversePerpetual:
		return "INVERSE_PERPETUAL"
	case DatedFuture:
		return "DATED_FUTURE"
	default:
		return "UNKNOWN"
	}
}

// ID is the dense small integer assigned to an instrument, stable for
// the lifetime of the process.
type ID int32

// Instrument is immutable once constructed by the Registry.
type Instrument struct {
	ID                 ID
	Symbol             string
	SourceExchange     string
	Kind               Kind
	BaseCurrency       ticks.Currency
	QuoteCurrency      ticks.Currency
	TickSize           ticks.Price
	LotSize            ticks.Quantity
	MinOrderSize       ticks.Quantity
	ContractMultiplier ticks.Quantity // unused (1) for Spot

	// BitmexStyle distinguishes BitMEX-style inverse contracts from
	// non-BITMEX USD-quoted inverse contracts; see DenominationCurrency.
	BitmexStyle bool
}

// DenominationCurrency is the currency PnL for this instrument accrues
// in: quote currency for Spot/Linear, base currency for Inverse.
func (i Instrument) DenominationCurrency() ticks.Currency {
	switch i.Kind {
	case Spot, LinearPerpetual, DatedFuture:
		return i.QuoteCurrency
	case InversePerpetual:
		if i.BitmexStyle {
			return i.BaseCurrency
		}
		// Non-BITMEX USD-quoted inverse also denominates in the base
		// currency; see DESIGN.md "Open Question: inverse denomination
		// currency" for the per-venue rationale.
		return i.BaseCurrency
	default:
		return i.QuoteCurrency
	}
}

// ValueInDenom returns price*qty for linear/spot, (1/price)*qty for
// inverse, each scaled by the contract multiplier (1 for spot), tagged
// with the instrument's denomination currency.
func (i Instrument) ValueInDenom(price ticks.Price, qty ticks.Quantity) ticks.CurrencyAmount {
	p := price.ToDecimal()
	q := qty.ToDecimal()
	mult := i.ContractMultiplier.ToDecimal()
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}

	switch i.Kind {
	case InversePerpetual:
		if p.IsZero() {
			return ticks.NewCurrencyAmount(p, i.DenominationCurrency())
		}
		value := q.Div(p).Mul(mult)
		return ticks.NewCurrencyAmount(value, i.DenominationCurrency())
	default: // Spot, LinearPerpetual, DatedFuture
		value := p.Mul(q).Mul(mult)
		return ticks.NewCurrencyAmount(value, i.DenominationCurrency())
	}
}

// Registry is the immutable-after-load catalog, keyed by both ID and
// Symbol for O(1) lookup either way.
type Registry struct {
	byID     map[ID]Instrument
	bySymbol map[string]Instrument
	nextID   ID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[ID]Instrument),
		bySymbol: make(map[string]Instrument),
	}
}

// Add registers an instrument, assigning the next dense ID if inst.ID is
// zero-valued (the caller may also pass externally-stable IDs, e.g. from
// a CSV's optional instrument_id column).
func (r *Registry) Add(inst Instrument) Instrument {
	if inst.ID == 0 {
		r.nextID++
		inst.ID = r.nextID
	} else if inst.ID > r.nextID {
		r.nextID = inst.ID
	}
	r.byID[inst.ID] = inst
	r.bySymbol[inst.Symbol] = inst
	return inst
}

// ByID looks up an instrument by its dense ID.
func (r *Registry) ByID(id ID) (Instrument, bool) {
	inst, ok := r.byID[id]
	return inst, ok
}

// BySymbol looks up an instrument by its exchange symbol.
func (r *Registry) BySymbol(symbol string) (Instrument, bool) {
	inst, ok := r.bySymbol[symbol]
	return inst, ok
}

// All returns every registered instrument, in no particular order.
func (r *Registry) All() []Instrument {
	out := make([]Instrument, 0, len(r.byID))
	for _, inst := range r.byID {
		out = append(out, inst)
	}
	return out
}

// Validate checks that a price/quantity pair obeys the instrument's
// tick/lot rules and minimum order size.
func (i Instrument) Validate(price ticks.Price, qty ticks.Quantity) error {
	if i.TickSize > 0 && price%i.TickSize != 0 {
		return fmt.Errorf("%s: price %d not a multiple of tick size %d", i.Symbol, price, i.TickSize)
	}
	if i.LotSize > 0 && qty%i.LotSize != 0 {
		return fmt.Errorf("%s: quantity %d not a multiple of lot size %d", i.Symbol, qty, i.LotSize)
	}
	if qty < i.MinOrderSize {
		return fmt.Errorf("%s: quantity %d below minimum order size %d", i.Symbol, qty, i.MinOrderSize)
	}
	return nil
}
