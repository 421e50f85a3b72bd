// Package ticks implements the integer-scaled fixed-point value types that
// every price and quantity in the OMS flows through: Price, Quantity, and
// the decimal CurrencyAmount used once a value crosses into a named
// currency.
package ticks

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Scale is the process-wide tick scale: 10,000 ticks per unit, i.e. four
// decimal places. It is a constant, not a config knob — every Price and
// Quantity in the process shares it.
const Scale int64 = 10000

// Price is a signed count of ticks. Zero is the sentinel for "absent".
type Price int64

// Quantity is a signed count of ticks (lots are expressed in the same
// integer domain as prices; the instrument's lot_size determines the
// smallest legal increment, not the type).
type Quantity int64

// Zero reports whether the value is the absent/sentinel value.
func (p Price) Zero() bool { return p == 0 }

// Zero reports whether the value is the absent/sentinel value.
func (q Quantity) Zero() bool { return q == 0 }

// FromDecimal converts a human decimal price into ticks, rounding to the
// nearest tick.
func FromDecimal(d decimal.Decimal) Price {
	scaled := d.Mul(decimal.New(Scale, 0))
	return Price(scaled.Round(0).IntPart())
}

// ToDecimal converts ticks back into a human decimal.
func (p Price) ToDecimal() decimal.Decimal {
	return decimal.New(int64(p), 0).Div(decimal.New(Scale, 0))
}

// QuantityFromDecimal converts a human decimal size into ticks.
func QuantityFromDecimal(d decimal.Decimal) Quantity {
	scaled := d.Mul(decimal.New(Scale, 0))
	return Quantity(scaled.Round(0).IntPart())
}

// ToDecimal converts ticks back into a human decimal.
func (q Quantity) ToDecimal() decimal.Decimal {
	return decimal.New(int64(q), 0).Div(decimal.New(Scale, 0))
}

// RoundDownToTick rounds a price down to the nearest multiple of
// tickSize; RoundUpToTick below rounds up. Buy-side rounding (floor) and
// sell-side rounding (ceil) are exposed separately because quoting needs
// both.
func RoundDownToTick(p Price, tickSize Price) Price {
	if tickSize <= 0 {
		return p
	}
	rem := p % tickSize
	if rem == 0 {
		return p
	}
	if p >= 0 {
		return p - rem
	}
	return p - rem - tickSize
}

func RoundUpToTick(p Price, tickSize Price) Price {
	if tickSize <= 0 {
		return p
	}
	rem := p % tickSize
	if rem == 0 {
		return p
	}
	if p >= 0 {
		return p - rem + tickSize
	}
	return p - rem
}

// FloorToLot rounds a quantity down to the nearest multiple of lotSize.
func FloorToLot(q Quantity, lotSize Quantity) Quantity {
	if lotSize <= 0 {
		return q
	}
	rem := q % lotSize
	if rem == 0 {
		return q
	}
	if q >= 0 {
		return q - rem
	}
	return q - rem - lotSize
}

// ═══════════════════════════════════════════════════════════════════════
// CURRENCY — string symbol, uppercase, interned via a process-wide singleton.
// ═══════════════════════════════════════════════════════════════════════

// Currency is an interned, uppercase currency symbol. The zero value is
// invalid; always obtain one via Intern.
type Currency struct {
	symbol string
}

func (c Currency) String() string { return c.symbol }

// Valid reports whether c was produced by Intern (as opposed to the zero
// value).
func (c Currency) Valid() bool { return c.symbol != "" }

var (
	internMu    sync.Mutex
	internTable = make(map[string]Currency)
)

// Intern returns the singleton Currency for symbol, interning it on
// first use in a process-wide table.
func Intern(symbol string) Currency {
	upper := toUpper(symbol)

	internMu.Lock()
	defer internMu.Unlock()

	if c, ok := internTable[upper]; ok {
		return c
	}
	c := Currency{symbol: upper}
	internTable[upper] = c
	return c
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// CurrencyAmount is a decimal amount tagged with an interned Currency.
// Conversion between currencies is never implicit — see internal/hedger's
// FX service, the only component permitted to produce a CurrencyAmount in
// a different currency from an existing one.
type CurrencyAmount struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewCurrencyAmount constructs a CurrencyAmount in the given currency.
func NewCurrencyAmount(amount decimal.Decimal, currency Currency) CurrencyAmount {
	return CurrencyAmount{Amount: amount, Currency: currency}
}

// Add returns a+b. Panics if the currencies differ — callers must convert
// through the FX service first; this is a programmer error, not a runtime
// condition, so it is not modeled as an error return.
func (a CurrencyAmount) Add(b CurrencyAmount) CurrencyAmount {
	if a.Currency != b.Currency {
		panic(fmt.Sprintf("ticks: cannot add CurrencyAmount in %s to %s", b.Currency, a.Currency))
	}
	return CurrencyAmount{Amount: a.Amount.Add(b.Amount), Currency: a.Currency}
}

func (a CurrencyAmount) Negate() CurrencyAmount {
	return CurrencyAmount{Amount: a.Amount.Neg(), Currency: a.Currency}
}

func (a CurrencyAmount) IsZero() bool { return a.Amount.IsZero() }

func (a CurrencyAmount) String() string {
	return a.Amount.StringFixed(8) + " " + a.Currency.String()
}

// Side is a resting or acting direction on a book or order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Sign returns +1 for Buy, -1 for Sell — the sign convention used
// throughout position and hedge accounting.
func (s Side) Sign() int64 {
	if s == Buy {
		return 1
	}
	return -1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
