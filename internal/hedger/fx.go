package hedger

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/pkg/ticks"
)

var decimalTwo = decimal.NewFromInt(2)

// RefBookReader is the minimal read surface the FX service needs from a
// reference order book (e.g. BTCUSDT) to derive a conversion mid.
type RefBookReader interface {
	BestBid() (ticks.Price, ticks.Quantity)
	BestAsk() (ticks.Price, ticks.Quantity)
}

// FXService converts a CurrencyAmount between BTC and USDT using the
// mid price of a reference book. Conversions outside that pair yield
// ok=false and the caller must suppress the accumulation rather than
// guess a rate.
type FXService struct {
	ref  RefBookReader
	btc  ticks.Currency
	usdt ticks.Currency
}

// NewFXService creates an FXService quoting BTC/USDT off ref's mid.
func NewFXService(ref RefBookReader) *FXService {
	return &FXService{
		ref:  ref,
		btc:  ticks.Intern("BTC"),
		usdt: ticks.Intern("USDT"),
	}
}

// Convert maps amount into target. Same-currency conversion is the
// identity. Cross-currency conversion is supported for BTC<->USDT only;
// anything else returns ok=false and the caller must not accumulate.
func (s *FXService) Convert(amount ticks.CurrencyAmount, target ticks.Currency) (ticks.CurrencyAmount, bool) {
	if amount.Currency == target {
		return amount, true
	}

	supported := func(c ticks.Currency) bool { return c == s.btc || c == s.usdt }
	if !supported(amount.Currency) || !supported(target) {
		return ticks.CurrencyAmount{}, false
	}

	bidPrice, bidQty := s.ref.BestBid()
	askPrice, askQty := s.ref.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return ticks.CurrencyAmount{}, false
	}
	mid := (bidPrice + askPrice).ToDecimal().Div(decimalTwo)

	switch {
	case amount.Currency == s.btc && target == s.usdt:
		return ticks.NewCurrencyAmount(amount.Amount.Mul(mid), target), true
	case amount.Currency == s.usdt && target == s.btc:
		if mid.IsZero() {
			return ticks.CurrencyAmount{}, false
		}
		return ticks.NewCurrencyAmount(amount.Amount.Div(mid), target), true
	default:
		return ticks.CurrencyAmount{}, false
	}
}
