package instrument

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/pkg/ticks"
)

func decimalOne() decimal.Decimal { return decimal.NewFromInt(1) }

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal fixture %q: %v", s, err)
	}
	return d
}

func TestDenominationCurrency(t *testing.T) {
	usd := ticks.Intern("USD")
	btc := ticks.Intern("BTC")
	usdt := ticks.Intern("USDT")

	linear := Instrument{Kind: LinearPerpetual, BaseCurrency: btc, QuoteCurrency: usdt}
	if got := linear.DenominationCurrency(); got != usdt {
		t.Errorf("linear denomination = %s, want %s", got, usdt)
	}

	inverseBitmex := Instrument{Kind: InversePerpetual, BaseCurrency: btc, QuoteCurrency: usd, BitmexStyle: true}
	if got := inverseBitmex.DenominationCurrency(); got != btc {
		t.Errorf("bitmex inverse denomination = %s, want %s", got, btc)
	}

	inverseOther := Instrument{Kind: InversePerpetual, BaseCurrency: btc, QuoteCurrency: usd, BitmexStyle: false}
	if got := inverseOther.DenominationCurrency(); got != btc {
		t.Errorf("non-bitmex inverse denomination = %s, want %s", got, btc)
	}
}

func TestValueInDenomLinearVsInverse(t *testing.T) {
	btc := ticks.Intern("BTC")
	usdt := ticks.Intern("USDT")

	linear := Instrument{
		Kind: LinearPerpetual, BaseCurrency: btc, QuoteCurrency: usdt,
		ContractMultiplier: ticks.QuantityFromDecimal(decimalOne()),
	}
	price := ticks.FromDecimal(decimalFromString(t, "50000"))
	qty := ticks.QuantityFromDecimal(decimalFromString(t, "1"))

	value := linear.ValueInDenom(price, qty)
	if !value.Amount.Equal(decimalFromString(t, "50000")) {
		t.Errorf("linear notional = %s, want 50000", value.Amount)
	}

	inverse := Instrument{
		Kind: InversePerpetual, BaseCurrency: btc, QuoteCurrency: usdt,
		ContractMultiplier: ticks.QuantityFromDecimal(decimalOne()), BitmexStyle: true,
	}
	qtyContracts := ticks.QuantityFromDecimal(decimalFromString(t, "50000"))
	value2 := inverse.ValueInDenom(price, qtyContracts)
	if !value2.Amount.Equal(decimalFromString(t, "1")) {
		t.Errorf("inverse notional = %s, want 1 BTC", value2.Amount)
	}
}

func TestLoadCSV(t *testing.T) {
	data := `market,symbol,type,base_currency,quote_currency,minimum_price_variation,lot_size,contract_multiplier,minimum_order_size
BINANCE,BTCUSDT,LINEAR,BTC,USDT,0.01,0.001,1,0.001
BITMEX,XBTUSD,INVERSE,BTC,USD,0.5,1,1,1
`
	reg := NewRegistry()
	if err := LoadCSV(strings.NewReader(data), reg); err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(reg.All()) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(reg.All()))
	}
	btc, ok := reg.BySymbol("BTCUSDT")
	if !ok || btc.Kind != LinearPerpetual {
		t.Fatalf("BTCUSDT not loaded as linear perpetual: %+v", btc)
	}
	xbt, ok := reg.BySymbol("XBTUSD")
	if !ok || xbt.Kind != InversePerpetual || !xbt.BitmexStyle {
		t.Fatalf("XBTUSD not loaded as bitmex inverse: %+v", xbt)
	}
}

func TestValidate(t *testing.T) {
	inst := Instrument{Symbol: "BTCUSDT", TickSize: 100, LotSize: 10, MinOrderSize: 10}
	if err := inst.Validate(1000, 20); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := inst.Validate(1050, 20); err == nil {
		t.Error("expected tick-misaligned price to fail validation")
	}
	if err := inst.Validate(1000, 5); err == nil {
		t.Error("expected below-minimum quantity to fail validation")
	}
}
