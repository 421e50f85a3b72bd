package position

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

func linearInstrument() instrument.Instrument {
	return instrument.Instrument{
		ID:                 1,
		Kind:               instrument.LinearPerpetual,
		QuoteCurrency:      ticks.Intern("USDT"),
		ContractMultiplier: ticks.QuantityFromDecimal(decimal.NewFromInt(1)),
	}
}

func price(n int64) ticks.Price       { return ticks.FromDecimal(decimal.NewFromInt(n)) }
func qty(n int64) ticks.Quantity      { return ticks.QuantityFromDecimal(decimal.NewFromInt(n)) }
func fill(side ticks.Side, p, q int64) router.Fill {
	return router.Fill{InstrumentID: 1, Side: side, Price: price(p), Quantity: qty(q)}
}

func TestApplyFillSameSignAdd(t *testing.T) {
	inst := linearInstrument()
	p := Position{InstrumentID: 1, Quantity: qty(10), AvgEntryPrice: price(100)}

	out := ApplyFill(p, inst, fill(ticks.Buy, 110, 10))

	if out.Quantity != qty(20) {
		t.Fatalf("Quantity = %v, want %v", out.Quantity, qty(20))
	}
	if out.AvgEntryPrice != price(105) {
		t.Fatalf("AvgEntryPrice = %v, want %v", out.AvgEntryPrice, price(105))
	}
}

// Scenario 5: position flip from long to short.
func TestApplyFillFlipLongToShort(t *testing.T) {
	inst := linearInstrument()
	p := Position{InstrumentID: 1, Quantity: qty(10), AvgEntryPrice: price(100)}

	out := ApplyFill(p, inst, fill(ticks.Sell, 120, 15))

	if out.Quantity != qty(-5) {
		t.Fatalf("Quantity = %v, want %v", out.Quantity, qty(-5))
	}
	if out.AvgEntryPrice != price(120) {
		t.Fatalf("AvgEntryPrice = %v, want %v", out.AvgEntryPrice, price(120))
	}
	want := decimal.NewFromInt((120 - 100) * 10)
	if !out.RealizedPnL.Amount.Equal(want) {
		t.Fatalf("RealizedPnL = %s, want %s", out.RealizedPnL.Amount, want)
	}
}

func TestApplyFillReduceKeepsAvg(t *testing.T) {
	inst := linearInstrument()
	p := Position{InstrumentID: 1, Quantity: qty(10), AvgEntryPrice: price(100)}

	out := ApplyFill(p, inst, fill(ticks.Sell, 110, 4))

	if out.Quantity != qty(6) {
		t.Fatalf("Quantity = %v, want %v", out.Quantity, qty(6))
	}
	if out.AvgEntryPrice != price(100) {
		t.Fatalf("AvgEntryPrice = %v, want unchanged %v", out.AvgEntryPrice, price(100))
	}
	want := decimal.NewFromInt((110 - 100) * 4)
	if !out.RealizedPnL.Amount.Equal(want) {
		t.Fatalf("RealizedPnL = %s, want %s", out.RealizedPnL.Amount, want)
	}
}

func TestApplyFillFlatResetsAvgSentinel(t *testing.T) {
	inst := linearInstrument()
	p := Position{InstrumentID: 1, Quantity: qty(10), AvgEntryPrice: price(100)}

	out := ApplyFill(p, inst, fill(ticks.Sell, 110, 10))

	if out.Quantity != 0 {
		t.Fatalf("Quantity = %v, want 0", out.Quantity)
	}
	if out.AvgEntryPrice != 0 {
		t.Fatalf("AvgEntryPrice = %v, want 0-sentinel", out.AvgEntryPrice)
	}
}

func TestBookApplyFillUnknownInstrument(t *testing.T) {
	reg := instrument.NewRegistry()
	b := NewBook(reg)
	if _, err := b.ApplyFill(fill(ticks.Buy, 1, 1)); err == nil {
		t.Fatal("expected an error for an unregistered instrument")
	}
}

func TestBookApplyFillAccumulates(t *testing.T) {
	reg := instrument.NewRegistry()
	reg.Add(linearInstrument())
	b := NewBook(reg)

	b.ApplyFill(fill(ticks.Buy, 100, 10))
	got, _ := b.ApplyFill(fill(ticks.Buy, 110, 10))

	if got.Quantity != qty(20) {
		t.Fatalf("Quantity = %v, want %v", got.Quantity, qty(20))
	}
	if b.Get(1).Quantity != qty(20) {
		t.Fatal("Get did not reflect the last ApplyFill")
	}
}

func TestLimiterRejectsOverLimit(t *testing.T) {
	l := NewLimiter()
	l.SetMaxPosition(1, 100)

	if !l.Allow(1, 50, ticks.Buy, 40) {
		t.Fatal("expected 50+40=90 <= 100 to be allowed")
	}
	if l.Allow(1, 50, ticks.Buy, 60) {
		t.Fatal("expected 50+60=110 > 100 to be rejected")
	}
}

func TestLimiterUnconfiguredInstrumentUnrestricted(t *testing.T) {
	l := NewLimiter()
	if !l.Allow(42, 1_000_000, ticks.Buy, 1_000_000) {
		t.Fatal("expected an unconfigured instrument to be unrestricted")
	}
}
