package ticks

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceRoundTrip(t *testing.T) {
	cases := []string{"50000", "50000.1234", "0.0001", "-12.5", "0"}
	for _, c := range cases {
		d, err := decimal.NewFromString(c)
		if err != nil {
			t.Fatalf("bad fixture %q: %v", c, err)
		}
		got := FromDecimal(d).ToDecimal()
		want := d.Round(4)
		if !got.Equal(want) {
			t.Errorf("FromDecimal(%s).ToDecimal() = %s, want %s", c, got, want)
		}
	}
}

func TestRoundDownUpToTick(t *testing.T) {
	tick := Price(100) // 0.01 at scale 10000
	if got := RoundDownToTick(1050, tick); got != 1000 {
		t.Errorf("RoundDownToTick(1050,100) = %d, want 1000", got)
	}
	if got := RoundUpToTick(1050, tick); got != 1100 {
		t.Errorf("RoundUpToTick(1050,100) = %d, want 1100", got)
	}
	if got := RoundDownToTick(1000, tick); got != 1000 {
		t.Errorf("RoundDownToTick(1000,100) = %d, want 1000 (already aligned)", got)
	}
}

func TestFloorToLot(t *testing.T) {
	lot := Quantity(500)
	if got := FloorToLot(1249, lot); got != 1000 {
		t.Errorf("FloorToLot(1249,500) = %d, want 1000", got)
	}
}

func TestCurrencyIntern(t *testing.T) {
	a := Intern("btc")
	b := Intern("BTC")
	if a != b {
		t.Errorf("Intern is not case-insensitive: %v != %v", a, b)
	}
	if a.String() != "BTC" {
		t.Errorf("expected uppercase symbol, got %s", a.String())
	}
}

func TestCurrencyAmountAddPanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic adding mismatched currencies")
		}
	}()
	a := NewCurrencyAmount(decimal.NewFromInt(1), Intern("BTC"))
	b := NewCurrencyAmount(decimal.NewFromInt(1), Intern("USDT"))
	_ = a.Add(b)
}

func TestSideSignAndOpposite(t *testing.T) {
	if Buy.Sign() != 1 || Sell.Sign() != -1 {
		t.Fatal("unexpected side sign")
	}
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Fatal("unexpected side opposite")
	}
}
