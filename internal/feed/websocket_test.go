package feed

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

func testRegistry() *instrument.Registry {
	r := instrument.NewRegistry()
	r.Add(instrument.Instrument{
		Symbol:       "BTCUSDT",
		Kind:         instrument.LinearPerpetual,
		BaseCurrency: ticks.Intern("BTC"),
	})
	return r
}

func TestToEventSnapshotResolvesSymbolAndSides(t *testing.T) {
	a := NewWebSocketAdapter("binance", "wss://example.invalid", testRegistry())

	msg := wireMessage{
		EventType: "snapshot",
		Symbol:    "BTCUSDT",
		Sequence:  42,
		Bids:      [][]string{{"100.5", "1.25"}},
		Asks:      [][]string{{"100.6", "2"}},
	}

	ev, ok := a.toEvent(msg)
	if !ok {
		t.Fatal("expected toEvent to succeed for a known symbol")
	}
	if ev.Sequence != 42 {
		t.Fatalf("sequence = %d, want 42", ev.Sequence)
	}
	if len(ev.Updates) != 2 {
		t.Fatalf("updates = %d, want 2 (one bid, one ask)", len(ev.Updates))
	}
	if ev.Updates[0].Side != ticks.Buy || ev.Updates[1].Side != ticks.Sell {
		t.Fatalf("updates sides = %v, %v, want Buy then Sell", ev.Updates[0].Side, ev.Updates[1].Side)
	}
	wantBidPrice := ticks.FromDecimal(decimal.NewFromFloat(100.5))
	if ev.Updates[0].Price != wantBidPrice {
		t.Fatalf("bid price = %v, want %v", ev.Updates[0].Price, wantBidPrice)
	}
}

func TestToEventUnknownSymbolEmitsError(t *testing.T) {
	a := NewWebSocketAdapter("binance", "wss://example.invalid", testRegistry())

	var gotErr error
	a.OnError(func(err error) { gotErr = err })

	_, ok := a.toEvent(wireMessage{EventType: "snapshot", Symbol: "DOESNOTEXIST"})
	if ok {
		t.Fatal("expected toEvent to fail for an unregistered symbol")
	}
	if gotErr == nil {
		t.Fatal("expected OnError to fire for an unknown symbol")
	}
}

func TestToEventTradeParsesPriceAndQty(t *testing.T) {
	a := NewWebSocketAdapter("binance", "wss://example.invalid", testRegistry())

	ev, ok := a.toEvent(wireMessage{
		EventType: "trade",
		Symbol:    "BTCUSDT",
		Side:      "sell",
		Price:     "99.9",
		Qty:       "0.5",
	})
	if !ok {
		t.Fatal("expected a trade event to parse")
	}
	if len(ev.Updates) != 1 || ev.Updates[0].Side != ticks.Sell {
		t.Fatalf("trade update = %+v, want a single Sell update", ev.Updates)
	}
}
