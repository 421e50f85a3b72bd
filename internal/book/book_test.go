package book

import (
	"testing"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

func testInstrument() instrument.Instrument {
	return instrument.Instrument{
		ID:     1,
		Symbol: "BTCUSDT",
		Kind:   instrument.LinearPerpetual,
	}
}

// Scenario 1: empty-book order book.
func TestEmptyBook(t *testing.T) {
	b := New(testInstrument())
	if p, q := b.BestBid(); p != 0 || q != 0 {
		t.Errorf("BestBid on empty book = (%d,%d), want (0,0)", p, q)
	}
	if p, q := b.BestAsk(); p != 0 || q != 0 {
		t.Errorf("BestAsk on empty book = (%d,%d), want (0,0)", p, q)
	}
	if s := b.GetSpread(); s != 0 {
		t.Errorf("GetSpread on empty book = %d, want 0", s)
	}
}

// Scenario 2: bid/ask add + spread.
func TestAddBidAskSpread(t *testing.T) {
	b := New(testInstrument())
	ok := b.ApplyEvent(Event{Sequence: 1, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50000, Qty: 1},
	}})
	if !ok {
		t.Fatal("seq=1 add should apply")
	}
	ok = b.ApplyEvent(Event{Sequence: 2, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Sell, Price: 50100, Qty: 1},
	}})
	if !ok {
		t.Fatal("seq=2 add should apply")
	}

	if p, q := b.BestBid(); p != 50000 || q != 1 {
		t.Errorf("BestBid = (%d,%d), want (50000,1)", p, q)
	}
	if p, q := b.BestAsk(); p != 50100 || q != 1 {
		t.Errorf("BestAsk = (%d,%d), want (50100,1)", p, q)
	}
	if s := b.GetSpread(); s != 100 {
		t.Errorf("GetSpread = %d, want 100", s)
	}
	if m := b.GetMidPrice(); m != 50050 {
		t.Errorf("GetMidPrice = %d, want 50050", m)
	}
}

// Scenario 3: out-of-order drop.
func TestOutOfOrderDropped(t *testing.T) {
	b := New(testInstrument())
	b.ApplyEvent(Event{Sequence: 10, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50000, Qty: 1},
	}})
	ok := b.ApplyEvent(Event{Sequence: 9, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50001, Qty: 1},
	}})
	if ok {
		t.Fatal("stale sequence should be rejected")
	}
	if p, _ := b.BestBid(); p != 50000 {
		t.Errorf("BestBid after dropped stale event = %d, want 50000", p)
	}
	if b.LastSequence() != 10 {
		t.Errorf("LastSequence = %d, want 10", b.LastSequence())
	}
}

// Scenario 4: snapshot clears.
func TestSnapshotClears(t *testing.T) {
	b := New(testInstrument())
	b.ApplyEvent(Event{Sequence: 1, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 49000, Qty: 1},
	}})
	b.ApplyEvent(Event{Sequence: 2, Kind: Snapshot, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50000, Qty: 2},
		{Side: ticks.Sell, Price: 50010, Qty: 3},
	}})

	if p, q := b.BestBid(); p != 50000 || q != 2 {
		t.Errorf("BestBid after snapshot = (%d,%d), want (50000,2)", p, q)
	}
	levels := b.GetTopLevels(ticks.Buy, 10)
	for _, lvl := range levels {
		if lvl.Price == 49000 {
			t.Error("stale 49000 level survived snapshot")
		}
	}
}

func TestDeleteRemovesLevel(t *testing.T) {
	b := New(testInstrument())
	b.ApplyEvent(Event{Sequence: 1, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50000, Qty: 1},
	}})
	b.ApplyEvent(Event{Sequence: 2, Kind: Delete, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50000, Qty: 0},
	}})
	if p, q := b.BestBid(); p != 0 || q != 0 {
		t.Errorf("BestBid after delete = (%d,%d), want (0,0)", p, q)
	}
}

func TestMismatchedInstrumentDropped(t *testing.T) {
	b := New(testInstrument())
	ok := b.ApplyEvent(Event{Sequence: 1, Kind: Add, InstrumentID: 2, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 1, Qty: 1},
	}})
	if ok {
		t.Fatal("mismatched instrument id should be dropped")
	}
}

func TestIdempotentReapplySameSequence(t *testing.T) {
	b := New(testInstrument())
	e := Event{Sequence: 1, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50000, Qty: 1},
	}}
	b.ApplyEvent(e)
	if b.ApplyEvent(e) {
		t.Fatal("re-applying the same sequence must be a no-op")
	}
}

func TestValidateIntegrity(t *testing.T) {
	inst := testInstrument()
	inst.TickSize = 100
	inst.LotSize = 1
	b := New(inst)
	b.ApplyEvent(Event{Sequence: 1, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 50000, Qty: 1},
		{Side: ticks.Sell, Price: 50100, Qty: 1},
	}})
	if err := b.ValidateIntegrity(); err != nil {
		t.Errorf("ValidateIntegrity: %v", err)
	}
}

func TestGetTopLevelsOrdering(t *testing.T) {
	b := New(testInstrument())
	b.ApplyEvent(Event{Sequence: 1, Kind: Add, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 100, Qty: 1},
		{Side: ticks.Buy, Price: 300, Qty: 1},
		{Side: ticks.Buy, Price: 200, Qty: 1},
	}})
	levels := b.GetTopLevels(ticks.Buy, 3)
	want := []ticks.Price{300, 200, 100}
	for i, lvl := range levels {
		if lvl.Price != want[i] {
			t.Errorf("level[%d].Price = %d, want %d", i, lvl.Price, want[i])
		}
	}
}

func TestBestOrderBookRequiresTwoUpdates(t *testing.T) {
	b := NewBest(testInstrument())
	ok := b.ApplyEvent(Event{Sequence: 1, Kind: Update, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 100, Qty: 1},
	}})
	if ok {
		t.Fatal("BestOrderBook should reject updates without exactly 2 entries")
	}
	ok = b.ApplyEvent(Event{Sequence: 1, Kind: Update, InstrumentID: 1, Updates: []LevelUpdate{
		{Side: ticks.Buy, Price: 100, Qty: 1},
		{Side: ticks.Sell, Price: 110, Qty: 1},
	}})
	if !ok {
		t.Fatal("BestOrderBook should accept 2-entry updates")
	}
	if p, _ := b.BestBid(); p != 100 {
		t.Errorf("BestBid = %d, want 100", p)
	}
}
