package book

import (
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// BestOrderBook is the degenerate L1 variant driven by a bookTicker-style
// feed: only the two top-of-book entries are tracked. ApplyEvent expects
// exactly two updates (one bid, one ask)
type BestOrderBook struct {
	Instrument instrument.Instrument

	bidPrice ticks.Price
	bidQty   ticks.Quantity
	askPrice ticks.Price
	askQty   ticks.Quantity

	lastSequence uint64
	updateCount  uint64
	lastTsUs     int64
}

// NewBest creates an empty L1 book for inst.
func NewBest(inst instrument.Instrument) *BestOrderBook {
	return &BestOrderBook{Instrument: inst}
}

// ApplyEvent requires e.Updates to carry exactly two level updates, one
// per side; any other shape is dropped and ApplyEvent returns false.
func (b *BestOrderBook) ApplyEvent(e Event) bool {
	if e.InstrumentID != b.Instrument.ID {
		return false
	}
	if e.Sequence <= b.lastSequence {
		return false
	}
	if len(e.Updates) != 2 {
		return false
	}
	if e.Updates[0].Side == e.Updates[1].Side {
		return false
	}

	for _, u := range e.Updates {
		if u.Side == ticks.Buy {
			b.bidPrice, b.bidQty = u.Price, u.Qty
		} else {
			b.askPrice, b.askQty = u.Price, u.Qty
		}
	}

	b.lastSequence = e.Sequence
	b.updateCount++
	b.lastTsUs = e.TimestampUs
	return true
}

func (b *BestOrderBook) BestBid() (ticks.Price, ticks.Quantity) { return b.bidPrice, b.bidQty }
func (b *BestOrderBook) BestAsk() (ticks.Price, ticks.Quantity) { return b.askPrice, b.askQty }

func (b *BestOrderBook) GetSpread() ticks.Price {
	if b.bidQty.Zero() || b.askQty.Zero() {
		return 0
	}
	return b.askPrice - b.bidPrice
}

func (b *BestOrderBook) GetMidPrice() ticks.Price {
	if b.bidQty.Zero() || b.askQty.Zero() {
		return 0
	}
	return (b.bidPrice + b.askPrice) / 2
}

func (b *BestOrderBook) LastSequence() uint64 { return b.lastSequence }
func (b *BestOrderBook) UpdateCount() uint64  { return b.updateCount }
