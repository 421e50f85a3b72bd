// Package fairvalue implements a fixed enum of fair-value models, each
// consuming either a full L2 book or an L1 best-only feed and emitting
// an Update when the value moves by at least one tick.
package fairvalue

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/book"
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Update is emitted whenever a provider recomputes a changed value.
// Symmetric models set FairBid == FairAsk.
type Update struct {
	InstrumentID instrument.ID
	FairBid      ticks.Price
	FairAsk      ticks.Price
}

// BookReader is the minimal read surface a provider needs — satisfied
// by both book.OrderBook (L2) and book.BestOrderBook (L1).
type BookReader interface {
	BestBid() (ticks.Price, ticks.Quantity)
	BestAsk() (ticks.Price, ticks.Quantity)
}

// LadderReader additionally exposes depth, needed by VwapMidp and
// OrderBookImbalance; only book.OrderBook satisfies it.
type LadderReader interface {
	BookReader
	GetTopLevels(side ticks.Side, depth int) []book.Level
	GetMidPrice() ticks.Price
}

// Provider is one enum-tagged struct with a single Compute method,
// standing in for what would otherwise be a dynamic-dispatch interface
// hierarchy with one implementation per model.
type Provider struct {
	kind Kind

	instrumentID instrument.ID
	last         Update
	hasLast      bool

	// OrderBookImbalance
	imbalanceBandBps int64
	// GroupedMidp
	grouped groupedState
	// Penalty (stateful)
	penalty penaltyState
}

// Kind discriminates the set of supported fair-value models.
type Kind int

const (
	Midp Kind = iota
	BestMidp
	OppositeBest
	GroupedMidp
	VwapMidp
	OrderBookImbalance
	Penalty
)

// New creates a Provider for instrumentID using the simple models that
// need no extra configuration (Midp, BestMidp, OppositeBest,
// GroupedMidp, VwapMidp).
func New(kind Kind, instrumentID instrument.ID) *Provider {
	return &Provider{kind: kind, instrumentID: instrumentID}
}

// NewGroupedMidp creates a GroupedMidp provider that groups to multiples
// of tickSize.
func NewGroupedMidp(instrumentID instrument.ID, tickSize ticks.Price) *Provider {
	return &Provider{kind: GroupedMidp, instrumentID: instrumentID, grouped: groupedState{tickSize: tickSize}}
}

// NewOrderBookImbalance creates an OrderBookImbalance provider with a
// ±bandBps window around mid.
func NewOrderBookImbalance(instrumentID instrument.ID, bandBps int64) *Provider {
	return &Provider{kind: OrderBookImbalance, instrumentID: instrumentID, imbalanceBandBps: bandBps}
}

// NewPenalty creates a stateful Penalty provider.
func NewPenalty(instrumentID instrument.ID, expandMultiplier, shrinkMultiplier decimal.Decimal) *Provider {
	return &Provider{
		kind:         Penalty,
		instrumentID: instrumentID,
		penalty:      penaltyState{expandMultiplier: expandMultiplier, shrinkMultiplier: shrinkMultiplier},
	}
}

// Compute evaluates the provider's model against reader. ok is false
// when the model needs data the book doesn't yet have (empty side) or
// the result hasn't changed by at least one tick since the last call —
// providers emit only when the value changed by at least one tick.
func (p *Provider) Compute(reader BookReader) (Update, bool) {
	var u Update
	var ready bool

	switch p.kind {
	case Midp, BestMidp:
		u, ready = p.midp(reader)
	case OppositeBest:
		u, ready = p.oppositeBest(reader)
	case GroupedMidp:
		u, ready = p.groupedMidp(reader)
	case VwapMidp:
		ladder, ok := reader.(LadderReader)
		if !ok {
			return Update{}, false
		}
		u, ready = p.vwapMidp(ladder)
	case OrderBookImbalance:
		ladder, ok := reader.(LadderReader)
		if !ok {
			return Update{}, false
		}
		u, ready = p.orderBookImbalance(ladder)
	case Penalty:
		u, ready = p.penaltyUpdate(reader)
	}
	if !ready {
		return Update{}, false
	}
	u.InstrumentID = p.instrumentID

	if p.hasLast && p.last.FairBid == u.FairBid && p.last.FairAsk == u.FairAsk {
		return Update{}, false
	}
	p.last = u
	p.hasLast = true
	return u, true
}

func (p *Provider) midp(reader BookReader) (Update, bool) {
	bidPrice, bidQty := reader.BestBid()
	askPrice, askQty := reader.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return Update{}, false
	}
	mid := (bidPrice + askPrice) / 2
	return Update{FairBid: mid, FairAsk: mid}, true
}

func (p *Provider) oppositeBest(reader BookReader) (Update, bool) {
	bidPrice, bidQty := reader.BestBid()
	askPrice, askQty := reader.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return Update{}, false
	}
	// Deliberately swapped: fair_bid pegs to the ask, fair_ask to the
	// bid, for make-aggressive strategies.
	return Update{FairBid: askPrice, FairAsk: bidPrice}, true
}
