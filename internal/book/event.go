// Package book implements the L2 order book: tick-quantized, single-writer,
// sequence-gap disciplined, with snapshot/delta reconciliation.
package book

import (
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// EventKind discriminates a MarketDataEvent.
type EventKind int

const (
	Snapshot EventKind = iota
	Add
	Update
	Delete
	Trade
)

func (k EventKind) String() string {
	switch k {
	case Snapshot:
		return "SNAPSHOT"
	case Add:
		return "ADD"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case Trade:
		return "TRADE"
	default:
		return "UNKNOWN"
	}
}

// LevelUpdate is one {side, price, qty} mutation within an event. A
// qty of zero on Delete means "remove this level."
type LevelUpdate struct {
	Side  ticks.Side
	Price ticks.Price
	Qty   ticks.Quantity
}

// Event is a normalized market data event.
// Sequences are per-(exchange, instrument) monotonic.
type Event struct {
	Sequence       uint64
	TimestampUs    int64
	Kind           EventKind
	InstrumentID   instrument.ID
	SourceExchange string
	Updates        []LevelUpdate
}
