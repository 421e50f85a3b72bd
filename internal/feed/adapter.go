// Package feed defines the inbound market data contract and a
// reference WebSocket implementation.
package feed

import (
	"context"

	"github.com/web3guy0/quantoms/internal/book"
)

// ConnectionState is the connectivity fan-out event for a feed going up
// or down. cmd/oms forwards it to the Hedgers; the distributor and the
// books do not observe it.
type ConnectionState struct {
	Exchange    string
	IsConnected bool
	Reason      string
}

// MarketDataReceived wraps a normalized book.Event with the exchange it
// arrived from, so a distributor subscribing to multiple adapters can
// tell them apart without re-deriving it from InstrumentID.
type MarketDataReceived struct {
	Exchange string
	Event    book.Event
}

// Adapter is the feed contract the core consumes: connect/disconnect,
// subscribe, and three event streams. Implementations must honor the
// book.Event schema bit-for-bit — no adapter-specific shortcuts.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(exchange, productType string, symbols []string) error

	OnConnectionStateChanged(func(ConnectionState))
	OnMarketData(func(MarketDataReceived))
	OnError(func(error))
}

// Dispatcher is the common callback fan-out every Adapter embeds. It is
// not itself an Adapter — concrete adapters compose it and supply
// Connect/Disconnect/Subscribe.
type Dispatcher struct {
	connStateSubs  []func(ConnectionState)
	marketDataSubs []func(MarketDataReceived)
	errorSubs      []func(error)
}

func (d *Dispatcher) OnConnectionStateChanged(cb func(ConnectionState)) {
	d.connStateSubs = append(d.connStateSubs, cb)
}

func (d *Dispatcher) OnMarketData(cb func(MarketDataReceived)) {
	d.marketDataSubs = append(d.marketDataSubs, cb)
}

func (d *Dispatcher) OnError(cb func(error)) {
	d.errorSubs = append(d.errorSubs, cb)
}

func (d *Dispatcher) emitConnState(ev ConnectionState) {
	for _, cb := range d.connStateSubs {
		cb(ev)
	}
}

func (d *Dispatcher) emitMarketData(ev MarketDataReceived) {
	for _, cb := range d.marketDataSubs {
		cb(ev)
	}
}

func (d *Dispatcher) emitError(err error) {
	for _, cb := range d.errorSubs {
		cb(err)
	}
}
