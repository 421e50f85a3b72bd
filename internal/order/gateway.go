package order

import (
	"context"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// NewOrderRequest is sent to a Gateway on submit.
type NewOrderRequest struct {
	ClientOrderID uint64
	InstrumentID  instrument.ID
	Side          ticks.Side
	Price         ticks.Price
	Quantity      ticks.Quantity
	PostOnly      bool
}

// ReplaceOrderRequest asks the gateway to move an order to a new price,
// preserving quantity — the only kind of replace allowed through the
// public contract.
type ReplaceOrderRequest struct {
	ClientOrderID   uint64
	ExchangeOrderID string
	NewPrice        ticks.Price
}

// CancelOrderRequest asks the gateway to cancel an open order.
type CancelOrderRequest struct {
	ClientOrderID   uint64
	ExchangeOrderID string
}

// BulkCancelOrdersRequest cancels a batch of orders in one RPC, used by
// the best-effort shutdown path.
type BulkCancelOrdersRequest struct {
	Requests []CancelOrderRequest
}

// OrderModificationResult is the per-order outcome of a bulk cancel.
type OrderModificationResult struct {
	ClientOrderID uint64
	Success       bool
	Err           error
}

// Gateway is the outbound RPC surface an Order needs. Defined here, at
// the consumer, per Go convention — internal/gateway's PaperGateway and
// any live venue adapter implement it without either package importing
// the other.
//
// A gateway whose venue has no atomic replace returns false from
// SupportsOrderReplacement; Order then emulates Replace as cancel+new.
type Gateway interface {
	SubmitOrder(ctx context.Context, req NewOrderRequest) error
	ReplaceOrder(ctx context.Context, req ReplaceOrderRequest) error
	CancelOrder(ctx context.Context, req CancelOrderRequest) error
	BulkCancelOrders(ctx context.Context, req BulkCancelOrdersRequest) []OrderModificationResult
	SupportsOrderReplacement() bool
}
