package router

import (
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// OrderStatus is the lifecycle status carried on an OrderStatusReport.
// Terminal = {Filled, Cancelled, Rejected}.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPendingNew      OrderStatus = "PENDING_NEW"
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusReplaceRequest  OrderStatus = "REPLACE_REQUEST"
	StatusCancelRequest   OrderStatus = "CANCEL_REQUEST"
)

// Terminal reports whether s is one of {Filled, Cancelled, Rejected}.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// OrderStatusReport is a normalized execution report from a gateway.
type OrderStatusReport struct {
	ClientOrderID   uint64
	ExchangeOrderID string // may be empty if not yet assigned
	ExecID          string
	InstrumentID    instrument.ID
	Side            ticks.Side
	Status          OrderStatus
	Price           ticks.Price
	Quantity        ticks.Quantity
	LeavesQuantity  ticks.Quantity
	TimestampUs     int64
}

// Fill is a single execution fill, uniquely identified by
// (ExchangeOrderID, ExecID).
type Fill struct {
	InstrumentID    instrument.ID
	BookName        string
	Seq             uint64
	ExchangeOrderID string
	ExecID          string
	Side            ticks.Side
	Price           ticks.Price
	Quantity        ticks.Quantity
	TimestampUs     int64
}
