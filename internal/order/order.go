// Package order implements the per-order state machine and its
// self-repricing AlgoOrder extension.
package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/errs"
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Order is a single working order. It satisfies router.Routable: the
// router delivers every execution report for this order's client or
// exchange id to OnStatusReportReceived, single-threaded, in sequence.
//
// mu is the order's state lock: it serializes
// OnStatusReportReceived against Submit/Replace/Cancel so the FSM never
// observes a torn transition, without itself doing any blocking I/O
// while held.
type Order struct {
	mu sync.Mutex

	clientOrderID   uint64
	instrumentID    instrument.ID
	bookName        string
	side            ticks.Side
	price           ticks.Price
	quantity        ticks.Quantity
	leavesQuantity  ticks.Quantity
	postOnly        bool
	exchangeOrderID string

	status       router.OrderStatus
	latestReport *router.OrderStatusReport
	seenExecIDs  map[string]struct{}
	fillSeq      uint64

	gateway Gateway
	rtr     *router.Router

	// ackCh resolves Submit: closed-over error delivered by the first
	// report that moves status out of PendingNew.
	ackCh chan error
	// resolveCh resolves an in-flight Replace/Cancel the same way.
	resolveCh chan error

	statusSubs []func(router.StatusChangedEvent)
	fillSubs   []func(router.FilledEvent)
}

// Builder constructs an Order, wiring status/fill subscribers before the
// order is registered with the router — so there is no window in which
// a report could arrive and find no listener attached.
type Builder struct {
	o *Order
}

// NewBuilder starts building an order for instrumentID, owned by
// gateway and routed through rtr.
func NewBuilder(clientOrderID uint64, instrumentID instrument.ID, gateway Gateway, rtr *router.Router) *Builder {
	return &Builder{o: &Order{
		clientOrderID: clientOrderID,
		instrumentID:  instrumentID,
		gateway:       gateway,
		rtr:           rtr,
		status:        router.StatusPending,
		seenExecIDs:   make(map[string]struct{}),
	}}
}

func (b *Builder) BookName(name string) *Builder          { b.o.bookName = name; return b }
func (b *Builder) Side(s ticks.Side) *Builder             { b.o.side = s; return b }
func (b *Builder) Price(p ticks.Price) *Builder           { b.o.price = p; return b }
func (b *Builder) Quantity(q ticks.Quantity) *Builder     { b.o.quantity, b.o.leavesQuantity = q, q; return b }
func (b *Builder) PostOnly(v bool) *Builder               { b.o.postOnly = v; return b }
func (b *Builder) OnStatusChanged(cb func(router.StatusChangedEvent)) *Builder {
	b.o.statusSubs = append(b.o.statusSubs, cb)
	return b
}
func (b *Builder) OnFilled(cb func(router.FilledEvent)) *Builder {
	b.o.fillSubs = append(b.o.fillSubs, cb)
	return b
}

// Build finalizes the order and registers it with the router.
func (b *Builder) Build() *Order {
	o := b.o
	o.rtr.RegisterOrder(o)
	return o
}

func (o *Order) ClientOrderID() uint64       { return o.clientOrderID }
func (o *Order) ExchangeOrderID() string     { return o.exchangeOrderID }
func (o *Order) InstrumentID() instrument.ID { return o.instrumentID }
func (o *Order) Side() ticks.Side            { return o.side }

// Status returns the current FSM status under the state lock.
func (o *Order) Status() router.OrderStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Price returns the order's current working price under the state lock.
func (o *Order) Price() ticks.Price {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.price
}

// LeavesQuantity returns the remaining unfilled quantity.
func (o *Order) LeavesQuantity() ticks.Quantity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leavesQuantity
}

// Submit sends a NewOrderRequest and blocks until the router delivers
// the first report resolving PendingNew (New or Rejected), or ctx is
// done.
func (o *Order) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.status != router.StatusPending {
		o.mu.Unlock()
		return fmt.Errorf("order: submit called from status %s: %w", o.status, errs.ErrStateViolation)
	}
	o.status = router.StatusPendingNew
	o.ackCh = make(chan error, 1)
	req := NewOrderRequest{
		ClientOrderID: o.clientOrderID,
		InstrumentID:  o.instrumentID,
		Side:          o.side,
		Price:         o.price,
		Quantity:      o.quantity,
		PostOnly:      o.postOnly,
	}
	ack := o.ackCh
	o.mu.Unlock()

	if err := o.gateway.SubmitOrder(ctx, req); err != nil {
		return fmt.Errorf("order: gateway submit: %w: %w", errs.ErrTransientRPC, err)
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replace asks the gateway to move the order to newPrice, quantity
// unchanged, and blocks until a resolving report arrives. On a gateway
// with no atomic replace the move is emulated as cancel+new.
func (o *Order) Replace(ctx context.Context, newPrice ticks.Price) error {
	if !o.gateway.SupportsOrderReplacement() {
		return o.replaceByCancelNew(ctx, newPrice)
	}

	o.mu.Lock()
	if o.status != router.StatusNew && o.status != router.StatusPartiallyFilled {
		o.mu.Unlock()
		return fmt.Errorf("order: replace called from status %s: %w", o.status, errs.ErrStateViolation)
	}
	prevStatus := o.status
	o.status = router.StatusReplaceRequest
	o.resolveCh = make(chan error, 1)
	req := ReplaceOrderRequest{
		ClientOrderID:   o.clientOrderID,
		ExchangeOrderID: o.exchangeOrderID,
		NewPrice:        newPrice,
	}
	resolve := o.resolveCh
	o.mu.Unlock()

	if err := o.gateway.ReplaceOrder(ctx, req); err != nil {
		o.mu.Lock()
		o.status = prevStatus
		o.mu.Unlock()
		return fmt.Errorf("order: gateway replace: %w: %w", errs.ErrTransientRPC, err)
	}

	select {
	case err := <-resolve:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// replaceByCancelNew emulates an atomic replace on venues without one:
// cancel the working order, then re-submit its unfilled remainder at
// the new price under the same client order id. The order leaves the
// router registry when the cancel lands terminal, so it re-registers
// before the second submit.
func (o *Order) replaceByCancelNew(ctx context.Context, newPrice ticks.Price) error {
	o.mu.Lock()
	if o.status != router.StatusNew && o.status != router.StatusPartiallyFilled {
		o.mu.Unlock()
		return fmt.Errorf("order: replace called from status %s: %w", o.status, errs.ErrStateViolation)
	}
	leaves := o.leavesQuantity
	o.mu.Unlock()

	if err := o.Cancel(ctx); err != nil {
		return fmt.Errorf("order: replace emulation cancel: %w", err)
	}

	o.mu.Lock()
	if o.status != router.StatusCancelled {
		status := o.status
		o.mu.Unlock()
		return fmt.Errorf("order: replace emulation found status %s after cancel: %w", status, errs.ErrStateViolation)
	}
	o.status = router.StatusPendingNew
	o.price = newPrice
	o.quantity = leaves
	o.leavesQuantity = leaves
	o.exchangeOrderID = ""
	o.ackCh = make(chan error, 1)
	req := NewOrderRequest{
		ClientOrderID: o.clientOrderID,
		InstrumentID:  o.instrumentID,
		Side:          o.side,
		Price:         o.price,
		Quantity:      o.quantity,
		PostOnly:      o.postOnly,
	}
	ack := o.ackCh
	o.mu.Unlock()

	o.rtr.RegisterOrder(o)

	if err := o.gateway.SubmitOrder(ctx, req); err != nil {
		return fmt.Errorf("order: replace emulation submit: %w: %w", errs.ErrTransientRPC, err)
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel sends a CancelOrderRequest. Idempotent once already in
// CancelRequest or a terminal status.
func (o *Order) Cancel(ctx context.Context) error {
	o.mu.Lock()
	if o.status.Terminal() || o.status == router.StatusCancelRequest {
		o.mu.Unlock()
		return nil
	}
	o.status = router.StatusCancelRequest
	o.resolveCh = make(chan error, 1)
	req := CancelOrderRequest{ClientOrderID: o.clientOrderID, ExchangeOrderID: o.exchangeOrderID}
	resolve := o.resolveCh
	o.mu.Unlock()

	if err := o.gateway.CancelOrder(ctx, req); err != nil {
		return fmt.Errorf("order: gateway cancel: %w: %w", errs.ErrTransientRPC, err)
	}

	select {
	case err := <-resolve:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnStatusReportReceived applies r to the FSM. It is invoked only by the
// router's single-threaded report dispatch. Status and fill subscribers
// run after the state lock is released, so they may call back into the
// order.
func (o *Order) OnStatusReportReceived(r router.OrderStatusReport) router.ReportOutcome {
	o.mu.Lock()

	if o.exchangeOrderID == "" && r.ExchangeOrderID != "" {
		o.exchangeOrderID = r.ExchangeOrderID
	} else if o.exchangeOrderID != "" && r.ExchangeOrderID != "" && r.ExchangeOrderID != o.exchangeOrderID {
		log.Error().
			Uint64("client_order_id", o.clientOrderID).
			Str("assigned", o.exchangeOrderID).
			Str("reported", r.ExchangeOrderID).
			Msg("order: exchange id changed after assignment, ignoring report")
		o.mu.Unlock()
		return router.ReportOutcome{}
	}

	if r.LeavesQuantity > o.leavesQuantity && o.latestReport != nil {
		log.Warn().
			Uint64("client_order_id", o.clientOrderID).
			Msg("order: leaves_quantity increased, violates non-increasing invariant")
	}

	var fill *router.Fill
	if r.ExecID != "" {
		if _, seen := o.seenExecIDs[r.ExecID]; !seen {
			o.seenExecIDs[r.ExecID] = struct{}{}
			fillQty := o.leavesQuantity - r.LeavesQuantity
			if fillQty > 0 {
				o.fillSeq++
				fill = &router.Fill{
					InstrumentID:    o.instrumentID,
					BookName:        o.bookName,
					Seq:             o.fillSeq,
					ExchangeOrderID: o.exchangeOrderID,
					ExecID:          r.ExecID,
					Side:            o.side,
					Price:           r.Price,
					Quantity:        fillQty,
					TimestampUs:     r.TimestampUs,
				}
			}
		}
	}

	oldStatus := o.status
	o.leavesQuantity = r.LeavesQuantity
	o.status = r.Status
	o.latestReport = &r
	statusChanged := oldStatus != o.status

	if o.ackCh != nil && oldStatus == router.StatusPendingNew {
		var err error
		if o.status == router.StatusRejected {
			err = fmt.Errorf("order: rejected: %w", errs.ErrStateViolation)
		}
		o.ackCh <- err
		close(o.ackCh)
		o.ackCh = nil
	}
	if o.resolveCh != nil && (oldStatus == router.StatusReplaceRequest || oldStatus == router.StatusCancelRequest) {
		var err error
		switch oldStatus {
		case router.StatusReplaceRequest:
			if o.status == router.StatusRejected {
				err = fmt.Errorf("order: replace rejected: %w", errs.ErrStateViolation)
			} else {
				o.price = r.Price
			}
		case router.StatusCancelRequest:
			if o.status != router.StatusCancelled {
				err = fmt.Errorf("order: cancel did not resolve to cancelled: %w", errs.ErrStateViolation)
			}
		}
		o.resolveCh <- err
		close(o.resolveCh)
		o.resolveCh = nil
	}

	status := o.status
	statusSubs, fillSubs := o.statusSubs, o.fillSubs
	o.mu.Unlock()

	if statusChanged {
		for _, cb := range statusSubs {
			cb(router.StatusChangedEvent{ClientOrderID: o.clientOrderID, Status: status})
		}
	}
	if fill != nil {
		for _, cb := range fillSubs {
			cb(router.FilledEvent{ClientOrderID: o.clientOrderID, Fill: *fill})
		}
	}

	return router.ReportOutcome{
		StatusChanged: statusChanged,
		NewStatus:     status,
		Fill:          fill,
		Terminal:      status.Terminal(),
	}
}
