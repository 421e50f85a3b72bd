// Package router implements the Order Router — the single point through
// which every exchange execution report is looked up by client or
// exchange order id, applied to its owning order, and fanned out as a
// global OrderStatusChanged / OrderFilled event.
package router

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/errs"
)

// Routable is the minimal surface the router needs from an order. The
// order package implements it; router never imports order, avoiding a
// dependency cycle (order already depends on router for registration).
type Routable interface {
	ClientOrderID() uint64
	OnStatusReportReceived(r OrderStatusReport) ReportOutcome
}

// ReportOutcome tells the router what happened inside the order as a
// result of applying a report, so the router — not the order — is the
// one place that raises the global OrderStatusChanged/OrderFilled
// events.
type ReportOutcome struct {
	StatusChanged bool
	NewStatus     OrderStatus
	Fill          *Fill
	Terminal      bool
}

// StatusChangedEvent is broadcast whenever RouteReport causes an order's
// status to change.
type StatusChangedEvent struct {
	ClientOrderID uint64
	Status        OrderStatus
}

// FilledEvent is broadcast whenever RouteReport causes a fill.
type FilledEvent struct {
	ClientOrderID uint64
	Fill          Fill
}

// Router is the client_order_id → Order registry, plus a secondary
// exchange_order_id → client_order_id index for gateways that only know
// their own venue id until the first ack arrives.
type Router struct {
	mu           sync.RWMutex
	byClientID   map[uint64]Routable
	byExchangeID map[string]uint64

	subsMu     sync.Mutex
	statusSubs []func(StatusChangedEvent)
	filledSubs []func(FilledEvent)
}

// New creates an empty Router.
func New() *Router {
	return &Router{
		byClientID:   make(map[uint64]Routable),
		byExchangeID: make(map[string]uint64),
	}
}

// RegisterOrder adds o to the registry, keyed by its client order id. A
// second registration for the same id overwrites the first — callers
// are expected to deregister terminal orders before reusing an id.
func (r *Router) RegisterOrder(o Routable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byClientID[o.ClientOrderID()] = o
}

// MapExchangeIDToClientID records that exchangeOrderID belongs to
// clientOrderID, so a later report carrying only the exchange id can
// still be routed.
func (r *Router) MapExchangeIDToClientID(exchangeOrderID string, clientOrderID uint64) {
	if exchangeOrderID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExchangeID[exchangeOrderID] = clientOrderID
}

// DeregisterOrder removes clientOrderID (and any exchange id mapped to
// it) from the registry. Called once an order reaches a terminal
// status and no further reports are expected.
func (r *Router) DeregisterOrder(clientOrderID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byClientID, clientOrderID)
	for exID, cID := range r.byExchangeID {
		if cID == clientOrderID {
			delete(r.byExchangeID, exID)
		}
	}
}

// ActiveOrders returns a snapshot of every order currently registered
// (i.e. not yet in a terminal status), for the control protocol's
// GET_ACTIVE_ORDERS command.
func (r *Router) ActiveOrders() []Routable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Routable, 0, len(r.byClientID))
	for _, o := range r.byClientID {
		out = append(out, o)
	}
	return out
}

// OnStatusChanged registers cb to be called for every StatusChangedEvent.
func (r *Router) OnStatusChanged(cb func(StatusChangedEvent)) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.statusSubs = append(r.statusSubs, cb)
}

// OnOrderFilled registers cb to be called for every FilledEvent.
func (r *Router) OnOrderFilled(cb func(FilledEvent)) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.filledSubs = append(r.filledSubs, cb)
}

// RouteReport looks up the owning order — by client order id if set,
// else via the exchange order id secondary index — applies the report,
// and raises StatusChanged / OrderFilled as the outcome dictates. A
// report that matches no registered order is dropped and logged as an
// ErrInputInvalid condition: this is expected on
// duplicate or late-arriving acks for an order already deregistered.
func (r *Router) RouteReport(report OrderStatusReport) error {
	order, ok := r.resolve(report)
	if !ok {
		log.Warn().
			Uint64("client_order_id", report.ClientOrderID).
			Str("exchange_order_id", report.ExchangeOrderID).
			Msg("router: report matched no registered order")
		return errs.ErrInputInvalid
	}

	if report.ExchangeOrderID != "" {
		r.MapExchangeIDToClientID(report.ExchangeOrderID, order.ClientOrderID())
	}

	outcome := order.OnStatusReportReceived(report)

	if outcome.StatusChanged {
		r.emitStatusChanged(StatusChangedEvent{ClientOrderID: order.ClientOrderID(), Status: outcome.NewStatus})
	}
	if outcome.Fill != nil {
		r.emitFilled(FilledEvent{ClientOrderID: order.ClientOrderID(), Fill: *outcome.Fill})
	}
	if outcome.Terminal {
		r.DeregisterOrder(order.ClientOrderID())
	}
	return nil
}

func (r *Router) resolve(report OrderStatusReport) (Routable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if report.ClientOrderID != 0 {
		if o, ok := r.byClientID[report.ClientOrderID]; ok {
			return o, true
		}
	}
	if report.ExchangeOrderID != "" {
		if cID, ok := r.byExchangeID[report.ExchangeOrderID]; ok {
			if o, ok := r.byClientID[cID]; ok {
				return o, true
			}
		}
	}
	return nil, false
}

func (r *Router) emitStatusChanged(e StatusChangedEvent) {
	r.subsMu.Lock()
	subs := make([]func(StatusChangedEvent), len(r.statusSubs))
	copy(subs, r.statusSubs)
	r.subsMu.Unlock()
	for _, cb := range subs {
		cb(e)
	}
}

func (r *Router) emitFilled(e FilledEvent) {
	r.subsMu.Lock()
	subs := make([]func(FilledEvent), len(r.filledSubs))
	copy(subs, r.filledSubs)
	r.subsMu.Unlock()
	for _, cb := range subs {
		cb(e)
	}
}
