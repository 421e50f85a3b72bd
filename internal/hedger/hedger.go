// Package hedger implements a continuous pending-exposure flattener
// that turns fills on a quoting instrument into sliced child orders on
// a (possibly cross-currency, cross-contract-multiplier) hedge
// instrument.
package hedger

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/order"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// oneUnit is "1.0" of an instrument's native quantity, expressed in the
// scaled tick domain — used to ask an instrument for its value per
// single unit.
var oneUnit = ticks.Quantity(ticks.Scale)

// Parameters configures a Hedger's hedging behavior.
type Parameters struct {
	QuoterType order.Strategy
	SliceSize  ticks.Quantity
}

var clientOrderIDSeq atomic.Uint64

func nextClientOrderID() uint64 { return clientOrderIDSeq.Add(1) }

// Hedger is created and registered per (quoting_instrument,
// hedge_instrument, parameters). It subscribes to fills on the quoting
// leg and keeps the hedge leg's net exposure flat via sliced
// AlgoOrders, using intention-based accounting so a quantity is
// subtracted from the pending counter the instant a child order is
// submitted, not when it later fills.
type Hedger struct {
	quotingInst instrument.Instrument
	hedgeInst   instrument.Instrument
	params      Parameters

	fx      *FXService
	gateway order.Gateway
	rtr     *router.Router
	book    order.BookReader

	active atomic.Bool // activation preconditions + feed connectivity

	// preconditionsOK is set once in New; a hedger that failed its
	// activation preconditions stays inactive through every
	// reconnection.
	preconditionsOK bool

	// pendingLock guards pending. Acquired before stateLock; never held
	// across an RPC.
	pendingLock sync.Mutex
	pending     ticks.Quantity // signed: positive = must buy, negative = must sell

	// stateLock guards activeOrder, the at-most-one outstanding child.
	stateLock   sync.Mutex
	activeOrder *order.AlgoOrder

	midLock sync.Mutex
	mid     ticks.Price
}

// New creates a Hedger for quotingInst/hedgeInst. Activation
// preconditions are checked once here; a violation logs
// a warning and leaves the Hedger permanently inactive rather than
// returning an error, matching "warn-and-no-op if violated".
func New(quotingInst, hedgeInst instrument.Instrument, params Parameters, fx *FXService, gateway order.Gateway, rtr *router.Router, hedgeBook order.BookReader) *Hedger {
	h := &Hedger{
		quotingInst: quotingInst,
		hedgeInst:   hedgeInst,
		params:      params,
		fx:          fx,
		gateway:     gateway,
		rtr:         rtr,
		book:        hedgeBook,
	}

	if !supportedCurrency(quotingInst.DenominationCurrency()) || !supportedCurrency(hedgeInst.DenominationCurrency()) {
		log.Warn().
			Str("quoting_symbol", quotingInst.Symbol).
			Str("hedge_symbol", hedgeInst.Symbol).
			Msg("hedger: denomination currency outside {BTC, USDT}, staying inactive")
		return h
	}
	if quotingInst.BaseCurrency != hedgeInst.BaseCurrency {
		log.Warn().
			Str("quoting_symbol", quotingInst.Symbol).
			Str("hedge_symbol", hedgeInst.Symbol).
			Msg("hedger: base currency mismatch between quoting and hedge legs, staying inactive")
		return h
	}

	h.preconditionsOK = true
	h.active.Store(true)
	return h
}

func supportedCurrency(c ticks.Currency) bool {
	return c == ticks.Intern("BTC") || c == ticks.Intern("USDT")
}

// Active reports whether the hedger is currently allowed to act.
func (h *Hedger) Active() bool { return h.active.Load() }

// QuotingInstrumentID returns the instrument whose fills feed this
// hedger's pending-exposure accumulator.
func (h *Hedger) QuotingInstrumentID() instrument.ID { return h.quotingInst.ID }

// HedgeInstrumentID returns the instrument this hedger flattens exposure
// on via sliced child orders.
func (h *Hedger) HedgeInstrumentID() instrument.ID { return h.hedgeInst.ID }

// Deactivate stops all hedging activity, per "auto-deactivates on
// disconnection of the hedge exchange".
func (h *Hedger) Deactivate() {
	h.active.Store(false)
	log.Warn().Str("hedge_symbol", h.hedgeInst.Symbol).Msg("hedger: deactivated")
}

// Reactivate resumes hedging activity, per "auto-reactivates on
// reconnection", and immediately re-checks for pending work. A hedger
// that never passed its activation preconditions stays inactive.
func (h *Hedger) Reactivate(ctx context.Context) {
	if !h.preconditionsOK {
		return
	}
	h.active.Store(true)
	log.Info().Str("hedge_symbol", h.hedgeInst.Symbol).Msg("hedger: reactivated")
	go h.checkAndStartHedge(ctx)
}

// Pending returns the current signed pending hedge quantity.
func (h *Hedger) Pending() ticks.Quantity {
	h.pendingLock.Lock()
	defer h.pendingLock.Unlock()
	return h.pending
}

func absQty(q ticks.Quantity) ticks.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// OnQuotingFill converts the fill's notional into a hedge-leg quantity
// need and accumulates it, then schedules a slice check. needSign is
// −sign(fill.side): a buy on the quoting leg creates a need to sell on
// the hedge leg.
func (h *Hedger) OnQuotingFill(ctx context.Context, fill router.Fill) {
	if !h.active.Load() {
		return
	}

	needSign := -fill.Side.Sign()
	notional := h.quotingInst.ValueInDenom(fill.Price, fill.Quantity)

	converted, ok := h.fx.Convert(notional, h.hedgeInst.DenominationCurrency())
	if !ok {
		log.Warn().
			Str("quoting_symbol", h.quotingInst.Symbol).
			Str("hedge_symbol", h.hedgeInst.Symbol).
			Msg("hedger: fx conversion unsupported, suppressing accumulation")
		return
	}

	mid := h.cachedMid()
	unitValue := h.hedgeInst.ValueInDenom(mid, oneUnit)
	if unitValue.Amount.IsZero() {
		log.Warn().Str("hedge_symbol", h.hedgeInst.Symbol).Msg("hedger: zero unit value, cannot size hedge")
		return
	}

	magnitude := ticks.QuantityFromDecimal(converted.Amount.Div(unitValue.Amount).Abs())

	h.pendingLock.Lock()
	h.pending += ticks.Quantity(needSign) * magnitude
	h.pendingLock.Unlock()

	go h.checkAndStartHedge(ctx)
}

func (h *Hedger) cachedMid() ticks.Price {
	h.midLock.Lock()
	defer h.midLock.Unlock()
	return h.mid
}

// OnHedgeBookUpdate refreshes the cached mid and opportunistically
// schedules a slice check.
func (h *Hedger) OnHedgeBookUpdate(ctx context.Context) {
	bidPrice, bidQty := h.book.BestBid()
	askPrice, askQty := h.book.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return
	}
	h.midLock.Lock()
	h.mid = (bidPrice + askPrice) / 2
	h.midLock.Unlock()

	if !h.active.Load() {
		return
	}
	h.stateLock.Lock()
	hasActive := h.activeOrder != nil
	h.stateLock.Unlock()
	if hasActive {
		return
	}
	if absQty(h.Pending()) < h.hedgeInst.MinOrderSize {
		return
	}
	go h.checkAndStartHedge(ctx)
}

// OnHedgingFill is logging only. The quantity was already removed from
// pending at submit time (intention-based accounting) — re-accumulating
// it here too would double-count the hedge.
func (h *Hedger) OnHedgingFill(fill router.Fill) {
	log.Debug().
		Str("hedge_symbol", h.hedgeInst.Symbol).
		Str("exec_id", fill.ExecID).
		Str("side", fill.Side.String()).
		Int64("qty", int64(fill.Quantity)).
		Msg("hedger: child order fill (accounted for at submit time)")
}

// checkAndStartHedge is the slice loop. It always runs off the caller's
// goroutine (fire-and-forget), mirroring AlgoOrder's discipline of never
// suspending a market-data or fill-delivery callback; Submit is allowed
// to block here because this goroutine has no caller waiting on it.
func (h *Hedger) checkAndStartHedge(ctx context.Context) {
	if !h.active.Load() {
		return
	}

	_, bidQty := h.book.BestBid()
	_, askQty := h.book.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return
	}

	h.pendingLock.Lock()
	pending := h.pending
	if absQty(pending) < h.hedgeInst.MinOrderSize {
		h.pendingLock.Unlock()
		return
	}

	h.stateLock.Lock()
	if h.activeOrder != nil {
		h.stateLock.Unlock()
		h.pendingLock.Unlock()
		return
	}

	side := ticks.Buy
	if pending < 0 {
		side = ticks.Sell
	}
	sliceAbs := absQty(pending)
	if h.params.SliceSize > 0 && sliceAbs > h.params.SliceSize {
		sliceAbs = h.params.SliceSize
	}
	sliceAbs = ticks.FloorToLot(sliceAbs, h.hedgeInst.LotSize)
	if sliceAbs < h.hedgeInst.MinOrderSize {
		h.stateLock.Unlock()
		h.pendingLock.Unlock()
		return
	}

	entryPrice, ok := order.EntryPrice(h.params.QuoterType, side, h.book)
	if !ok {
		h.stateLock.Unlock()
		h.pendingLock.Unlock()
		return
	}

	// Intention-based accounting: decrement before the RPC even starts.
	h.pending -= ticks.Quantity(side.Sign()) * sliceAbs
	h.pendingLock.Unlock()

	clientOrderID := nextClientOrderID()
	var algo *order.AlgoOrder
	child := order.NewBuilder(clientOrderID, h.hedgeInst.ID, h.gateway, h.rtr).
		BookName(h.hedgeInst.Symbol).
		Side(side).
		Price(entryPrice).
		Quantity(sliceAbs).
		OnStatusChanged(func(ev router.StatusChangedEvent) {
			if !ev.Status.Terminal() {
				return
			}
			h.onChildTerminal(ctx, ev.ClientOrderID, sliceAbs, side)
		}).
		OnFilled(func(ev router.FilledEvent) { h.OnHedgingFill(ev.Fill) }).
		Build()
	algo = order.NewAlgoOrder(child, h.params.QuoterType, h.hedgeInst.TickSize, h.book)

	// stateLock has been held since the activeOrder==nil check above, so
	// no concurrent slice can sneak in between check and install; release
	// it before the Submit RPC per the locking discipline.
	h.activeOrder = algo
	h.stateLock.Unlock()

	if err := algo.Submit(ctx); err != nil {
		if !child.Status().Terminal() {
			// Genuine synchronous RPC rejection: no report will ever
			// arrive for this order, so no terminal callback will ever
			// fire for it. Roll back here, the one place that must.
			h.pendingLock.Lock()
			h.pending += ticks.Quantity(side.Sign()) * sliceAbs
			h.pendingLock.Unlock()
			h.stateLock.Lock()
			if h.activeOrder == algo {
				h.activeOrder = nil
			}
			h.stateLock.Unlock()
			log.Warn().
				Str("hedge_symbol", h.hedgeInst.Symbol).
				Err(err).
				Msg("hedger: submit rejected synchronously, rolled back")
			return
		}
		// Reached a terminal status via a routed report (e.g. an
		// exchange-side reject); onChildTerminal already performed the
		// give-back and cleared activeOrder.
		log.Warn().
			Str("hedge_symbol", h.hedgeInst.Symbol).
			Err(err).
			Msg("hedger: child order settled with an error status")
	}
}

// onChildTerminal re-adds the order's unfilled leaves to pending, clears
// activeOrder if it still points at this child, and immediately
// re-enters the slice loop. leavesAtSubmit is the slice quantity
// submitted; the actual leaves quantity the report carried is read off
// the order itself since OnStatusChanged fires with only the event, not
// the report.
func (h *Hedger) onChildTerminal(ctx context.Context, clientOrderID uint64, leavesAtSubmit ticks.Quantity, side ticks.Side) {
	h.stateLock.Lock()
	var leaves ticks.Quantity
	if h.activeOrder != nil && h.activeOrder.ClientOrderID() == clientOrderID {
		leaves = h.activeOrder.LeavesQuantity()
		h.activeOrder = nil
	} else {
		// Already cleared by a racing synchronous-rejection path; use
		// the full submitted slice as the give-back.
		leaves = leavesAtSubmit
	}
	h.stateLock.Unlock()

	h.pendingLock.Lock()
	h.pending += ticks.Quantity(side.Sign()) * leaves
	h.pendingLock.Unlock()

	log.Debug().
		Str("hedge_symbol", h.hedgeInst.Symbol).
		Uint64("client_order_id", clientOrderID).
		Int64("leaves", int64(leaves)).
		Msg("hedger: child order terminal, leaves given back to pending")

	go h.checkAndStartHedge(ctx)
}
