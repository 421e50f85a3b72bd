// Package quoting implements the two-sided market-making loop that
// turns fair-value updates into a bid and an ask AlgoOrder, replacing
// them in place when the target price moves by at least a tick and
// otherwise leaving them alone.
package quoting

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/fairvalue"
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/order"
	"github.com/web3guy0/quantoms/internal/position"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Parameters configures a QuotingInstance.
type Parameters struct {
	Symbol       string
	BidSpreadBps int64
	AskSpreadBps int64
	SkewBps      int64 // signed; positive skews both prices up
	Size         ticks.Quantity
	PostOnly     bool
	Depth        int
	QuoterType   order.Strategy
}

// QuotePair is emitted on every fair-value update for observers (e.g. a
// dashboard or the control-protocol event stream).
type QuotePair struct {
	InstrumentID instrument.ID
	BidPrice     ticks.Price
	AskPrice     ticks.Price
	Size         ticks.Quantity
	TimestampUs  int64
}

var clientOrderIDSeq atomic.Uint64

func nextClientOrderID() uint64 { return clientOrderIDSeq.Add(1) }

// QuotingInstance holds the instrument, parameters, and fair-value
// provider, and owns the bid/ask AlgoOrder handles.
type QuotingInstance struct {
	inst     instrument.Instrument
	params   Parameters
	provider *fairvalue.Provider

	gateway    order.Gateway
	rtr        *router.Router
	limiter    *position.Limiter
	positions  *position.Book
	bookReader order.BookReader

	mu       sync.Mutex
	bidOrder *order.AlgoOrder
	askOrder *order.AlgoOrder

	observersMu sync.Mutex
	observers   []func(QuotePair)

	active atomic.Bool
}

// New creates a QuotingInstance for inst.
func New(
	inst instrument.Instrument,
	params Parameters,
	provider *fairvalue.Provider,
	gateway order.Gateway,
	rtr *router.Router,
	limiter *position.Limiter,
	positions *position.Book,
	bookReader order.BookReader,
) *QuotingInstance {
	q := &QuotingInstance{
		inst:       inst,
		params:     params,
		provider:   provider,
		gateway:    gateway,
		rtr:        rtr,
		limiter:    limiter,
		positions:  positions,
		bookReader: bookReader,
	}
	q.active.Store(true)
	return q
}

// InstrumentID returns the instrument this instance quotes.
func (q *QuotingInstance) InstrumentID() instrument.ID { return q.inst.ID }

// Active reports whether this instance is still quoting. A retired
// instance ignores OnFairValueUpdate — see Retire.
func (q *QuotingInstance) Active() bool { return q.active.Load() }

// Params returns a copy of the instance's current quoting parameters,
// for the control protocol's GET_INSTANCE_STATUSES response.
func (q *QuotingInstance) Params() Parameters {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.params
}

// UpdateParameters replaces the instance's quoting parameters in place,
// per the control protocol's UPDATE_PARAMETERS command. Takes effect on
// the next fair-value update.
func (q *QuotingInstance) UpdateParameters(p Parameters) {
	q.mu.Lock()
	q.params = p
	q.mu.Unlock()
}

// Retire cancels both legs and marks the instance inactive; subsequent
// fair-value updates are ignored. Matches the control protocol's
// RETIRE_INSTANCE command.
func (q *QuotingInstance) Retire(ctx context.Context) {
	q.active.Store(false)

	q.mu.Lock()
	bid, ask := q.bidOrder, q.askOrder
	q.bidOrder, q.askOrder = nil, nil
	q.mu.Unlock()

	for _, algo := range []*order.AlgoOrder{bid, ask} {
		if algo == nil || algo.Status().Terminal() {
			continue
		}
		go func(a *order.AlgoOrder) {
			if err := a.Cancel(ctx); err != nil {
				log.Warn().Uint64("client_order_id", a.ClientOrderID()).Err(err).Msg("quoting: retire cancel failed")
			}
		}(algo)
	}
}

// Subscribe registers cb to receive every emitted QuotePair.
func (q *QuotingInstance) Subscribe(cb func(QuotePair)) {
	q.observersMu.Lock()
	defer q.observersMu.Unlock()
	q.observers = append(q.observers, cb)
}

// OnFairValueUpdate recomputes the bid/ask targets from u and
// replaces or submits the quote legs as needed. Must not block the
// caller for long — side handling spawns its own goroutine for any
// RPC, matching AlgoOrder's fire-and-forget discipline.
func (q *QuotingInstance) OnFairValueUpdate(ctx context.Context, u fairvalue.Update, timestampUs int64) {
	if !q.active.Load() {
		return
	}

	bidTarget := applySpreadAndSkew(u.FairBid, -q.params.BidSpreadBps, q.params.SkewBps, q.inst.TickSize, true)
	askTarget := applySpreadAndSkew(u.FairAsk, q.params.AskSpreadBps, q.params.SkewBps, q.inst.TickSize, false)

	q.mu.Lock()
	q.ensureSide(ctx, ticks.Buy, bidTarget)
	q.ensureSide(ctx, ticks.Sell, askTarget)
	q.mu.Unlock()

	q.observersMu.Lock()
	observers := make([]func(QuotePair), len(q.observers))
	copy(observers, q.observers)
	q.observersMu.Unlock()

	pair := QuotePair{InstrumentID: q.inst.ID, BidPrice: bidTarget, AskPrice: askTarget, Size: q.params.Size, TimestampUs: timestampUs}
	for _, cb := range observers {
		cb(pair)
	}
}

// applySpreadAndSkew computes bid_price = fair·(1 − bid_bps/10000) + skew
// or ask_price = fair·(1 + ask_bps/10000) + skew, then rounds to tick —
// floor for the bid (never pay more than quoted), ceil for the ask
// (never offer for less). The skew is in basis points of fair, like the
// spreads, and shifts both sides the same direction.
func applySpreadAndSkew(fair ticks.Price, spreadBps, skewBps int64, tickSize ticks.Price, isBid bool) ticks.Price {
	adjusted := fair + fair*ticks.Price(spreadBps)/10000 + fair*ticks.Price(skewBps)/10000
	if tickSize <= 0 {
		return adjusted
	}
	if isBid {
		return ticks.RoundDownToTick(adjusted, tickSize)
	}
	return ticks.RoundUpToTick(adjusted, tickSize)
}

func (q *QuotingInstance) handleFor(side ticks.Side) **order.AlgoOrder {
	if side == ticks.Buy {
		return &q.bidOrder
	}
	return &q.askOrder
}

// ensureSide replaces the existing leg if the target moved by at least
// a tick, or submits a new one if none is active. Must be called with
// q.mu held.
func (q *QuotingInstance) ensureSide(ctx context.Context, side ticks.Side, target ticks.Price) {
	handle := q.handleFor(side)

	if *handle != nil {
		status := (*handle).Status()
		if status.Terminal() {
			*handle = nil
		}
	}

	if *handle != nil {
		current := (*handle).Price()
		delta := target - current
		if delta < 0 {
			delta = -delta
		}
		if delta < q.inst.TickSize {
			return
		}
		algo := *handle
		go func() {
			if err := algo.Replace(ctx, target); err != nil {
				log.Warn().
					Str("symbol", q.params.Symbol).
					Str("side", side.String()).
					Err(err).
					Msg("quoting: replace failed")
			}
		}()
		return
	}

	size := ticks.FloorToLot(q.params.Size, q.inst.LotSize)
	if size.Zero() || size < q.inst.MinOrderSize {
		return
	}
	pos := q.positions.Get(q.inst.ID)
	if !q.limiter.Allow(q.inst.ID, pos.Quantity, side, size) {
		return
	}

	o := order.NewBuilder(nextClientOrderID(), q.inst.ID, q.gateway, q.rtr).
		BookName(q.inst.Symbol).
		Side(side).
		Price(target).
		Quantity(size).
		PostOnly(q.params.PostOnly).
		Build()
	algo := order.NewAlgoOrder(o, q.params.QuoterType, q.inst.TickSize, q.bookReader)
	*handle = algo

	go func() {
		if err := algo.Submit(ctx); err != nil {
			log.Warn().
				Str("symbol", q.params.Symbol).
				Str("side", side.String()).
				Err(err).
				Msg("quoting: submit failed")
		}
	}()
}
