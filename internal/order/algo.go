package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Strategy selects an AlgoOrder's re-pricing rule.
type Strategy int

const (
	// OppositeFirst pegs to the opposite side's best, i.e. a taker price
	// that guarantees execution against the current book.
	OppositeFirst Strategy = iota
	// FirstFollow sits one tick inside the same-side leader, refusing to
	// move past its own best (no self-pennying).
	FirstFollow
)

func (s Strategy) String() string {
	if s == FirstFollow {
		return "FirstFollow"
	}
	return "OppositeFirst"
}

// BookReader is the read-only view of an order book an AlgoOrder needs
// to compute its target price. Both book.OrderBook and
// book.BestOrderBook satisfy it.
type BookReader interface {
	BestBid() (ticks.Price, ticks.Quantity)
	BestAsk() (ticks.Price, ticks.Quantity)
}

// AlgoOrder wraps an Order and re-prices it per Strategy each time
// OnMarketDataUpdated is called; re-pricing is spawned fire-and-forget
// and never blocks the caller. An AlgoOrder does not subscribe itself to
// any book: SubscriptionKey names a distributor subscription, but no
// code in this repository registers one for an AlgoOrder.
type AlgoOrder struct {
	*Order

	strategy Strategy
	tickSize ticks.Price
	book     BookReader

	mu              sync.Mutex
	subscribed      bool
	replaceInFlight bool
}

// NewAlgoOrder wraps o with strategy, re-pricing against reader using a
// tickSize tick increment for FirstFollow.
func NewAlgoOrder(o *Order, strategy Strategy, tickSize ticks.Price, reader BookReader) *AlgoOrder {
	return &AlgoOrder{Order: o, strategy: strategy, tickSize: tickSize, book: reader}
}

// SubscriptionKey is the distributor subscription key for this algo
// order, guaranteeing uniqueness per client order id.
func (a *AlgoOrder) SubscriptionKey() string {
	return fmt.Sprintf("AlgoOrder_%d", a.ClientOrderID())
}

// OnMarketDataUpdated evaluates the book and, if the target price has
// moved, spawns a fire-and-forget Replace. It must never block: the
// caller is the distributor's single consumer goroutine.
func (a *AlgoOrder) OnMarketDataUpdated(ctx context.Context) {
	status := a.Status()
	if status != router.StatusNew && status != router.StatusPartiallyFilled {
		return // rule 1: active only while New or PartiallyFilled
	}

	a.mu.Lock()
	if a.replaceInFlight {
		a.mu.Unlock()
		return // rule 2: ignore market data while a replace/cancel is unresolved
	}
	a.mu.Unlock()

	target, ok := a.targetPrice()
	if !ok {
		return
	}
	current := a.Price()
	if target == current {
		return
	}

	a.mu.Lock()
	a.replaceInFlight = true
	a.mu.Unlock()

	go func() {
		err := a.Replace(ctx, target)
		a.mu.Lock()
		a.replaceInFlight = false
		a.mu.Unlock()
		if err != nil {
			log.Warn().
				Uint64("client_order_id", a.ClientOrderID()).
				Str("strategy", a.strategy.String()).
				Err(err).
				Msg("algo order: replace failed, re-evaluating against current book")
			// A rejected replace usually means the book moved underneath
			// the request; re-evaluate immediately instead of waiting for
			// the next event.
			a.OnMarketDataUpdated(ctx)
		}
	}()
}

// targetPrice computes the re-pricing target per strategy and side. ok
// is false when the book side needed is empty.
func (a *AlgoOrder) targetPrice() (ticks.Price, bool) {
	bidPrice, bidQty := a.book.BestBid()
	askPrice, askQty := a.book.BestAsk()

	switch a.strategy {
	case OppositeFirst:
		if a.Side() == ticks.Buy {
			if askQty.Zero() {
				return 0, false
			}
			return askPrice, true
		}
		if bidQty.Zero() {
			return 0, false
		}
		return bidPrice, true

	case FirstFollow:
		current := a.Price()
		if a.Side() == ticks.Buy {
			if bidQty.Zero() {
				return current, true
			}
			if bidPrice > current {
				return bidPrice + a.tickSize, true
			}
			return current, true
		}
		if askQty.Zero() {
			return current, true
		}
		if askPrice < current {
			return askPrice - a.tickSize, true
		}
		return current, true
	}
	return a.Price(), true
}

// EntryPrice computes the price an AlgoOrder should be submitted at:
// OppositeFirst enters at the opposite best; FirstFollow enters at the
// same-side best.
func EntryPrice(strategy Strategy, side ticks.Side, reader BookReader) (ticks.Price, bool) {
	bidPrice, bidQty := reader.BestBid()
	askPrice, askQty := reader.BestAsk()

	switch strategy {
	case OppositeFirst:
		if side == ticks.Buy {
			if askQty.Zero() {
				return 0, false
			}
			return askPrice, true
		}
		if bidQty.Zero() {
			return 0, false
		}
		return bidPrice, true
	default: // FirstFollow
		if side == ticks.Buy {
			if bidQty.Zero() {
				return 0, false
			}
			return bidPrice, true
		}
		if askQty.Zero() {
			return 0, false
		}
		return askPrice, true
	}
}
