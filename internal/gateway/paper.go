// Package gateway implements the order.Gateway outbound RPC surface.
// PaperGateway is a simulated venue: it acks and fills orders itself,
// applying a slippage adjustment, instead of calling out to a real
// exchange.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/order"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Config tunes PaperGateway's simulated latency and fill behavior.
type Config struct {
	AckDelay    time.Duration
	FillDelay   time.Duration
	SlippageBps int64 // applied against the taker
}

// DefaultConfig returns reasonable simulated latency/slippage timings.
func DefaultConfig() Config {
	return Config{
		AckDelay:    10 * time.Millisecond,
		FillDelay:   40 * time.Millisecond,
		SlippageBps: 10,
	}
}

type openOrder struct {
	exchangeOrderID string
	side            ticks.Side
	price           ticks.Price
	quantity        ticks.Quantity
}

// PaperGateway implements order.Gateway by simulating fills locally and
// feeding the results back through a router.Router, exactly the path a
// live venue adapter would use.
type PaperGateway struct {
	cfg Config
	rtr *router.Router

	nextExchangeID atomic.Uint64
	nextExecID     atomic.Uint64

	mu     sync.Mutex
	orders map[uint64]*openOrder // by client order id
}

// New creates a PaperGateway that routes simulated reports through rtr.
func New(cfg Config, rtr *router.Router) *PaperGateway {
	return &PaperGateway{cfg: cfg, rtr: rtr, orders: make(map[uint64]*openOrder)}
}

func (g *PaperGateway) newExchangeOrderID() string {
	return fmt.Sprintf("PAPER-%d", g.nextExchangeID.Add(1))
}

func (g *PaperGateway) newExecID() string {
	return fmt.Sprintf("PAPER-EXEC-%d", g.nextExecID.Add(1))
}

// SubmitOrder acks the order after AckDelay, then fills it after
// FillDelay at a slippage-adjusted price. Matches order.Gateway.
func (g *PaperGateway) SubmitOrder(ctx context.Context, req order.NewOrderRequest) error {
	exchangeOrderID := g.newExchangeOrderID()

	g.mu.Lock()
	g.orders[req.ClientOrderID] = &openOrder{
		exchangeOrderID: exchangeOrderID,
		side:            req.Side,
		price:           req.Price,
		quantity:        req.Quantity,
	}
	g.mu.Unlock()

	log.Debug().
		Uint64("client_order_id", req.ClientOrderID).
		Str("exchange_order_id", exchangeOrderID).
		Str("side", req.Side.String()).
		Msg("paper gateway: order submitted")

	go func() {
		select {
		case <-time.After(g.cfg.AckDelay):
		case <-ctx.Done():
			return
		}
		g.rtr.RouteReport(router.OrderStatusReport{
			ClientOrderID:   req.ClientOrderID,
			ExchangeOrderID: exchangeOrderID,
			InstrumentID:    req.InstrumentID,
			Side:            req.Side,
			Status:          router.StatusNew,
			Price:           req.Price,
			Quantity:        req.Quantity,
			LeavesQuantity:  req.Quantity,
		})

		select {
		case <-time.After(g.cfg.FillDelay):
		case <-ctx.Done():
			return
		}
		fillPrice := applySlippage(req.Price, req.Side, g.cfg.SlippageBps)
		g.rtr.RouteReport(router.OrderStatusReport{
			ClientOrderID:   req.ClientOrderID,
			ExchangeOrderID: exchangeOrderID,
			ExecID:          g.newExecID(),
			InstrumentID:    req.InstrumentID,
			Side:            req.Side,
			Status:          router.StatusFilled,
			Price:           fillPrice,
			Quantity:        req.Quantity,
			LeavesQuantity:  0,
		})

		g.mu.Lock()
		delete(g.orders, req.ClientOrderID)
		g.mu.Unlock()
	}()

	return nil
}

// ReplaceOrder acks the new price immediately — paper fills happen at
// submit time only, so a replace has nothing left to race against.
func (g *PaperGateway) ReplaceOrder(ctx context.Context, req order.ReplaceOrderRequest) error {
	g.mu.Lock()
	o, ok := g.orders[req.ClientOrderID]
	if ok {
		o.price = req.NewPrice
	}
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("paper gateway: replace on unknown client_order_id %d", req.ClientOrderID)
	}

	go g.rtr.RouteReport(router.OrderStatusReport{
		ClientOrderID:   req.ClientOrderID,
		ExchangeOrderID: req.ExchangeOrderID,
		Status:          router.StatusNew,
		Price:           req.NewPrice,
		Quantity:        o.quantity,
		LeavesQuantity:  o.quantity,
	})
	return nil
}

// CancelOrder acks a cancel immediately.
func (g *PaperGateway) CancelOrder(ctx context.Context, req order.CancelOrderRequest) error {
	g.mu.Lock()
	o, ok := g.orders[req.ClientOrderID]
	if ok {
		delete(g.orders, req.ClientOrderID)
	}
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("paper gateway: cancel on unknown client_order_id %d", req.ClientOrderID)
	}

	go g.rtr.RouteReport(router.OrderStatusReport{
		ClientOrderID:   req.ClientOrderID,
		ExchangeOrderID: req.ExchangeOrderID,
		Status:          router.StatusCancelled,
		Price:           o.price,
		LeavesQuantity:  0,
	})
	return nil
}

// BulkCancelOrders cancels each request in turn. The paper venue has no
// batched cancel endpoint to exploit, so this is a loop over CancelOrder
// collecting per-order outcomes.
func (g *PaperGateway) BulkCancelOrders(ctx context.Context, req order.BulkCancelOrdersRequest) []order.OrderModificationResult {
	out := make([]order.OrderModificationResult, 0, len(req.Requests))
	for _, r := range req.Requests {
		err := g.CancelOrder(ctx, r)
		out = append(out, order.OrderModificationResult{
			ClientOrderID: r.ClientOrderID,
			Success:       err == nil,
			Err:           err,
		})
	}
	return out
}

// SupportsOrderReplacement reports that the paper venue replaces orders
// atomically, so Order never needs the cancel+new emulation here.
func (g *PaperGateway) SupportsOrderReplacement() bool { return true }

// applySlippage nudges price against the taker: a buy pays slightly
// more, a sell receives slightly less.
func applySlippage(price ticks.Price, side ticks.Side, bps int64) ticks.Price {
	slip := price.ToDecimal().Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))
	if side == ticks.Buy {
		return ticks.FromDecimal(price.ToDecimal().Add(slip))
	}
	return ticks.FromDecimal(price.ToDecimal().Sub(slip))
}
