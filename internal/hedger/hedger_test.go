package hedger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/order"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

type fakeBook struct {
	bidPrice, askPrice ticks.Price
	bidQty, askQty     ticks.Quantity
}

func (f *fakeBook) BestBid() (ticks.Price, ticks.Quantity) { return f.bidPrice, f.bidQty }
func (f *fakeBook) BestAsk() (ticks.Price, ticks.Quantity) { return f.askPrice, f.askQty }

// fakeGateway acks every submit immediately with a New report so the
// Hedger's blocking Submit call in its own goroutine never stalls the
// test. Child order reports beyond that (fills, cancels) are driven
// explicitly by the test via rtr.RouteReport.
type fakeGateway struct {
	mu         sync.Mutex
	submitted  []order.NewOrderRequest
	rtr        *router.Router
	rejectNext bool
}

func (g *fakeGateway) SubmitOrder(ctx context.Context, req order.NewOrderRequest) error {
	g.mu.Lock()
	reject := g.rejectNext
	g.rejectNext = false
	g.submitted = append(g.submitted, req)
	g.mu.Unlock()

	if reject {
		return errors.New("fakeGateway: synchronous rejection")
	}

	g.rtr.RouteReport(router.OrderStatusReport{
		ClientOrderID:  req.ClientOrderID,
		Status:         router.StatusNew,
		Price:          req.Price,
		Quantity:       req.Quantity,
		LeavesQuantity: req.Quantity,
	})
	return nil
}

func (g *fakeGateway) ReplaceOrder(ctx context.Context, req order.ReplaceOrderRequest) error { return nil }
func (g *fakeGateway) CancelOrder(ctx context.Context, req order.CancelOrderRequest) error   { return nil }
func (g *fakeGateway) BulkCancelOrders(ctx context.Context, req order.BulkCancelOrdersRequest) []order.OrderModificationResult {
	return nil
}
func (g *fakeGateway) SupportsOrderReplacement() bool { return true }

func (g *fakeGateway) lastSubmitted() order.NewOrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitted[len(g.submitted)-1]
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submitted)
}

func linearInstrument(id instrument.ID, base, quote string) instrument.Instrument {
	return instrument.Instrument{
		ID:                 id,
		Symbol:             "LINEAR",
		Kind:               instrument.LinearPerpetual,
		BaseCurrency:       ticks.Intern(base),
		QuoteCurrency:      ticks.Intern(quote),
		ContractMultiplier: ticks.Quantity(ticks.Scale),
		MinOrderSize:       ticks.QuantityFromDecimal(decimal.NewFromFloat(0.01)),
	}
}

func inverseInstrument(id instrument.ID, base, quote string, bitmex bool) instrument.Instrument {
	return instrument.Instrument{
		ID:                 id,
		Symbol:             "INVERSE",
		Kind:               instrument.InversePerpetual,
		BaseCurrency:       ticks.Intern(base),
		QuoteCurrency:      ticks.Intern(quote),
		ContractMultiplier: ticks.Quantity(ticks.Scale),
		BitmexStyle:        bitmex,
		MinOrderSize:       ticks.QuantityFromDecimal(decimal.NewFromFloat(0.01)),
	}
}

// TestHedgerSlicingAndGiveback covers boundary scenario 6: slice_size =
// 0.5 BTC, 1:1 FX (same-currency, no conversion). A 0.7 BTC quoting fill
// produces an immediate 0.5 BTC child, pending settles at -0.2; the
// child filling completely re-enters the loop and hedges the remainder.
func TestHedgerSlicingAndGiveback(t *testing.T) {
	quoting := linearInstrument(1, "BTC", "USDT")
	hedge := linearInstrument(2, "BTC", "USDT")

	rtr := router.New()
	gw := &fakeGateway{rtr: rtr}
	hedgeBook := &fakeBook{
		bidPrice: ticks.FromDecimal(decimal.NewFromInt(1)),
		askPrice: ticks.FromDecimal(decimal.NewFromInt(1)),
		bidQty:   ticks.QuantityFromDecimal(decimal.NewFromInt(1)),
		askQty:   ticks.QuantityFromDecimal(decimal.NewFromInt(1)),
	}
	fx := NewFXService(hedgeBook)

	h := New(quoting, hedge, Parameters{
		QuoterType: order.OppositeFirst,
		SliceSize:  ticks.QuantityFromDecimal(decimal.NewFromFloat(0.5)),
	}, fx, gw, rtr, hedgeBook)
	if !h.Active() {
		t.Fatal("expected hedger to be active")
	}

	h.OnHedgeBookUpdate(context.Background())

	fillPrice := ticks.FromDecimal(decimal.NewFromInt(1))
	fillQty := ticks.QuantityFromDecimal(decimal.NewFromFloat(0.7))
	h.OnQuotingFill(context.Background(), router.Fill{Side: ticks.Buy, Price: fillPrice, Quantity: fillQty})

	time.Sleep(30 * time.Millisecond)

	if gw.count() != 1 {
		t.Fatalf("expected 1 child submit, got %d", gw.count())
	}
	first := gw.lastSubmitted()
	if first.Side != ticks.Sell {
		t.Fatalf("expected first child to sell, got %s", first.Side)
	}
	wantFirstQty := ticks.QuantityFromDecimal(decimal.NewFromFloat(0.5))
	if first.Quantity != wantFirstQty {
		t.Fatalf("first child qty = %v, want 0.5 BTC (%v)", first.Quantity, wantFirstQty)
	}
	wantPendingAfterFirst := ticks.QuantityFromDecimal(decimal.NewFromFloat(-0.2))
	if h.Pending() != wantPendingAfterFirst {
		t.Fatalf("pending after first slice = %v, want -0.2 BTC (%v)", h.Pending(), wantPendingAfterFirst)
	}

	rtr.RouteReport(router.OrderStatusReport{
		ClientOrderID:  first.ClientOrderID,
		Status:         router.StatusFilled,
		LeavesQuantity: 0,
	})

	time.Sleep(30 * time.Millisecond)

	if gw.count() != 2 {
		t.Fatalf("expected a second child submit after the first filled, got %d", gw.count())
	}
	second := gw.lastSubmitted()
	wantSecondQty := ticks.QuantityFromDecimal(decimal.NewFromFloat(0.2))
	if second.Quantity != wantSecondQty {
		t.Fatalf("second child qty = %v, want 0.2 BTC (%v)", second.Quantity, wantSecondQty)
	}
	if h.Pending() != 0 {
		t.Fatalf("pending after second slice = %v, want 0", h.Pending())
	}
}

// TestHedgerCrossCurrencyInverse covers boundary scenario 7: a 1 BTC
// linear-leg fill at 50,000 USDT converts, via the FX service, into a
// -50,000 contract need on an inverse leg denominated in BTC.
func TestHedgerCrossCurrencyInverse(t *testing.T) {
	quoting := linearInstrument(1, "BTC", "USDT")
	hedge := inverseInstrument(2, "BTC", "USD", true)

	rtr := router.New()
	refBook := &fakeBook{
		bidPrice: ticks.FromDecimal(decimal.NewFromInt(50000)),
		askPrice: ticks.FromDecimal(decimal.NewFromInt(50000)),
		bidQty:   ticks.QuantityFromDecimal(decimal.NewFromInt(1)),
		askQty:   ticks.QuantityFromDecimal(decimal.NewFromInt(1)),
	}
	fx := NewFXService(refBook)

	// The hedge leg's own book is deliberately not-ready (zero qty) so
	// OnQuotingFill's accumulation is observable before any slice fires.
	hedgeBook := &fakeBook{}
	gw := &fakeGateway{rtr: rtr}

	h := New(quoting, hedge, Parameters{
		QuoterType: order.OppositeFirst,
		SliceSize:  ticks.QuantityFromDecimal(decimal.NewFromInt(1_000_000)),
	}, fx, gw, rtr, hedgeBook)
	if !h.Active() {
		t.Fatal("expected hedger to be active (both legs BTC-based, denom currencies in {BTC, USDT})")
	}
	h.mid = ticks.FromDecimal(decimal.NewFromInt(50000))

	fillPrice := ticks.FromDecimal(decimal.NewFromInt(50000))
	fillQty := ticks.QuantityFromDecimal(decimal.NewFromInt(1))
	h.OnQuotingFill(context.Background(), router.Fill{Side: ticks.Buy, Price: fillPrice, Quantity: fillQty})

	time.Sleep(10 * time.Millisecond)

	wantPending := ticks.QuantityFromDecimal(decimal.NewFromInt(-50000))
	if h.Pending() != wantPending {
		t.Fatalf("pending = %v, want -50000 contracts (%v)", h.Pending(), wantPending)
	}
	if gw.count() != 0 {
		t.Fatalf("expected no child submit while the hedge book is not ready, got %d", gw.count())
	}
}

// TestHedgerRollsBackOnSynchronousRejection covers the "submit fails"
// branch of the slice loop: a gateway that rejects the RPC itself
// (never producing any report) must have its intention-based debit
// reversed directly, since no terminal callback will ever fire for an
// order the exchange never heard about.
func TestHedgerRollsBackOnSynchronousRejection(t *testing.T) {
	quoting := linearInstrument(1, "BTC", "USDT")
	hedge := linearInstrument(2, "BTC", "USDT")

	rtr := router.New()
	gw := &fakeGateway{rtr: rtr, rejectNext: true}
	hedgeBook := &fakeBook{
		bidPrice: ticks.FromDecimal(decimal.NewFromInt(1)),
		askPrice: ticks.FromDecimal(decimal.NewFromInt(1)),
		bidQty:   ticks.QuantityFromDecimal(decimal.NewFromInt(1)),
		askQty:   ticks.QuantityFromDecimal(decimal.NewFromInt(1)),
	}
	fx := NewFXService(hedgeBook)

	h := New(quoting, hedge, Parameters{
		QuoterType: order.OppositeFirst,
		SliceSize:  ticks.QuantityFromDecimal(decimal.NewFromFloat(0.5)),
	}, fx, gw, rtr, hedgeBook)
	h.OnHedgeBookUpdate(context.Background())

	fillPrice := ticks.FromDecimal(decimal.NewFromInt(1))
	fillQty := ticks.QuantityFromDecimal(decimal.NewFromFloat(0.3))
	h.OnQuotingFill(context.Background(), router.Fill{Side: ticks.Buy, Price: fillPrice, Quantity: fillQty})

	time.Sleep(30 * time.Millisecond)

	if gw.count() != 1 {
		t.Fatalf("expected exactly one rejected submit attempt, got %d", gw.count())
	}
	wantPending := ticks.QuantityFromDecimal(decimal.NewFromFloat(-0.3))
	if h.Pending() != wantPending {
		t.Fatalf("pending after rollback = %v, want the full -0.3 BTC need restored (%v)", h.Pending(), wantPending)
	}
}

// TestHedgerInactiveOnBaseCurrencyMismatch covers the activation
// precondition that the quoting and hedge legs share a base currency.
func TestHedgerInactiveOnBaseCurrencyMismatch(t *testing.T) {
	quoting := linearInstrument(1, "BTC", "USDT")
	hedge := linearInstrument(2, "ETH", "USDT")

	rtr := router.New()
	gw := &fakeGateway{rtr: rtr}
	hedgeBook := &fakeBook{}
	fx := NewFXService(hedgeBook)

	h := New(quoting, hedge, Parameters{QuoterType: order.OppositeFirst, SliceSize: 1}, fx, gw, rtr, hedgeBook)
	if h.Active() {
		t.Fatal("expected hedger to stay inactive on a base-currency mismatch")
	}

	h.OnQuotingFill(context.Background(), router.Fill{Side: ticks.Buy, Price: 1, Quantity: 1})
	if h.Pending() != 0 {
		t.Fatal("an inactive hedger must not accumulate pending")
	}
}
