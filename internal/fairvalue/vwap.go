package fairvalue

import (
	"github.com/web3guy0/quantoms/internal/book"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// vwapDepth is how many levels deep VwapMidp sums each side's ladder.
// A fixed depth keeps the model O(1) per update rather than depending
// on book.GetTopLevels' own default.
const vwapDepth = 10

// vwapMidp computes the VWAP of each side's ladder, then
// mid of the two VWAPs.
func (p *Provider) vwapMidp(reader LadderReader) (Update, bool) {
	bidLevels := reader.GetTopLevels(ticks.Buy, vwapDepth)
	askLevels := reader.GetTopLevels(ticks.Sell, vwapDepth)
	if len(bidLevels) == 0 || len(askLevels) == 0 {
		return Update{}, false
	}

	bidVwap, ok := vwap(bidLevels)
	if !ok {
		return Update{}, false
	}
	askVwap, ok := vwap(askLevels)
	if !ok {
		return Update{}, false
	}

	mid := (bidVwap + askVwap) / 2
	return Update{FairBid: mid, FairAsk: mid}, true
}

func vwap(levels []book.Level) (ticks.Price, bool) {
	var notional ticks.Price
	var totalQty ticks.Quantity
	for _, l := range levels {
		notional += l.Price * ticks.Price(l.Qty)
		totalQty += l.Qty
	}
	if totalQty.Zero() {
		return 0, false
	}
	return notional / ticks.Price(totalQty), true
}
