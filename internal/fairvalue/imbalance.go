package fairvalue

import "github.com/web3guy0/quantoms/pkg/ticks"

// imbalanceDepth bounds how many levels OrderBookImbalance scans before
// applying the ±band filter — the band is a price window, not a level
// count, but a book only has finitely many levels to scan.
const imbalanceDepth = 50

// orderBookImbalance computes fair value within ±B
// bps of mid, sum each side's quantity, take the bid share of the
// total as imbalance_ratio, and blend best bid/ask by that ratio.
func (p *Provider) orderBookImbalance(reader LadderReader) (Update, bool) {
	bidPrice, bidQty := reader.BestBid()
	askPrice, askQty := reader.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return Update{}, false
	}
	mid := reader.GetMidPrice()
	if mid <= 0 {
		return Update{}, false
	}

	band := mid * ticks.Price(p.imbalanceBandBps) / 10000

	var totalBidQty, totalAskQty ticks.Quantity
	for _, l := range reader.GetTopLevels(ticks.Buy, imbalanceDepth) {
		if mid-l.Price > band {
			break
		}
		totalBidQty += l.Qty
	}
	for _, l := range reader.GetTopLevels(ticks.Sell, imbalanceDepth) {
		if l.Price-mid > band {
			break
		}
		totalAskQty += l.Qty
	}

	total := totalBidQty + totalAskQty
	if total.Zero() {
		return Update{}, false
	}

	// ratio = bid / (bid+ask), computed in tick-integer space and
	// applied as fair = ask*ratio + bid*(1-ratio).
	fair := (askPrice*ticks.Price(totalBidQty) + bidPrice*ticks.Price(totalAskQty)) / ticks.Price(total)
	return Update{FairBid: fair, FairAsk: fair}, true
}
