package fairvalue

import "github.com/web3guy0/quantoms/pkg/ticks"

// groupedMidp lazily picks a grouping
// multiple G of tick_size that approximates 1 basis point of the
// current mid, floor the bid and ceil the ask to the nearest G·tick,
// and return the mid of the grouped quotes.
//
// tickSize is carried on the Provider itself rather than threaded
// through Compute's BookReader, since grouping depends on the
// instrument's tick size, not the book.
type groupedState struct {
	tickSize ticks.Price
}

func (p *Provider) groupedMidp(reader BookReader) (Update, bool) {
	bidPrice, bidQty := reader.BestBid()
	askPrice, askQty := reader.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return Update{}, false
	}
	if p.grouped.tickSize <= 0 {
		// No tick size configured: grouping degenerates to raw midp.
		mid := (bidPrice + askPrice) / 2
		return Update{FairBid: mid, FairAsk: mid}, true
	}

	mid := (bidPrice + askPrice) / 2
	g := groupingMultiple(mid, p.grouped.tickSize)
	step := ticks.Price(g) * p.grouped.tickSize
	if step <= 0 {
		step = p.grouped.tickSize
	}

	groupedBid := ticks.RoundDownToTick(bidPrice, step)
	groupedAsk := ticks.RoundUpToTick(askPrice, step)
	groupedMid := (groupedBid + groupedAsk) / 2
	return Update{FairBid: groupedMid, FairAsk: groupedMid}, true
}

// groupingMultiple picks the smallest integer G such that G*tickSize
// approximates one basis point of mid (mid/10000), at least 1.
func groupingMultiple(mid, tickSize ticks.Price) int64 {
	if tickSize <= 0 || mid <= 0 {
		return 1
	}
	oneBp := mid / 10000
	if oneBp <= 0 {
		return 1
	}
	g := int64(oneBp) / int64(tickSize)
	if g < 1 {
		g = 1
	}
	return g
}
