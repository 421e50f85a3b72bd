package fairvalue

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/pkg/ticks"
)

// penaltyState is the accumulated per-side penalty the Penalty model
// tracks: it grows when the spread expands and shrinks back down
// (never below zero) when the spread contracts. The multipliers are
// plain dimensionless ratios, not prices, so they're decimal rather
// than ticks.Price.
type penaltyState struct {
	expandMultiplier decimal.Decimal
	shrinkMultiplier decimal.Decimal

	accBidPenalty ticks.Price
	accAskPenalty ticks.Price

	lastSpread ticks.Price
	hasSpread  bool
}

// penaltyUpdate implements Penalty: fair_ask = best_bid + accAskPenalty,
// fair_bid = best_ask − accBidPenalty, with the accumulators scaled up
// on spread expansion and down on contraction, clamped at zero.
func (p *Provider) penaltyUpdate(reader BookReader) (Update, bool) {
	bidPrice, bidQty := reader.BestBid()
	askPrice, askQty := reader.BestAsk()
	if bidQty.Zero() || askQty.Zero() {
		return Update{}, false
	}
	spread := askPrice - bidPrice

	if p.penalty.hasSpread {
		delta := spread - p.penalty.lastSpread
		switch {
		case delta > 0:
			grow := ticks.FromDecimal(delta.ToDecimal().Mul(p.penalty.expandMultiplier))
			p.penalty.accBidPenalty += grow
			p.penalty.accAskPenalty += grow
		case delta < 0:
			shrink := ticks.FromDecimal((-delta).ToDecimal().Mul(p.penalty.shrinkMultiplier))
			p.penalty.accBidPenalty -= shrink
			p.penalty.accAskPenalty -= shrink
		}
		if p.penalty.accBidPenalty < 0 {
			p.penalty.accBidPenalty = 0
		}
		if p.penalty.accAskPenalty < 0 {
			p.penalty.accAskPenalty = 0
		}
	}
	p.penalty.lastSpread = spread
	p.penalty.hasSpread = true

	fairAsk := bidPrice + p.penalty.accAskPenalty
	fairBid := askPrice - p.penalty.accBidPenalty
	return Update{FairBid: fairBid, FairAsk: fairAsk}, true
}
