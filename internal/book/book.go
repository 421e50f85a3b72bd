package book

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/errs"
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Level is one price/quantity pair in a book snapshot.
type Level struct {
	Price ticks.Price
	Qty   ticks.Quantity
}

// side holds one half of the book: a price->qty map for O(1) level
// mutation plus a sorted price slice (best-first) kept current on every
// mutation via binary search insert/remove. Book depths in this domain
// are small (tens to low hundreds of levels), so the O(n) slice shuffle
// on insert/remove is the right tradeoff against a balanced tree for
// simplicity.
type side struct {
	levels map[ticks.Price]ticks.Quantity
	prices []ticks.Price // sorted best-first
	desc   bool          // true for bids (best = highest), false for asks
}

func newSide(desc bool) *side {
	return &side{levels: make(map[ticks.Price]ticks.Quantity), desc: desc}
}

func (s *side) less(a, b ticks.Price) bool {
	if s.desc {
		return a > b
	}
	return a < b
}

func (s *side) set(price ticks.Price, qty ticks.Quantity) {
	if qty <= 0 {
		s.remove(price)
		return
	}
	if _, exists := s.levels[price]; !exists {
		idx := sort.Search(len(s.prices), func(i int) bool { return s.less(price, s.prices[i]) || price == s.prices[i] })
		s.prices = append(s.prices, 0)
		copy(s.prices[idx+1:], s.prices[idx:])
		s.prices[idx] = price
	}
	s.levels[price] = qty
}

func (s *side) remove(price ticks.Price) {
	if _, exists := s.levels[price]; !exists {
		return
	}
	delete(s.levels, price)
	idx := sort.Search(len(s.prices), func(i int) bool { return !s.less(s.prices[i], price) })
	if idx < len(s.prices) && s.prices[idx] == price {
		s.prices = append(s.prices[:idx], s.prices[idx+1:]...)
	}
}

func (s *side) clear() {
	s.levels = make(map[ticks.Price]ticks.Quantity)
	s.prices = s.prices[:0]
}

func (s *side) best() (ticks.Price, ticks.Quantity) {
	if len(s.prices) == 0 {
		return 0, 0
	}
	p := s.prices[0]
	return p, s.levels[p]
}

func (s *side) top(n int) []Level {
	if n > len(s.prices) {
		n = len(s.prices)
	}
	out := make([]Level, n)
	for i := 0; i < n; i++ {
		p := s.prices[i]
		out[i] = Level{Price: p, Qty: s.levels[p]}
	}
	return out
}

// OrderBook is a single-writer L2 book for one instrument. All mutating
// methods must be called only by the owning distributor goroutine for
// that instrument; GetSnapshot is the one wait-free, any-goroutine-safe
// reader path, guarded by a mutex that is never held across anything but
// a copy.
type OrderBook struct {
	Instrument instrument.Instrument

	bids *side
	asks *side

	lastSequence uint64
	updateCount  uint64
	lastTsUs     int64

	snapMu sync.RWMutex // guards only the published snapshot fields below
}

// New creates a book for inst. Never destroyed for the process lifetime
// once created at subscription time.
func New(inst instrument.Instrument) *OrderBook {
	return &OrderBook{
		Instrument: inst,
		bids:       newSide(true),
		asks:       newSide(false),
	}
}

// ApplyEvent mutates the book. Returns false (no-op) if
// e.Sequence <= lastSequence, or if e targets a different instrument.
// A gap (e.Sequence > lastSequence+1) is applied anyway and flagged at
// Warn — the feed layer owns requesting a fresh snapshot, and the next
// one resets the book.
func (b *OrderBook) ApplyEvent(e Event) bool {
	if e.InstrumentID != b.Instrument.ID {
		return false
	}
	if e.Sequence <= b.lastSequence {
		log.Warn().
			Str("symbol", b.Instrument.Symbol).
			Uint64("sequence", e.Sequence).
			Uint64("last_sequence", b.lastSequence).
			Msg("book: out-of-order event dropped")
		return false
	}
	if b.lastSequence > 0 && e.Sequence > b.lastSequence+1 && e.Kind != Snapshot {
		log.Warn().
			Str("symbol", b.Instrument.Symbol).
			Uint64("sequence", e.Sequence).
			Uint64("last_sequence", b.lastSequence).
			Err(errs.ErrSequenceGap).
			Msg("book: sequence gap, awaiting feed resync")
	}

	b.snapMu.Lock()
	defer b.snapMu.Unlock()

	switch e.Kind {
	case Snapshot:
		b.bids.clear()
		b.asks.clear()
		for _, u := range e.Updates {
			b.applyLevel(u)
		}
	case Add, Update, Delete:
		for _, u := range e.Updates {
			b.applyLevel(u)
		}
	case Trade:
		// Trades don't mutate book levels; sequence/update bookkeeping
		// still applies so downstream consumers see monotone progress.
	}

	b.lastSequence = e.Sequence
	b.updateCount++
	b.lastTsUs = e.TimestampUs
	return true
}

func (b *OrderBook) applyLevel(u LevelUpdate) {
	s := b.sideFor(u.Side)
	if u.Qty.Zero() {
		s.remove(u.Price)
		return
	}
	s.set(u.Price, u.Qty)
}

func (b *OrderBook) sideFor(side ticks.Side) *side {
	if side == ticks.Buy {
		return b.bids
	}
	return b.asks
}

// BestBid returns (0,0) if the bid side is empty.
func (b *OrderBook) BestBid() (ticks.Price, ticks.Quantity) { return b.bids.best() }

// BestAsk returns (0,0) if the ask side is empty.
func (b *OrderBook) BestAsk() (ticks.Price, ticks.Quantity) { return b.asks.best() }

// GetSpread returns 0 if either side is empty.
func (b *OrderBook) GetSpread() ticks.Price {
	bidP, bidQ := b.BestBid()
	askP, askQ := b.BestAsk()
	if bidQ.Zero() || askQ.Zero() {
		return 0
	}
	return askP - bidP
}

// GetMidPrice returns 0 if either side is empty.
func (b *OrderBook) GetMidPrice() ticks.Price {
	bidP, bidQ := b.BestBid()
	askP, askQ := b.BestAsk()
	if bidQ.Zero() || askQ.Zero() {
		return 0
	}
	return (bidP + askP) / 2
}

// GetTopLevels returns the n best price levels on side, in priority order.
func (b *OrderBook) GetTopLevels(s ticks.Side, n int) []Level {
	return b.sideFor(s).top(n)
}

// LastSequence returns the last applied sequence number.
func (b *OrderBook) LastSequence() uint64 { return b.lastSequence }

// UpdateCount returns the number of events applied so far.
func (b *OrderBook) UpdateCount() uint64 { return b.updateCount }

// Snap is an immutable point-in-time copy of the book, safe to hand to
// any reader (UI, persistence) without synchronizing with the writer.
type Snap struct {
	Symbol       string
	Bids         []Level
	Asks         []Level
	UpdateCount  uint64
	LastSequence uint64
	TimestampUs  int64
}

// GetSnapshot returns a consistent copy of the book truncated to depth
// levels per side. Cheap enough to call from any goroutine — it is the
// intended out-of-hot-path read API.
func (b *OrderBook) GetSnapshot(depth int) Snap {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()
	return Snap{
		Symbol:       b.Instrument.Symbol,
		Bids:         b.bids.top(depth),
		Asks:         b.asks.top(depth),
		UpdateCount:  b.updateCount,
		LastSequence: b.lastSequence,
		TimestampUs:  b.lastTsUs,
	}
}

// ValidateIntegrity checks structural invariants: no crossed top-of-book,
// tick/lot alignment on every resting level. Used by tests and debug
// asserts, not the hot path.
func (b *OrderBook) ValidateIntegrity() error {
	bidP, bidQ := b.BestBid()
	askP, askQ := b.BestAsk()
	if !bidQ.Zero() && !askQ.Zero() && bidP >= askP {
		return errs.ErrStateViolation
	}
	for _, lvl := range b.bids.top(len(b.bids.prices)) {
		if err := checkAligned(b.Instrument, lvl); err != nil {
			return err
		}
	}
	for _, lvl := range b.asks.top(len(b.asks.prices)) {
		if err := checkAligned(b.Instrument, lvl); err != nil {
			return err
		}
	}
	return nil
}

func checkAligned(inst instrument.Instrument, lvl Level) error {
	if inst.TickSize > 0 && lvl.Price%inst.TickSize != 0 {
		return errs.ErrStateViolation
	}
	if inst.LotSize > 0 && lvl.Qty%inst.LotSize != 0 {
		return errs.ErrStateViolation
	}
	return nil
}
