// Package marketdata implements the single-producer, bounded ring buffer
// that fans market data events out to per-instrument order books and
// registered subscribers.
package marketdata

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/book"
	"github.com/web3guy0/quantoms/internal/instrument"
)

// BookSink is satisfied by both book.OrderBook and book.BestOrderBook —
// the distributor doesn't care which L1/L2 shape an instrument's book
// uses, only that it can be handed an Event.
type BookSink interface {
	ApplyEvent(e book.Event) bool
}

// Subscriber receives every event for the instruments it subscribed to.
// Callbacks run on the distributor's single consumer goroutine and must
// not block — anything that needs to issue an RPC (e.g.
// an AlgoOrder re-pricing) must hand off via a fire-and-forget goroutine.
type Subscriber func(e book.Event)

type subscriptionKey struct {
	instrumentID instrument.ID
	key          string
}

// topicStats tracks drop counts and end-to-end latency for one
// (exchange, instrument) topic.
type topicStats struct {
	dropped   int64
	delivered int64
	latencyUs int64 // running sum, for a crude mean; buckets are overkill here
}

// Distributor is the single-producer-multi-consumer ring buffer that
// fans market data out to order books and subscribers. Events are
// published by any producer goroutine (typically one per feed adapter)
// onto a bounded channel; exactly one consumer goroutine drains it,
// mutates books, and invokes subscriber callbacks, preserving
// per-instrument ordering.
type Distributor struct {
	ring chan wrapper

	booksMu sync.RWMutex
	books   map[instrument.ID]BookSink

	subsMu sync.RWMutex
	subs   map[instrument.ID][]subscriberEntry

	statsMu sync.Mutex
	stats   map[string]*topicStats

	stopCh  chan struct{}
	stopped atomic.Bool
}

type subscriberEntry struct {
	key string
	cb  Subscriber
}

type wrapper struct {
	event book.Event
}

// DefaultCapacity is the ring's power-of-two capacity.
const DefaultCapacity = 1024

// New creates a Distributor with the default capacity.
func New() *Distributor {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Distributor with an explicit ring capacity
// (should be a power of two, not enforced here since
// Go channels don't require it).
func NewWithCapacity(capacity int) *Distributor {
	return &Distributor{
		ring:   make(chan wrapper, capacity),
		books:  make(map[instrument.ID]BookSink),
		subs:   make(map[instrument.ID][]subscriberEntry),
		stats:  make(map[string]*topicStats),
		stopCh: make(chan struct{}),
	}
}

// RegisterBook attaches the order book (or best-order-book) that owns
// instrument id. Called once at subscription time, before Publish is
// ever invoked for that instrument.
func (d *Distributor) RegisterBook(id instrument.ID, sink BookSink) {
	d.booksMu.Lock()
	defer d.booksMu.Unlock()
	d.books[id] = sink
}

// SubscribeOrderBook registers cb under key for instrument id. Callable
// from any goroutine.
func (d *Distributor) SubscribeOrderBook(id instrument.ID, key string, cb Subscriber) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	d.subs[id] = append(d.subs[id], subscriberEntry{key: key, cb: cb})
}

// UnsubscribeOrderBook removes the subscription registered under key for
// instrument id, if any.
func (d *Distributor) UnsubscribeOrderBook(id instrument.ID, key string) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	entries := d.subs[id]
	for i, e := range entries {
		if e.key == key {
			d.subs[id] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Publish enqueues e for dispatch. If the ring is full the event is
// dropped and the topic's dropped-count statistic is incremented — the
// writer never blocks.
func (d *Distributor) Publish(e book.Event) {
	select {
	case d.ring <- wrapper{event: e}:
	default:
		d.recordDrop(e)
		log.Warn().
			Uint64("sequence", e.Sequence).
			Str("exchange", e.SourceExchange).
			Int("instrument_id", int(e.InstrumentID)).
			Msg("marketdata: ring full, event dropped")
	}
}

func (d *Distributor) recordDrop(e book.Event) {
	s := d.statFor(e)
	atomic.AddInt64(&s.dropped, 1)
}

func (d *Distributor) statFor(e book.Event) *topicStats {
	key := topicKey(e.SourceExchange, e.InstrumentID)
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s, ok := d.stats[key]
	if !ok {
		s = &topicStats{}
		d.stats[key] = s
	}
	return s
}

func topicKey(exchange string, id instrument.ID) string {
	return exchange + ":" + strconv.Itoa(int(id))
}

// Run drains the ring on the calling goroutine until Stop is called. The
// caller is expected to invoke this as `go distributor.Run()` — it is the
// single consumer goroutine that owns every book mutation and every
// subscriber callback.
func (d *Distributor) Run() {
	for {
		select {
		case <-d.stopCh:
			return
		case w := <-d.ring:
			d.dispatch(w.event)
		}
	}
}

func (d *Distributor) dispatch(e book.Event) {
	start := time.Now()

	d.booksMu.RLock()
	sink, ok := d.books[e.InstrumentID]
	d.booksMu.RUnlock()
	if ok {
		sink.ApplyEvent(e)
	}

	d.subsMu.RLock()
	entries := append([]subscriberEntry(nil), d.subs[e.InstrumentID]...)
	d.subsMu.RUnlock()
	for _, entry := range entries {
		entry.cb(e)
	}

	if e.TimestampUs > 0 {
		latency := start.UnixMicro() - e.TimestampUs
		if latency < 0 {
			latency = 0
		}
		s := d.statFor(e)
		atomic.AddInt64(&s.delivered, 1)
		atomic.AddInt64(&s.latencyUs, latency)
	}
}

// Stop halts the consumer goroutine started by Run.
func (d *Distributor) Stop() {
	if d.stopped.CompareAndSwap(false, true) {
		close(d.stopCh)
	}
}

// TopicStatsSnapshot is a point-in-time read of one topic's counters.
type TopicStatsSnapshot struct {
	Topic             string
	Dropped           int64
	Delivered         int64
	MeanLatencyMicros int64
}

// Stats returns a snapshot of every topic's dropped/delivered counters
// and mean end-to-end latency.
func (d *Distributor) Stats() []TopicStatsSnapshot {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	out := make([]TopicStatsSnapshot, 0, len(d.stats))
	for topic, s := range d.stats {
		delivered := atomic.LoadInt64(&s.delivered)
		mean := int64(0)
		if delivered > 0 {
			mean = atomic.LoadInt64(&s.latencyUs) / delivered
		}
		out = append(out, TopicStatsSnapshot{
			Topic:             topic,
			Dropped:           atomic.LoadInt64(&s.dropped),
			Delivered:         delivered,
			MeanLatencyMicros: mean,
		})
	}
	return out
}
