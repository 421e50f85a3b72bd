package position

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// Limiter is the position-limit gate QuotingInstance consults before
// submitting a quote pair: a cheap, synchronous check in front of the
// hot path, not a kill switch.
type Limiter struct {
	mu          sync.RWMutex
	maxPosition map[instrument.ID]ticks.Quantity
}

// NewLimiter creates a Limiter with no configured limits; instruments
// without a configured max_position are unrestricted.
func NewLimiter() *Limiter {
	return &Limiter{maxPosition: make(map[instrument.ID]ticks.Quantity)}
}

// SetMaxPosition configures the absolute position limit for id.
func (l *Limiter) SetMaxPosition(id instrument.ID, max ticks.Quantity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPosition[id] = max
}

// Allow reports whether adding quoteSize (signed by side) to current
// would keep the resulting position within the configured limit. A
// rejection is routine risk management, not an error — callers should
// log at Warn and skip the offending side for this quoting cycle.
func (l *Limiter) Allow(id instrument.ID, current ticks.Quantity, side ticks.Side, quoteSize ticks.Quantity) bool {
	l.mu.RLock()
	max, ok := l.maxPosition[id]
	l.mu.RUnlock()
	if !ok || max <= 0 {
		return true
	}

	projected := current + ticks.Quantity(side.Sign())*quoteSize
	if projected < 0 {
		projected = -projected
	}
	allowed := projected <= max
	if !allowed {
		log.Warn().
			Int("instrument_id", int(id)).
			Int64("current", int64(current)).
			Int64("max_position", int64(max)).
			Str("side", side.String()).
			Msg("position: quote would exceed max_position, skipping side")
	}
	return allowed
}
