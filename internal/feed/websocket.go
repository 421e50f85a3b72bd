package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/book"
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultPingInterval   = 30 * time.Second
)

// wireMessage is the normalized wire shape every exchange's raw payload
// is translated into before reaching WebSocketAdapter.processMessage.
// A venue-specific adapter would parse its own JSON into this shape
// instead of reusing the raw bytes as-is; WebSocketAdapter ships with
// this one schema as its reference translation.
type wireMessage struct {
	EventType string     `json:"event_type"` // "snapshot" | "update" | "trade"
	Symbol    string     `json:"symbol"`
	Sequence  uint64     `json:"sequence"`
	Bids      [][]string `json:"bids"` // [price, qty]
	Asks      [][]string `json:"asks"`
	Side      string     `json:"side"` // for trade events
	Price     string     `json:"price"`
	Qty       string     `json:"qty"`
}

// WebSocketAdapter is the reference Adapter implementation: a
// reconnect-loop WebSocket client that emits book.Event values from the
// wire messages it decodes.
type WebSocketAdapter struct {
	Dispatcher

	exchange string
	url      string
	registry *instrument.Registry

	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	symbols []string
}

// NewWebSocketAdapter creates an adapter for exchange, dialing url,
// resolving inbound symbols against registry.
func NewWebSocketAdapter(exchange, url string, registry *instrument.Registry) *WebSocketAdapter {
	return &WebSocketAdapter{
		exchange:       exchange,
		url:            url,
		registry:       registry,
		reconnectDelay: defaultReconnectDelay,
		pingInterval:   defaultPingInterval,
	}
}

// Connect starts the connection loop in the background. It returns once
// running is set; the first dial happens asynchronously, with failures
// reported via OnConnectionStateChanged/OnError and retried forever
// (honoring ctx cancellation) rather than failing Connect outright —
// a feed is expected to recover from transient venue outages on its own.
func (a *WebSocketAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	go a.connectionLoop(ctx)
	log.Info().Str("exchange", a.exchange).Msg("feed adapter started")
	return nil
}

// Disconnect stops the connection loop and closes any live socket.
func (a *WebSocketAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false
	close(a.stopCh)
	if a.conn != nil {
		a.conn.Close()
	}
	return nil
}

// Subscribe records the symbols to request on (re)connect and, if a
// socket is already open, sends the subscribe message immediately.
func (a *WebSocketAdapter) Subscribe(exchange, productType string, symbols []string) error {
	a.mu.Lock()
	a.symbols = append(a.symbols, symbols...)
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	return a.sendSubscribe(conn, symbols)
}

func (a *WebSocketAdapter) sendSubscribe(conn *websocket.Conn, symbols []string) error {
	msg := map[string]interface{}{
		"type":    "subscribe",
		"symbols": symbols,
	}
	return conn.WriteJSON(msg)
}

func (a *WebSocketAdapter) connectionLoop(ctx context.Context) {
	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			a.Disconnect()
			return
		default:
		}

		if err := a.connect(); err != nil {
			a.emitError(fmt.Errorf("%s: connect: %w", a.exchange, err))
			a.emitConnState(ConnectionState{Exchange: a.exchange, IsConnected: false, Reason: err.Error()})
			select {
			case <-time.After(a.reconnectDelay):
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		a.emitConnState(ConnectionState{Exchange: a.exchange, IsConnected: true})
		a.readLoop()
		a.emitConnState(ConnectionState{Exchange: a.exchange, IsConnected: false, Reason: "read loop exited"})

		select {
		case <-time.After(a.reconnectDelay):
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *WebSocketAdapter) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(a.url, nil)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.connected = true
	symbols := append([]string(nil), a.symbols...)
	a.mu.Unlock()

	log.Info().Str("exchange", a.exchange).Str("url", a.url).Msg("feed adapter connected")

	if len(symbols) > 0 {
		if err := a.sendSubscribe(conn, symbols); err != nil {
			return err
		}
	}

	go a.pingLoop()
	return nil
}

func (a *WebSocketAdapter) pingLoop() {
	ticker := time.NewTicker(a.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.mu.RLock()
			conn, connected := a.conn, a.connected
			a.mu.RUnlock()
			if connected && conn != nil {
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (a *WebSocketAdapter) readLoop() {
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		a.mu.RLock()
		conn := a.conn
		a.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			a.connected = false
			a.mu.Unlock()
			if !errors.Is(err, websocket.ErrCloseSent) {
				a.emitError(fmt.Errorf("%s: read: %w", a.exchange, err))
			}
			return
		}
		a.processMessage(data)
	}
}

func (a *WebSocketAdapter) processMessage(data []byte) {
	var msgs []wireMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		var single wireMessage
		if err := json.Unmarshal(data, &single); err != nil {
			a.emitError(fmt.Errorf("%s: malformed message: %w", a.exchange, err))
			return
		}
		msgs = []wireMessage{single}
	}

	for _, msg := range msgs {
		ev, ok := a.toEvent(msg)
		if !ok {
			continue
		}
		a.emitMarketData(MarketDataReceived{Exchange: a.exchange, Event: ev})
	}
}

func (a *WebSocketAdapter) toEvent(msg wireMessage) (book.Event, bool) {
	inst, ok := a.registry.BySymbol(msg.Symbol)
	if !ok {
		a.emitError(fmt.Errorf("%s: unknown symbol %q", a.exchange, msg.Symbol))
		return book.Event{}, false
	}

	ev := book.Event{
		Sequence:       msg.Sequence,
		TimestampUs:    time.Now().UnixMicro(),
		InstrumentID:   inst.ID,
		SourceExchange: a.exchange,
	}

	switch msg.EventType {
	case "snapshot":
		ev.Kind = book.Snapshot
		ev.Updates = append(levelUpdates(ticks.Buy, msg.Bids), levelUpdates(ticks.Sell, msg.Asks)...)
	case "update":
		ev.Kind = book.Update
		ev.Updates = append(levelUpdates(ticks.Buy, msg.Bids), levelUpdates(ticks.Sell, msg.Asks)...)
	case "trade":
		side := ticks.Buy
		if msg.Side == "sell" {
			side = ticks.Sell
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			return book.Event{}, false
		}
		qty, err := decimal.NewFromString(msg.Qty)
		if err != nil {
			return book.Event{}, false
		}
		ev.Kind = book.Trade
		ev.Updates = []book.LevelUpdate{{Side: side, Price: ticks.FromDecimal(price), Qty: ticks.QuantityFromDecimal(qty)}}
	default:
		return book.Event{}, false
	}

	return ev, true
}

func levelUpdates(side ticks.Side, levels [][]string) []book.LevelUpdate {
	out := make([]book.LevelUpdate, 0, len(levels))
	for _, lvl := range levels {
		if len(lvl) != 2 {
			continue
		}
		price, err := decimal.NewFromString(lvl[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			continue
		}
		out = append(out, book.LevelUpdate{Side: side, Price: ticks.FromDecimal(price), Qty: ticks.QuantityFromDecimal(qty)})
	}
	return out
}
