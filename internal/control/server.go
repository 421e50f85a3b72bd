package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/persistence"
	"github.com/web3guy0/quantoms/internal/quoting"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

// OrderView is the read surface the control protocol needs from a
// registered router.Routable to answer GET_ACTIVE_ORDERS — defined at
// the consumer since router.Routable itself only exposes enough to
// route reports. *order.Order satisfies this.
type OrderView interface {
	ClientOrderID() uint64
	ExchangeOrderID() string
	InstrumentID() instrument.ID
	Side() ticks.Side
	Status() router.OrderStatus
	Price() ticks.Price
	LeavesQuantity() ticks.Quantity
}

const outboundQueueSize = 256

// Server is the OMS control-protocol endpoint: one WebSocket client at
// a time, line-delimited JSON commands in, events out. A second
// connection attempt is rejected with HTTP 409 while one is active.
type Server struct {
	addr          string
	omsIdentifier string
	rtr           *router.Router
	fillStore     *persistence.FillStore
	upgrader      websocket.Upgrader

	connMu sync.Mutex
	conn   *websocket.Conn
	outCh  chan outboundEnvelope

	instancesMu sync.RWMutex
	instances   map[instrument.ID]*quoting.QuotingInstance
}

// New creates a control Server listening on addr.
func New(addr, omsIdentifier string, rtr *router.Router, fillStore *persistence.FillStore) *Server {
	return &Server{
		addr:          addr,
		omsIdentifier: omsIdentifier,
		rtr:           rtr,
		fillStore:     fillStore,
		upgrader:      websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		instances:     make(map[instrument.ID]*quoting.QuotingInstance),
	}
}

// RegisterInstance makes inst visible to GET_INSTANCE_STATUSES and
// UPDATE_PARAMETERS/RETIRE_INSTANCE, and wires its QuotePair stream into
// QUOTEPAIR_UPDATE broadcasts.
func (s *Server) RegisterInstance(inst *quoting.QuotingInstance) {
	s.instancesMu.Lock()
	s.instances[inst.InstrumentID()] = inst
	s.instancesMu.Unlock()

	inst.Subscribe(func(qp quoting.QuotePair) {
		s.broadcast(outboundEnvelope{
			Type: EventQuotePairUpdate,
			Payload: quotePairEvent{
				InstrumentID: int32(qp.InstrumentID),
				BidPrice:     qp.BidPrice.ToDecimal().String(),
				AskPrice:     qp.AskPrice.ToDecimal().String(),
				Size:         qp.Size.ToDecimal().String(),
				TimestampUs:  qp.TimestampUs,
			},
		})
	})
}

// Start runs the HTTP/WebSocket listener on its own goroutine and blocks
// until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("control: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.connMu.Lock()
	if s.conn != nil {
		s.connMu.Unlock()
		http.Error(w, "control: a session is already active", http.StatusConflict)
		return
	}
	s.connMu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("control: upgrade failed")
		return
	}

	outCh := make(chan outboundEnvelope, outboundQueueSize)
	s.connMu.Lock()
	s.conn = conn
	s.outCh = outCh
	s.connMu.Unlock()

	log.Info().Str("remote", r.RemoteAddr).Msg("control: client connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(conn, outCh)
	}()

	s.readLoop(conn)

	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.outCh = nil
	}
	s.connMu.Unlock()
	close(outCh)
	wg.Wait()
	conn.Close()
	log.Info().Str("remote", r.RemoteAddr).Msg("control: client disconnected")
}

func (s *Server) writeLoop(conn *websocket.Conn, ch <-chan outboundEnvelope) {
	for env := range ch {
		if err := conn.WriteJSON(env); err != nil {
			log.Warn().Err(err).Msg("control: write failed")
			return
		}
	}
}

// readLoop treats each WebSocket text frame as one line-delimited JSON
// command — gorilla/websocket already frames messages, so there is no
// need to scan for embedded newlines.
func (s *Server) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			s.handleLine(line)
		}
	}
}

func (s *Server) handleLine(line []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		s.sendError("", fmt.Sprintf("malformed message: %v", err))
		return
	}

	switch env.Type {
	case CmdUpdateParameters:
		s.handleUpdateParameters(env)
	case CmdRetireInstance:
		s.handleRetireInstance(env)
	case CmdGetInstanceStatuses:
		s.handleGetInstanceStatuses(env)
	case CmdGetActiveOrders:
		s.handleGetActiveOrders(env)
	case CmdGetFills:
		s.handleGetFills(env)
	default:
		s.sendError(env.CorrelationID, fmt.Sprintf("unknown command type %q", env.Type))
	}
}

func (s *Server) handleUpdateParameters(env inboundEnvelope) {
	var payload updateParametersPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.sendError(env.CorrelationID, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	inst, ok := s.instance(instrument.ID(payload.InstrumentID))
	if !ok {
		s.sendError(env.CorrelationID, fmt.Sprintf("unknown instrument_id %d", payload.InstrumentID))
		return
	}

	size, err := decimal.NewFromString(payload.Parameters.Size)
	if err != nil {
		s.sendError(env.CorrelationID, fmt.Sprintf("invalid size %q: %v", payload.Parameters.Size, err))
		return
	}

	current := inst.Params()
	current.BidSpreadBps = payload.Parameters.BidSpreadBps
	current.AskSpreadBps = payload.Parameters.AskSpreadBps
	current.SkewBps = payload.Parameters.SkewBps
	current.Size = ticks.QuantityFromDecimal(size)
	current.PostOnly = payload.Parameters.PostOnly
	current.Depth = payload.Parameters.Depth
	inst.UpdateParameters(current)

	s.sendAck(env.CorrelationID, true, "")
}

func (s *Server) handleRetireInstance(env inboundEnvelope) {
	var payload retireInstancePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.sendError(env.CorrelationID, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	inst, ok := s.instance(instrument.ID(payload.InstrumentID))
	if !ok {
		s.sendError(env.CorrelationID, fmt.Sprintf("unknown instrument_id %d", payload.InstrumentID))
		return
	}

	inst.Retire(context.Background())
	s.sendAck(env.CorrelationID, true, "")
}

func (s *Server) handleGetInstanceStatuses(env inboundEnvelope) {
	s.instancesMu.RLock()
	out := make([]instanceStatus, 0, len(s.instances))
	for id, inst := range s.instances {
		p := inst.Params()
		out = append(out, instanceStatus{
			OMSIdentifier: s.omsIdentifier,
			InstrumentID:  int32(id),
			IsActive:      inst.Active(),
			Parameters: QuotingUpdate{
				BidSpreadBps: p.BidSpreadBps,
				AskSpreadBps: p.AskSpreadBps,
				SkewBps:      p.SkewBps,
				Size:         p.Size.ToDecimal().String(),
				PostOnly:     p.PostOnly,
				Depth:        p.Depth,
			},
		})
	}
	s.instancesMu.RUnlock()

	s.enqueue(outboundEnvelope{Type: EventInstanceStatus, CorrelationID: env.CorrelationID, Payload: out})
}

func (s *Server) handleGetActiveOrders(env inboundEnvelope) {
	routables := s.rtr.ActiveOrders()
	out := make([]activeOrder, 0, len(routables))
	for _, ro := range routables {
		ov, ok := ro.(OrderView)
		if !ok {
			continue
		}
		out = append(out, activeOrder{
			ClientOrderID:   ov.ClientOrderID(),
			ExchangeOrderID: ov.ExchangeOrderID(),
			InstrumentID:    int32(ov.InstrumentID()),
			Side:            ov.Side().String(),
			Status:          string(ov.Status()),
			Price:           ov.Price().ToDecimal().String(),
			LeavesQuantity:  ov.LeavesQuantity().ToDecimal().String(),
		})
	}

	s.enqueue(outboundEnvelope{Type: EventActiveOrdersList, CorrelationID: env.CorrelationID, Payload: out})
}

func (s *Server) handleGetFills(env inboundEnvelope) {
	var payload getFillsPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			s.sendError(env.CorrelationID, fmt.Sprintf("invalid payload: %v", err))
			return
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	var records []persistence.FillRecord
	var err error
	switch {
	case payload.InstrumentID != nil:
		records, err = s.fillStore.ByInstrument(instrument.ID(*payload.InstrumentID), payload.Limit)
	case payload.Date != "":
		day, parseErr := time.Parse(time.RFC3339, payload.Date)
		if parseErr != nil {
			s.sendError(env.CorrelationID, fmt.Sprintf("invalid date %q: %v", payload.Date, parseErr))
			return
		}
		records, err = s.fillStore.ByDate(day)
	default:
		records, err = s.fillStore.ByDate(time.Now().UTC())
	}
	if err != nil {
		s.sendError(env.CorrelationID, fmt.Sprintf("fills lookup failed: %v", err))
		return
	}

	out := make([]fillRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, fillRecord{
			InstrumentID:    rec.InstrumentID,
			ExchangeOrderID: rec.ExchangeOrderID,
			ExecID:          rec.ExecID,
			Side:            rec.Side,
			Price:           rec.Price.String(),
			Quantity:        rec.Quantity.String(),
			TimestampUs:     rec.TimestampUs,
		})
	}

	s.enqueue(outboundEnvelope{Type: EventFillsList, CorrelationID: env.CorrelationID, Payload: out})
}

func (s *Server) instance(id instrument.ID) (*quoting.QuotingInstance, bool) {
	s.instancesMu.RLock()
	defer s.instancesMu.RUnlock()
	inst, ok := s.instances[id]
	return inst, ok
}

func (s *Server) sendAck(correlationID string, success bool, message string) {
	s.enqueue(outboundEnvelope{
		Type:          EventAck,
		CorrelationID: correlationID,
		Payload:       ackPayload{Success: success, Message: message},
	})
}

func (s *Server) sendError(correlationID, message string) {
	s.enqueue(outboundEnvelope{
		Type:          EventError,
		CorrelationID: correlationID,
		Payload:       errorPayload{Message: message},
	})
}

// enqueue hands env to the active connection's write loop. Dropped
// silently (with a log) if no client is connected — the control
// protocol has no durability guarantee, only the current session's.
func (s *Server) enqueue(env outboundEnvelope) {
	s.connMu.Lock()
	ch := s.outCh
	s.connMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- env:
	default:
		log.Warn().Str("type", env.Type).Msg("control: outbound queue full, event dropped")
	}
}

// broadcast is enqueue for events with no originating request
// (QUOTEPAIR_UPDATE), kept as a distinct name since callers outside
// this file reach it through RegisterInstance's subscription, not a
// command handler.
func (s *Server) broadcast(env outboundEnvelope) {
	s.enqueue(env)
}
