// Package control implements the OMS control protocol: a single
// WebSocket client at a time drives quoting instances and reads back
// status, active orders, and fills via line-delimited JSON messages.
package control

import "encoding/json"

// Inbound command type names.
const (
	CmdUpdateParameters    = "UPDATE_PARAMETERS"
	CmdRetireInstance      = "RETIRE_INSTANCE"
	CmdGetInstanceStatuses = "GET_INSTANCE_STATUSES"
	CmdGetActiveOrders     = "GET_ACTIVE_ORDERS"
	CmdGetFills            = "GET_FILLS"
)

// Outbound event type names.
const (
	EventAck              = "ACK"
	EventInstanceStatus   = "INSTANCE_STATUS"
	EventActiveOrdersList = "ACTIVE_ORDERS_LIST"
	EventFillsList        = "FILLS_LIST"
	EventQuotePairUpdate  = "QUOTEPAIR_UPDATE"
	EventError            = "ERROR"
)

// inboundEnvelope is the shape every line of client input is first
// decoded into; Payload is re-decoded per command once Type is known.
type inboundEnvelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// outboundEnvelope is the shape every emitted line takes.
type outboundEnvelope struct {
	Type          string      `json:"type"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
}

// ackPayload acknowledges an inbound command.
type ackPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// errorPayload reports a command that could not be carried out.
type errorPayload struct {
	Message string `json:"message"`
}

// retireInstancePayload is RETIRE_INSTANCE's payload.
type retireInstancePayload struct {
	InstrumentID int32 `json:"instrument_id"`
}

// updateParametersPayload is UPDATE_PARAMETERS' payload.
type updateParametersPayload struct {
	InstrumentID int32         `json:"instrument_id"`
	Parameters   QuotingUpdate `json:"parameters"`
}

// QuotingUpdate is the wire shape of a quoting parameter change, in
// human units — bps and decimal size, not ticks.Price/ticks.Quantity.
type QuotingUpdate struct {
	BidSpreadBps int64  `json:"bid_spread_bps"`
	AskSpreadBps int64  `json:"ask_spread_bps"`
	SkewBps      int64  `json:"skew_bps"`
	Size         string `json:"size"`
	PostOnly     bool   `json:"post_only"`
	Depth        int    `json:"depth"`
}

// getFillsPayload is GET_FILLS' payload: either an instrument filter or
// a date filter (RFC3339), mutually exclusive.
type getFillsPayload struct {
	InstrumentID *int32 `json:"instrument_id,omitempty"`
	Date         string `json:"date,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// instanceStatus is one entry of an INSTANCE_STATUS event.
type instanceStatus struct {
	OMSIdentifier string        `json:"oms_identifier"`
	InstrumentID  int32         `json:"instrument_id"`
	IsActive      bool          `json:"is_active"`
	Parameters    QuotingUpdate `json:"parameters"`
}

// activeOrder is one entry of an ACTIVE_ORDERS_LIST event.
type activeOrder struct {
	ClientOrderID   uint64 `json:"client_order_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
	InstrumentID    int32  `json:"instrument_id"`
	Side            string `json:"side"`
	Status          string `json:"status"`
	Price           string `json:"price"`
	LeavesQuantity  string `json:"leaves_quantity"`
}

// fillRecord is one entry of a FILLS_LIST event.
type fillRecord struct {
	InstrumentID    int32  `json:"instrument_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
	ExecID          string `json:"exec_id"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	Quantity        string `json:"quantity"`
	TimestampUs     int64  `json:"timestamp_us"`
}

// quotePairEvent is QUOTEPAIR_UPDATE's payload.
type quotePairEvent struct {
	InstrumentID int32  `json:"instrument_id"`
	BidPrice     string `json:"bid_price"`
	AskPrice     string `json:"ask_price"`
	Size         string `json:"size"`
	TimestampUs  int64  `json:"timestamp_us"`
}
