// Package errs defines the OMS error taxonomy as sentinel errors so
// callers can classify a failure with errors.Is instead of parsing
// strings.
package errs

import "errors"

var (
	// ErrInputInvalid marks a malformed or unrecognized message from a
	// feed or gateway (unknown instrument id, malformed payload). The
	// event is dropped and the process continues.
	ErrInputInvalid = errors.New("oms: invalid input")

	// ErrStateViolation marks an FSM or invariant breach, e.g. replacing
	// a terminal order. Returned to the caller; no state change occurs.
	ErrStateViolation = errors.New("oms: state violation")

	// ErrTransientRPC marks a gateway RPC that the exchange rejected or
	// that timed out locally. The caller decides how to react (algo
	// orders re-evaluate on the next tick; the hedger rolls back).
	ErrTransientRPC = errors.New("oms: transient rpc error")

	// ErrSequenceGap marks a book that observed sequence > last+1. The
	// book applies the gapped event anyway and advances last_sequence to
	// it; the feed layer is responsible for requesting a resync.
	ErrSequenceGap = errors.New("oms: sequence gap")

	// ErrConfiguration marks a missing key or file at startup. Fatal —
	// the process exits.
	ErrConfiguration = errors.New("oms: configuration error")
)
