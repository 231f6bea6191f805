package types

import "errors"

// Sentinel errors for the liquidation engine.
var (
	// Order errors
	ErrOrderRejected = errors.New("order rejected by broker")
	ErrOrderFreeze   = errors.New("order modifications frozen by exchange")
	ErrCancelFailed  = errors.New("order cancellation failed")

	// Data errors
	ErrSnapshotIncomplete = errors.New("market snapshot missing expected fields")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrPositionNotFound   = errors.New("position not found in portfolio")

	// Connection errors
	ErrNotConnected = errors.New("broker not connected")
	ErrRateLimited  = errors.New("rate limited by broker")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidBroker = errors.New("invalid broker code")
)
