package modbus

import (
	"time"

	"go.uber.org/zap"
)

// TransportKind selects a Master's framing state machine (spec §4.6).
type TransportKind int

const (
	TransportIP TransportKind = iota
	TransportRTU
	TransportTunnel
)

func (k TransportKind) String() string {
	switch k {
	case TransportIP:
		return "ip"
	case TransportRTU:
		return "rtu"
	case TransportTunnel:
		return "tunnel"
	}
	return "unknown"
}

// Config holds a Master's explicit options, each with the effect spec
// §4.6 documents.
type Config struct {
	// Transport selects the framing state machine.
	Transport TransportKind
	// SuppressTransactionErrors is stored but not read by the Master, the
	// transports or Transaction: errors are emitted on the transaction's
	// events and passed to the completion callback the same way whether
	// it is set or not.
	SuppressTransactionErrors bool
	// RetryOnException, if true, retries MODBUS exception responses up
	// to DefaultMaxRetries; if false, an exception completes the
	// transaction at once, passing the ExceptionResponse together with a
	// KindModbusException error.
	RetryOnException bool
	// MaxConcurrentRequests gates concurrent in-flight transactions;
	// requests beyond it queue in FIFO order.
	MaxConcurrentRequests uint16
	// DefaultUnit targets requests that do not override the unit
	// per-call.
	DefaultUnit byte
	// DefaultMaxRetries is the initial retry budget for a transaction
	// that does not override it per-call.
	DefaultMaxRetries uint8
	// DefaultTimeout is the per-attempt timeout for a transaction that
	// does not override it per-call.
	DefaultTimeout time.Duration
	// RTUEOFTimeout overrides the RTU/Tunnel end-of-frame idle timer; a
	// zero value takes the spec §4.3 default of 10ms.
	RTUEOFTimeout time.Duration
	// RTUEnableEcho enables RTU optical-coupler echo suppression (spec
	// §4.3).
	RTUEnableEcho bool
	// TunnelSlaveID is our slave id on the bus for the Tunnel transport
	// (spec §4.5).
	TunnelSlaveID byte

	// Logger receives structured logs from the Master and its transport;
	// nil falls back to a no-op logger.
	Logger *zap.Logger
}

// requestOptions collects the per-call overrides a RequestOption may set
// (spec §4.6: "per-call overrides of unit/maxRetries/timeout").
type requestOptions struct {
	unit       *byte
	maxRetries *uint8
	timeout    *time.Duration
}

// RequestOption overrides a single Master call's unit, retry budget, or
// per-attempt timeout away from the Config defaults.
type RequestOption func(*requestOptions)

// WithUnit overrides the target unit for one call.
func WithUnit(unit byte) RequestOption {
	return func(o *requestOptions) { o.unit = &unit }
}

// WithMaxRetries overrides the retry budget for one call.
func WithMaxRetries(maxRetries uint8) RequestOption {
	return func(o *requestOptions) { o.maxRetries = &maxRetries }
}

// WithTimeout overrides the per-attempt timeout for one call.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = &timeout }
}

func (c *Config) resolve(opts []RequestOption) (unit byte, maxRetries uint8, timeout time.Duration) {
	unit, maxRetries, timeout = c.DefaultUnit, c.DefaultMaxRetries, c.DefaultTimeout
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.unit != nil {
		unit = *ro.unit
	}
	if ro.maxRetries != nil {
		maxRetries = *ro.maxRetries
	}
	if ro.timeout != nil {
		timeout = *ro.timeout
	}
	return unit, maxRetries, timeout
}
