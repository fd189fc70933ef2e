package modbus

import "go.uber.org/zap"

// Transport is the shared contract the Master drives (spec §4.3–§4.5): it
// owns the in-flight transaction(s) for one Connection and reconciles
// inbound bytes against them. Each concrete transport serializes all of
// its own state behind a single mutex, satisfying spec §5's single
// ownership boundary per connection.
type Transport interface {
	// SendRequest hands tx to the transport and arms its timer via
	// Transaction.Start. RTU and IP encode tx's ADU (caching it on the
	// transaction) and write it to the connection at once; Tunnel queues
	// tx and ships its request in the reply to the next matching poll.
	// It returns errTooManyRequests
	// synchronously, without touching the connection, if the transport's
	// concurrency gate has no room (spec §4.3/§4.4/§4.5).
	SendRequest(tx *Transaction) error
	// Close tears down the underlying connection.
	Close() error
	// HandleClosed is invoked once by the Master when the underlying
	// connection closes; it fails every transaction the transport still
	// owns with ConnectionClosed (spec §4.6).
	HandleClosed()
}

// minEOFTimeout is the floor spec §4.3 places on the RTU/Tunnel
// inter-character end-of-frame timer.
const minEOFTimeout = 1

// defaultEOFTimeoutMillis is spec §4.3's default end-of-frame timer, used
// when a faithful per-baud-rate 3.5-character-time estimate is not
// configured.
const defaultEOFTimeoutMillis = 10

// rtuADU builds the unit+pdu+CRC frame shared by the RTU and Tunnel
// transports (spec §4.3 framing: `[unit(1)] [pdu(N)] [crc(2, LE)]`).
func rtuADU(req Request, unit byte) []byte {
	frame := make([]byte, 0, 1+8+2)
	frame = append(frame, unit)
	frame = append(frame, req.ToBytes()...)
	return appendCRC(frame)
}

// noopLogger returns log unless it is nil, in which case it returns a
// no-op logger; every transport constructor funnels through this so a
// caller may omit a *zap.Logger.
func noopLogger(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
