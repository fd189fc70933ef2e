package modbus

import (
	"sync"

	"github.com/GoAethereal/cancel"
	"go.uber.org/zap"
)

// Master is a MODBUS client: it owns one Transport over one Connection
// and exposes one operation per supported function code plus a low-level
// Do escape hatch (spec §4.6).
type Master struct {
	mu sync.Mutex

	cfg       Config
	conn      Connection
	transport Transport
	log       *zap.Logger

	connected bool
	destroyed bool
	queue     []*Transaction
	live      map[*Transaction]struct{}
}

// NewMaster builds the transport selected by cfg.Transport over conn and
// wires connection-state bridging (spec §4.6): on the connection's first
// open the master becomes connected and drains its pre-connection queue;
// on close, in-flight transactions are failed with ConnectionClosed and
// queued ones are cancelled.
//
// ctx governs the master's own lifetime, in the teacher's own idiom
// (config.go's listen/connection both took a cancel.Context watchdog):
// once ctx is done, Destroy is called automatically.
func NewMaster(ctx cancel.Context, cfg Config, conn Connection) *Master {
	log := noopLogger(cfg.Logger)
	m := &Master{
		cfg:  cfg,
		conn: conn,
		log:  log,
		live: make(map[*Transaction]struct{}),
	}
	switch cfg.Transport {
	case TransportRTU:
		m.transport = NewRTUTransport(conn, cfg.RTUEOFTimeout, cfg.RTUEnableEcho, log)
	case TransportTunnel:
		m.transport = NewTunnelTransport(conn, cfg.TunnelSlaveID, cfg.RTUEOFTimeout, log)
	default:
		m.transport = NewIPTransport(conn, cfg.MaxConcurrentRequests, log)
	}
	conn.OnOpen(m.onOpen)
	conn.OnClose(m.onClose)
	if ctx != nil {
		go func() {
			<-ctx.Done()
			m.Destroy()
		}()
	}
	return m
}

func (m *Master) onOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.drainLocked()
}

func (m *Master) onClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.transport.HandleClosed()
	// Queued transactions never reached Start, so they are cancelled
	// rather than failed (spec §4.2: handleError only applies in-flight).
	for _, tx := range m.queue {
		tx.Cancel()
	}
	m.queue = nil
}

// drainLocked attempts to hand every queued transaction to the transport,
// in FIFO order, stopping at the first one the transport's concurrency
// gate rejects (spec §4.6's retry loop: "the queue is only drained when
// the concurrency gate has room"). Must be called with mu held.
func (m *Master) drainLocked() {
	if !m.connected || m.destroyed {
		return
	}
	for len(m.queue) > 0 {
		tx := m.queue[0]
		err := m.transport.SendRequest(tx)
		if err == nil {
			m.queue = m.queue[1:]
			continue
		}
		if me, ok := err.(*Error); ok && me.Kind == KindTooManyRequests {
			return
		}
		m.queue = m.queue[1:]
		tx.Fail(asError(err))
	}
}

func asError(err error) *Error {
	if me, ok := err.(*Error); ok {
		return me
	}
	return wrapError(KindConnectionClosed, "transport send failed", err)
}

// submit arms a Transaction for req and enqueues it, draining immediately
// if the master is connected (spec §4.6).
func (m *Master) submit(req Request, opts []RequestOption, cb CompletionFunc) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	unit, maxRetries, timeout := m.cfg.resolve(opts)

	var tx *Transaction
	tx = newTransaction(req, unit, maxRetries, timeout, m.cfg.RetryOnException, func(resp Response, err error) {
		// Completion fires synchronously from inside the owning transport,
		// which still holds its own internal mutex at this point (spec §5's
		// single ownership boundary). drainLocked can call back into that
		// same transport's SendRequest, so it must run on a fresh goroutine
		// rather than re-enter the transport's mutex on this one.
		go func() {
			m.mu.Lock()
			delete(m.live, tx)
			m.drainLocked()
			m.mu.Unlock()
		}()
		if cb != nil {
			cb(resp, err)
		}
	}, m.log)

	m.live[tx] = struct{}{}
	if m.destroyed {
		tx.Cancel()
		return tx
	}
	m.queue = append(m.queue, tx)
	m.drainLocked()
	return tx
}

// Destroy cancels every queued and in-flight transaction, then tears
// down the transport (spec §4.6: "destroy() cancels all queued
// transactions, then tears down the transport").
func (m *Master) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	for _, tx := range m.queue {
		tx.Cancel()
	}
	m.queue = nil
	for tx := range m.live {
		tx.Cancel()
	}
	m.live = make(map[*Transaction]struct{})
	return m.transport.Close()
}

// Do is the low-level escape hatch: submit any Request this codec
// supports, including ones with no dedicated Master method (a supplemented
// feature in SPEC_FULL.md, e.g. ReadFileRecord/WriteFileRecord).
func (m *Master) Do(req Request, cb CompletionFunc, opts ...RequestOption) *Transaction {
	return m.submit(req, opts, cb)
}

func (m *Master) ReadCoils(address, quantity uint16, cb func([]bool, error), opts ...RequestOption) *Transaction {
	req, err := NewReadCoilsRequest(address, quantity)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(nil, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadCoilsResponse).Values, nil)
	})
}

func (m *Master) ReadDiscreteInputs(address, quantity uint16, cb func([]bool, error), opts ...RequestOption) *Transaction {
	req, err := NewReadDiscreteInputsRequest(address, quantity)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(nil, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadDiscreteInputsResponse).Values, nil)
	})
}

func (m *Master) ReadHoldingRegisters(address, quantity uint16, cb func([]uint16, error), opts ...RequestOption) *Transaction {
	req, err := NewReadHoldingRegistersRequest(address, quantity)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(nil, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadHoldingRegistersResponse).Values, nil)
	})
}

func (m *Master) ReadInputRegisters(address, quantity uint16, cb func([]uint16, error), opts ...RequestOption) *Transaction {
	req, err := NewReadInputRegistersRequest(address, quantity)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(nil, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadInputRegistersResponse).Values, nil)
	})
}

func (m *Master) ReadDiagnostics(sub, data uint16, cb func(*ReadDiagnosticsResponse, error), opts ...RequestOption) *Transaction {
	req, err := NewReadDiagnosticsRequest(sub, data)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(nil, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadDiagnosticsResponse), nil)
	})
}

func (m *Master) ReportSlaveId(cb func(*ReportSlaveIdResponse, error), opts ...RequestOption) *Transaction {
	req, _ := NewReportSlaveIdRequest()
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReportSlaveIdResponse), nil)
	})
}

func (m *Master) WriteSingleCoil(address uint16, value bool, cb func(error), opts ...RequestOption) *Transaction {
	req, err := NewWriteSingleCoilRequest(address, value)
	if err != nil {
		return m.failImmediately(err, cb)
	}
	return m.submit(req, opts, func(_ Response, err error) { cb(err) })
}

func (m *Master) WriteSingleRegister(address, value uint16, cb func(error), opts ...RequestOption) *Transaction {
	req, err := NewWriteSingleRegisterRequest(address, value)
	if err != nil {
		return m.failImmediately(err, cb)
	}
	return m.submit(req, opts, func(_ Response, err error) { cb(err) })
}

func (m *Master) WriteMultipleCoils(address uint16, values []bool, cb func(error), opts ...RequestOption) *Transaction {
	req, err := NewWriteMultipleCoilsRequest(address, values)
	if err != nil {
		return m.failImmediately(err, cb)
	}
	return m.submit(req, opts, func(_ Response, err error) { cb(err) })
}

func (m *Master) WriteMultipleRegisters(address uint16, values []uint16, cb func(error), opts ...RequestOption) *Transaction {
	req, err := NewWriteMultipleRegistersRequest(address, values)
	if err != nil {
		return m.failImmediately(err, cb)
	}
	return m.submit(req, opts, func(_ Response, err error) { cb(err) })
}

func (m *Master) ReadFifo8(id, max byte, cb func(*ReadFifo8Response, error), opts ...RequestOption) *Transaction {
	req, _ := NewReadFifo8Request(id, max)
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadFifo8Response), nil)
	})
}

func (m *Master) WriteFifo8(id byte, data []byte, cb func(*WriteFifo8Response, error), opts ...RequestOption) *Transaction {
	req, err := NewWriteFifo8Request(id, data)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(nil, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*WriteFifo8Response), nil)
	})
}

func (m *Master) ReadObject(id byte, cb func([]byte, error), opts ...RequestOption) *Transaction {
	req, _ := NewReadObjectRequest(id)
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadObjectResponse).Data, nil)
	})
}

func (m *Master) WriteObject(id byte, data []byte, cb func(byte, error), opts ...RequestOption) *Transaction {
	req, err := NewWriteObjectRequest(id, data)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(0, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(0, err)
			return
		}
		cb(resp.(*WriteObjectResponse).Status, nil)
	})
}

func (m *Master) ReadMemory(address uint16, count byte, cb func([]byte, error), opts ...RequestOption) *Transaction {
	req, err := NewReadMemoryRequest(address, count)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(nil, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*ReadMemoryResponse).Data, nil)
	})
}

func (m *Master) WriteMemory(address uint16, data []byte, cb func(byte, error), opts ...RequestOption) *Transaction {
	req, err := NewWriteMemoryRequest(address, data)
	if err != nil {
		return m.failImmediately(err, func(err error) { cb(0, err) })
	}
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(0, err)
			return
		}
		cb(resp.(*WriteMemoryResponse).Status, nil)
	})
}

func (m *Master) Command(id byte, data []byte, cb func(*CommandResponse, error), opts ...RequestOption) *Transaction {
	req, _ := NewCommandRequest(id, data)
	return m.submit(req, opts, func(resp Response, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(resp.(*CommandResponse), nil)
	})
}

// failImmediately builds a Transaction that is already completed with a
// constructor-time validation error, for Master methods whose codec
// construction can fail before any I/O is attempted.
func (m *Master) failImmediately(err error, cb func(error)) *Transaction {
	var tx *Transaction
	tx = newTransaction(nil, 0, 0, 0, false, func(_ Response, err error) {
		if cb != nil {
			cb(err)
		}
	}, m.log)
	tx.Fail(err)
	return tx
}
