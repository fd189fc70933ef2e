package modbus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type rtuState int

const (
	rtuIdle rtuState = iota
	rtuAwaiting
)

// RTUTransport implements the RTU state machine of spec §4.3: Idle ⇄
// Awaiting driven by inbound bytes and a restarting end-of-frame timer,
// with at most one outstanding transaction. All state is guarded by mu,
// satisfying spec §5's single ownership boundary for this connection.
type RTUTransport struct {
	mu sync.Mutex

	conn Connection
	log  *zap.Logger

	eofTimeout time.Duration
	enableEcho bool

	state      rtuState
	current    *Transaction
	inbound    []byte
	eofTimer   *time.Timer
	lastADULen int
}

// NewRTUTransport registers conn's data callback and returns a
// ready RTUTransport. eofTimeout below spec §4.3's 1ms floor falls back
// to the 10ms default.
func NewRTUTransport(conn Connection, eofTimeout time.Duration, enableEcho bool, log *zap.Logger) *RTUTransport {
	if eofTimeout < minEOFTimeout*time.Millisecond {
		eofTimeout = defaultEOFTimeoutMillis * time.Millisecond
	}
	t := &RTUTransport{conn: conn, eofTimeout: eofTimeout, enableEcho: enableEcho, log: noopLogger(log)}
	conn.OnData(t.onData)
	return t
}

func (t *RTUTransport) SendRequest(tx *Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.State() == StateInFlight {
		return errTooManyRequests
	}
	adu := tx.ADU(rtuADU)
	if err := t.writeFrame(adu); err != nil {
		return err
	}
	t.current = tx
	t.inbound = t.inbound[:0]
	t.state = rtuAwaiting
	t.lastADULen = len(adu)
	tx.Start(t.onTimeout)
	return nil
}

// writeFrame writes adu, toggling RTS around the write for half-duplex
// RS-485 connections that implement FlowControl (spec §4.3's optional
// transmit flow control hook).
func (t *RTUTransport) writeFrame(adu []byte) error {
	fc, hasFlowControl := t.conn.(FlowControl)
	if hasFlowControl {
		on := true
		fc.Set(ConnOptions{RTS: &on})
	}
	err := t.conn.Write(adu)
	if hasFlowControl {
		off := false
		fc.Drain(func() { fc.Set(ConnOptions{RTS: &off}) })
	}
	return err
}

func (t *RTUTransport) onTimeout(tx *Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != tx {
		return
	}
	if tx.HandleTimeout() {
		t.reissue(tx)
		return
	}
	t.current = nil
	t.state = rtuIdle
}

func (t *RTUTransport) onData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != rtuAwaiting {
		return
	}
	t.inbound = append(t.inbound, data...)
	if t.eofTimer != nil {
		t.eofTimer.Stop()
	}
	t.eofTimer = time.AfterFunc(t.eofTimeout, t.onEOF)
}

func (t *RTUTransport) onEOF() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != rtuAwaiting || t.current == nil {
		return
	}
	tx := t.current
	frame := t.inbound

	if t.enableEcho {
		n := t.lastADULen
		if len(frame) < n {
			t.deliverError(tx, newError(KindInvalidResponseData, "echo suppression saw fewer bytes than the transmitted ADU"))
			return
		}
		frame = frame[n:]
	}

	resp, err := t.parseFrame(frame, tx)
	if err != nil {
		t.deliverError(tx, err)
		return
	}
	t.deliverResponse(tx, resp)
}

// parseFrame applies spec §4.3's validation ordering: length, then CRC,
// then unit, before handing the PDU to the request's codec.
func (t *RTUTransport) parseFrame(frame []byte, tx *Transaction) (Response, *Error) {
	if len(frame) < 5 {
		return nil, newError(KindIncompleteResponseFrame, "rtu frame shorter than 5 bytes")
	}
	if !verifyCRC(frame) {
		return nil, newError(KindInvalidChecksum, "rtu crc mismatch")
	}
	if frame[0] != tx.Unit {
		return nil, newError(KindInvalidResponseData, "rtu unit mismatch")
	}
	pdu := frame[1 : len(frame)-2]
	resp, err := tx.Req.CreateResponse(pdu)
	if err != nil {
		if me, ok := err.(*Error); ok {
			return nil, me
		}
		return nil, wrapError(KindInvalidResponseData, "decode response", err)
	}
	return resp, nil
}

func (t *RTUTransport) deliverResponse(tx *Transaction, resp Response) {
	if tx.HandleResponse(resp) {
		t.reissue(tx)
		return
	}
	t.current = nil
	t.state = rtuIdle
}

func (t *RTUTransport) deliverError(tx *Transaction, err *Error) {
	if tx.HandleError(err) {
		t.reissue(tx)
		return
	}
	t.current = nil
	t.state = rtuIdle
}

func (t *RTUTransport) reissue(tx *Transaction) {
	adu := tx.ADU(rtuADU)
	if err := t.writeFrame(adu); err != nil {
		t.failCurrent(wrapError(KindConnectionClosed, "retry write", err))
		return
	}
	t.lastADULen = len(adu)
	t.inbound = t.inbound[:0]
	t.state = rtuAwaiting
	tx.Start(t.onTimeout)
}

func (t *RTUTransport) failCurrent(err *Error) {
	tx := t.current
	t.current = nil
	t.state = rtuIdle
	if tx != nil {
		tx.HandleError(err)
	}
}

// HandleClosed fails any in-flight transaction once the underlying
// connection has closed (spec §4.6 connection-state bridging).
func (t *RTUTransport) HandleClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.failCurrent(newError(KindConnectionClosed, "connection closed"))
	}
}

func (t *RTUTransport) Close() error {
	return t.conn.Destroy()
}

var _ Transport = (*RTUTransport)(nil)
