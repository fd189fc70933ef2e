package modbus

import (
	"encoding/binary"
	"sync"

	"go.uber.org/zap"
)

// ipProtocolID is the MBAP header's fixed protocol identifier (spec §3,
// §4.4: "version: u16 (must be 0)").
const ipProtocolID = 0

// IPTransport implements the MBAP-framed multiplexing transport of spec
// §4.4: a map from transaction id to Transaction, with concurrency
// bounded only by the master's maxConcurrentRequests.
type IPTransport struct {
	mu sync.Mutex

	conn Connection
	log  *zap.Logger

	maxConcurrent uint16
	nextID        uint16
	transactions  map[uint16]*Transaction

	header []byte // scratch buffer for the 7-byte MBAP header
	inbound []byte
}

// NewIPTransport registers conn's data callback and returns a ready
// IPTransport gated at maxConcurrent in-flight transactions.
func NewIPTransport(conn Connection, maxConcurrent uint16, log *zap.Logger) *IPTransport {
	t := &IPTransport{
		conn:          conn,
		maxConcurrent: maxConcurrent,
		transactions:  make(map[uint16]*Transaction),
		header:        make([]byte, 7),
		log:           noopLogger(log),
	}
	conn.OnData(t.onData)
	return t
}

// allocID returns the next transaction id, monotonically increasing
// modulo 0xFFFE and skipping 0xFFFF (spec §4.4), advancing past any id
// still in flight.
func (t *IPTransport) allocID() uint16 {
	for {
		id := t.nextID
		t.nextID++
		if t.nextID >= 0xFFFE {
			t.nextID = 0
		}
		if _, inFlight := t.transactions[id]; !inFlight {
			return id
		}
	}
}

func ipADU(id uint16, req Request, unit byte) []byte {
	pdu := req.ToBytes()
	adu := make([]byte, 7+len(pdu))
	binary.BigEndian.PutUint16(adu[0:], id)
	binary.BigEndian.PutUint16(adu[2:], ipProtocolID)
	binary.BigEndian.PutUint16(adu[4:], uint16(len(pdu)+1))
	adu[6] = unit
	copy(adu[7:], pdu)
	return adu
}

func (t *IPTransport) SendRequest(tx *Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxConcurrent > 0 && uint16(len(t.transactions)) >= t.maxConcurrent {
		return errTooManyRequests
	}
	id := t.allocID()
	adu := tx.ADU(func(req Request, unit byte) []byte { return ipADU(id, req, unit) })
	if err := t.conn.Write(adu); err != nil {
		return err
	}
	t.transactions[id] = tx
	tx.Start(func(tx *Transaction) { t.onTimeout(id, tx) })
	return nil
}

// reissue allocates a fresh transaction id, mutates the cached ADU's
// first two bytes in place, and re-sends (spec §4.4's retry contract).
func (t *IPTransport) reissue(tx *Transaction) {
	id := t.allocID()
	adu := tx.CachedADU()
	binary.BigEndian.PutUint16(adu[0:], id)
	tx.SetADU(adu)
	if err := t.conn.Write(adu); err != nil {
		tx.HandleError(wrapError(KindConnectionClosed, "retry write", err))
		return
	}
	t.transactions[id] = tx
	tx.Start(func(tx *Transaction) { t.onTimeout(id, tx) })
}

func (t *IPTransport) onTimeout(id uint16, tx *Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.transactions[id]; !ok || cur != tx {
		return
	}
	delete(t.transactions, id)
	if tx.HandleTimeout() {
		t.reissue(tx)
	}
}

// onData accumulates inbound bytes and parses as many complete MBAP
// frames as are available (spec §4.4: "parse a header once enough bytes
// (≥ 7) are available, then consume exactly length - 1 payload bytes").
func (t *IPTransport) onData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound = append(t.inbound, data...)
	for {
		if len(t.inbound) < 7 {
			return
		}
		length := binary.BigEndian.Uint16(t.inbound[4:6])
		frameLen := 6 + int(length)
		if len(t.inbound) < frameLen {
			return
		}
		frame := t.inbound[:frameLen]
		t.inbound = t.inbound[frameLen:]
		t.handleFrame(frame, length)
	}
}

func (t *IPTransport) handleFrame(frame []byte, length uint16) {
	id := binary.BigEndian.Uint16(frame[0:2])
	protocolID := binary.BigEndian.Uint16(frame[2:4])

	tx, known := t.transactions[id]
	if !known {
		// unknown txid: payload is skipped, per spec §4.4.
		return
	}

	if protocolID != ipProtocolID || length == 0 {
		delete(t.transactions, id)
		if tx.HandleError(newError(KindInvalidResponseData, "mbap protocol id or length invalid")) {
			t.reissue(tx)
		}
		return
	}
	unit := frame[6]
	pdu := frame[7:]
	if unit != tx.Unit {
		delete(t.transactions, id)
		if tx.HandleError(newError(KindInvalidResponseData, "mbap unit mismatch")) {
			t.reissue(tx)
		}
		return
	}

	resp, err := tx.Req.CreateResponse(pdu)
	delete(t.transactions, id)
	if err != nil {
		me, ok := err.(*Error)
		if !ok {
			me = wrapError(KindInvalidResponseData, "decode response", err)
		}
		if tx.HandleError(me) {
			t.reissue(tx)
		}
		return
	}
	if tx.HandleResponse(resp) {
		t.reissue(tx)
	}
}

// HandleClosed fails every in-flight transaction once the underlying
// connection has closed (spec §4.6 connection-state bridging).
func (t *IPTransport) HandleClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tx := range t.transactions {
		delete(t.transactions, id)
		tx.HandleError(newError(KindConnectionClosed, "connection closed"))
	}
}

func (t *IPTransport) Close() error {
	return t.conn.Destroy()
}

var _ Transport = (*IPTransport)(nil)
