package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRTUTestTransaction(t *testing.T, unit byte, maxRetries uint8) (*Transaction, chan struct{}, *Response, *error) {
	t.Helper()
	req, err := NewReadHoldingRegistersRequest(0, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	var resp Response
	var respErr error
	tx := newTransaction(req, unit, maxRetries, 30*time.Millisecond, false, func(r Response, e error) {
		resp, respErr = r, e
		close(done)
	}, nil)
	return tx, done, &resp, &respErr
}

func TestRTUTransportRoundTrip(t *testing.T) {
	conn := newFakeConn()
	rt := NewRTUTransport(conn, 5*time.Millisecond, false, nil)

	tx, done, resp, respErr := newRTUTestTransaction(t, 1, 0)
	require.NoError(t, rt.SendRequest(tx))
	require.Equal(t, 1, conn.writeCount())

	unitPDU := []byte{1, byte(FnReadHoldingRegisters), 0x02, 0x00, 0x2A}
	conn.deliver(appendCRC(unitPDU))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rtu response")
	}
	require.NoError(t, *respErr)
	require.Equal(t, []uint16{42}, (*resp).(*ReadHoldingRegistersResponse).Values)
}

func TestRTUTransportRejectsCRCMismatch(t *testing.T) {
	conn := newFakeConn()
	rt := NewRTUTransport(conn, 5*time.Millisecond, false, nil)

	tx, done, _, respErr := newRTUTestTransaction(t, 1, 0)
	require.NoError(t, rt.SendRequest(tx))

	frame := []byte{1, byte(FnReadHoldingRegisters), 0x02, 0x00, 0x2A, 0xFF, 0xFF}
	conn.deliver(frame)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rtu crc-reject completion")
	}
	require.Error(t, *respErr)
	me, ok := (*respErr).(*Error)
	require.True(t, ok)
	require.Equal(t, KindInvalidChecksum, me.Kind)
}

func TestRTUTransportTimesOutWithNoResponse(t *testing.T) {
	conn := newFakeConn()
	rt := NewRTUTransport(conn, 5*time.Millisecond, false, nil)

	tx, done, _, respErr := newRTUTestTransaction(t, 1, 0)
	require.NoError(t, rt.SendRequest(tx))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rtu timeout completion")
	}
	require.Error(t, *respErr)
	me, ok := (*respErr).(*Error)
	require.True(t, ok)
	require.Equal(t, KindTimeout, me.Kind)
}

func TestRTUTransportSecondSendWhileInFlightIsRejected(t *testing.T) {
	conn := newFakeConn()
	rt := NewRTUTransport(conn, 50*time.Millisecond, false, nil)

	tx1, _, _, _ := newRTUTestTransaction(t, 1, 0)
	require.NoError(t, rt.SendRequest(tx1))

	tx2, _, _, _ := newRTUTestTransaction(t, 1, 0)
	err := rt.SendRequest(tx2)
	require.Error(t, err)
	me, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, KindTooManyRequests, me.Kind)
}

func TestRTUTransportHandleClosedFailsInFlight(t *testing.T) {
	conn := newFakeConn()
	rt := NewRTUTransport(conn, 50*time.Millisecond, false, nil)

	tx, done, _, respErr := newRTUTestTransaction(t, 1, 0)
	require.NoError(t, rt.SendRequest(tx))

	rt.HandleClosed()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handleclosed completion")
	}
	require.Error(t, *respErr)
	me, ok := (*respErr).(*Error)
	require.True(t, ok)
	require.Equal(t, KindConnectionClosed, me.Kind)
}
