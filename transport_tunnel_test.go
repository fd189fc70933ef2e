package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTunnelTestTransaction(t *testing.T) (*Transaction, chan struct{}, *Response, *error) {
	t.Helper()
	req, err := NewReadHoldingRegistersRequest(0, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	var resp Response
	var respErr error
	tx := newTransaction(req, 7, 0, time.Second, false, func(r Response, e error) {
		resp, respErr = r, e
		close(done)
	}, nil)
	return tx, done, &resp, &respErr
}

func pollFrame(slaveID, cmd, seq byte, payload []byte) []byte {
	frame := append([]byte{slaveID, cmd, seq}, payload...)
	return appendCRC(frame)
}

func TestTunnelTransportRepliesToMatchingPollWithQueuedRequest(t *testing.T) {
	conn := newFakeConn()
	const slaveID = byte(5)
	tr := NewTunnelTransport(conn, slaveID, 5*time.Millisecond, nil)

	tx, _, _, _ := newTunnelTestTransaction(t)
	require.NoError(t, tr.SendRequest(tx))

	conn.deliver(pollFrame(slaveID, tunnelCommand, 0, nil))
	time.Sleep(20 * time.Millisecond) // let the eof timer fire

	require.Equal(t, 1, conn.writeCount())
	reply := conn.lastWrite()
	require.True(t, verifyCRC(reply))
	require.Equal(t, slaveID, reply[0])
	require.Equal(t, tunnelCommand, reply[1])
	require.Equal(t, byte(0), reply[2])
	require.Equal(t, tx.Unit, reply[3])
}

func TestTunnelTransportDeliversResponseOnNextMatchingPoll(t *testing.T) {
	conn := newFakeConn()
	const slaveID = byte(5)
	tr := NewTunnelTransport(conn, slaveID, 5*time.Millisecond, nil)

	tx, done, resp, respErr := newTunnelTestTransaction(t)
	require.NoError(t, tr.SendRequest(tx))

	conn.deliver(pollFrame(slaveID, tunnelCommand, 0, nil))
	time.Sleep(20 * time.Millisecond)

	respPDU := []byte{byte(FnReadHoldingRegisters), 0x02, 0x00, 0x2A}
	conn.deliver(pollFrame(slaveID, tunnelCommand, 1, respPDU))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tunnel-delivered response")
	}
	require.NoError(t, *respErr)
	require.Equal(t, []uint16{42}, (*resp).(*ReadHoldingRegistersResponse).Values)
}

func TestTunnelTransportOutOfSequencePollGetsMinimalReply(t *testing.T) {
	conn := newFakeConn()
	const slaveID = byte(5)
	tr := NewTunnelTransport(conn, slaveID, 5*time.Millisecond, nil)

	conn.deliver(pollFrame(slaveID, tunnelCommand, 9, nil))
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, conn.writeCount())
	reply := conn.lastWrite()
	require.Equal(t, []byte{slaveID, tunnelCommand, 9}, reply[:3])
}

func TestTunnelTransportThirdConcurrentSubmissionRejected(t *testing.T) {
	conn := newFakeConn()
	tr := NewTunnelTransport(conn, 5, 5*time.Millisecond, nil)

	tx1, _, _, _ := newTunnelTestTransaction(t)
	tx2, _, _, _ := newTunnelTestTransaction(t)
	tx3, _, _, _ := newTunnelTestTransaction(t)
	require.NoError(t, tr.SendRequest(tx1))
	require.NoError(t, tr.SendRequest(tx2))

	err := tr.SendRequest(tx3)
	require.Error(t, err)
	me, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, KindTooManyRequests, me.Kind)
}

func TestTunnelTransportHandleClosedFailsQueued(t *testing.T) {
	conn := newFakeConn()
	tr := NewTunnelTransport(conn, 5, 5*time.Millisecond, nil)

	tx1, done1, _, respErr1 := newTunnelTestTransaction(t)
	tx2, done2, _, respErr2 := newTunnelTestTransaction(t)
	require.NoError(t, tr.SendRequest(tx1))
	require.NoError(t, tr.SendRequest(tx2))

	tr.HandleClosed()

	for _, done := range []chan struct{}{done1, done2} {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for handleclosed completion")
		}
	}
	for _, errp := range []*error{respErr1, respErr2} {
		me, ok := (*errp).(*Error)
		require.True(t, ok)
		require.Equal(t, KindConnectionClosed, me.Kind)
	}
}
