package modbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMaster(t *testing.T, mux *slaveMux, cfg Config) (*Master, string) {
	t.Helper()
	slave := startIPSlave(t, mux)
	conn, err := DialTCPConnection(slave.addr(), time.Second, nil)
	require.NoError(t, err)
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 500 * time.Millisecond
	}
	m := NewMaster(nil, cfg, conn)
	t.Cleanup(func() { m.Destroy() })
	return m, slave.addr()
}

func TestMasterReadHoldingRegistersRoundTrip(t *testing.T) {
	mux := &slaveMux{
		ReadHoldingRegisters: func(ctx context.Context, address, quantity uint16) ([]byte, Exception) {
			require.Equal(t, uint16(10), address)
			require.Equal(t, uint16(2), quantity)
			return []byte{0x00, 0x2A, 0x00, 0x2B}, nil
		},
	}
	m, _ := newTestMaster(t, mux, Config{})

	done := make(chan struct{})
	var got []uint16
	var gotErr error
	m.ReadHoldingRegisters(10, 2, func(values []uint16, err error) {
		got, gotErr = values, err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
	require.NoError(t, gotErr)
	require.Equal(t, []uint16{42, 43}, got)
}

func TestMasterWriteSingleCoilRoundTrip(t *testing.T) {
	var gotAddr uint16
	var gotStatus bool
	mux := &slaveMux{
		WriteSingleCoil: func(ctx context.Context, address uint16, status bool) Exception {
			gotAddr, gotStatus = address, status
			return nil
		},
	}
	m, _ := newTestMaster(t, mux, Config{})

	done := make(chan struct{})
	var gotErr error
	m.WriteSingleCoil(172, true, func(err error) {
		gotErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
	require.NoError(t, gotErr)
	require.Equal(t, uint16(172), gotAddr)
	require.True(t, gotStatus)
}

func TestMasterDeliversExceptionWithoutRetry(t *testing.T) {
	mux := &slaveMux{
		ReadHoldingRegisters: func(ctx context.Context, address, quantity uint16) ([]byte, Exception) {
			return nil, ExIllegalDataAddress
		},
	}
	m, _ := newTestMaster(t, mux, Config{RetryOnException: false})

	done := make(chan struct{})
	var gotErr error
	m.ReadHoldingRegisters(0, 1, func(values []uint16, err error) {
		gotErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
	require.Error(t, gotErr)
	me, ok := gotErr.(*Error)
	require.True(t, ok)
	require.Equal(t, KindModbusException, me.Kind)
}

func TestMasterTimesOutWithNoSlaveResponse(t *testing.T) {
	mux := &slaveMux{
		ReadHoldingRegisters: func(ctx context.Context, address, quantity uint16) ([]byte, Exception) {
			time.Sleep(2 * time.Second) // outlives the per-attempt timeout below
			return []byte{0x00, 0x00}, nil
		},
	}
	m, _ := newTestMaster(t, mux, Config{DefaultTimeout: 50 * time.Millisecond, DefaultMaxRetries: 0})

	done := make(chan struct{})
	var gotErr error
	m.ReadHoldingRegisters(0, 1, func(values []uint16, err error) {
		gotErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transaction to fail")
	}
	require.Error(t, gotErr)
	me, ok := gotErr.(*Error)
	require.True(t, ok)
	require.Equal(t, KindTimeout, me.Kind)
}

func TestMasterQueuesBeyondConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	mux := &slaveMux{
		ReadHoldingRegisters: func(ctx context.Context, address, quantity uint16) ([]byte, Exception) {
			<-release
			return []byte{0x00, byte(address)}, nil
		},
	}
	m, _ := newTestMaster(t, mux, Config{MaxConcurrentRequests: 1})

	results := make(chan uint16, 2)
	m.ReadHoldingRegisters(1, 1, func(values []uint16, err error) {
		require.NoError(t, err)
		results <- values[0]
	})
	m.ReadHoldingRegisters(2, 1, func(values []uint16, err error) {
		require.NoError(t, err)
		results <- values[0]
	})

	close(release)

	for i := 0; i < 2; i++ {
		select {
		case <-results:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for queued transaction")
		}
	}
}

func TestMasterDestroyCancelsQueuedTransaction(t *testing.T) {
	// fakeConn never fires OnOpen, so the master stays unconnected and
	// queues every submitted transaction.
	m := NewMaster(nil, Config{}, newFakeConn())

	tx := m.ReadHoldingRegisters(0, 1, func([]uint16, error) {})
	require.Equal(t, StatePending, tx.State())

	require.NoError(t, m.Destroy())
	require.Equal(t, StateCancelled, tx.State())
}
