package modbus

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConnOptions carries the optional, capability-specific settings a
// Connection may support via Set (spec §6). RTS is used only by RTU for
// RS-485 half-duplex direction control (spec §4.3's transmit flow control
// hook).
type ConnOptions struct {
	RTS *bool
}

// Connection is the narrow transport-facing contract every transport
// consumes (spec §6): isOpen/write/destroy plus the open/close/error/data
// events. Ownership sits with whoever constructed it; a Connection is
// shared by reference between the transport (writer) and its data
// callback (reader), per spec §5's shared-resource policy.
type Connection interface {
	IsOpen() bool
	Write(data []byte) error
	Destroy() error

	OnOpen(cb func())
	OnClose(cb func())
	OnError(cb func(err error))
	OnData(cb func(data []byte))
}

// FlowControl is implemented by connections that support the RTU
// transmit flow control hook (spec §4.3): Set toggles RS-485 direction,
// Drain blocks the caller until the last Write has left the wire.
type FlowControl interface {
	Set(opt ConnOptions) error
	Drain(cb func()) error
}

// TCPConnection adapts a net.Conn (typically from net.Dial("tcp", ...))
// to the Connection contract, for the IP transport (spec §4.4). Grounded
// on the teacher's network type: a single background reader goroutine
// fans inbound bytes and the terminal error out to registered callbacks.
type TCPConnection struct {
	mu      sync.Mutex
	conn    net.Conn
	open    bool
	opened  bool
	onOpen  func()
	onClose func()
	onError func(error)
	onData  func([]byte)
	log     *zap.Logger
}

// DialTCPConnection dials addr and returns a TCPConnection with its
// reader goroutine already running.
func DialTCPConnection(addr string, timeout time.Duration, log *zap.Logger) (*TCPConnection, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, wrapError(KindConnectionClosed, "dial "+addr, err)
	}
	return NewTCPConnection(conn, log), nil
}

// NewTCPConnection wraps an already-established net.Conn and starts its
// reader goroutine.
func NewTCPConnection(conn net.Conn, log *zap.Logger) *TCPConnection {
	if log == nil {
		log = zap.NewNop()
	}
	c := &TCPConnection{conn: conn, open: true, log: log}
	go c.readLoop()
	return c
}

func (c *TCPConnection) readLoop() {
	c.mu.Lock()
	c.opened = true
	onOpen := c.onOpen
	c.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			cb := c.onData
			c.mu.Unlock()
			if cb != nil {
				cb(append([]byte(nil), buf[:n]...))
			}
		}
		if err != nil {
			c.mu.Lock()
			c.open = false
			onErr, onClose := c.onError, c.onClose
			c.mu.Unlock()
			if onErr != nil {
				onErr(err)
			}
			if onClose != nil {
				onClose()
			}
			return
		}
	}
}

func (c *TCPConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *TCPConnection) Write(data []byte) error {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return newError(KindConnectionClosed, "write on closed connection")
	}
	if _, err := c.conn.Write(data); err != nil {
		return wrapError(KindConnectionClosed, "write", err)
	}
	return nil
}

func (c *TCPConnection) Destroy() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return c.conn.Close()
}

// OnOpen registers cb to fire once the reader goroutine observes the
// connection as live. If the connection already opened before cb was
// registered (a real race between construction and registration), cb
// fires immediately instead of being silently missed.
func (c *TCPConnection) OnOpen(cb func()) {
	c.mu.Lock()
	c.onOpen = cb
	replay := cb != nil && c.opened
	c.mu.Unlock()
	if replay {
		cb()
	}
}
func (c *TCPConnection) OnClose(cb func())      { c.mu.Lock(); c.onClose = cb; c.mu.Unlock() }
func (c *TCPConnection) OnError(cb func(error)) { c.mu.Lock(); c.onError = cb; c.mu.Unlock() }
func (c *TCPConnection) OnData(cb func([]byte)) { c.mu.Lock(); c.onData = cb; c.mu.Unlock() }

var _ Connection = (*TCPConnection)(nil)
