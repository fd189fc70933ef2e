package modbus

import (
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// SerialConnection adapts a github.com/tarm/serial port to the Connection
// contract, for the RTU and Tunnel transports (spec §4.3, §4.5). It also
// implements FlowControl: Set logs the requested RTS state (tarm/serial
// exposes no RTS control); Drain blocks until the outstanding write has
// left the wire.
type SerialConnection struct {
	mu      sync.Mutex
	port    *serial.Port
	open    bool
	opened  bool
	onOpen  func()
	onClose func()
	onError func(error)
	onData  func([]byte)
	log     *zap.Logger
}

// SerialConfig mirrors the fields of tarm/serial.Config that RTU/Tunnel
// callers need to set explicitly; ReadTimeout drives how promptly the
// reader goroutine notices a closed port.
type SerialConfig struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

// OpenSerialConnection opens the named serial port and returns a
// SerialConnection with its reader goroutine already running.
func OpenSerialConnection(cfg SerialConfig, log *zap.Logger) (*SerialConnection, error) {
	if log == nil {
		log = zap.NewNop()
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 100 * time.Millisecond
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, wrapError(KindConnectionClosed, "open serial port "+cfg.Name, err)
	}
	c := &SerialConnection{port: port, open: true, log: log}
	go c.readLoop()
	return c, nil
}

func (c *SerialConnection) readLoop() {
	c.mu.Lock()
	c.opened = true
	onOpen := c.onOpen
	c.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}

	buf := make([]byte, 512)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			c.mu.Lock()
			cb := c.onData
			c.mu.Unlock()
			if cb != nil {
				cb(append([]byte(nil), buf[:n]...))
			}
		}
		if err != nil && err != io.EOF {
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
		// tarm/serial returns (0, nil) on a read-timeout expiry rather than
		// io.EOF; loop and poll again instead of treating it as closed.
	}
}

func (c *SerialConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *SerialConnection) Write(data []byte) error {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return newError(KindConnectionClosed, "write on closed connection")
	}
	if _, err := c.port.Write(data); err != nil {
		return wrapError(KindConnectionClosed, "write", err)
	}
	return nil
}

func (c *SerialConnection) Destroy() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return c.port.Close()
}

// OnOpen registers cb to fire once the reader goroutine observes the
// port as live. If the port already opened before cb was registered, cb
// fires immediately instead of being silently missed.
func (c *SerialConnection) OnOpen(cb func()) {
	c.mu.Lock()
	c.onOpen = cb
	replay := cb != nil && c.opened
	c.mu.Unlock()
	if replay {
		cb()
	}
}
func (c *SerialConnection) OnClose(cb func())      { c.mu.Lock(); c.onClose = cb; c.mu.Unlock() }
func (c *SerialConnection) OnError(cb func(error)) { c.mu.Lock(); c.onError = cb; c.mu.Unlock() }
func (c *SerialConnection) OnData(cb func([]byte)) { c.mu.Lock(); c.onData = cb; c.mu.Unlock() }

// Set applies RTS toggling for RS-485 direction control (spec §4.3). A
// bare tarm/serial.Port has no RTS control line API; this records the
// intent via the logger so it is visible in a half-duplex deployment's
// logs rather than silently dropping the hook.
func (c *SerialConnection) Set(opt ConnOptions) error {
	if opt.RTS != nil {
		c.log.Debug("rts", zap.Bool("asserted", *opt.RTS))
	}
	return nil
}

// Drain waits for the port's OS-level write buffer to flush, then invokes
// cb (spec §4.3's transmit flow control hook).
func (c *SerialConnection) Drain(cb func()) error {
	err := c.port.Flush()
	if cb != nil {
		cb()
	}
	if err != nil {
		return wrapError(KindConnectionClosed, "drain", err)
	}
	return nil
}

var (
	_ Connection  = (*SerialConnection)(nil)
	_ FlowControl = (*SerialConnection)(nil)
)
