package modbus

import (
	"encoding/binary"
	"net"
	"testing"
)

// ipSlave is a minimal MBAP-framed slave used to exercise Master/IPTransport
// end-to-end (spec §8). It answers exactly the function codes wired into
// its slaveMux, replying with an exception for anything else.
type ipSlave struct {
	ln  net.Listener
	mux *slaveMux
}

func startIPSlave(t *testing.T, mux *slaveMux) *ipSlave {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &ipSlave{ln: ln, mux: mux}
	go s.acceptLoop(t)
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *ipSlave) addr() string {
	return s.ln.Addr().String()
}

func (s *ipSlave) acceptLoop(t *testing.T) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(t, conn)
	}
}

func (s *ipSlave) serve(t *testing.T, conn net.Conn) {
	defer conn.Close()
	var buf []byte
	tmp := make([]byte, 512)
	for {
		n, err := conn.Read(tmp)
		if err != nil {
			return
		}
		buf = append(buf, tmp[:n]...)
		for {
			if len(buf) < 7 {
				break
			}
			length := binary.BigEndian.Uint16(buf[4:6])
			frameLen := 6 + int(length)
			if len(buf) < frameLen {
				break
			}
			frame := buf[:frameLen]
			buf = buf[frameLen:]
			s.handle(conn, frame)
		}
	}
}

func (s *ipSlave) handle(conn net.Conn, frame []byte) {
	id := frame[0:2]
	unit := frame[6]
	code := frame[7]
	req := frame[8:]

	res, ex := s.mux.Handle(nil, code, req)
	if ex != nil {
		code |= 0x80
		res = []byte{ex.Code()}
	}

	out := make([]byte, 7+1+len(res))
	copy(out[0:2], id)
	binary.BigEndian.PutUint16(out[2:4], ipProtocolID)
	binary.BigEndian.PutUint16(out[4:6], uint16(2+len(res)))
	out[6] = unit
	out[7] = code
	copy(out[8:], res)
	conn.Write(out)
}
