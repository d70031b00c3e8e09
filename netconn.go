package websocket

import (
	"context"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

// NetConn converts a *websocket.Conn into a net.Conn.
//
// It's for tunneling arbitrary protocols over WebSockets.
//
// Every Write to the net.Conn will correspond to a frame of type typ
// written on the *websocket.Conn. Reads return the payloads of the data
// frames received in order. Ping and pong frames are skipped. A data
// frame of another type closes the connection with StatusUnsupportedData.
//
// Close will close the *websocket.Conn with StatusNormalClosure.
//
// When a deadline is hit, the connection will be closed. This is
// different from most net.Conn implementations where only the
// reading/writing goroutines are interrupted but the connection is kept alive.
//
// The Addr methods return the addresses of the underlying transport when it
// is a net.Conn. Otherwise they return a mock net.Addr that returns "websocket"
// for Network and "websocket/unknown-addr" for String.
//
// A received StatusNormalClosure or StatusGoingAway close frame will be
// translated to EOF when reading.
func NetConn(c *Conn, typ FrameType) net.Conn {
	nc := &netConn{
		c:   c,
		typ: typ,
	}

	var cancel context.CancelFunc
	nc.writeContext, cancel = context.WithCancel(context.Background())
	nc.writeTimer = time.AfterFunc(math.MaxInt64, cancel)
	nc.writeTimer.Stop()

	nc.readContext, cancel = context.WithCancel(context.Background())
	nc.readTimer = time.AfterFunc(math.MaxInt64, cancel)
	nc.readTimer.Stop()

	return nc
}

type netConn struct {
	c   *Conn
	typ FrameType

	writeTimer   *time.Timer
	writeContext context.Context

	readTimer   *time.Timer
	readContext context.Context

	readMu sync.Mutex
	eofed  bool
	// pending is the unread rest of the last frame payload.
	pending []byte
}

var _ net.Conn = &netConn{}

func (nc *netConn) Close() error {
	nc.writeTimer.Stop()
	nc.readTimer.Stop()
	return nc.c.Close(StatusNormalClosure, "")
}

func (nc *netConn) Write(p []byte) (int, error) {
	err := nc.c.Write(nc.writeContext, nc.typ, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (nc *netConn) Read(p []byte) (int, error) {
	nc.readMu.Lock()
	defer nc.readMu.Unlock()

	for len(nc.pending) == 0 {
		if nc.eofed {
			return 0, io.EOF
		}

		m, err := nc.c.Read(nc.readContext)
		if err != nil {
			switch CloseStatus(err) {
			case StatusNormalClosure, StatusGoingAway:
				nc.eofed = true
				return 0, io.EOF
			}
			return 0, err
		}

		switch m.Type {
		case FramePing, FramePong:
			continue
		case nc.typ:
		default:
			nc.c.Close(StatusUnsupportedData, "unexpected frame type")
			return 0, xerrors.Errorf("unexpected frame type read for net conn adapter (expected %v): %v", nc.typ, m.Type)
		}
		nc.pending = m.Payload
	}

	n := copy(p, nc.pending)
	nc.pending = nc.pending[n:]
	return n, nil
}

type websocketAddr struct {
}

func (a websocketAddr) Network() string {
	return "websocket"
}

func (a websocketAddr) String() string {
	return "websocket/unknown-addr"
}

func (nc *netConn) RemoteAddr() net.Addr {
	if tc, ok := nc.c.rwc.(net.Conn); ok {
		return tc.RemoteAddr()
	}
	return websocketAddr{}
}

func (nc *netConn) LocalAddr() net.Addr {
	if tc, ok := nc.c.rwc.(net.Conn); ok {
		return tc.LocalAddr()
	}
	return websocketAddr{}
}

func (nc *netConn) SetDeadline(t time.Time) error {
	nc.SetWriteDeadline(t)
	nc.SetReadDeadline(t)
	return nil
}

func (nc *netConn) SetWriteDeadline(t time.Time) error {
	if t.IsZero() {
		nc.writeTimer.Stop()
	} else {
		nc.writeTimer.Reset(time.Until(t))
	}
	return nil
}

func (nc *netConn) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		nc.readTimer.Stop()
	} else {
		nc.readTimer.Reset(time.Until(t))
	}
	return nil
}
