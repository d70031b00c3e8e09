package websocket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"cdr.dev/slog"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// ConnStatus is the lifecycle state of a Conn.
type ConnStatus int32

// ConnStatus constants.
const (
	StatusConnecting ConnStatus = iota
	StatusOpen
	StatusClosed
)

func (s ConnStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnStatus(%d)", int32(s))
}

// defaultReadLimit is the largest frame payload read by default.
const defaultReadLimit = 32768

// Conn represents a WebSocket connection.
// All methods may be called concurrently except for Read and Serve.
//
// You must always read from the connection. Otherwise control
// frames will not be handled.
//
// Be sure to call Close on the connection when you
// are finished with it to release the associated resources.
//
// Every protocol error from Read will cause the connection
// to be closed so you do not need to write your own close frame.
type Conn struct {
	id              string
	role            Role
	rwc             io.ReadWriteCloser
	br              *bufio.Reader
	rand            io.Reader
	logger          slog.Logger
	disableAutoPong bool

	handshake HandshakeState

	readLimit atomic.Int64

	readMu  mu
	writeMu mu

	readTimeout  chan context.Context
	writeTimeout chan context.Context

	statusMu sync.Mutex
	status   ConnStatus
	closeErr error
	closed   chan struct{}
}

type connConfig struct {
	role            Role
	rwc             io.ReadWriteCloser
	rand            io.Reader
	logger          slog.Logger
	readLimit       int64
	disableAutoPong bool
}

func newConn(cfg connConfig) *Conn {
	c := &Conn{
		id:              uuid.NewString(),
		role:            cfg.role,
		rwc:             cfg.rwc,
		br:              bufio.NewReader(cfg.rwc),
		rand:            cfg.rand,
		disableAutoPong: cfg.disableAutoPong,

		readTimeout:  make(chan context.Context),
		writeTimeout: make(chan context.Context),

		status: StatusConnecting,
		closed: make(chan struct{}),
	}
	c.logger = cfg.logger.With(
		slog.F("conn_id", c.id),
		slog.F("role", c.role.String()),
	)

	if cfg.readLimit <= 0 {
		cfg.readLimit = defaultReadLimit
	}
	c.readLimit.Store(cfg.readLimit)

	go c.timeoutLoop()

	return c
}

// ID returns the identifier used for this connection in log entries.
func (c *Conn) ID() string {
	return c.id
}

// Role returns the local side of the connection.
func (c *Conn) Role() Role {
	return c.role
}

// Handshake returns the state negotiated during the opening handshake.
func (c *Conn) Handshake() HandshakeState {
	hs := c.handshake
	hs.Extensions = append([]string(nil), hs.Extensions...)
	return hs
}

// Subprotocol returns the negotiated subprotocol.
// An empty string means the default protocol.
func (c *Conn) Subprotocol() string {
	return c.handshake.Subprotocol
}

// Status returns the current lifecycle state.
func (c *Conn) Status() ConnStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// SetReadLimit sets the max number of bytes to read for a single frame.
//
// By default, the connection has a read limit of 32768 bytes.
//
// When the limit is hit, the connection will be closed with StatusMessageTooBig.
func (c *Conn) SetReadLimit(n int64) {
	c.readLimit.Store(n)
}

func (c *Conn) open(ctx context.Context) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	if c.status != StatusConnecting {
		return
	}
	c.status = StatusOpen
	c.logger.Debug(ctx, "connection open", slog.F("subprotocol", c.handshake.Subprotocol))
}

// closedError is the error returned by operations on a closed Conn.
type closedError struct {
	cause error
}

func (e closedError) Error() string {
	return fmt.Sprintf("websocket connection closed: %v", e.cause)
}

func (e closedError) Is(target error) bool {
	return target == ErrClosed
}

func (e closedError) Unwrap() error {
	return e.cause
}

// close transitions c to StatusClosed and closes the transport.
// Only the first call has any effect.
func (c *Conn) close(cause error) error {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	if c.status == StatusClosed {
		return nil
	}
	c.status = StatusClosed
	c.closeErr = closedError{cause: cause}

	// Have to close after c.closed is closed to ensure any goroutine that wakes up
	// from the connection being closed also sees that c.closed is closed and returns
	// closeErr.
	close(c.closed)
	err := c.rwc.Close()

	c.logger.Debug(context.Background(), "connection closed", slog.Error(cause))

	return err
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) timeoutLoop() {
	readCtx := context.Background()
	writeCtx := context.Background()

	for {
		select {
		case <-c.closed:
			return

		case writeCtx = <-c.writeTimeout:
		case readCtx = <-c.readTimeout:

		case <-readCtx.Done():
			c.close(xerrors.Errorf("read timed out: %w", readCtx.Err()))
			return
		case <-writeCtx.Done():
			c.close(xerrors.Errorf("write timed out: %w", writeCtx.Err()))
			return
		}
	}
}

// setTimeout hands ctx to the timeout loop so that the transport is closed
// if ctx is done before the blocking operation returns.
func (c *Conn) setTimeout(ch chan<- context.Context, ctx context.Context) error {
	select {
	case <-c.closed:
		return c.closeErr
	case ch <- ctx:
		return nil
	}
}

// transportError closes c after a failed transport operation
// and returns the error to report.
func (c *Conn) transportError(ctx context.Context, err error) error {
	select {
	case <-c.closed:
		return c.closeErr
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.close(err)
		return err
	}
}

// mu is a context aware mutex.
type mu struct {
	once sync.Once
	ch   chan struct{}
}

func (m *mu) init() {
	m.once.Do(func() {
		m.ch = make(chan struct{}, 1)
	})
}

func (m *mu) Lock(ctx context.Context) error {
	m.init()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.ch <- struct{}{}:
		return nil
	}
}

func (m *mu) Unlock() {
	<-m.ch
}
