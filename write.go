package websocket

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/barews/websocket/internal/errd"
)

// Write writes a single unfragmented frame of type typ carrying p.
//
// Writes are rejected with ErrClosed unless the connection is open.
// Writing a close frame closes the connection after it is sent;
// prefer Close for that.
func (c *Conn) Write(ctx context.Context, typ FrameType, p []byte) error {
	err := c.writeFrame(ctx, typ, p)
	if err != nil {
		return xerrors.Errorf("failed to write %v frame: %w", typ, err)
	}
	if typ == FrameClose {
		c.close(xerrors.New("sent close frame"))
	}
	return nil
}

// Ping sends a ping frame carrying p.
// The pong is delivered to the reader of the connection.
func (c *Conn) Ping(ctx context.Context, p []byte) error {
	return c.Write(ctx, FramePing, p)
}

func (c *Conn) writeFrame(ctx context.Context, typ FrameType, p []byte) error {
	if c.Status() != StatusOpen {
		return ErrClosed
	}

	err := c.writeMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer c.writeMu.Unlock()

	if c.Status() != StatusOpen {
		return ErrClosed
	}

	// c.rand is only used while holding writeMu.
	b, err := EncodeFrame(p, typ, c.role, c.rand)
	if err != nil {
		return err
	}

	return c.writeRaw(ctx, b)
}

// writeRaw writes b to the transport, closing the connection
// if ctx is done first.
func (c *Conn) writeRaw(ctx context.Context, b []byte) error {
	err := c.setTimeout(c.writeTimeout, ctx)
	if err != nil {
		return err
	}
	defer c.setTimeout(c.writeTimeout, context.Background())

	_, err = c.rwc.Write(b)
	if err != nil {
		return c.transportError(ctx, xerrors.Errorf("failed to write to transport: %w", err))
	}
	return nil
}

// Close sends a close frame with the given status code and reason and
// closes the connection. The reason must be at most 123 bytes.
//
// Close does not wait for the peer to answer with its own close frame.
// Calling Close on a closed connection is a no-op.
func (c *Conn) Close(code StatusCode, reason string) (err error) {
	defer errd.Wrap(&err, "failed to close WebSocket")

	if c.Status() == StatusClosed {
		return nil
	}

	ce := CloseError{
		Code:   code,
		Reason: reason,
	}

	p, werr := ce.bytes()
	if werr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		werr = c.writeFrame(ctx, FrameClose, p)
		if werr == ErrClosed {
			// Lost a race with another closer.
			werr = nil
		}
	}

	cerr := c.close(xerrors.Errorf("sent close frame: %w", ce))
	return multierr.Combine(werr, cerr)
}
