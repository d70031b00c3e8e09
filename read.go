package websocket

import (
	"context"
	"errors"
	"io"
	"strings"

	"cdr.dev/slog"
	"golang.org/x/xerrors"

	"github.com/barews/websocket/internal/errd"
)

// Read reads a single frame from the connection.
//
// Pings are answered with a pong carrying the same payload before being
// returned unless DisableAutoPong was set.
//
// When the peer sends a close frame, the close status is echoed, the
// connection is closed and the close message is returned together with
// an error wrapping a CloseError.
//
// A protocol violation by the peer closes the connection with the matching
// status code.
func (c *Conn) Read(ctx context.Context) (_ Message, err error) {
	defer errd.Wrap(&err, "failed to read")

	err = c.readMu.Lock(ctx)
	if err != nil {
		return Message{}, err
	}
	defer c.readMu.Unlock()

	if c.isClosed() {
		return Message{}, c.closeErr
	}

	m, err := c.readFrame(ctx)
	if err != nil {
		return Message{}, err
	}

	switch m.Type {
	case FramePing:
		if !c.disableAutoPong {
			err = c.writeFrame(ctx, FramePong, m.Payload)
			if err != nil {
				return Message{}, xerrors.Errorf("failed to write pong: %w", err)
			}
		}
	case FrameClose:
		return m, c.handleClose(ctx, m.Payload)
	}
	return m, nil
}

func (c *Conn) handleClose(ctx context.Context, p []byte) error {
	ce, err := parseClosePayload(p)
	if err != nil {
		err = xerrors.Errorf("received invalid close payload: %w", err)
		c.fail(ctx, StatusProtocolError, err)
		return err
	}

	c.logger.Debug(ctx, "received close frame",
		slog.F("code", ce.Code.String()),
		slog.F("reason", ce.Reason),
	)

	var echo []byte
	if ce.Code != StatusNoStatusRcvd {
		echo, _ = CloseError{Code: ce.Code}.bytes()
	}
	// The peer may already be gone.
	_ = c.writeFrame(ctx, FrameClose, echo)
	c.close(ce)

	return xerrors.Errorf("received close frame: %w", ce)
}

func (c *Conn) readFrame(ctx context.Context) (Message, error) {
	err := c.setTimeout(c.readTimeout, ctx)
	if err != nil {
		return Message{}, err
	}
	defer c.setTimeout(c.readTimeout, context.Background())

	b, err := c.br.Peek(2)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, c.transportError(ctx, xerrors.Errorf("failed to read frame header: %w", err))
	}
	hdr, err := c.br.Peek(headerSize(b[1]))
	if err != nil {
		return Message{}, c.transportError(ctx, xerrors.Errorf("failed to read frame header: %w", err))
	}

	h, _, err := parseHeader(hdr, c.role)
	if err != nil {
		c.fail(ctx, protocolStatus(err), err)
		return Message{}, err
	}

	if limit := c.readLimit.Load(); h.payloadLength > limit {
		err = xerrors.Errorf("frame payload of %v bytes exceeds read limit of %v bytes", h.payloadLength, limit)
		c.fail(ctx, StatusMessageTooBig, err)
		return Message{}, err
	}

	frame := make([]byte, len(hdr)+int(h.payloadLength))
	_, err = io.ReadFull(c.br, frame)
	if err != nil {
		return Message{}, c.transportError(ctx, xerrors.Errorf("failed to read frame payload: %w", err))
	}

	m, err := DecodeFrame(frame, c.role)
	if err != nil {
		c.fail(ctx, protocolStatus(err), err)
		return Message{}, err
	}
	return m, nil
}

func protocolStatus(err error) StatusCode {
	if errors.Is(err, ErrInvalidUTF8) {
		return StatusInvalidFramePayloadData
	}
	return StatusProtocolError
}

// fail closes the connection after a protocol violation by the peer.
func (c *Conn) fail(ctx context.Context, code StatusCode, err error) {
	c.logger.Debug(ctx, "protocol error", slog.F("code", code.String()), slog.Error(err))

	reason := err.Error()
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	reason = strings.ToValidUTF8(reason, "")

	p, _ := CloseError{Code: code, Reason: reason}.bytes()
	_ = c.writeFrame(ctx, FrameClose, p)
	c.close(xerrors.Errorf("protocol error: %w", err))
}

// Handler receives the messages read by Serve.
type Handler interface {
	HandleText(text string) error
	HandleBinary(p []byte) error
	// HandleControl receives ping, pong and close messages.
	HandleControl(m Message) error
}

// HandlerFuncs adapts functions to a Handler.
// Nil functions ignore their messages.
type HandlerFuncs struct {
	Text    func(text string) error
	Binary  func(p []byte) error
	Control func(m Message) error
}

var _ Handler = HandlerFuncs{}

// HandleText implements Handler.
func (f HandlerFuncs) HandleText(text string) error {
	if f.Text == nil {
		return nil
	}
	return f.Text(text)
}

// HandleBinary implements Handler.
func (f HandlerFuncs) HandleBinary(p []byte) error {
	if f.Binary == nil {
		return nil
	}
	return f.Binary(p)
}

// HandleControl implements Handler.
func (f HandlerFuncs) HandleControl(m Message) error {
	if f.Control == nil {
		return nil
	}
	return f.Control(m)
}

// Dispatch delivers m to the method of h matching its type.
func Dispatch(h Handler, m Message) error {
	switch m.Type {
	case FrameText, FrameContinuation:
		return h.HandleText(m.Text())
	case FrameBinary:
		return h.HandleBinary(m.Payload)
	case FrameClose, FramePing, FramePong:
		return h.HandleControl(m)
	}
	return xerrors.Errorf("cannot dispatch %v message: %w", m.Type, ErrInvalidOpcode)
}

// Serve reads messages and dispatches them to h until the connection closes.
//
// Serve returns nil when the peer closes the connection with
// StatusNormalClosure or StatusGoingAway. If h returns an error, the
// connection is closed with StatusInternalError and the error is returned.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	for {
		m, err := c.Read(ctx)
		if err != nil {
			if m.Type == FrameClose {
				herr := Dispatch(h, m)
				if herr != nil {
					return herr
				}
			}
			switch CloseStatus(err) {
			case StatusNormalClosure, StatusGoingAway:
				return nil
			}
			return err
		}

		err = Dispatch(h, m)
		if err != nil {
			c.Close(StatusInternalError, "")
			return xerrors.Errorf("failed to handle %v message: %w", m.Type, err)
		}
	}
}
