// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"context"

	"github.com/golang/protobuf/proto"
	"golang.org/x/xerrors"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/errd"
)

// Read reads a protobuf message from c into v.
// Ping and pong messages read before it are skipped.
func Read(ctx context.Context, c *websocket.Conn, v proto.Message) error {
	return read(ctx, c, v)
}

func read(ctx context.Context, c *websocket.Conn, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to read protobuf message")

	var m websocket.Message
	for {
		m, err = c.Read(ctx)
		if err != nil {
			return err
		}
		if m.Type != websocket.FramePing && m.Type != websocket.FramePong {
			break
		}
	}

	if m.Type != websocket.FrameBinary {
		c.Close(websocket.StatusUnsupportedData, "expected binary message")
		return xerrors.Errorf("expected binary message but got: %v", m.Type)
	}

	err = proto.Unmarshal(m.Payload, v)
	if err != nil {
		c.Close(websocket.StatusInvalidFramePayloadData, "failed to unmarshal protobuf")
		return xerrors.Errorf("failed to unmarshal protobuf: %w", err)
	}

	return nil
}

// Write writes the protobuf message v to c.
func Write(ctx context.Context, c *websocket.Conn, v proto.Message) error {
	return write(ctx, c, v)
}

func write(ctx context.Context, c *websocket.Conn, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to write protobuf message")

	b, err := proto.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal protobuf: %w", err)
	}

	return c.Write(ctx, websocket.FrameBinary, b)
}
