// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"context"
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/errd"
)

// Read reads a json message from c into v.
// Control messages read before it are skipped.
func Read(ctx context.Context, c *websocket.Conn, v interface{}) error {
	return read(ctx, c, v)
}

func read(ctx context.Context, c *websocket.Conn, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to read JSON message")

	m, err := readData(ctx, c)
	if err != nil {
		return err
	}

	if m.Type != websocket.FrameText {
		c.Close(websocket.StatusUnsupportedData, "expected text message")
		return xerrors.Errorf("expected text message but got: %v", m.Type)
	}

	err = json.Unmarshal(m.Payload, v)
	if err != nil {
		c.Close(websocket.StatusInvalidFramePayloadData, "failed to unmarshal JSON")
		return xerrors.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

func readData(ctx context.Context, c *websocket.Conn) (websocket.Message, error) {
	for {
		m, err := c.Read(ctx)
		if err != nil {
			return websocket.Message{}, err
		}
		switch m.Type {
		case websocket.FramePing, websocket.FramePong:
			continue
		}
		return m, nil
	}
}

// Write writes the JSON message v to c.
func Write(ctx context.Context, c *websocket.Conn, v interface{}) error {
	return write(ctx, c, v)
}

func write(ctx context.Context, c *websocket.Conn, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to write JSON message")

	b, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}

	return c.Write(ctx, websocket.FrameText, b)
}
