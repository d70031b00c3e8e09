package wstest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/test/xrand"
	"github.com/barews/websocket/internal/xsync"
)

// EchoLoop echos every data message received from c until an error
// occurs or the context expires.
// The read limit is set to 1 << 30.
func EchoLoop(ctx context.Context, c *websocket.Conn) error {
	defer c.Close(websocket.StatusInternalError, "")

	c.SetReadLimit(1 << 30)

	ctx, cancel := context.WithTimeout(ctx, time.Minute*5)
	defer cancel()

	for {
		m, err := c.Read(ctx)
		if err != nil {
			return err
		}
		switch m.Type {
		case websocket.FrameText, websocket.FrameBinary:
		default:
			continue
		}

		err = c.Write(ctx, m.Type, m.Payload)
		if err != nil {
			return err
		}
	}
}

// Echo writes a message and ensures the same is sent back on c.
func Echo(ctx context.Context, c *websocket.Conn, max int) error {
	expType := websocket.FrameBinary
	if xrand.Bool() {
		expType = websocket.FrameText
	}

	msg := randMessage(expType, xrand.Int(max))

	writeErr := xsync.Go(func() error {
		return c.Write(ctx, expType, msg)
	})

	var act websocket.Message
	for {
		var err error
		act, err = c.Read(ctx)
		if err != nil {
			return err
		}
		if act.Type == websocket.FrameText || act.Type == websocket.FrameBinary {
			break
		}
	}

	err := <-writeErr
	if err != nil {
		return err
	}

	if expType != act.Type {
		return fmt.Errorf("unexpected message typ (%v): %v", expType, act.Type)
	}

	if !bytes.Equal(msg, act.Payload) {
		return fmt.Errorf("unexpected msg read: %#v", act.Payload)
	}

	return nil
}

func randMessage(typ websocket.FrameType, n int) []byte {
	if typ == websocket.FrameBinary {
		return xrand.Bytes(n)
	}
	return []byte(xrand.String(n))
}
