// Package wstest contains helpers for testing WebSocket connections.
package wstest

import (
	"context"
	"net"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/errd"
	"github.com/barews/websocket/internal/xsync"
)

// Pipe is used to create an in memory connection
// between two websockets analogous to net.Pipe.
// Both handshakes have completed when it returns.
func Pipe(ctx context.Context, copts *websocket.ClientOptions, sopts *websocket.ServerOptions) (_ *websocket.Conn, _ *websocket.Conn, err error) {
	defer errd.Wrap(&err, "failed to create ws pipe")

	clientConn, serverConn := net.Pipe()

	var s *websocket.Conn
	serverErr := xsync.Go(func() error {
		var err error
		s, err = websocket.Server(ctx, serverConn, sopts)
		return err
	})

	c, err := websocket.Client(ctx, clientConn, copts)
	if err != nil {
		<-serverErr
		return nil, nil, err
	}

	err = <-serverErr
	if err != nil {
		c.Close(websocket.StatusInternalError, "")
		return nil, nil, err
	}

	return c, s, nil
}
