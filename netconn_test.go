package websocket_test

import (
	"io"
	"testing"
	"time"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/xsync"
)

func TestNetConn(t *testing.T) {
	t.Parallel()

	t.Run("roundTrip", func(t *testing.T) {
		tt := newTest(t)
		defer tt.done()

		c1, c2 := tt.pipe(nil, &websocket.ServerOptions{
			DisableAutoPong: true,
		})
		n1 := websocket.NetConn(c1, websocket.FrameBinary)
		n2 := websocket.NetConn(c2, websocket.FrameBinary)

		tt.eq("pipe", n1.RemoteAddr().Network())
		tt.eq("pipe", n2.LocalAddr().Network())

		writeErr := xsync.Go(func() error {
			err := c1.Ping(tt.ctx, []byte("skipped"))
			if err != nil {
				return err
			}
			_, err = n1.Write([]byte("hello world"))
			return err
		})

		b := make([]byte, 5)
		_, err := io.ReadFull(n2, b)
		tt.success(err)
		tt.eq("hello", string(b))

		b = make([]byte, 6)
		_, err = io.ReadFull(n2, b)
		tt.success(err)
		tt.eq(" world", string(b))
		tt.success(<-writeErr)

		readErr := xsync.Go(func() error {
			_, err := n2.Read(make([]byte, 1))
			return err
		})

		err = n1.Close()
		tt.success(err)
		tt.eq(io.EOF, <-readErr)

		_, err = n2.Read(make([]byte, 1))
		tt.eq(io.EOF, err)
	})

	t.Run("readDeadline", func(t *testing.T) {
		tt := newTest(t)
		defer tt.done()

		_, c2 := tt.pipe(nil, nil)
		n2 := websocket.NetConn(c2, websocket.FrameBinary)

		err := n2.SetReadDeadline(time.Now().Add(time.Millisecond * 10))
		tt.success(err)

		_, err = n2.Read(make([]byte, 1))
		if err == nil {
			t.Fatal("expected read past the deadline to fail")
		}
		tt.eq(websocket.StatusClosed, c2.Status())
	})

	t.Run("unexpectedType", func(t *testing.T) {
		tt := newTest(t)
		defer tt.done()

		c1, c2 := tt.pipe(nil, nil)
		n2 := websocket.NetConn(c2, websocket.FrameBinary)

		readErr := xsync.Go(func() error {
			_, err := n2.Read(make([]byte, 1))
			return err
		})

		err := c1.Write(tt.ctx, websocket.FrameText, []byte("hi"))
		tt.success(err)

		_, err = c1.Read(tt.ctx)
		tt.success(assertCloseStatus(websocket.StatusUnsupportedData, err))
		tt.errContains(<-readErr, "unexpected frame type")
	})
}
