package websocket_test

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/test/wstest"
	"github.com/barews/websocket/internal/test/xrand"
	"github.com/barews/websocket/internal/xsync"
)

var benchSizes = []int{
	2,
	16,
	32,
	512,
	4096,
	16384,
}

func BenchmarkConn(b *testing.B) {
	for _, size := range benchSizes {
		size := size
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
			defer cancel()

			c1, c2, err := wstest.Pipe(ctx, nil, nil)
			if err != nil {
				b.Fatal(err)
			}
			defer c1.Close(websocket.StatusInternalError, "")

			echoLoopErr := xsync.Go(func() error {
				return wstest.EchoLoop(ctx, c2)
			})

			msg := []byte(strings.Repeat("2", size))
			b.SetBytes(int64(size))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				err := c1.Write(ctx, websocket.FrameText, msg)
				if err != nil {
					b.Fatal(err)
				}

				m, err := c1.Read(ctx)
				if err != nil {
					b.Fatal(err)
				}
				if len(m.Payload) != size {
					b.Fatalf("unexpected echo of %v bytes", len(m.Payload))
				}
			}
			b.StopTimer()

			err = c1.Close(websocket.StatusNormalClosure, "")
			if err != nil {
				b.Fatal(err)
			}
			err = <-echoLoopErr
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				b.Fatalf("unexpected echo loop error: %v", err)
			}
		})
	}
}

func BenchmarkEncodeFrame(b *testing.B) {
	for _, size := range benchSizes {
		p := xrand.Bytes(size)
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.Run("server", func(b *testing.B) {
				b.SetBytes(int64(len(p)))
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_, err := websocket.EncodeFrame(p, websocket.FrameBinary, websocket.RoleServer, nil)
					if err != nil {
						b.Fatal(err)
					}
				}
			})
			b.Run("client", func(b *testing.B) {
				rand := xrand.Reader(1)
				b.SetBytes(int64(len(p)))
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_, err := websocket.EncodeFrame(p, websocket.FrameBinary, websocket.RoleClient, rand)
					if err != nil {
						b.Fatal(err)
					}
				}
			})
			b.Run("gobwas", func(b *testing.B) {
				b.SetBytes(int64(len(p)))
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					f := ws.MaskFrame(ws.NewBinaryFrame(p))
					_, err := ws.CompileFrame(f)
					if err != nil {
						b.Fatal(err)
					}
				}
			})
		})
	}
}

func BenchmarkDecodeFrame(b *testing.B) {
	for _, size := range benchSizes {
		frame, err := websocket.EncodeFrame(xrand.Bytes(size), websocket.FrameBinary, websocket.RoleClient, xrand.Reader(1))
		if err != nil {
			b.Fatal(err)
		}
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.Run("barews", func(b *testing.B) {
				b.SetBytes(int64(size))
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_, err := websocket.DecodeFrame(frame, websocket.RoleServer)
					if err != nil {
						b.Fatal(err)
					}
				}
			})
			b.Run("gobwas", func(b *testing.B) {
				b.SetBytes(int64(size))
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					f, err := ws.ReadFrame(bytes.NewReader(frame))
					if err != nil {
						b.Fatal(err)
					}
					ws.Cipher(f.Payload, f.Header.Mask, 0)
				}
			})
		})
	}
}
