package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"golang.org/x/time/rate"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/test/assert"
	"github.com/barews/websocket/internal/test/wstest"
	"github.com/barews/websocket/internal/xsync"
)

func TestHub(t *testing.T) {
	t.Parallel()

	t.Run("broadcast", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		h := newHub(slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}), rate.Inf, 1)

		c1, s1, err := wstest.Pipe(ctx, nil, nil)
		assert.Success(t, err)
		defer c1.Close(websocket.StatusInternalError, "")
		c2, s2, err := wstest.Pipe(ctx, nil, nil)
		assert.Success(t, err)
		defer c2.Close(websocket.StatusInternalError, "")

		serveErr1 := xsync.Go(func() error {
			return h.serve(ctx, s1)
		})
		serveErr2 := xsync.Go(func() error {
			return h.serve(ctx, s2)
		})
		waitSubscribers(ctx, t, h, 2)

		err = c1.Write(ctx, websocket.FrameText, []byte("hello"))
		assert.Success(t, err)

		for _, c := range []*websocket.Conn{c1, c2} {
			m, err := c.Read(ctx)
			assert.Success(t, err)
			assert.Equal(t, "type", websocket.FrameText, m.Type)
			assert.Equal(t, "text", "hello", m.Text())
		}

		ids := []string{s1.ID(), s2.ID()}
		sort.Strings(ids)
		st := h.stats()
		assert.Equal(t, "subscribers", ids, st.Subscribers)
		assert.Equal(t, "published", int64(1), st.Published)

		err = c1.Close(websocket.StatusNormalClosure, "")
		assert.Success(t, err)
		assert.Success(t, <-serveErr1)

		err = c2.Close(websocket.StatusGoingAway, "")
		assert.Success(t, err)
		assert.Success(t, <-serveErr2)

		assert.Equal(t, "subscribers", []string{}, h.stats().Subscribers)
	})

	t.Run("rateLimited", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		h := newHub(slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}), rate.Every(time.Hour), 1)

		c1, s1, err := wstest.Pipe(ctx, nil, nil)
		assert.Success(t, err)
		defer c1.Close(websocket.StatusInternalError, "")

		serveErr := xsync.Go(func() error {
			return h.serve(ctx, s1)
		})

		for _, msg := range []string{"a", "b"} {
			err = c1.Write(ctx, websocket.FrameText, []byte(msg))
			assert.Success(t, err)
		}

		// The broadcast of the first message may lose the race with the close.
		for {
			_, err = c1.Read(ctx)
			if err != nil {
				break
			}
		}
		assert.Equal(t, "close status", websocket.StatusInternalError, websocket.CloseStatus(err))
		assert.Contains(t, <-serveErr, "rate")
	})

	t.Run("closing", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		h := newHub(slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}), rate.Inf, 1)
		h.closeAll(websocket.StatusGoingAway, "bye")

		c1, s1, err := wstest.Pipe(ctx, nil, nil)
		assert.Success(t, err)
		defer c1.Close(websocket.StatusInternalError, "")

		serveErr := xsync.Go(func() error {
			return h.serve(ctx, s1)
		})

		_, err = c1.Read(ctx)
		assert.Equal(t, "close status", websocket.StatusGoingAway, websocket.CloseStatus(err))
		assert.Success(t, <-serveErr)
		assert.Equal(t, "subscribers", []string{}, h.stats().Subscribers)
	})

	t.Run("binaryRejected", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		h := newHub(slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}), rate.Inf, 1)

		c1, s1, err := wstest.Pipe(ctx, nil, nil)
		assert.Success(t, err)
		defer c1.Close(websocket.StatusInternalError, "")

		serveErr := xsync.Go(func() error {
			return h.serve(ctx, s1)
		})

		err = c1.Write(ctx, websocket.FrameBinary, []byte{1, 2, 3})
		assert.Success(t, err)

		_, err = c1.Read(ctx)
		assert.Equal(t, "close status", websocket.StatusInternalError, websocket.CloseStatus(err))
		assert.Contains(t, <-serveErr, "unexpected binary message")
	})
}

func TestServer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	logger := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Success(t, err)

	h := newHub(logger, rate.Inf, 1)
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	acceptErr := xsync.Go(func() error {
		return acceptLoop(serverCtx, logger, l, h, &websocket.ServerOptions{
			Subprotocols: []string{"chat"},
		})
	})

	c, err := websocket.Dial(ctx, "ws://"+l.Addr().String()+"/", &websocket.DialOptions{
		ClientOptions: websocket.ClientOptions{
			Subprotocols: []string{"chat"},
		},
	})
	assert.Success(t, err)
	defer c.Close(websocket.StatusInternalError, "")
	assert.Equal(t, "subprotocol", "chat", c.Subprotocol())

	err = c.Write(ctx, websocket.FrameText, []byte("hi"))
	assert.Success(t, err)
	m, err := c.Read(ctx)
	assert.Success(t, err)
	assert.Equal(t, "text", "hi", m.Text())

	stopServer()

	_, err = c.Read(ctx)
	assert.Equal(t, "close status", websocket.StatusGoingAway, websocket.CloseStatus(err))
	assert.Success(t, <-acceptErr)
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("badArgs", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			name string
			args []string
			err  string
		}{
			{
				name: "noCommand",
				err:  "usage",
			},
			{
				name: "unknownCommand",
				args: []string{"proxy"},
				err:  `unknown command "proxy"`,
			},
			{
				name: "unknownFlag",
				args: []string{"client", "--nope"},
				err:  "unknown flag",
			},
			{
				name: "extraArgs",
				args: []string{"server", "extra"},
				err:  "unexpected arguments",
			},
		}

		for _, tc := range testCases {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				err := run(context.Background(), tc.args, nil, io.Discard, io.Discard)
				assert.Contains(t, err, tc.err)
			})
		}
	})

	t.Run("client", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		logger := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true})

		l, err := net.Listen("tcp", "127.0.0.1:0")
		assert.Success(t, err)

		h := newHub(logger, rate.Inf, 1)
		serverCtx, stopServer := context.WithCancel(ctx)
		acceptErr := xsync.Go(func() error {
			return acceptLoop(serverCtx, logger, l, h, nil)
		})
		defer func() {
			stopServer()
			assert.Success(t, <-acceptErr)
		}()

		stdin, stdinw := io.Pipe()
		stdout := make(lineWriter, 16)
		runErr := xsync.Go(func() error {
			return run(ctx, []string{"client", "--url", "ws://" + l.Addr().String() + "/"}, stdin, stdout, io.Discard)
		})

		_, err = io.WriteString(stdinw, "/msg hello there\n")
		assert.Success(t, err)

		select {
		case line := <-stdout:
			assert.Equal(t, "line", "hello there\n", line)
		case <-ctx.Done():
			t.Fatal(ctx.Err())
		}

		_, err = io.WriteString(stdinw, "bye\n")
		assert.Success(t, err)
		assert.Success(t, <-runErr)
	})
}

func TestStatsHandler(t *testing.T) {
	t.Parallel()

	h := newHub(slogtest.Make(t, nil), rate.Inf, 1)
	h.publish([]byte("nobody is listening"))

	s := httptest.NewServer(statsHandler(h))
	defer s.Close()

	resp, err := http.Get(s.URL + "/healthz")
	assert.Success(t, err)
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Success(t, err)
	assert.Equal(t, "status", http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body", "ok", string(b))

	resp, err = http.Get(s.URL + "/stats")
	assert.Success(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "status", http.StatusOK, resp.StatusCode)

	var st struct {
		Connections int      `json:"connections"`
		Subscribers []string `json:"subscribers"`
		Published   int64    `json:"published"`
		Dropped     int64    `json:"dropped"`
	}
	err = json.NewDecoder(resp.Body).Decode(&st)
	assert.Success(t, err)
	assert.Equal(t, "connections", 0, st.Connections)
	assert.Equal(t, "published", int64(1), st.Published)
	assert.Equal(t, "dropped", int64(0), st.Dropped)

	resp2, err := http.Get(s.URL + "/missing")
	assert.Success(t, err)
	resp2.Body.Close()
	assert.Equal(t, "status", http.StatusNotFound, resp2.StatusCode)
}

// lineWriter sends each write on the channel.
type lineWriter chan string

func (w lineWriter) Write(p []byte) (int, error) {
	w <- string(p)
	return len(p), nil
}

func waitSubscribers(ctx context.Context, t *testing.T, h *hub, n int) {
	t.Helper()

	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()

	for len(h.stats().Subscribers) != n {
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %v subscribers: %v", n, ctx.Err())
		case <-ticker.C:
		}
	}
}
