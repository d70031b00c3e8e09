package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"github.com/barews/websocket"
)

type serverConfig struct {
	addr         string
	statsAddr    string
	subprotocols []string
	origins      []string
	readLimit    int64
	rate         float64
	burst        int
}

func (cfg *serverConfig) flags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.addr, "addr", "localhost:8080", "address to accept WebSocket connections on")
	fs.StringVar(&cfg.statsAddr, "stats-addr", "", "address to serve /stats and /healthz on, disabled when empty")
	fs.StringSliceVar(&cfg.subprotocols, "subprotocol", nil, "subprotocols to negotiate, in order of preference")
	fs.StringSliceVar(&cfg.origins, "origin-pattern", nil, "host patterns of the browser origins allowed to connect")
	fs.Int64Var(&cfg.readLimit, "read-limit", 32768, "largest frame payload accepted from clients")
	fs.Float64Var(&cfg.rate, "rate", 10, "messages per second each client may publish")
	fs.IntVar(&cfg.burst, "burst", 8, "burst of messages each client may publish")
}

func runServer(ctx context.Context, logger slog.Logger, cfg serverConfig) error {
	l, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return xerrors.Errorf("failed to listen: %w", err)
	}
	logger.Info(ctx, "listening", slog.F("addr", "ws://"+l.Addr().String()))

	h := newHub(logger.Named("hub"), rate.Limit(cfg.rate), cfg.burst)

	if cfg.statsAddr != "" {
		s := &http.Server{
			Addr:         cfg.statsAddr,
			Handler:      statsHandler(h),
			ReadTimeout:  time.Second * 10,
			WriteTimeout: time.Second * 10,
		}
		go func() {
			logger.Info(ctx, "serving stats", slog.F("addr", "http://"+cfg.statsAddr))
			err := s.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "stats server failed", slog.Error(err))
			}
		}()
		defer s.Close()
	}

	opts := &websocket.ServerOptions{
		Subprotocols:   cfg.subprotocols,
		OriginPatterns: cfg.origins,
		Logger:         logger.Named("conn"),
		ReadLimit:      cfg.readLimit,
	}
	return acceptLoop(ctx, logger, l, h, opts)
}

// acceptLoop accepts connections on l and hands each one to h until ctx
// is cancelled. All connections are closed with StatusGoingAway before
// it returns.
func acceptLoop(ctx context.Context, logger slog.Logger, l net.Listener, h *hub, opts *websocket.ServerOptions) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	done := make(chan struct{})
	defer close(done)

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-done:
		}
		l.Close()
		h.closeAll(websocket.StatusGoingAway, "server shutting down")
	}()

	for {
		nc, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return xerrors.Errorf("failed to accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, logger, nc, h, opts)
		}()
	}
}

func handleConn(ctx context.Context, logger slog.Logger, nc net.Conn, h *hub, opts *websocket.ServerOptions) {
	hctx, cancel := context.WithTimeout(ctx, time.Second*10)
	c, err := websocket.Server(hctx, nc, opts)
	cancel()
	if err != nil {
		logger.Warn(ctx, "handshake failed", slog.F("remote_addr", nc.RemoteAddr().String()), slog.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	// The hub closes the connection itself on shutdown.
	err = h.serve(context.Background(), c)
	if err != nil && !errors.Is(err, websocket.ErrClosed) {
		logger.Warn(ctx, "connection failed", slog.F("conn_id", c.ID()), slog.Error(err))
	}
}
