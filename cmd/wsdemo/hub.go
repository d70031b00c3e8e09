package main

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cdr.dev/slog"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/xsync"
)

// hub broadcasts every text message received from a subscriber
// to all subscribers.
type hub struct {
	logger slog.Logger

	// limit and burst configure the per connection message rate limiter.
	limit rate.Limit
	burst int

	published atomic.Int64
	dropped   atomic.Int64

	subscribersMu sync.Mutex
	subscribers   map[string]*subscriber
	closing       bool
}

type subscriber struct {
	c       *websocket.Conn
	msgs    chan []byte
	limiter *rate.Limiter
}

func newHub(logger slog.Logger, limit rate.Limit, burst int) *hub {
	return &hub{
		logger:      logger,
		limit:       limit,
		burst:       burst,
		subscribers: make(map[string]*subscriber),
	}
}

// serve subscribes c to all broadcast messages and publishes the text
// messages it receives until the connection closes or ctx is cancelled.
// It creates a msgs chan with a buffer of 16 to give some room to slower
// connections.
func (h *hub) serve(ctx context.Context, c *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &subscriber{
		c:       c,
		msgs:    make(chan []byte, 16),
		limiter: rate.NewLimiter(h.limit, h.burst),
	}
	if !h.addSubscriber(s) {
		return c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	defer h.deleteSubscriber(s)

	writeErr := xsync.Go(func() error {
		return s.writeLoop(ctx)
	})

	err := c.Serve(ctx, websocket.HandlerFuncs{
		Text: func(text string) error {
			err := s.limiter.Wait(ctx)
			if err != nil {
				return err
			}
			h.publish([]byte(text))
			return nil
		},
		Binary: func(p []byte) error {
			return xerrors.Errorf("unexpected binary message of %v bytes", len(p))
		},
	})
	cancel()

	werr := <-writeErr
	if err != nil {
		return err
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return nil
}

func (s *subscriber) writeLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-s.msgs:
			err := writeTimeout(ctx, time.Second*5, s.c, msg)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.Write(ctx, websocket.FrameText, msg)
}

// publish publishes the msg to all subscribers.
// It never blocks and so messages to slow subscribers
// are dropped.
func (h *hub) publish(msg []byte) {
	h.published.Add(1)

	h.subscribersMu.Lock()
	defer h.subscribersMu.Unlock()

	for id, s := range h.subscribers {
		select {
		case s.msgs <- msg:
		default:
			h.dropped.Add(1)
			h.logger.Debug(context.Background(), "dropped message for slow subscriber", slog.F("conn_id", id))
		}
	}
}

// addSubscriber registers s unless the hub is closing.
func (h *hub) addSubscriber(s *subscriber) bool {
	h.subscribersMu.Lock()
	if h.closing {
		h.subscribersMu.Unlock()
		return false
	}
	h.subscribers[s.c.ID()] = s
	h.subscribersMu.Unlock()

	h.logger.Info(context.Background(), "subscriber joined", slog.F("conn_id", s.c.ID()))
	return true
}

func (h *hub) deleteSubscriber(s *subscriber) {
	h.subscribersMu.Lock()
	delete(h.subscribers, s.c.ID())
	h.subscribersMu.Unlock()

	h.logger.Info(context.Background(), "subscriber left", slog.F("conn_id", s.c.ID()))
}

// closeAll closes every subscribed connection with code and reason.
// Connections served afterwards are closed right away.
func (h *hub) closeAll(code websocket.StatusCode, reason string) {
	h.subscribersMu.Lock()
	h.closing = true
	conns := make([]*websocket.Conn, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		conns = append(conns, s.c)
	}
	h.subscribersMu.Unlock()

	for _, c := range conns {
		err := c.Close(code, reason)
		if err != nil {
			h.logger.Debug(context.Background(), "failed to close subscriber", slog.F("conn_id", c.ID()), slog.Error(err))
		}
	}
}

type hubStats struct {
	Subscribers []string `json:"subscribers"`
	Published   int64    `json:"published"`
	Dropped     int64    `json:"dropped"`
}

func (h *hub) stats() hubStats {
	h.subscribersMu.Lock()
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	h.subscribersMu.Unlock()
	sort.Strings(ids)

	return hubStats{
		Subscribers: ids,
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}
