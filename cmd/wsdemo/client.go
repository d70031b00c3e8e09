package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cdr.dev/slog"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"

	"github.com/barews/websocket"
	"github.com/barews/websocket/internal/xsync"
)

type clientConfig struct {
	url          string
	origin       string
	subprotocols []string
}

func (cfg *clientConfig) flags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.url, "url", "ws://localhost:8080/", "ws:// URL to connect to")
	fs.StringVar(&cfg.origin, "origin", "", "Origin header to send")
	fs.StringSliceVar(&cfg.subprotocols, "subprotocol", nil, "subprotocols to offer")
}

// msgPrefix marks the input lines that are sent as text messages.
// Any other line ends the session.
const msgPrefix = "/msg "

func runClient(ctx context.Context, logger slog.Logger, cfg clientConfig, stdin io.Reader, stdout io.Writer) error {
	c, err := websocket.Dial(ctx, cfg.url, &websocket.DialOptions{
		ClientOptions: websocket.ClientOptions{
			Origin:       cfg.origin,
			Subprotocols: cfg.subprotocols,
			Logger:       logger.Named("conn"),
		},
	})
	if err != nil {
		return err
	}
	defer c.Close(websocket.StatusInternalError, "")

	logger.Info(ctx, "connected", slog.F("url", cfg.url), slog.F("subprotocol", c.Subprotocol()))

	return chat(ctx, c, stdin, stdout)
}

// chat prints every message received on c to stdout and sends each
// "/msg <text>" line of stdin as a text message.
func chat(ctx context.Context, c *websocket.Conn, stdin io.Reader, stdout io.Writer) error {
	readErr := xsync.Go(func() error {
		return c.Serve(ctx, websocket.HandlerFuncs{
			Text: func(text string) error {
				_, err := fmt.Fprintln(stdout, text)
				return err
			},
			Binary: func(p []byte) error {
				_, err := fmt.Fprintf(stdout, "binary message: %x\n", p)
				return err
			},
		})
	})

	err := sendLines(ctx, c, stdin)
	if errors.Is(err, websocket.ErrClosed) {
		// The peer closed the connection first.
		return cleanClose(<-readErr)
	}
	if err != nil {
		return err
	}

	err = c.Close(websocket.StatusNormalClosure, "")
	if err != nil {
		return err
	}
	return cleanClose(<-readErr)
}

func sendLines(ctx context.Context, c *websocket.Conn, stdin io.Reader) error {
	sc := bufio.NewScanner(stdin)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, msgPrefix) {
			return nil
		}

		err := c.Write(ctx, websocket.FrameText, []byte(strings.TrimPrefix(line, msgPrefix)))
		if err != nil {
			return err
		}
	}
	err := sc.Err()
	if err != nil {
		return xerrors.Errorf("failed to read input: %w", err)
	}
	return nil
}

// cleanClose filters out the errors of a connection closed
// with StatusNormalClosure or StatusGoingAway.
func cleanClose(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return err
}
