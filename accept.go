package websocket

import (
	"context"
	"io"

	"cdr.dev/slog"
	"golang.org/x/xerrors"

	"github.com/barews/websocket/internal/errd"
)

// ServerOptions represents the options available to pass to Server.
type ServerOptions struct {
	// Subprotocols lists the subprotocols to negotiate with the client.
	// The first one also offered by the client is selected.
	// The empty subprotocol will always be negotiated as per RFC 6455.
	Subprotocols []string

	// OriginPatterns lists the host patterns of the origins allowed
	// in addition to the one of the addressed host. Patterns use
	// path.Match syntax and are matched case insensitively.
	//
	// Requests carrying an Origin header that matches neither are
	// rejected with 403 Forbidden. When empty, every origin is allowed.
	OriginPatterns []string

	// Logger receives debug events about the connection.
	// The zero value discards them.
	Logger slog.Logger

	// ReadLimit is the largest frame payload accepted.
	// Defaults to 32768 bytes.
	ReadLimit int64

	// DisableAutoPong stops Read from answering pings.
	DisableAutoPong bool
}

// Server performs the server side of the opening handshake over rwc
// and returns the open connection.
//
// A rejected handshake is answered with a 400, 403 or 405 response, the
// transport is closed and the returned error wraps the *HandshakeError.
func Server(ctx context.Context, rwc io.ReadWriteCloser, opts *ServerOptions) (_ *Conn, err error) {
	defer errd.Wrap(&err, "failed to accept WebSocket connection")

	if opts == nil {
		opts = &ServerOptions{}
	}

	c := newConn(connConfig{
		role:            RoleServer,
		rwc:             rwc,
		logger:          opts.Logger,
		readLimit:       opts.ReadLimit,
		disableAutoPong: opts.DisableAutoPong,
	})

	err = c.serverHandshake(ctx, opts)
	if err != nil {
		c.logger.Debug(ctx, "handshake failed", slog.Error(err))
		c.close(err)
		return nil, err
	}

	c.open(ctx)
	return c, nil
}

func (c *Conn) serverHandshake(ctx context.Context, opts *ServerOptions) error {
	lines, err := c.readHandshake(ctx)
	if err != nil {
		return err
	}

	hs, err := ParseClientRequest(lines)
	if err == nil {
		err = authenticateOrigin(hs, opts.OriginPatterns)
	}
	if err != nil {
		var herr *HandshakeError
		if xerrors.As(err, &herr) {
			// The client is told why before the transport goes away.
			werr := c.writeRaw(ctx, BuildErrorResponse(herr))
			if werr != nil {
				c.logger.Debug(ctx, "failed to write handshake error response", slog.Error(werr))
			}
		}
		return err
	}

	hs.Subprotocol = selectSubprotocol(hs.Subprotocol, opts.Subprotocols)
	c.handshake = hs

	return c.writeRaw(ctx, BuildServerResponse(hs.Key, hs.Subprotocol))
}

// readHandshake reads the lines of the peer's handshake message.
func (c *Conn) readHandshake(ctx context.Context) ([]string, error) {
	err := c.setTimeout(c.readTimeout, ctx)
	if err != nil {
		return nil, err
	}
	defer c.setTimeout(c.readTimeout, context.Background())

	lines, err := readHeaderLines(c.br)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	return lines, nil
}
