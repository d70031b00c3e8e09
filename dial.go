package websocket

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"

	"cdr.dev/slog"
	"golang.org/x/xerrors"

	"github.com/barews/websocket/internal/errd"
)

// ClientOptions represents the options available to pass to Client.
type ClientOptions struct {
	// Resource is the request-target of the handshake.
	// Defaults to "/".
	Resource string

	// Host is sent in the Host header.
	// Defaults to "localhost".
	Host string

	// Origin is sent in the Origin header when set.
	Origin string

	// Subprotocols lists the subprotocols to negotiate with the server.
	Subprotocols []string

	// Rand is the source of the handshake key and the frame mask keys.
	// Defaults to crypto/rand.
	Rand io.Reader

	// Logger receives debug events about the connection.
	// The zero value discards them.
	Logger slog.Logger

	// ReadLimit is the largest frame payload accepted.
	// Defaults to 32768 bytes.
	ReadLimit int64

	// DisableAutoPong stops Read from answering pings.
	DisableAutoPong bool
}

func (opts *ClientOptions) ensure() *ClientOptions {
	if opts == nil {
		opts = &ClientOptions{}
	} else {
		o := *opts
		opts = &o
	}

	if opts.Resource == "" {
		opts.Resource = "/"
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	return opts
}

// Client performs the client side of the opening handshake over rwc
// and returns the open connection.
// On failure the transport is closed.
func Client(ctx context.Context, rwc io.ReadWriteCloser, opts *ClientOptions) (_ *Conn, err error) {
	defer errd.Wrap(&err, "failed to perform WebSocket handshake")

	opts = opts.ensure()

	c := newConn(connConfig{
		role:            RoleClient,
		rwc:             rwc,
		rand:            opts.Rand,
		logger:          opts.Logger,
		readLimit:       opts.ReadLimit,
		disableAutoPong: opts.DisableAutoPong,
	})

	err = c.clientHandshake(ctx, opts)
	if err != nil {
		c.logger.Debug(ctx, "handshake failed", slog.Error(err))
		c.close(err)
		return nil, err
	}

	c.open(ctx)
	return c, nil
}

func (c *Conn) clientHandshake(ctx context.Context, opts *ClientOptions) error {
	key, err := NewClientKey(opts.Rand)
	if err != nil {
		return err
	}

	var extra []string
	if opts.Origin != "" {
		extra = append(extra, "Origin: "+opts.Origin)
	}
	if len(opts.Subprotocols) > 0 {
		extra = append(extra, "Sec-WebSocket-Protocol: "+strings.Join(opts.Subprotocols, ", "))
	}

	err = c.writeRaw(ctx, BuildClientRequest(opts.Resource, opts.Host, key, extra...))
	if err != nil {
		return err
	}

	lines, err := c.readHandshake(ctx)
	if err != nil {
		return err
	}

	subprotocol, err := ParseServerResponse(lines, key)
	if err != nil {
		return err
	}
	if subprotocol != "" && !contains(opts.Subprotocols, subprotocol) {
		return xerrors.Errorf("server selected subprotocol %q that was not offered: %w", subprotocol, ErrHandshake)
	}

	c.handshake = HandshakeState{
		Resource:    opts.Resource,
		Host:        opts.Host,
		Origin:      opts.Origin,
		Subprotocol: subprotocol,
		Version:     protocolVersion,
		Key:         key,
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// DialOptions represents the options available to pass to Dial.
type DialOptions struct {
	ClientOptions

	// Dialer establishes the TCP connection.
	// Defaults to a zero net.Dialer.
	Dialer *net.Dialer
}

// Dial connects to the ws:// URL u over TCP and performs the opening handshake.
// The resource and host of the handshake are taken from u.
func Dial(ctx context.Context, u string, opts *DialOptions) (_ *Conn, err error) {
	defer errd.Wrap(&err, "failed to WebSocket dial")

	if opts == nil {
		opts = &DialOptions{}
	}

	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse url: %w", err)
	}
	if parsedURL.Scheme != "ws" {
		return nil, xerrors.Errorf("unexpected url scheme: %q", parsedURL.Scheme)
	}

	addr := parsedURL.Host
	if parsedURL.Port() == "" {
		addr = net.JoinHostPort(parsedURL.Hostname(), "80")
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	copts := opts.ClientOptions
	copts.Resource = parsedURL.RequestURI()
	copts.Host = parsedURL.Host
	return Client(ctx, nc, &copts)
}
