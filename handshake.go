package websocket

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/xerrors"

	"github.com/barews/websocket/internal/wsbase64"
	"github.com/barews/websocket/internal/wssha1"
)

// keyGUID is appended to the client key to derive the accept value.
// See https://tools.ietf.org/html/rfc6455#section-1.3
const keyGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// protocolVersion is the only Sec-WebSocket-Version spoken.
const protocolVersion = 13

// Client side handshake errors. All of them wrap ErrHandshake.
var (
	ErrHandshake           = xerrors.New("websocket handshake failed")
	ErrInvalidStatusLine   = xerrors.Errorf("invalid status line: %w", ErrHandshake)
	ErrInvalidVersion      = xerrors.Errorf("invalid HTTP version: %w", ErrHandshake)
	ErrInvalidServerStatus = xerrors.Errorf("server did not switch protocols: %w", ErrHandshake)
	ErrAcceptMismatch      = xerrors.Errorf("Sec-WebSocket-Accept does not match key: %w", ErrHandshake)
)

// HandshakeError is a rejected opening handshake as seen by the server.
// Code is the HTTP status written back to the client.
type HandshakeError struct {
	Code    int
	Message string

	// versionRejected adds the supported version to the error response.
	versionRejected bool
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with %v: %v", e.Code, e.Message)
}

// Is reports whether target is ErrHandshake.
func (e *HandshakeError) Is(target error) bool {
	return target == ErrHandshake
}

func badRequest(f string, v ...interface{}) *HandshakeError {
	return &HandshakeError{
		Code:    400,
		Message: fmt.Sprintf(f, v...),
	}
}

// HandshakeState is the negotiated state of an opening handshake.
// It is filled in by the server while parsing the client request
// and never changes afterwards.
type HandshakeState struct {
	Resource    string
	Host        string
	Origin      string
	Subprotocol string
	Extensions  []string
	Version     int
	Key         string
}

// AcceptKey derives the Sec-WebSocket-Accept value for the raw
// Sec-WebSocket-Key text sent by a client.
func AcceptKey(key string) string {
	sum := wssha1.Sum([]byte(key + keyGUID))
	return wsbase64.Encode(sum[:])
}

// NewClientKey returns a Sec-WebSocket-Key nonce made of 16 bytes from rand.
// If rand is nil, crypto/rand is used.
func NewClientKey(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, 16)
	_, err := io.ReadFull(r, b)
	if err != nil {
		return "", xerrors.Errorf("failed to read random data for Sec-WebSocket-Key: %w", err)
	}
	return wsbase64.Encode(b), nil
}

// BuildClientRequest returns the opening handshake request.
// extra holds complete header lines such as "Origin: http://example.com"
// and is written after the required headers.
func BuildClientRequest(resource, host, key string, extra ...string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", resource)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Version: %d\r\n", protocolVersion)
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	for _, l := range extra {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// ParseServerResponse validates the handshake response lines received
// by a client that sent key. It returns the subprotocol chosen by the server.
func ParseServerResponse(lines []string, key string) (subprotocol string, err error) {
	if len(lines) == 0 {
		return "", xerrors.Errorf("empty response: %w", ErrInvalidStatusLine)
	}

	status := strings.Fields(lines[0])
	if len(status) < 3 {
		return "", xerrors.Errorf("%q: %w", lines[0], ErrInvalidStatusLine)
	}
	// The reason phrase may contain spaces.
	status = []string{status[0], status[1], strings.Join(status[2:], " ")}

	err = validateHTTPVersion(status[0])
	if err != nil {
		return "", err
	}
	if status[1] != "101" {
		return "", xerrors.Errorf("got status %v %v: %w", status[1], status[2], ErrInvalidServerStatus)
	}

	h := parseHeaders(lines)
	if !headerHasToken(h["upgrade"], "websocket") {
		return "", xerrors.Errorf("Upgrade header %q does not contain websocket: %w", h["upgrade"], ErrHandshake)
	}
	if !headerHasToken(h["connection"], "upgrade") {
		return "", xerrors.Errorf("Connection header %q does not contain Upgrade: %w", h["connection"], ErrHandshake)
	}

	accept, ok := h["sec-websocket-accept"]
	if !ok {
		return "", xerrors.Errorf("missing Sec-WebSocket-Accept: %w", ErrHandshake)
	}
	if accept != AcceptKey(key) {
		return "", xerrors.Errorf("got %q for key %q: %w", accept, key, ErrAcceptMismatch)
	}

	return h["sec-websocket-protocol"], nil
}

// ParseClientRequest validates the handshake request lines received by a server.
// Failures are reported as a *HandshakeError carrying the HTTP status to
// answer with.
func ParseClientRequest(lines []string) (HandshakeState, error) {
	if len(lines) == 0 {
		return HandshakeState{}, badRequest("empty request")
	}

	reqLine := strings.Fields(lines[0])
	if len(reqLine) != 3 {
		return HandshakeState{}, badRequest("invalid request line %q", lines[0])
	}
	method, target, version := reqLine[0], reqLine[1], reqLine[2]

	if method != "GET" {
		return HandshakeState{}, &HandshakeError{
			Code:    405,
			Message: fmt.Sprintf("handshake request method %q is not GET", method),
		}
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return HandshakeState{}, badRequest("invalid request target %q", target)
	}
	if err := validateHTTPVersion(version); err != nil {
		return HandshakeState{}, badRequest("invalid HTTP version %q", version)
	}

	h := parseHeaders(lines)

	host, ok := h["host"]
	if !ok {
		return HandshakeState{}, badRequest("Invalid header <Host>: missing")
	}
	if !headerHasToken(h["upgrade"], "websocket") {
		return HandshakeState{}, badRequest("Invalid header <Upgrade>: %q does not contain websocket", h["upgrade"])
	}
	if !headerHasToken(h["connection"], "upgrade") {
		return HandshakeState{}, badRequest("Invalid header <Connection>: %q does not contain Upgrade", h["connection"])
	}

	key := h["sec-websocket-key"]
	raw, err := wsbase64.Decode(key)
	if err != nil || len(raw) != 16 {
		return HandshakeState{}, badRequest("Invalid header <Sec-WebSocket-Key>: %q is not 16 base64 encoded bytes", key)
	}

	if v := h["sec-websocket-version"]; v != fmt.Sprint(protocolVersion) {
		return HandshakeState{}, &HandshakeError{
			Code:            400,
			Message:         fmt.Sprintf("Invalid header <Sec-WebSocket-Version>: unsupported version %q", v),
			versionRejected: true,
		}
	}

	hs := HandshakeState{
		Resource:    target,
		Host:        host,
		Origin:      h["origin"],
		Subprotocol: h["sec-websocket-protocol"],
		Extensions:  splitTokens(h["sec-websocket-extensions"]),
		Version:     protocolVersion,
		Key:         key,
	}
	return hs, nil
}

func splitTokens(v string) []string {
	var tokens []string
	for _, t := range strings.Split(v, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// BuildServerResponse returns the 101 response accepting the client key.
// The Sec-WebSocket-Protocol header is only written for a non empty subprotocol.
func BuildServerResponse(key, subprotocol string) []byte {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Accept: %s\r\n", AcceptKey(key))
	if subprotocol != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", subprotocol)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// BuildErrorResponse returns the HTTP response rejecting a handshake.
func BuildErrorResponse(err *HandshakeError) []byte {
	status := "400 Bad Request"
	switch err.Code {
	case 403:
		status = "403 Forbidden"
	case 405:
		status = "405 Method Not Allowed"
	}
	body := err.Message + "\n"

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %s\r\n", status)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n")
	if err.Code == 405 {
		b.WriteString("Allow: GET\r\n")
	}
	if err.versionRejected {
		fmt.Fprintf(&b, "Sec-WebSocket-Version: %d\r\n", protocolVersion)
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.Bytes()
}

// selectSubprotocol picks the first of the server's subprotocols
// offered by the client.
func selectSubprotocol(offered string, subprotocols []string) string {
	for _, sp := range subprotocols {
		if headerHasToken(offered, sp) {
			return sp
		}
	}
	return ""
}
