package websocket

import (
	"bufio"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/xerrors"
)

// maxHeaderBytes bounds the size of a handshake message.
const maxHeaderBytes = 8 << 10

// parseHeaders returns the header fields in lines keyed by lower case name.
// lines[0] is the request or status line and is skipped.
// Lines without a name or a value are dropped and later duplicates win.
func parseHeaders(lines []string) map[string]string {
	h := make(map[string]string, len(lines))
	if len(lines) == 0 {
		return h
	}
	for _, l := range lines[1:] {
		i := strings.IndexByte(l, ':')
		if i < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(l[:i]))
		value := strings.TrimSpace(l[i+1:])
		if name == "" || value == "" {
			continue
		}
		h[name] = value
	}
	return h
}

// validateHTTPVersion checks that an HTTP version token such as HTTP/1.1
// denotes at least version 1.1.
func validateHTTPVersion(tok string) error {
	v := tok
	if i := strings.LastIndexByte(tok, '/'); i >= 0 {
		v = tok[i+1:]
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return xerrors.Errorf("unparsable HTTP version %q: %w", tok, ErrInvalidVersion)
	}
	if f < 1.1 {
		return xerrors.Errorf("HTTP version %q is below 1.1: %w", tok, ErrInvalidVersion)
	}
	return nil
}

// headerHasToken reports whether the comma separated header value v
// contains token, compared case insensitively.
func headerHasToken(v, token string) bool {
	return httpguts.HeaderValuesContainsToken([]string{v}, token)
}

// readHeaderLines reads the lines of an HTTP message head up to the empty
// line that terminates it. Lines may end in CRLF or LF.
func readHeaderLines(br *bufio.Reader) ([]string, error) {
	var lines []string
	n := 0
	for {
		var l []byte
		for {
			frag, err := br.ReadSlice('\n')
			n += len(frag)
			if n > maxHeaderBytes {
				return nil, xerrors.Errorf("handshake larger than %v bytes", maxHeaderBytes)
			}
			l = append(l, frag...)
			if err == bufio.ErrBufferFull {
				continue
			}
			if err != nil {
				return nil, xerrors.Errorf("failed to read header line: %w", err)
			}
			break
		}

		s := strings.TrimRight(string(l), "\r\n")
		if s == "" {
			if len(lines) == 0 {
				return nil, xerrors.New("empty handshake message")
			}
			return lines, nil
		}
		lines = append(lines, s)
	}
}
