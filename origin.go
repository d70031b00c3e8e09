package websocket

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/xerrors"
)

// authenticateOrigin checks the Origin of a client request against the
// host it addressed and the given host patterns.
//
// A request without an Origin header is always allowed since only
// browsers send one. An empty pattern list allows every origin.
func authenticateOrigin(hs HandshakeState, originPatterns []string) error {
	if hs.Origin == "" || len(originPatterns) == 0 {
		return nil
	}

	u, err := url.Parse(hs.Origin)
	if err != nil {
		return &HandshakeError{
			Code:    403,
			Message: fmt.Sprintf("failed to parse Origin header %q: %v", hs.Origin, err),
		}
	}

	if strings.EqualFold(hs.Host, u.Host) {
		return nil
	}

	for _, pattern := range originPatterns {
		matched, err := matchOriginHost(pattern, u.Host)
		if err != nil {
			return err
		}
		if matched {
			return nil
		}
	}

	return &HandshakeError{
		Code:    403,
		Message: fmt.Sprintf("request Origin %q is not authorized for Host %q", hs.Origin, hs.Host),
	}
}

// matchOriginHost matches host against a path.Match pattern
// ignoring case.
func matchOriginHost(pattern, host string) (bool, error) {
	matched, err := path.Match(strings.ToLower(pattern), strings.ToLower(host))
	if err != nil {
		return false, xerrors.Errorf("failed to parse path pattern %q: %w", pattern, err)
	}
	return matched, nil
}
