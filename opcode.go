package websocket

import (
	"fmt"
)

// Role is the side of a WebSocket connection.
// It decides which frames must be masked and which handshake
// message is written first.
type Role int

// Role constants.
const (
	RoleClient Role = iota
	RoleServer
)

// Peer returns the role on the other side of the connection.
func (r Role) Peer() Role {
	if r == RoleClient {
		return RoleServer
	}
	return RoleClient
}

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// FrameType is the opcode of a WebSocket frame.
// See https://tools.ietf.org/html/rfc6455#section-11.8.
type FrameType int

// FrameType constants.
const (
	FrameContinuation FrameType = iota
	FrameText
	FrameBinary
	// 3 - 7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	FrameClose
	FramePing
	FramePong
	// 11-16 are reserved for further control frames.
)

func (t FrameType) String() string {
	switch t {
	case FrameContinuation:
		return "continuation"
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameClose:
		return "close"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	}
	return fmt.Sprintf("FrameType(%d)", int(t))
}

func (t FrameType) known() bool {
	switch t {
	case FrameContinuation, FrameText, FrameBinary, FrameClose, FramePing, FramePong:
		return true
	}
	return false
}

func (t FrameType) control() bool {
	switch t {
	case FrameClose, FramePing, FramePong:
		return true
	}
	return false
}

// Message is a single decoded frame.
//
// Text and continuation payloads are always valid UTF-8.
type Message struct {
	Type    FrameType
	Payload []byte
}

// Text returns the payload as a string.
func (m Message) Text() string {
	return string(m.Payload)
}
