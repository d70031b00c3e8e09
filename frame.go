package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"golang.org/x/xerrors"

	"github.com/barews/websocket/internal/errd"
)

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5.
const maxControlPayload = 125

// header represents a WebSocket frame header.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
type header struct {
	fin    bool
	rsv1   bool
	rsv2   bool
	rsv3   bool
	opcode FrameType

	payloadLength int64

	masked  bool
	maskKey [4]byte
}

// headerSize returns the full header length, mask key included,
// announced by the second byte of a frame.
func headerSize(b1 byte) int {
	n := 2
	switch b1 & 0x7f {
	case 126:
		n += 2
	case 127:
		n += 8
	}
	if b1&(1<<7) != 0 {
		n += 4
	}
	return n
}

// appendHeader appends the wire form of h to b.
func appendHeader(b []byte, h header) []byte {
	var b0 byte
	if h.fin {
		b0 |= 1 << 7
	}
	if h.rsv1 {
		b0 |= 1 << 6
	}
	if h.rsv2 {
		b0 |= 1 << 5
	}
	if h.rsv3 {
		b0 |= 1 << 4
	}
	b0 |= byte(h.opcode) & 0xf

	var b1 byte
	if h.masked {
		b1 |= 1 << 7
	}

	switch {
	case h.payloadLength > math.MaxUint16:
		b = append(b, b0, b1|127)
		b = binary.BigEndian.AppendUint64(b, uint64(h.payloadLength))
	case h.payloadLength > maxControlPayload:
		b = append(b, b0, b1|126)
		b = binary.BigEndian.AppendUint16(b, uint16(h.payloadLength))
	default:
		b = append(b, b0, b1|byte(h.payloadLength))
	}

	if h.masked {
		b = append(b, h.maskKey[:]...)
	}
	return b
}

// parseHeader validates the frame header at the start of b as seen by role
// and returns it with the offset of the byte following the length field.
// The mask key is not read.
func parseHeader(b []byte, role Role) (header, int, error) {
	if len(b) < 2 {
		return header{}, 0, ErrFrameTooShort
	}

	var h header
	h.fin = b[0]&(1<<7) != 0
	h.rsv1 = b[0]&(1<<6) != 0
	h.rsv2 = b[0]&(1<<5) != 0
	h.rsv3 = b[0]&(1<<4) != 0
	h.opcode = FrameType(b[0] & 0xf)

	if !h.fin || h.rsv1 || h.rsv2 || h.rsv3 {
		return header{}, 0, xerrors.Errorf("first byte %#08b: %w", b[0], ErrFragmentationUnsupported)
	}
	if !h.opcode.known() {
		return header{}, 0, xerrors.Errorf("opcode %#x: %w", int(h.opcode), ErrInvalidOpcode)
	}

	h.masked = b[1]&(1<<7) != 0
	// Frames from a client are masked and frames from a server are not.
	if h.masked != (role == RoleServer) {
		return header{}, 0, xerrors.Errorf("%v received frame with mask bit %v: %w", role, h.masked, ErrMaskPolicyViolation)
	}

	length := b[1] &^ (1 << 7)
	if h.opcode.control() && length > maxControlPayload {
		return header{}, 0, xerrors.Errorf("%v frame length byte %v: %w", h.opcode, length, ErrControlFrameTooLarge)
	}

	n := 2
	switch length {
	case 126:
		if len(b) < n+2 {
			return header{}, 0, ErrIncompleteLength
		}
		h.payloadLength = int64(binary.BigEndian.Uint16(b[n:]))
		n += 2
	case 127:
		if len(b) < n+8 {
			return header{}, 0, ErrIncompleteLength
		}
		l := binary.BigEndian.Uint64(b[n:])
		if l > math.MaxInt64 {
			return header{}, 0, xerrors.Errorf("64 bit length with most significant bit set: %w", ErrPayloadTooLarge)
		}
		h.payloadLength = int64(l)
		n += 8
	default:
		h.payloadLength = int64(length)
	}

	return h, n, nil
}

// EncodeFrame returns a complete, unfragmented frame of type typ carrying p
// as sent by role.
//
// Client frames are masked with a fresh key read from rand.
// If rand is nil, crypto/rand is used.
// p is never modified.
func EncodeFrame(p []byte, typ FrameType, role Role, rand io.Reader) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to encode %v frame", typ)

	if typ == FrameContinuation || !typ.known() {
		return nil, ErrInvalidOpcode
	}
	if typ.control() && len(p) > maxControlPayload {
		return nil, xerrors.Errorf("%v bytes: %w", len(p), ErrPayloadTooLarge)
	}

	h := header{
		fin:           true,
		opcode:        typ,
		payloadLength: int64(len(p)),
		masked:        role == RoleClient,
	}
	if h.masked {
		err = readMaskKey(rand, &h.maskKey)
		if err != nil {
			return nil, err
		}
	}

	b := make([]byte, 0, maxHeaderSize+len(p))
	b = appendHeader(b, h)
	off := len(b)
	b = append(b, p...)
	if h.masked {
		mask(h.maskKey, 0, b[off:])
	}
	return b, nil
}

// maxHeaderSize is the largest possible frame header.
const maxHeaderSize = 2 + 8 + 4

func readMaskKey(r io.Reader, key *[4]byte) error {
	if r == nil {
		r = rand.Reader
	}
	_, err := io.ReadFull(r, key[:])
	if err != nil {
		return xerrors.Errorf("failed to generate mask key: %w", err)
	}
	return nil
}

// DecodeFrame decodes the frame at the start of b as received by role.
// Bytes following the frame are ignored.
//
// A continuation frame is returned as FrameText.
// The returned payload never aliases b.
func DecodeFrame(b []byte, role Role) (_ Message, err error) {
	defer errd.Wrap(&err, "failed to decode frame")

	h, n, err := parseHeader(b, role)
	if err != nil {
		return Message{}, err
	}

	if h.masked {
		if len(b) < n+4 {
			return Message{}, xerrors.Errorf("missing mask key: %w", ErrIncompletePayload)
		}
		copy(h.maskKey[:], b[n:])
		n += 4
	}
	if int64(len(b)-n) < h.payloadLength {
		return Message{}, xerrors.Errorf("have %v of %v payload bytes: %w", len(b)-n, h.payloadLength, ErrIncompletePayload)
	}

	p := make([]byte, h.payloadLength)
	copy(p, b[n:])
	if h.masked {
		mask(h.maskKey, 0, p)
	}

	m := Message{
		Type:    h.opcode,
		Payload: p,
	}
	switch h.opcode {
	case FrameContinuation, FrameText:
		m.Type = FrameText
		if !utf8.Valid(p) {
			return Message{}, ErrInvalidUTF8
		}
	case FrameClose:
		if len(p) > 2 && !utf8.Valid(p[2:]) {
			return Message{}, xerrors.Errorf("close reason: %w", ErrInvalidUTF8)
		}
	}
	return m, nil
}

// mask applies the WebSocket masking algorithm to b
// with the given key where the first 2 bits of pos
// are the starting position in the key.
// See https://tools.ietf.org/html/rfc6455#section-5.3
//
// The returned value is the position of the next byte
// to be used for masking in the key.
func mask(key [4]byte, pos int, b []byte) int {
	// If the payload is greater than or equal to 16 bytes, then it's worth
	// masking 8 bytes at a time.
	// Optimization from https://github.com/golang/go/issues/31586#issuecomment-485530859
	if len(b) >= 16 {
		// We first create a key that is 8 bytes long
		// and is aligned on the position correctly.
		var alignedKey [8]byte
		for i := range alignedKey {
			alignedKey[i] = key[(i+pos)&3]
		}
		k := binary.LittleEndian.Uint64(alignedKey[:])

		for len(b) >= 32 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^k)
			v = binary.LittleEndian.Uint64(b[8:])
			binary.LittleEndian.PutUint64(b[8:], v^k)
			v = binary.LittleEndian.Uint64(b[16:])
			binary.LittleEndian.PutUint64(b[16:], v^k)
			v = binary.LittleEndian.Uint64(b[24:])
			binary.LittleEndian.PutUint64(b[24:], v^k)
			b = b[32:]
		}

		for len(b) >= 8 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^k)
			b = b[8:]
		}
	}

	// xor remaining bytes.
	for i := range b {
		b[i] ^= key[pos&3]
		pos++
	}

	return pos & 3
}
