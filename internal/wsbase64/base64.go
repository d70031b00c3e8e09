// Package wsbase64 implements the standard Base64 alphabet with '=' padding
// as described in RFC 4648 section 4.
//
// Only the accept key derivation and the Sec-WebSocket-Key nonce use it.
package wsbase64

import (
	"golang.org/x/xerrors"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const pad = '='

// ErrInvalidEncoding is returned by Decode for input containing a
// character outside the alphabet or misplaced padding.
var ErrInvalidEncoding = xerrors.New("invalid base64 encoding")

var decodeMap [256]byte

func init() {
	for i := range decodeMap {
		decodeMap[i] = 0xff
	}
	for i := 0; i < len(alphabet); i++ {
		decodeMap[alphabet[i]] = byte(i)
	}
}

// EncodedLen returns the length of the padded encoding of n bytes.
func EncodedLen(n int) int {
	return (n + 2) / 3 * 4
}

// Encode returns the padded Base64 encoding of b.
//
// Encode panics if b is empty. There is no meaningful key or digest
// with zero bytes so an empty input is always a caller bug.
func Encode(b []byte) string {
	if len(b) == 0 {
		panic("wsbase64: cannot encode empty input")
	}

	dst := make([]byte, 0, EncodedLen(len(b)))

	// acc holds the not yet emitted bits in its low nbits bits.
	var acc uint
	var nbits uint
	for _, c := range b {
		acc = acc<<8 | uint(c)
		nbits += 8
		for nbits >= 6 {
			nbits -= 6
			dst = append(dst, alphabet[acc>>nbits&0x3f])
		}
	}

	switch nbits {
	case 2:
		// 4 zero bits complete the window, two symbols short of a quantum.
		dst = append(dst, alphabet[acc<<4&0x3f], pad, pad)
	case 4:
		dst = append(dst, alphabet[acc<<2&0x3f], pad)
	}

	return string(dst)
}

// Decode returns the bytes represented by s.
// Trailing padding is ignored and incomplete trailing bits are dropped.
func Decode(s string) ([]byte, error) {
	end := len(s)
	for end > 0 && s[end-1] == pad {
		end--
	}

	dst := make([]byte, 0, end*6/8)

	var acc uint
	var nbits uint
	for i := 0; i < end; i++ {
		v := decodeMap[s[i]]
		if v == 0xff {
			return nil, xerrors.Errorf("illegal character %q at offset %d: %w", s[i], i, ErrInvalidEncoding)
		}
		acc = acc<<6 | uint(v)
		nbits += 6
		if nbits >= 8 {
			nbits -= 8
			dst = append(dst, byte(acc>>nbits))
		}
	}

	return dst, nil
}
