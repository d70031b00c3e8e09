// Package wssha1 implements the SHA-1 hash algorithm as defined in FIPS 180-1.
//
// SHA-1 is cryptographically broken. It is only used here to derive the
// Sec-WebSocket-Accept value of the opening handshake.
package wssha1

import (
	"encoding/binary"
	"math/bits"
)

// Size of a SHA-1 digest in bytes.
const Size = 20

// BlockSize of SHA-1 in bytes.
const BlockSize = 64

const (
	k0 = 0x5A827999
	k1 = 0x6ED9EBA1
	k2 = 0x8F1BBCDC
	k3 = 0xCA62C1D6
)

var initial = [5]uint32{0x67452301, 0xEFCDAB89, 0x98BADCFE, 0x10325476, 0xC3D2E1F0}

// Sum returns the SHA-1 digest of msg.
func Sum(msg []byte) [Size]byte {
	h := initial

	padded := pad(msg)
	for len(padded) >= BlockSize {
		block(&h, padded[:BlockSize])
		padded = padded[BlockSize:]
	}

	var digest [Size]byte
	for i, v := range h {
		binary.BigEndian.PutUint32(digest[i*4:], v)
	}
	return digest
}

// pad appends 0x80, zeros up to 56 mod 64 and the message length in bits
// as a big endian uint64.
func pad(msg []byte) []byte {
	n := len(msg) + 1 + 8
	n = (n + BlockSize - 1) / BlockSize * BlockSize

	b := make([]byte, n)
	copy(b, msg)
	b[len(msg)] = 0x80
	binary.BigEndian.PutUint64(b[n-8:], uint64(len(msg))*8)
	return b
}

func block(h *[5]uint32, p []byte) {
	var w [80]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(p[i*4:])
	}
	for i := 16; i < 80; i++ {
		w[i] = bits.RotateLeft32(w[i-3]^w[i-8]^w[i-14]^w[i-16], 1)
	}

	a, b, c, d, e := h[0], h[1], h[2], h[3], h[4]
	for i := 0; i < 80; i++ {
		var f, k uint32
		switch {
		case i < 20:
			f = b&c | ^b&d
			k = k0
		case i < 40:
			f = b ^ c ^ d
			k = k1
		case i < 60:
			f = b&c | b&d | c&d
			k = k2
		default:
			f = b ^ c ^ d
			k = k3
		}
		t := bits.RotateLeft32(a, 5) + f + e + k + w[i]
		a, b, c, d, e = t, a, bits.RotateLeft32(b, 30), c, d
	}

	h[0] += a
	h[1] += b
	h[2] += c
	h[3] += d
	h[4] += e
}
