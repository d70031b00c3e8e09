package wssha1_test

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/barews/websocket/internal/test/assert"
	"github.com/barews/websocket/internal/test/xrand"
	"github.com/barews/websocket/internal/wssha1"
)

func TestSum(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		exp  string
	}{
		{
			name: "empty",
			in:   "",
			exp:  "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		},
		{
			name: "abc",
			in:   "abc",
			exp:  "a9993e364706816aba3e25717850c26c9cd0d89d",
		},
		{
			name: "twoBlocks",
			in:   "abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq",
			exp:  "84983e441c3bd26ebaae4aa1f95129e5e54670f1",
		},
		{
			name: "millionA",
			in:   strings.Repeat("a", 1000000),
			exp:  "34aa973cd4c4daa4f61eeb2bdbad27316534016f",
		},
		{
			name: "handshakeKey",
			in:   "dGhlIHNhbXBsZSBub25jZQ==258EAFA5-E914-47DA-95CA-C5AB0DC85B11",
			exp:  "b37a4f2cc0624f1690f64606cf385945b2bec4ea",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sum := wssha1.Sum([]byte(tc.in))
			assert.Equal(t, "digest", tc.exp, hex.EncodeToString(sum[:]))
		})
	}
}

func TestSumStdlib(t *testing.T) {
	t.Parallel()

	// Cover every length around the padding boundaries.
	for n := 0; n < 3*wssha1.BlockSize; n++ {
		b := xrand.Bytes(n)
		assert.Equal(t, "digest", sha1.Sum(b), wssha1.Sum(b))
	}

	for i := 0; i < 32; i++ {
		b := xrand.Bytes(xrand.Int(1 << 14))
		assert.Equal(t, "digest", sha1.Sum(b), wssha1.Sum(b))
	}
}
