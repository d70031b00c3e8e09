package wsbase64_test

import (
	"encoding/base64"
	"testing"

	"github.com/barews/websocket/internal/test/assert"
	"github.com/barews/websocket/internal/test/xrand"
	"github.com/barews/websocket/internal/wsbase64"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in  string
		exp string
	}{
		{"f", "Zg=="},
		{"fo", "Zm8="},
		{"foo", "Zm9v"},
		{"foob", "Zm9vYg=="},
		{"fooba", "Zm9vYmE="},
		{"foobar", "Zm9vYmFy"},
		{"the sample nonce", "dGhlIHNhbXBsZSBub25jZQ=="},
		{"\xff\xff\xff", "////"},
		{"\xfb\xef", "++8="},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.exp, func(t *testing.T) {
			t.Parallel()

			got := wsbase64.Encode([]byte(tc.in))
			assert.Equal(t, "encoding", tc.exp, got)
			assert.Equal(t, "length", wsbase64.EncodedLen(len(tc.in)), len(got))

			b, err := wsbase64.Decode(got)
			assert.Success(t, err)
			assert.Equal(t, "decoded", tc.in, string(b))
		})
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
	}()
	wsbase64.Encode(nil)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		in      string
		exp     string
		success bool
	}{
		{
			name:    "empty",
			in:      "",
			exp:     "",
			success: true,
		},
		{
			name:    "unpadded",
			in:      "Zm9vYg",
			exp:     "foob",
			success: true,
		},
		{
			name:    "extraPadding",
			in:      "Zm8====",
			exp:     "fo",
			success: true,
		},
		{
			name:    "leftoverBits",
			in:      "Zm9vY",
			exp:     "foo",
			success: true,
		},
		{
			name:    "paddingThenSymbol",
			in:      "Zg==Zg==",
			success: false,
		},
		{
			name:    "illegalCharacter",
			in:      "Zm9v*mFy",
			success: false,
		},
		{
			name:    "space",
			in:      "Zm9v YmFy",
			success: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := wsbase64.Decode(tc.in)
			if !tc.success {
				assert.ErrorIs(t, wsbase64.ErrInvalidEncoding, err)
				return
			}
			assert.Success(t, err)
			assert.Equal(t, "decoded", tc.exp, string(b))
		})
	}
}

func TestStdlib(t *testing.T) {
	t.Parallel()

	for i := 0; i < 256; i++ {
		b := xrand.Bytes(1 + xrand.Int(256))

		exp := base64.StdEncoding.EncodeToString(b)
		got := wsbase64.Encode(b)
		assert.Equal(t, "encoding", exp, got)

		d, err := wsbase64.Decode(got)
		assert.Success(t, err)
		assert.Equal(t, "decoded", b, d)
	}
}
