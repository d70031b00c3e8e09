// Package xrand generates random test data.
package xrand

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	mrand "math/rand"
	"strings"
)

// Bytes generates random bytes with length n.
func Bytes(n int) []byte {
	b := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, b)
	if err != nil {
		panic(fmt.Sprintf("failed to generate rand bytes: %v", err))
	}
	return b
}

// String generates a random valid UTF-8 string with length n.
func String(n int) string {
	s := strings.ToValidUTF8(string(Bytes(n)), "_")
	s = strings.ReplaceAll(s, "\x00", "_")
	if len(s) > n {
		// Cutting may split a multi byte rune.
		s = strings.ToValidUTF8(s[:n], "_")
	}
	if len(s) < n {
		s += strings.Repeat("=", n-len(s))
	}
	return s
}

// Bool returns a randomly generated boolean.
func Bool() bool {
	return Int(2) == 1
}

// Int returns a randomly generated integer between [0, max).
func Int(max int) int {
	x, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("failed to get random int: %v", err))
	}
	return int(x.Int64())
}

// Reader returns a deterministic byte source for the given seed.
// Two readers with the same seed produce the same stream.
func Reader(seed int64) io.Reader {
	return mrand.New(mrand.NewSource(seed))
}
