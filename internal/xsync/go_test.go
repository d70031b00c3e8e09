package xsync

import (
	"io"
	"testing"

	"github.com/barews/websocket/internal/test/assert"
)

func TestGoRecover(t *testing.T) {
	t.Parallel()

	errs := Go(func() error {
		panic("anmol")
	})

	err := <-errs
	assert.Contains(t, err, "anmol")
}

func TestGoResult(t *testing.T) {
	t.Parallel()

	err := <-Go(func() error {
		return io.EOF
	})
	assert.ErrorIs(t, io.EOF, err)
}
