package websocket

import (
	"golang.org/x/xerrors"
)

// Frame protocol errors returned by DecodeFrame and EncodeFrame.
// None of them are recoverable for the frame in question.
var (
	ErrFrameTooShort            = xerrors.New("frame too short")
	ErrFragmentationUnsupported = xerrors.New("fragmented or extended frames are not supported")
	ErrInvalidOpcode            = xerrors.New("invalid opcode")
	ErrMaskPolicyViolation      = xerrors.New("frame masking does not match role")
	ErrControlFrameTooLarge     = xerrors.New("control frame payload larger than 125 bytes")
	ErrIncompleteLength         = xerrors.New("incomplete extended payload length")
	ErrIncompletePayload        = xerrors.New("incomplete payload")
	ErrInvalidUTF8              = xerrors.New("invalid UTF-8 in text payload")
	ErrPayloadTooLarge          = xerrors.New("payload too large")
)

// ErrClosed is returned by writes on a connection that is not open.
var ErrClosed = xerrors.New("websocket connection is not open")
