// Package websocket implements the WebSocket protocol from the ground up.
//
// See https://tools.ietf.org/html/rfc6455
//
// The frame codec (EncodeFrame, DecodeFrame) and the handshake builders and
// parsers are pure functions over byte slices and header lines. Conn composes
// them over any io.ReadWriteCloser: Client and Server run the opening
// handshake once and then exchange one unfragmented frame per message.
//
// The wsjson and wspb subpackages read and write JSON and protobuf
// messages. NetConn adapts a Conn into a net.Conn.
//
// Fragmented messages, extensions such as permessage-deflate and TLS are
// not supported.
package websocket
