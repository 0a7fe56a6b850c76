// Package wire implements the server's binary frame codec: every frame
// is `tag:int64 | discriminator:uint8 | body`, little endian, with
// length-prefixed strings/byte arrays and count-prefixed repeated
// fields. Command is a tagged union of ~35 request/response kinds;
// response discriminators share the request's numeric space with the
// high bit set, so ReadFrame's caller can tell request from response
// without tracking connection state.
//
// The codec is hand-rolled on encoding/binary and bufio; JSON or
// protobuf would not match the fixed byte layout the protocol requires.
// The discriminator-to-factory table doubles as the registry ReadFrame
// needs to allocate the right Go type before decoding.
package wire
