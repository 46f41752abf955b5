// Package filexfer implements the typed wire encoding for SFTP version 3,
// as drafted in draft-ietf-secsh-filexfer-02.
//
// It owns two of the engine's leaf components: the Codec (primitive field
// and packet encoding/decoding) and the Framer (the length-prefixed framing
// that sits underneath every packet on the wire). Nothing in this package
// talks to a network or blocks on I/O beyond the single buffered read that
// the Framer performs to pull one frame off a reader.
package filexfer

import "fmt"

// PacketMarshaller is implemented by any value that can marshal itself into
// a request or response packet addressed to the given request id.
//
// header is the fixed-size prefix (length + type + id + any fixed fields);
// payload is an optional trailing slice that the caller may pass in
// uncopied (e.g. the data of a WRITE request) so that large transfers avoid
// an extra copy through the Buffer.
type PacketMarshaller interface {
	MarshalPacket(reqid uint32) (header, payload []byte, err error)
}

// Packet is a typed SFTP packet: it knows its own wire type and can both
// marshal itself and decode its body (the bytes following the type and
// request id, which the Framer/RawPacket have already consumed).
type Packet interface {
	PacketMarshaller

	Type() PacketType

	// UnmarshalPacketBody decodes the packet body from buf.
	// The caller has already consumed the request id.
	UnmarshalPacketBody(buf *Buffer) error
}

// ComposePacket concatenates a header and payload produced by a
// PacketMarshaller into a single contiguous byte slice, suitable for
// implementing encoding.BinaryMarshaler on top of MarshalPacket.
func ComposePacket(header, payload []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}

	if len(payload) == 0 {
		return header, nil
	}

	return append(header, payload...), nil
}

// unexpectedTypeError is returned when a decoder encounters a packet type it
// was not expecting to see on the wire at that point in the protocol.
type unexpectedTypeError struct {
	want, got PacketType
}

func (e *unexpectedTypeError) Error() string {
	return fmt.Sprintf("sftp: unexpected packet type: got %v, want %v", e.got, e.want)
}
