package filexfer

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxPacketLength is the default ceiling on a decoded frame's
// declared length: 256 KiB of nominal payload plus slack for attribute
// overhead. A frame whose length prefix exceeds the configured maximum is
// treated as a fatal framing error, not a recoverable one, since the
// stream's byte alignment cannot be trusted afterward.
const DefaultMaxPacketLength uint32 = 256*1024 + 1024

// RawPacket is an undecoded frame: the four-byte length prefix has already
// been consumed and validated, and Type/RequestID have been peeled off the
// front of Payload, but the packet-specific body is left untouched until
// the caller knows (from context) which concrete Packet to decode it into.
type RawPacket struct {
	Type      PacketType
	RequestID uint32
	Payload   []byte

	// body backs Payload; kept separately so ReadRawPacketInto can reuse
	// its capacity across frames even after Payload has been reassigned
	// (e.g. by consuming bytes off its front) by a caller.
	body []byte
}

// Reset clears r's fields, keeping its backing array so it can be reused
// with ReadRawPacketInto.
func (r *RawPacket) Reset() {
	r.Type = 0
	r.RequestID = 0
	r.Payload = nil
}

// MarshalBinary implements encoding.BinaryMarshaler by reassembling the
// length prefix, type, and request id around the untouched Payload.
func (r *RawPacket) MarshalBinary() ([]byte, error) {
	buf := NewMarshalBuffer(1 + 4 + len(r.Payload))
	buf.AppendUint8(uint8(r.Type))
	buf.AppendUint32(r.RequestID)
	buf.PutLength(buf.Len() - 4 + len(r.Payload))
	return ComposePacket(buf.Bytes(), r.Payload, nil)
}

// UnmarshalInto decodes r's body into p, having already checked that
// r.Type == p.Type().
func (r *RawPacket) UnmarshalInto(p Packet) error {
	if r.Type != p.Type() {
		return &unexpectedTypeError{want: p.Type(), got: r.Type}
	}

	return p.UnmarshalPacketBody(NewBuffer(r.Payload))
}

// UnmarshalAttrsReply is a convenience for decoding an AttrsPacket when the
// caller is willing to accept either ATTRS or STATUS (an error response
// that did not come back with an attributes body).
func (r *RawPacket) UnmarshalAttrsReply() (*Attributes, error) {
	switch r.Type {
	case PacketTypeAttrs:
		p := new(AttrsPacket)
		if err := r.UnmarshalInto(p); err != nil {
			return nil, err
		}
		return &p.Attrs, nil

	case PacketTypeStatus:
		p := new(StatusPacket)
		if err := r.UnmarshalInto(p); err != nil {
			return nil, err
		}
		return nil, p

	default:
		return nil, &unexpectedTypeError{want: PacketTypeAttrs, got: r.Type}
	}
}

// Error implements error, so a StatusPacket decoded in place of an expected
// response can be returned directly as the failure.
func (p *StatusPacket) Error() string {
	if p.ErrorMessage == "" {
		return fmt.Sprintf("sftp: %v", p.StatusCode)
	}
	return fmt.Sprintf("sftp: %v: %s", p.StatusCode, p.ErrorMessage)
}

// frameTooLongError is returned by ReadRawPacketInto when a frame's declared length
// exceeds the configured maximum. It is always fatal to the connection: the
// reader has no way to skip the oversized frame and resynchronize.
type frameTooLongError struct {
	length, max uint32
}

func (e *frameTooLongError) Error() string {
	return fmt.Sprintf("sftp: frame length %d exceeds maximum %d", e.length, e.max)
}

// ReadRawPacket reads one length-prefixed frame from r, enforcing maxLength
// as the ceiling on the frame's declared length (a maxLength of 0 selects
// DefaultMaxPacketLength). It decodes the frame down to type and request id
// but leaves the packet-specific body in Payload for the caller to decode.
//
// This is the Framer: the only place in the module that peels the 4-byte
// length prefix off the wire.
func ReadRawPacket(r io.Reader, maxLength uint32) (*RawPacket, error) {
	raw := new(RawPacket)
	if err := ReadRawPacketInto(r, maxLength, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ReadRawPacketInto reads one length-prefixed frame from r into raw,
// reusing raw.body's backing array when it is already large enough. This
// lets a caller that recycles RawPacket envelopes between reads (a
// multiplexer's recv loop) avoid a fresh allocation for every frame.
func ReadRawPacketInto(r io.Reader, maxLength uint32, raw *RawPacket) error {
	if maxLength == 0 {
		maxLength = DefaultMaxPacketLength
	}

	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])

	if length > maxLength {
		return &frameTooLongError{length: length, max: maxLength}
	}
	if length < 5 {
		// Every packet body carries at minimum a one-byte type and a
		// four-byte request id; INIT and VERSION are the exceptions, and
		// neither is ever read through this path (the handshake frames
		// them itself).
		return ErrShortPacket
	}

	if cap(raw.body) < int(length) {
		raw.body = make([]byte, length)
	}
	raw.body = raw.body[:length]
	if _, err := io.ReadFull(r, raw.body); err != nil {
		return err
	}

	buf := NewBuffer(raw.body)

	typ, err := buf.ConsumeUint8()
	if err != nil {
		return err
	}

	reqid, err := buf.ConsumeUint32()
	if err != nil {
		return err
	}

	raw.Type = PacketType(typ)
	raw.RequestID = reqid
	raw.Payload = buf.Bytes()
	return nil
}

// WriteRawPacket marshals m addressed to reqid and writes the resulting frame
// to w in a single Write call, so that concurrent writers sharing w cannot
// interleave a partial frame.
func WriteRawPacket(w io.Writer, reqid uint32, m PacketMarshaller) error {
	header, payload, err := m.MarshalPacket(reqid)
	if err != nil {
		return err
	}

	frame, err := ComposePacket(header, payload, nil)
	if err != nil {
		return err
	}

	_, err = w.Write(frame)
	return err
}
