package filexfer

import (
	"encoding/binary"
	"errors"
)

// Encoding errors.
var (
	ErrShortPacket = errors.New("sftp: packet too short")
	ErrLongPacket  = errors.New("sftp: packet too long")
)

// Buffer wraps the wire encoding of SFTP's primitive field types, as defined
// in section 4 of draft-ietf-secsh-architecture-09: byte, uint32, uint64,
// and a length-prefixed opaque string (reused both for raw byte strings and
// for UTF-8 text fields).
//
// A zero Buffer is ready to marshal into. Use NewBuffer to decode existing
// bytes.
type Buffer struct {
	b   []byte
	off int
}

// NewBuffer creates a Buffer for decoding buf. The Buffer takes ownership of
// buf; the caller must not use buf after this call.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{b: buf}
}

// NewMarshalBuffer creates a Buffer ready to marshal a packet into,
// preallocating size additional bytes of capacity beyond the 4-byte length
// prefix that PutLength will later fill in.
func NewMarshalBuffer(size int) *Buffer {
	return &Buffer{b: make([]byte, 4, 4+size)}
}

// Bytes returns the unconsumed bytes of the Buffer. The slice aliases the
// Buffer's internal storage and is only valid until the next Append or
// Consume call.
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Len returns the number of unconsumed bytes remaining in the Buffer.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// Cap returns the capacity of the Buffer's underlying storage.
func (b *Buffer) Cap() int {
	return cap(b.b)
}

// ConsumeUint8 consumes a single byte.
func (b *Buffer) ConsumeUint8() (uint8, error) {
	if b.Len() < 1 {
		return 0, ErrShortPacket
	}

	v := b.b[b.off]
	b.off++
	return v, nil
}

// AppendUint8 appends a single byte.
func (b *Buffer) AppendUint8(v uint8) {
	b.b = append(b.b, v)
}

// ConsumeBool consumes a single byte, returning true if it is non-zero.
func (b *Buffer) ConsumeBool() (bool, error) {
	v, err := b.ConsumeUint8()
	return v != 0, err
}

// AppendBool appends a single byte: 1 for true, 0 for false.
func (b *Buffer) AppendBool(v bool) {
	if v {
		b.AppendUint8(1)
	} else {
		b.AppendUint8(0)
	}
}

// ConsumeUint32 consumes a big-endian uint32.
func (b *Buffer) ConsumeUint32() (uint32, error) {
	if b.Len() < 4 {
		return 0, ErrShortPacket
	}

	v := binary.BigEndian.Uint32(b.b[b.off:])
	b.off += 4
	return v, nil
}

// AppendUint32 appends a big-endian uint32.
func (b *Buffer) AppendUint32(v uint32) {
	b.b = binary.BigEndian.AppendUint32(b.b, v)
}

// ConsumeUint64 consumes a big-endian uint64.
func (b *Buffer) ConsumeUint64() (uint64, error) {
	if b.Len() < 8 {
		return 0, ErrShortPacket
	}

	v := binary.BigEndian.Uint64(b.b[b.off:])
	b.off += 8
	return v, nil
}

// AppendUint64 appends a big-endian uint64.
func (b *Buffer) AppendUint64(v uint64) {
	b.b = binary.BigEndian.AppendUint64(b.b, v)
}

// ConsumeByteSlice consumes a uint32 length followed by that many raw bytes.
// The returned slice aliases the Buffer's storage.
func (b *Buffer) ConsumeByteSlice() ([]byte, error) {
	length, err := b.ConsumeUint32()
	if err != nil {
		return nil, err
	}

	if b.Len() < int(length) {
		return nil, ErrShortPacket
	}

	v := b.b[b.off : b.off+int(length) : b.off+int(length)]
	b.off += int(length)
	return v, nil
}

// AppendByteSlice appends a uint32 length followed by v's raw bytes.
func (b *Buffer) AppendByteSlice(v []byte) {
	b.AppendUint32(uint32(len(v)))
	b.b = append(b.b, v...)
}

// ConsumeString consumes a length-prefixed string. Per the SFTP draft, text
// strings are valid UTF-8 unless a session has negotiated a different
// charset upstream of this package; this package does no transcoding.
func (b *Buffer) ConsumeString() (string, error) {
	v, err := b.ConsumeByteSlice()
	if err != nil {
		return "", err
	}

	return string(v), nil
}

// AppendString appends a length-prefixed string.
func (b *Buffer) AppendString(v string) {
	b.AppendByteSlice([]byte(v))
}

// PutLength overwrites the first four bytes of the Buffer (reserved by
// NewMarshalBuffer) with size, in network byte order.
func (b *Buffer) PutLength(size int) {
	if len(b.b) < 4 {
		b.b = append(b.b, make([]byte, 4-len(b.b))...)
	}

	binary.BigEndian.PutUint32(b.b, uint32(size))
}
