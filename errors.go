package sftpengine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
)

// ErrClosed is returned by any operation attempted after Close, matching
// fs.ErrClosed so callers composing against errors.Is see the same signal
// an *os.File would give them.
var ErrClosed = fs.ErrClosed

// StatusError reports a non-OK SSH_FXP_STATUS response from the server. It
// preserves the numeric code even when this package has no named constant
// for it, since a real server may reply with any code defined by any draft
// of the protocol.
type StatusError struct {
	Code        filexfer.Status
	Message     string
	LanguageTag string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sftp: %v", e.Code)
	}
	return fmt.Sprintf("sftp: %v: %s", e.Code, e.Message)
}

func newStatusError(p *filexfer.StatusPacket) *StatusError {
	return &StatusError{Code: p.StatusCode, Message: p.ErrorMessage, LanguageTag: p.LanguageTag}
}

// ProtocolError reports a violation of the wire protocol's shape: an
// unexpected packet type, a malformed field, a length out of bounds, or a
// duplicate VERSION. A ProtocolError returned from an operation is reported
// to that operation's caller only; it does not close the engine's
// connection, and other operations keep running on it.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "sftp: protocol error: " + e.msg }

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// wrapDecodeError attaches which packet failed to decode to its cause,
// using pkg/errors so the original UnmarshalInto failure's message survives
// in the *ProtocolError string. Only that text is kept: the wrapped error
// itself, and its stack trace, are not reachable from the result.
func wrapDecodeError(err error, packetType filexfer.PacketType) error {
	return &ProtocolError{msg: pkgerrors.Wrapf(err, "decoding %v", packetType).Error()}
}

// UnsupportedOperationError reports an engine-side refusal of an operation
// the negotiated protocol version and server extensions cannot satisfy, so
// the caller can test for it with errors.As without ever touching the wire.
type UnsupportedOperationError struct {
	Op  string
	Why string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("sftp: %s: unsupported: %s", e.Op, e.Why)
}

// statusToError maps a decoded STATUS response onto the idiomatic stdlib
// sentinels where one applies, falling back to *StatusError so the caller
// never loses the server's code and message.
func statusToError(p *filexfer.StatusPacket, okExpected bool) error {
	switch p.StatusCode {
	case filexfer.StatusOK:
		if !okExpected {
			return protocolErrorf("unexpected SSH_FX_OK")
		}
		return nil

	case filexfer.StatusEOF:
		return io.EOF
	case filexfer.StatusNoSuchFile:
		return fs.ErrNotExist
	case filexfer.StatusPermissionDenied:
		return fs.ErrPermission
	}

	return newStatusError(p)
}

// wrapPathError adapts err to *fs.PathError the way os.Open/os.Stat do,
// except that a bare io.EOF is returned unwrapped: numerous callers (e.g.
// io.Copy) rely on errors.Is(err, io.EOF) seeing it directly.
func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

// wrapLinkError adapts err to *os.LinkError, the two-path counterpart of
// wrapPathError, for Rename/Symlink.
func wrapLinkError(op, oldpath, newpath string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return &os.LinkError{Op: op, Old: oldpath, New: newpath, Err: err}
}

// ensurePacketTypeIs decodes raw into a value of type T, unless raw is
// itself a STATUS packet, in which case it is decoded and raised as a
// *StatusError (or mapped stdlib sentinel) instead of a ProtocolError.
func ensurePacketTypeIs[T any, PT interface {
	*T
	filexfer.Packet
}](raw *filexfer.RawPacket) (*T, error) {
	var want PT = new(T)

	if raw.Type == want.Type() {
		if err := raw.UnmarshalInto(want); err != nil {
			return nil, wrapDecodeError(err, raw.Type)
		}
		return want, nil
	}

	if raw.Type == filexfer.PacketTypeStatus {
		var status filexfer.StatusPacket
		if err := raw.UnmarshalInto(&status); err != nil {
			return nil, wrapDecodeError(err, raw.Type)
		}
		return nil, statusToError(&status, false)
	}

	return nil, protocolErrorf("unexpected packet type: got %v, want %v", raw.Type, want.Type())
}

// ensureStatusPacketIsOK decodes raw as a STATUS packet and raises it as an
// error unless its code is OK.
func ensureStatusPacketIsOK(raw *filexfer.RawPacket) error {
	if raw.Type != filexfer.PacketTypeStatus {
		return protocolErrorf("unexpected packet type: got %v, want %v", raw.Type, filexfer.PacketTypeStatus)
	}

	var status filexfer.StatusPacket
	if err := raw.UnmarshalInto(&status); err != nil {
		return wrapDecodeError(err, raw.Type)
	}

	return statusToError(&status, true)
}

// ensureStatusIs decodes raw as a STATUS packet and raises an error unless
// its code is exactly want (used by operations with more than one
// acceptable terminal code, e.g. READDIR's EOF).
func ensureStatusIs(raw *filexfer.RawPacket, want filexfer.Status) error {
	if raw.Type != filexfer.PacketTypeStatus {
		return protocolErrorf("unexpected packet type: got %v, want %v", raw.Type, filexfer.PacketTypeStatus)
	}

	var status filexfer.StatusPacket
	if err := raw.UnmarshalInto(&status); err != nil {
		return wrapDecodeError(err, raw.Type)
	}

	if status.StatusCode != want {
		return statusToError(&status, want == filexfer.StatusOK)
	}

	return nil
}
