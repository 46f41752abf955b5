// Package openssh implements the OpenSSH-specific SFTP protocol extensions
// that a version-3 server may advertise in its VERSION packet, keyed by
// name@openssh.com strings rather than being part of the base draft.
package openssh

import "github.com/halvarflake/sftpengine/encoding/ssh/filexfer"

// ExtensionPOSIXRename is the extension pair a server advertises in its
// VERSION packet to offer posix-rename@openssh.com: an atomic rename that
// succeeds even when newpath already exists, unlike the base protocol's
// RENAME.
func ExtensionPOSIXRename() filexfer.ExtensionPair {
	return filexfer.ExtensionPair{
		Name: "posix-rename@openssh.com",
		Data: "1",
	}
}

// POSIXRenameExtendedPacket is the SSH_FXP_EXTENDED request naming
// posix-rename@openssh.com, with the two paths as its request-specific
// data. MarshalPacket emits the whole EXTENDED packet, extension name
// included. The server replies with a plain StatusPacket.
type POSIXRenameExtendedPacket struct {
	OldPath string
	NewPath string
}

// ExtendedRequestName returns the extension name this packet is framed
// under, for building the enclosing ExtendedPacket.
func (p *POSIXRenameExtendedPacket) ExtendedRequestName() string {
	return "posix-rename@openssh.com"
}

func (p *POSIXRenameExtendedPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	const name = "posix-rename@openssh.com"

	size := 1 + 4 + 4 + len(name) + 4 + len(p.OldPath) + 4 + len(p.NewPath)

	buf := filexfer.NewMarshalBuffer(size)
	buf.AppendUint8(uint8(filexfer.PacketTypeExtended))
	buf.AppendUint32(reqid)
	buf.AppendString(name)
	buf.AppendString(p.OldPath)
	buf.AppendString(p.NewPath)
	buf.PutLength(buf.Len() - 4)

	return buf.Bytes(), nil, nil
}

func (p *POSIXRenameExtendedPacket) Type() filexfer.PacketType { return filexfer.PacketTypeExtended }

func (p *POSIXRenameExtendedPacket) UnmarshalPacketBody(buf *filexfer.Buffer) (err error) {
	// The extension-request name has already been consumed by the generic
	// ExtendedPacket decode; only the two paths remain.
	if p.OldPath, err = buf.ConsumeString(); err != nil {
		return err
	}
	p.NewPath, err = buf.ConsumeString()
	return err
}
