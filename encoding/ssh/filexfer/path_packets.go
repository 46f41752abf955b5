package filexfer

// RenameFlags are the SSH_FXF_RENAME_* bits defined for protocol version 5
// and above. On a version-3 server they have no wire representation of
// their own; the client falls back to the posix-rename@openssh.com
// extension, or to a plain RENAME, depending on which bits are set (see
// the rename decision table in the client package).
const (
	RenameOverwrite = 1 << iota // SSH_FXF_RENAME_OVERWRITE
	RenameAtomic                // SSH_FXF_RENAME_ATOMIC
	RenameNative                // SSH_FXF_RENAME_NATIVE
)

// LStatPacket is the SSH_FXP_LSTAT request: stat a path without following a
// trailing symlink.
type LStatPacket struct {
	Path string
}

func (p *LStatPacket) Type() PacketType { return PacketTypeLStat }

func (p *LStatPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path))
	buf.AppendUint8(uint8(PacketTypeLStat))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *LStatPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}

// StatPacket is the SSH_FXP_STAT request: stat a path, following a
// trailing symlink.
type StatPacket struct {
	Path string
}

func (p *StatPacket) Type() PacketType { return PacketTypeStat }

func (p *StatPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path))
	buf.AppendUint8(uint8(PacketTypeStat))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *StatPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}

// FStatPacket is the SSH_FXP_FSTAT request: stat an already-open handle.
type FStatPacket struct {
	Handle string
}

func (p *FStatPacket) Type() PacketType { return PacketTypeFStat }

func (p *FStatPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Handle))
	buf.AppendUint8(uint8(PacketTypeFStat))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Handle)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *FStatPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Handle, err = buf.ConsumeString()
	return err
}

// SetstatPacket is the SSH_FXP_SETSTAT request.
type SetstatPacket struct {
	Path  string
	Attrs Attributes
}

func (p *SetstatPacket) Type() PacketType { return PacketTypeSetstat }

func (p *SetstatPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path) + p.Attrs.MarshalSize())
	buf.AppendUint8(uint8(PacketTypeSetstat))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	p.Attrs.MarshalInto(buf)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *SetstatPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.Path, err = buf.ConsumeString(); err != nil {
		return err
	}
	return p.Attrs.UnmarshalFrom(buf)
}

// FSetstatPacket is the SSH_FXP_FSETSTAT request.
type FSetstatPacket struct {
	Handle string
	Attrs  Attributes
}

func (p *FSetstatPacket) Type() PacketType { return PacketTypeFSetstat }

func (p *FSetstatPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Handle) + p.Attrs.MarshalSize())
	buf.AppendUint8(uint8(PacketTypeFSetstat))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Handle)
	p.Attrs.MarshalInto(buf)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *FSetstatPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.Handle, err = buf.ConsumeString(); err != nil {
		return err
	}
	return p.Attrs.UnmarshalFrom(buf)
}

// RemovePacket is the SSH_FXP_REMOVE request.
type RemovePacket struct {
	Path string
}

func (p *RemovePacket) Type() PacketType { return PacketTypeRemove }

func (p *RemovePacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path))
	buf.AppendUint8(uint8(PacketTypeRemove))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *RemovePacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}

// MkdirPacket is the SSH_FXP_MKDIR request.
type MkdirPacket struct {
	Path  string
	Attrs Attributes
}

func (p *MkdirPacket) Type() PacketType { return PacketTypeMkdir }

func (p *MkdirPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path) + p.Attrs.MarshalSize())
	buf.AppendUint8(uint8(PacketTypeMkdir))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	p.Attrs.MarshalInto(buf)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *MkdirPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.Path, err = buf.ConsumeString(); err != nil {
		return err
	}
	return p.Attrs.UnmarshalFrom(buf)
}

// RmdirPacket is the SSH_FXP_RMDIR request.
type RmdirPacket struct {
	Path string
}

func (p *RmdirPacket) Type() PacketType { return PacketTypeRmdir }

func (p *RmdirPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path))
	buf.AppendUint8(uint8(PacketTypeRmdir))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *RmdirPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}

// RealPathPacket is the SSH_FXP_REALPATH request.
type RealPathPacket struct {
	Path string
}

func (p *RealPathPacket) Type() PacketType { return PacketTypeRealPath }

func (p *RealPathPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path))
	buf.AppendUint8(uint8(PacketTypeRealPath))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *RealPathPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}

// RenamePacket is the plain SSH_FXP_RENAME request, with no flags: this is
// the only form a version-3 server understands natively.
type RenamePacket struct {
	OldPath string
	NewPath string
}

func (p *RenamePacket) Type() PacketType { return PacketTypeRename }

func (p *RenamePacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.OldPath) + 4 + len(p.NewPath))
	buf.AppendUint8(uint8(PacketTypeRename))
	buf.AppendUint32(reqid)
	buf.AppendString(p.OldPath)
	buf.AppendString(p.NewPath)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *RenamePacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.OldPath, err = buf.ConsumeString(); err != nil {
		return err
	}
	p.NewPath, err = buf.ConsumeString()
	return err
}

// RenameV5Packet is SSH_FXP_RENAME as defined from protocol version 5
// onward: it appends a uint32 flags word after the two paths. The client
// only emits this when the negotiated operative version is >= 5.
type RenameV5Packet struct {
	OldPath string
	NewPath string
	Flags   uint32
}

func (p *RenameV5Packet) Type() PacketType { return PacketTypeRename }

func (p *RenameV5Packet) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.OldPath) + 4 + len(p.NewPath) + 4)
	buf.AppendUint8(uint8(PacketTypeRename))
	buf.AppendUint32(reqid)
	buf.AppendString(p.OldPath)
	buf.AppendString(p.NewPath)
	buf.AppendUint32(p.Flags)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *RenameV5Packet) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.OldPath, err = buf.ConsumeString(); err != nil {
		return err
	}
	if p.NewPath, err = buf.ConsumeString(); err != nil {
		return err
	}
	p.Flags, err = buf.ConsumeUint32()
	return err
}

// ReadLinkPacket is the SSH_FXP_READLINK request.
type ReadLinkPacket struct {
	Path string
}

func (p *ReadLinkPacket) Type() PacketType { return PacketTypeReadLink }

func (p *ReadLinkPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Path))
	buf.AppendUint8(uint8(PacketTypeReadLink))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *ReadLinkPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}

// SymlinkPacket is the SSH_FXP_SYMLINK request.
//
// The field order below matches the wire order the draft specifies
// (linkpath, then targetpath) literally; it does not compensate for
// OpenSSH's well-known historical swap of the two arguments.
type SymlinkPacket struct {
	LinkPath   string
	TargetPath string
}

func (p *SymlinkPacket) Type() PacketType { return PacketTypeSymlink }

func (p *SymlinkPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.LinkPath) + 4 + len(p.TargetPath))
	buf.AppendUint8(uint8(PacketTypeSymlink))
	buf.AppendUint32(reqid)
	buf.AppendString(p.LinkPath)
	buf.AppendString(p.TargetPath)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *SymlinkPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.LinkPath, err = buf.ConsumeString(); err != nil {
		return err
	}
	p.TargetPath, err = buf.ConsumeString()
	return err
}
