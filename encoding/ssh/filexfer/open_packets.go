package filexfer

// SSH_FXF_* open flags, combined into OpenPacket.PFlags.
const (
	FlagRead      = 1 << iota // SSH_FXF_READ
	FlagWrite                 // SSH_FXF_WRITE
	FlagAppend                // SSH_FXF_APPEND
	FlagCreate                // SSH_FXF_CREAT
	FlagTruncate              // SSH_FXF_TRUNC
	FlagExclusive             // SSH_FXF_EXCL
)

// OpenPacket is the SSH_FXP_OPEN request.
type OpenPacket struct {
	Filename string
	PFlags   uint32
	Attrs    Attributes
}

func (p *OpenPacket) Type() PacketType { return PacketTypeOpen }

func (p *OpenPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	size := 1 + 4 + 4 + len(p.Filename) + 4 + p.Attrs.MarshalSize()

	buf := NewMarshalBuffer(size)
	buf.AppendUint8(uint8(PacketTypeOpen))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Filename)
	buf.AppendUint32(p.PFlags)
	p.Attrs.MarshalInto(buf)
	buf.PutLength(buf.Len() - 4)

	return buf.Bytes(), nil, nil
}

func (p *OpenPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.Filename, err = buf.ConsumeString(); err != nil {
		return err
	}
	if p.PFlags, err = buf.ConsumeUint32(); err != nil {
		return err
	}
	return p.Attrs.UnmarshalFrom(buf)
}

// OpenDirPacket is the SSH_FXP_OPENDIR request.
type OpenDirPacket struct {
	Path string
}

func (p *OpenDirPacket) Type() PacketType { return PacketTypeOpenDir }

func (p *OpenDirPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	size := 1 + 4 + 4 + len(p.Path)

	buf := NewMarshalBuffer(size)
	buf.AppendUint8(uint8(PacketTypeOpenDir))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Path)
	buf.PutLength(buf.Len() - 4)

	return buf.Bytes(), nil, nil
}

func (p *OpenDirPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Path, err = buf.ConsumeString()
	return err
}
