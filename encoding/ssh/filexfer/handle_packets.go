package filexfer

// ClosePacket is the SSH_FXP_CLOSE request.
type ClosePacket struct {
	Handle string
}

func (p *ClosePacket) Type() PacketType { return PacketTypeClose }

func (p *ClosePacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Handle))
	buf.AppendUint8(uint8(PacketTypeClose))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Handle)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *ClosePacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Handle, err = buf.ConsumeString()
	return err
}

// ReadPacket is the SSH_FXP_READ request.
type ReadPacket struct {
	Handle string
	Offset uint64
	Length uint32
}

func (p *ReadPacket) Type() PacketType { return PacketTypeRead }

func (p *ReadPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Handle) + 8 + 4)
	buf.AppendUint8(uint8(PacketTypeRead))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Handle)
	buf.AppendUint64(p.Offset)
	buf.AppendUint32(p.Length)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *ReadPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.Handle, err = buf.ConsumeString(); err != nil {
		return err
	}
	if p.Offset, err = buf.ConsumeUint64(); err != nil {
		return err
	}
	p.Length, err = buf.ConsumeUint32()
	return err
}

// WritePacket is the SSH_FXP_WRITE request. Data is kept as a separate
// payload slice rather than copied into the header, so large writes avoid
// an extra allocation and copy on the hot path.
type WritePacket struct {
	Handle string
	Offset uint64
	Data   []byte
}

func (p *WritePacket) Type() PacketType { return PacketTypeWrite }

func (p *WritePacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Handle) + 8 + 4)
	buf.AppendUint8(uint8(PacketTypeWrite))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Handle)
	buf.AppendUint64(p.Offset)
	buf.AppendUint32(uint32(len(p.Data)))
	buf.PutLength(buf.Len() - 4 + len(p.Data))
	return buf.Bytes(), p.Data, nil
}

func (p *WritePacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.Handle, err = buf.ConsumeString(); err != nil {
		return err
	}
	if p.Offset, err = buf.ConsumeUint64(); err != nil {
		return err
	}
	p.Data, err = buf.ConsumeByteSlice()
	return err
}

// ReadDirPacket is the SSH_FXP_READDIR request.
type ReadDirPacket struct {
	Handle string
}

func (p *ReadDirPacket) Type() PacketType { return PacketTypeReadDir }

func (p *ReadDirPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Handle))
	buf.AppendUint8(uint8(PacketTypeReadDir))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Handle)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *ReadDirPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Handle, err = buf.ConsumeString()
	return err
}
