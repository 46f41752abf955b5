package filexfer

// StatusPacket is the SSH_FXP_STATUS response: every request that does not
// have a more specific response (OK, or any error) comes back as one of
// these.
type StatusPacket struct {
	StatusCode   Status
	ErrorMessage string
	LanguageTag  string
}

func (p *StatusPacket) Type() PacketType { return PacketTypeStatus }

func (p *StatusPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	size := 1 + 4 + 4 + 4 + len(p.ErrorMessage) + 4 + len(p.LanguageTag)

	buf := NewMarshalBuffer(size)
	buf.AppendUint8(uint8(PacketTypeStatus))
	buf.AppendUint32(reqid)
	buf.AppendUint32(uint32(p.StatusCode))
	buf.AppendString(p.ErrorMessage)
	buf.AppendString(p.LanguageTag)
	buf.PutLength(buf.Len() - 4)

	return buf.Bytes(), nil, nil
}

func (p *StatusPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	code, err := buf.ConsumeUint32()
	if err != nil {
		return err
	}
	p.StatusCode = Status(code)

	if p.ErrorMessage, err = buf.ConsumeString(); err != nil {
		return err
	}

	p.LanguageTag, err = buf.ConsumeString()
	return err
}

// HandlePacket is the SSH_FXP_HANDLE response to OPEN and OPENDIR.
type HandlePacket struct {
	Handle string
}

func (p *HandlePacket) Type() PacketType { return PacketTypeHandle }

func (p *HandlePacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4 + len(p.Handle))
	buf.AppendUint8(uint8(PacketTypeHandle))
	buf.AppendUint32(reqid)
	buf.AppendString(p.Handle)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *HandlePacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Handle, err = buf.ConsumeString()
	return err
}

// DataPacket is the SSH_FXP_DATA response to READ.
type DataPacket struct {
	Data []byte
}

func (p *DataPacket) Type() PacketType { return PacketTypeData }

func (p *DataPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + 4)
	buf.AppendUint8(uint8(PacketTypeData))
	buf.AppendUint32(reqid)
	buf.AppendUint32(uint32(len(p.Data)))
	buf.PutLength(buf.Len() - 4 + len(p.Data))
	return buf.Bytes(), p.Data, nil
}

func (p *DataPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	p.Data, err = buf.ConsumeByteSlice()
	return err
}

// NamePacket is the SSH_FXP_NAME response to READDIR (a batch of
// directory entries) and to REALPATH/READLINK (always exactly one entry).
type NamePacket struct {
	Entries []*NameEntry
}

func (p *NamePacket) Type() PacketType { return PacketTypeName }

func (p *NamePacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	size := 1 + 4 + 4
	for _, e := range p.Entries {
		size += 4 + len(e.Filename) + 4 + len(e.Longname) + e.Attrs.MarshalSize()
	}

	buf := NewMarshalBuffer(size)
	buf.AppendUint8(uint8(PacketTypeName))
	buf.AppendUint32(reqid)
	buf.AppendUint32(uint32(len(p.Entries)))
	for _, e := range p.Entries {
		buf.AppendString(e.Filename)
		buf.AppendString(e.Longname)
		e.Attrs.MarshalInto(buf)
	}
	buf.PutLength(buf.Len() - 4)

	return buf.Bytes(), nil, nil
}

func (p *NamePacket) UnmarshalPacketBody(buf *Buffer) error {
	count, err := buf.ConsumeUint32()
	if err != nil {
		return err
	}

	p.Entries = make([]*NameEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var e NameEntry

		if e.Filename, err = buf.ConsumeString(); err != nil {
			return err
		}
		if e.Longname, err = buf.ConsumeString(); err != nil {
			return err
		}
		if err = e.Attrs.UnmarshalFrom(buf); err != nil {
			return err
		}

		p.Entries = append(p.Entries, &e)
	}

	return nil
}

// AttrsPacket is the SSH_FXP_ATTRS response to STAT, LSTAT, and FSTAT.
type AttrsPacket struct {
	Attrs Attributes
}

func (p *AttrsPacket) Type() PacketType { return PacketTypeAttrs }

func (p *AttrsPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4 + p.Attrs.MarshalSize())
	buf.AppendUint8(uint8(PacketTypeAttrs))
	buf.AppendUint32(reqid)
	p.Attrs.MarshalInto(buf)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil, nil
}

func (p *AttrsPacket) UnmarshalPacketBody(buf *Buffer) error {
	return p.Attrs.UnmarshalFrom(buf)
}
