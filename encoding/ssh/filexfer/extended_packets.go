package filexfer

// ExtendedPacket is the generic SSH_FXP_EXTENDED request used to invoke a
// vendor extension the server has advertised in its VERSION packet.
// RequestSpecificData carries whatever payload the named extension defines;
// this package does not interpret it.
type ExtendedPacket struct {
	ExtendedRequest     string
	RequestSpecificData []byte
}

func (p *ExtendedPacket) Type() PacketType { return PacketTypeExtended }

func (p *ExtendedPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	size := 1 + 4 + 4 + len(p.ExtendedRequest)

	buf := NewMarshalBuffer(size)
	buf.AppendUint8(uint8(PacketTypeExtended))
	buf.AppendUint32(reqid)
	buf.AppendString(p.ExtendedRequest)
	buf.PutLength(buf.Len() - 4 + len(p.RequestSpecificData))

	return buf.Bytes(), p.RequestSpecificData, nil
}

func (p *ExtendedPacket) UnmarshalPacketBody(buf *Buffer) (err error) {
	if p.ExtendedRequest, err = buf.ConsumeString(); err != nil {
		return err
	}

	p.RequestSpecificData = buf.Bytes()
	return nil
}

// ExtendedReplyPacket is the generic SSH_FXP_EXTENDED_REPLY response to an
// ExtendedPacket whose extension does not have its own dedicated reply
// packet type.
type ExtendedReplyPacket struct {
	Data []byte
}

func (p *ExtendedReplyPacket) Type() PacketType { return PacketTypeExtendedReply }

func (p *ExtendedReplyPacket) MarshalPacket(reqid uint32) (header, payload []byte, err error) {
	buf := NewMarshalBuffer(1 + 4)
	buf.AppendUint8(uint8(PacketTypeExtendedReply))
	buf.AppendUint32(reqid)
	buf.PutLength(buf.Len() - 4 + len(p.Data))
	return buf.Bytes(), p.Data, nil
}

func (p *ExtendedReplyPacket) UnmarshalPacketBody(buf *Buffer) error {
	p.Data = buf.Bytes()
	return nil
}
