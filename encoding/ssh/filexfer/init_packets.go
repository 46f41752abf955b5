package filexfer

// InitPacket is the SSH_FXP_INIT packet the client sends to open a
// session: it carries no request id, only the highest protocol version the
// client speaks.
type InitPacket struct {
	Version uint32
}

// MarshalBinary returns the wire encoding of p. INIT has no request id, so
// it does not implement PacketMarshaller.
func (p *InitPacket) MarshalBinary() ([]byte, error) {
	buf := NewMarshalBuffer(1 + 4)
	buf.AppendUint8(uint8(PacketTypeInit))
	buf.AppendUint32(p.Version)
	buf.PutLength(buf.Len() - 4)
	return buf.Bytes(), nil
}

// VersionPacket is the SSH_FXP_VERSION response to INIT: the server's
// operative version, plus zero or more name/data extension pairs
// advertising optional capabilities.
type VersionPacket struct {
	Version    uint32
	Extensions []ExtensionPair
}

// UnmarshalBinary decodes a full VERSION packet, including its leading type
// byte, out of data.
func (p *VersionPacket) UnmarshalBinary(data []byte) error {
	buf := NewBuffer(data)

	typ, err := buf.ConsumeUint8()
	if err != nil {
		return err
	}
	if PacketType(typ) != PacketTypeVersion {
		return &unexpectedTypeError{want: PacketTypeVersion, got: PacketType(typ)}
	}

	if p.Version, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	for buf.Len() > 0 {
		var ext ExtensionPair
		if err := ext.UnmarshalFrom(buf); err != nil {
			return err
		}
		p.Extensions = append(p.Extensions, ext)
	}

	return nil
}
