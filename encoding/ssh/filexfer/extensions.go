package filexfer

// ExtensionPair is the (string name, string data) tuple used both for the
// server's advertised capabilities in a VERSION packet, and for an
// EXTENDED request's own name/arguments.
//
// Defined in draft-ietf-secsh-filexfer-13 section 4.2, backwards-compatible
// with how draft-ietf-secsh-filexfer-02 defines the VERSION trailer.
type ExtensionPair struct {
	Name string
	Data string
}

// Len returns the number of bytes e would marshal into.
func (e *ExtensionPair) Len() int {
	return 4 + len(e.Name) + 4 + len(e.Data)
}

// MarshalInto appends the wire encoding of e onto buf.
func (e *ExtensionPair) MarshalInto(buf *Buffer) {
	buf.AppendString(e.Name)
	buf.AppendString(e.Data)
}

// UnmarshalFrom decodes an ExtensionPair from buf into e.
func (e *ExtensionPair) UnmarshalFrom(buf *Buffer) (err error) {
	if e.Name, err = buf.ConsumeString(); err != nil {
		return err
	}

	if e.Data, err = buf.ConsumeString(); err != nil {
		return err
	}

	return nil
}
