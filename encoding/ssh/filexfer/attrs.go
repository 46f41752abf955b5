package filexfer

// Attribute flag bits, indicating which optional fields of Attributes are
// present on the wire.
const (
	AttrSize        = 1 << iota // SSH_FILEXFER_ATTR_SIZE
	AttrUIDGID                  // SSH_FILEXFER_ATTR_UIDGID
	AttrPermissions             // SSH_FILEXFER_ATTR_PERMISSIONS
	AttrACModTime               // SSH_FILEXFER_ATTR_ACMODTIME

	AttrExtended = 1 << 31 // SSH_FILEXFER_ATTR_EXTENDED
)

// Attributes is the sparse SSH_FXP_ATTRS record: a flag word followed by
// whichever optional fields the flags select, in the canonical order size,
// uid/gid, permissions, atime/mtime, extensions.
//
// Defined in draft-ietf-secsh-filexfer-02 section 5.
type Attributes struct {
	Flags uint32

	Size        uint64
	UID, GID    uint32
	Permissions uint32
	ATime       uint32
	MTime       uint32

	// Extensions holds extension-pair data keyed by name. Unknown keys are
	// preserved verbatim so that a round trip through Attributes does not
	// silently drop server-specific metadata.
	Extensions map[string]string
}

// MarshalSize returns the number of bytes a would marshal into.
func (a *Attributes) MarshalSize() int {
	size := 4 // flags

	if a.Flags&AttrSize != 0 {
		size += 8
	}
	if a.Flags&AttrUIDGID != 0 {
		size += 4 + 4
	}
	if a.Flags&AttrPermissions != 0 {
		size += 4
	}
	if a.Flags&AttrACModTime != 0 {
		size += 4 + 4
	}
	if a.Flags&AttrExtended != 0 {
		size += 4
		for k, v := range a.Extensions {
			size += 4 + len(k) + 4 + len(v)
		}
	}

	return size
}

// MarshalInto appends the wire encoding of a onto buf.
func (a *Attributes) MarshalInto(buf *Buffer) {
	buf.AppendUint32(a.Flags)

	if a.Flags&AttrSize != 0 {
		buf.AppendUint64(a.Size)
	}
	if a.Flags&AttrUIDGID != 0 {
		buf.AppendUint32(a.UID)
		buf.AppendUint32(a.GID)
	}
	if a.Flags&AttrPermissions != 0 {
		buf.AppendUint32(a.Permissions)
	}
	if a.Flags&AttrACModTime != 0 {
		buf.AppendUint32(a.ATime)
		buf.AppendUint32(a.MTime)
	}
	if a.Flags&AttrExtended != 0 {
		buf.AppendUint32(uint32(len(a.Extensions)))
		for k, v := range a.Extensions {
			buf.AppendString(k)
			buf.AppendString(v)
		}
	}
}

// UnmarshalFrom decodes an Attributes from buf into a.
//
// Unknown bits in the flag word are rejected with ErrBadMessage: the spec
// requires that unknown flags make a decode fail rather than silently
// misinterpret the bytes that follow them.
func (a *Attributes) UnmarshalFrom(buf *Buffer) (err error) {
	*a = Attributes{}

	if a.Flags, err = buf.ConsumeUint32(); err != nil {
		return err
	}

	if a.Flags & ^uint32(AttrSize|AttrUIDGID|AttrPermissions|AttrACModTime|AttrExtended) != 0 {
		return ErrBadMessage
	}

	if a.Flags == 0 {
		return nil
	}

	if a.Flags&AttrSize != 0 {
		if a.Size, err = buf.ConsumeUint64(); err != nil {
			return err
		}
	}

	if a.Flags&AttrUIDGID != 0 {
		if a.UID, err = buf.ConsumeUint32(); err != nil {
			return err
		}
		if a.GID, err = buf.ConsumeUint32(); err != nil {
			return err
		}
	}

	if a.Flags&AttrPermissions != 0 {
		if a.Permissions, err = buf.ConsumeUint32(); err != nil {
			return err
		}
	}

	if a.Flags&AttrACModTime != 0 {
		if a.ATime, err = buf.ConsumeUint32(); err != nil {
			return err
		}
		if a.MTime, err = buf.ConsumeUint32(); err != nil {
			return err
		}
	}

	if a.Flags&AttrExtended != 0 {
		count, err := buf.ConsumeUint32()
		if err != nil {
			return err
		}

		a.Extensions = make(map[string]string, count)
		for i := uint32(0); i < count; i++ {
			k, err := buf.ConsumeString()
			if err != nil {
				return err
			}
			v, err := buf.ConsumeString()
			if err != nil {
				return err
			}
			a.Extensions[k] = v
		}
	}

	return nil
}

// GetPermissions returns the Permissions field, and whether it was present.
func (a *Attributes) GetPermissions() (FileMode, bool) {
	return FileMode(a.Permissions), a.Flags&AttrPermissions != 0
}

// FileMode is the POSIX-style permission and type word SFTP uses on the
// wire, distinct from (but convertible to/from) Go's io/fs.FileMode.
type FileMode uint32

// Portable file type bits, mirroring POSIX S_IF*.
const (
	ModePerm       FileMode = 0o0000777
	ModeSetUID     FileMode = 0o0004000
	ModeSetGID     FileMode = 0o0002000
	ModeSticky     FileMode = 0o0001000
	ModeType       FileMode = 0o0170000
	ModeNamedPipe  FileMode = 0o0010000
	ModeCharDevice FileMode = 0o0020000
	ModeDir        FileMode = 0o0040000
	ModeDevice     FileMode = 0o0060000
	ModeRegular    FileMode = 0o0100000
	ModeSymlink    FileMode = 0o0120000
	ModeSocket     FileMode = 0o0140000
)

// IsDir reports whether m describes a directory.
func (m FileMode) IsDir() bool {
	return m&ModeType == ModeDir
}

// IsRegular reports whether m describes a regular file.
func (m FileMode) IsRegular() bool {
	return m&ModeType == ModeRegular
}

// NameEntry is one record of an SSH_FXP_NAME response: a filename, its
// (server-rendered) long listing form, and its attributes.
//
// This representation is specific to protocol version 3 and below.
type NameEntry struct {
	Filename string
	Longname string
	Attrs    Attributes
}
