package filexfer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip marshals p addressed to reqid, re-reads it as a RawPacket, and
// decodes the body back into a freshly zeroed value of the same type,
// asserting it compares equal to p.
func roundTrip(t *testing.T, reqid uint32, p Packet, out Packet) {
	t.Helper()

	header, payload, err := p.MarshalPacket(reqid)
	require.NoError(t, err)

	frame, err := ComposePacket(header, payload, err)
	require.NoError(t, err)

	raw, err := ReadRawPacket(bytes.NewReader(frame), 0)
	require.NoError(t, err)

	assert.Equal(t, p.Type(), raw.Type)
	assert.Equal(t, reqid, raw.RequestID)

	require.NoError(t, raw.UnmarshalInto(out))
	assert.Equal(t, p, out)
}

func TestOpenPacketRoundTrip(t *testing.T) {
	p := &OpenPacket{
		Filename: "/home/user/file.txt",
		PFlags:   FlagRead | FlagWrite | FlagCreate,
		Attrs: Attributes{
			Flags:       AttrPermissions,
			Permissions: 0o644,
		},
	}
	roundTrip(t, 42, p, new(OpenPacket))
}

func TestOpenDirPacketRoundTrip(t *testing.T) {
	roundTrip(t, 1, &OpenDirPacket{Path: "/home/user"}, new(OpenDirPacket))
}

func TestClosePacketRoundTrip(t *testing.T) {
	roundTrip(t, 2, &ClosePacket{Handle: "handle-1"}, new(ClosePacket))
}

func TestReadWritePacketRoundTrip(t *testing.T) {
	roundTrip(t, 3, &ReadPacket{Handle: "h", Offset: 4096, Length: 32768}, new(ReadPacket))
	roundTrip(t, 4, &WritePacket{Handle: "h", Offset: 0, Data: []byte("payload bytes")}, new(WritePacket))
}

func TestReadDirPacketRoundTrip(t *testing.T) {
	roundTrip(t, 5, &ReadDirPacket{Handle: "dirhandle"}, new(ReadDirPacket))
}

func TestStatFamilyRoundTrip(t *testing.T) {
	roundTrip(t, 6, &LStatPacket{Path: "/a"}, new(LStatPacket))
	roundTrip(t, 7, &StatPacket{Path: "/a"}, new(StatPacket))
	roundTrip(t, 8, &FStatPacket{Handle: "h"}, new(FStatPacket))

	roundTrip(t, 9, &SetstatPacket{
		Path:  "/a",
		Attrs: Attributes{Flags: AttrPermissions, Permissions: 0o600},
	}, new(SetstatPacket))

	roundTrip(t, 10, &FSetstatPacket{
		Handle: "h",
		Attrs:  Attributes{Flags: AttrSize, Size: 10},
	}, new(FSetstatPacket))
}

func TestRemoveMkdirRmdirRealPathRoundTrip(t *testing.T) {
	roundTrip(t, 11, &RemovePacket{Path: "/a"}, new(RemovePacket))
	roundTrip(t, 12, &MkdirPacket{Path: "/a", Attrs: Attributes{}}, new(MkdirPacket))
	roundTrip(t, 13, &RmdirPacket{Path: "/a"}, new(RmdirPacket))
	roundTrip(t, 14, &RealPathPacket{Path: "."}, new(RealPathPacket))
}

func TestRenamePacketRoundTrip(t *testing.T) {
	roundTrip(t, 15, &RenamePacket{OldPath: "/a", NewPath: "/b"}, new(RenamePacket))
	roundTrip(t, 16, &RenameV5Packet{OldPath: "/a", NewPath: "/b", Flags: RenameOverwrite}, new(RenameV5Packet))
}

func TestReadLinkSymlinkRoundTrip(t *testing.T) {
	roundTrip(t, 17, &ReadLinkPacket{Path: "/link"}, new(ReadLinkPacket))
	roundTrip(t, 18, &SymlinkPacket{LinkPath: "/link", TargetPath: "/target"}, new(SymlinkPacket))
}

func TestStatusPacketRoundTrip(t *testing.T) {
	roundTrip(t, 19, &StatusPacket{
		StatusCode:   StatusNoSuchFile,
		ErrorMessage: "no such file",
		LanguageTag:  "en",
	}, new(StatusPacket))
}

func TestStatusPacketIsAnError(t *testing.T) {
	var p error = &StatusPacket{StatusCode: StatusPermissionDenied, ErrorMessage: "denied"}
	assert.Contains(t, p.Error(), "denied")
}

func TestHandleDataAttrsPacketRoundTrip(t *testing.T) {
	roundTrip(t, 20, &HandlePacket{Handle: "h"}, new(HandlePacket))
	roundTrip(t, 21, &DataPacket{Data: []byte("chunk")}, new(DataPacket))
	roundTrip(t, 22, &AttrsPacket{Attrs: Attributes{Flags: AttrSize, Size: 99}}, new(AttrsPacket))
}

func TestNamePacketRoundTrip(t *testing.T) {
	p := &NamePacket{
		Entries: []*NameEntry{
			{Filename: ".", Longname: "drwxr-xr-x . .", Attrs: Attributes{Flags: AttrPermissions, Permissions: uint32(ModeDir | 0o755)}},
			{Filename: "file.txt", Longname: "-rw-r--r-- file.txt", Attrs: Attributes{Flags: AttrSize, Size: 4096}},
		},
	}
	roundTrip(t, 23, p, new(NamePacket))
}

func TestInitVersionHandshake(t *testing.T) {
	init := &InitPacket{Version: 3}
	data, err := init.MarshalBinary()
	require.NoError(t, err)

	buf := NewBuffer(data)
	length, err := buf.ConsumeUint32()
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), length)

	typ, err := buf.ConsumeUint8()
	require.NoError(t, err)
	assert.Equal(t, PacketTypeInit, PacketType(typ))

	version, err := buf.ConsumeUint32()
	require.NoError(t, err)
	assert.EqualValues(t, 3, version)

	versionPacket := &VersionPacket{
		Version: 3,
		Extensions: []ExtensionPair{
			{Name: "posix-rename@openssh.com", Data: "1"},
		},
	}
	vbuf := NewMarshalBuffer(1 + 4)
	vbuf.AppendUint8(uint8(PacketTypeVersion))
	vbuf.AppendUint32(versionPacket.Version)
	for _, e := range versionPacket.Extensions {
		e.MarshalInto(vbuf)
	}

	var decoded VersionPacket
	require.NoError(t, decoded.UnmarshalBinary(vbuf.Bytes()[4:]))
	assert.Equal(t, *versionPacket, decoded)
}

func TestReadRawPacketRejectsOversizedFrame(t *testing.T) {
	buf := NewMarshalBuffer(8)
	buf.AppendUint8(uint8(PacketTypeData))
	buf.AppendUint32(1)
	buf.AppendString("x")
	buf.PutLength(buf.Len() - 4)

	_, err := ReadRawPacket(bytes.NewReader(buf.Bytes()), 4)
	var tooLong *frameTooLongError
	assert.ErrorAs(t, err, &tooLong)
}

func TestExtendedPacketRoundTrip(t *testing.T) {
	roundTrip(t, 24, &ExtendedPacket{
		ExtendedRequest:     "statvfs@openssh.com",
		RequestSpecificData: []byte("/mnt"),
	}, new(ExtendedPacket))
}
