package filexfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPrimitiveRoundTrip(t *testing.T) {
	buf := NewMarshalBuffer(64)
	buf.AppendUint8(7)
	buf.AppendBool(true)
	buf.AppendUint32(0xdeadbeef)
	buf.AppendUint64(0x0102030405060708)
	buf.AppendString("hello, sftp")
	buf.PutLength(buf.Len() - 4)

	out := NewBuffer(buf.Bytes())

	length, err := out.ConsumeUint32()
	require.NoError(t, err)
	assert.EqualValues(t, out.Len(), length)

	u8, err := out.ConsumeUint8()
	require.NoError(t, err)
	assert.EqualValues(t, 7, u8)

	b, err := out.ConsumeBool()
	require.NoError(t, err)
	assert.True(t, b)

	u32, err := out.ConsumeUint32()
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, u32)

	u64, err := out.ConsumeUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 0x0102030405060708, u64)

	s, err := out.ConsumeString()
	require.NoError(t, err)
	assert.Equal(t, "hello, sftp", s)

	assert.Zero(t, out.Len())
}

func TestBufferConsumeShortPacket(t *testing.T) {
	buf := NewBuffer([]byte{0, 0})

	_, err := buf.ConsumeUint32()
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestBufferConsumeByteSliceTruncated(t *testing.T) {
	buf := NewMarshalBuffer(4)
	buf.AppendUint32(10) // claims 10 bytes, supplies none

	out := NewBuffer(buf.Bytes()[4:])
	_, err := out.ConsumeByteSlice()
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestAttributesRoundTrip(t *testing.T) {
	a := Attributes{
		Flags:       AttrSize | AttrUIDGID | AttrPermissions | AttrACModTime | AttrExtended,
		Size:        1024,
		UID:         1000,
		GID:         1000,
		Permissions: 0o644,
		ATime:       100,
		MTime:       200,
		Extensions:  map[string]string{"acl": "rwx"},
	}

	buf := new(Buffer)
	a.MarshalInto(buf)

	assert.Equal(t, a.MarshalSize(), buf.Len())

	var out Attributes
	require.NoError(t, out.UnmarshalFrom(buf))
	assert.Equal(t, a, out)

	perm, ok := out.GetPermissions()
	assert.True(t, ok)
	assert.Equal(t, FileMode(0o644), perm)
}

func TestAttributesEmptyFlags(t *testing.T) {
	a := Attributes{}

	buf := new(Buffer)
	a.MarshalInto(buf)

	var out Attributes
	require.NoError(t, out.UnmarshalFrom(buf))
	assert.Zero(t, out.Flags)
}

func TestAttributesUnknownFlagBitRejected(t *testing.T) {
	buf := new(Buffer)
	buf.AppendUint32(1 << 30) // not one of the known Attr* bits

	var out Attributes
	err := out.UnmarshalFrom(buf)
	assert.ErrorIs(t, err, ErrBadMessage)
}

func TestFileModeClassification(t *testing.T) {
	assert.True(t, ModeDir.IsDir())
	assert.False(t, ModeDir.IsRegular())
	assert.True(t, ModeRegular.IsRegular())
	assert.False(t, ModeRegular.IsDir())
}
