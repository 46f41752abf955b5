package sftpengine

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
)

func openFakeFile(t *testing.T, cl *Client, fs *fakeServer, path string) *File {
	t.Helper()

	done := make(chan struct {
		f   *File
		err error
	}, 1)
	go func() {
		f, err := cl.Open(path)
		done <- struct {
			f   *File
			err error
		}{f, err}
	}()

	req := fs.readRequest(t)
	require.Equal(t, filexfer.PacketTypeOpen, req.Type)
	fs.writePacket(t, &filexfer.HandlePacket{Handle: "h"}, req.RequestID)

	res := <-done
	require.NoError(t, res.err)
	return res.f
}

func TestFileReadAtChunksToMaxDataLen(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil, WithMaxDataLength(4))
	f := openFakeFile(t, cl, fs, "/a")

	buf := make([]byte, 10)
	done := make(chan struct {
		n   int
		err error
	}, 1)
	go func() {
		n, err := f.ReadAt(buf, 0)
		done <- struct {
			n   int
			err error
		}{n, err}
	}()

	req := fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeRead, req.Type)

	readPkt := new(filexfer.ReadPacket)
	require.NoError(t, req.UnmarshalInto(readPkt))
	assert.Equal(t, "h", readPkt.Handle)
	assert.LessOrEqual(t, readPkt.Length, uint32(4))

	fs.writePacket(t, &filexfer.DataPacket{Data: []byte("abcd")}, req.RequestID)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 4, res.n)
	assert.Equal(t, "abcd", string(buf[:4]))
}

func TestFileWriteAtChunksAcrossMultipleWrites(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil, WithMaxDataLength(4))
	f := openFakeFile(t, cl, fs, "/a")

	payload := []byte("abcdefgh") // 8 bytes, 4-byte chunks -> 2 writes
	done := make(chan struct {
		n   int
		err error
	}, 1)
	go func() {
		n, err := f.WriteAt(payload, 100)
		done <- struct {
			n   int
			err error
		}{n, err}
	}()

	first := fs.readRequest(t)
	wp := new(filexfer.WritePacket)
	require.NoError(t, first.UnmarshalInto(wp))
	assert.Equal(t, uint64(100), wp.Offset)
	assert.Equal(t, "abcd", string(wp.Data))
	fs.writeStatus(t, first.RequestID, filexfer.StatusOK)

	second := fs.readRequest(t)
	wp2 := new(filexfer.WritePacket)
	require.NoError(t, second.UnmarshalInto(wp2))
	assert.Equal(t, uint64(104), wp2.Offset)
	assert.Equal(t, "efgh", string(wp2.Data))
	fs.writeStatus(t, second.RequestID, filexfer.StatusOK)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 8, res.n)
}

func TestFileSeekEndUsesFstat(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil)
	f := openFakeFile(t, cl, fs, "/a")

	done := make(chan struct {
		off int64
		err error
	}, 1)
	go func() {
		off, err := f.Seek(5, io.SeekEnd)
		done <- struct {
			off int64
			err error
		}{off, err}
	}()

	req := fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeFStat, req.Type)
	fs.writePacket(t, &filexfer.AttrsPacket{Attrs: filexfer.Attributes{Flags: filexfer.AttrSize, Size: 100}}, req.RequestID)

	res := <-done
	require.NoError(t, res.err)
	assert.EqualValues(t, 105, res.off)
}

func TestFileCloseIsIdempotentSafe(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil)
	f := openFakeFile(t, cl, fs, "/a")

	done := make(chan error, 1)
	go func() { done <- f.Close() }()

	req := fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeClose, req.Type)
	fs.writeStatus(t, req.RequestID, filexfer.StatusOK)

	require.NoError(t, <-done)

	// A second Close must fail with ErrClosed and must not touch the wire.
	err := f.Close()
	assert.ErrorIs(t, err, ErrClosed)
}
