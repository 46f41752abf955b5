package sftpengine

import (
	"context"
	"io"
	"io/fs"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
	isync "github.com/halvarflake/sftpengine/internal/sync"
)

// File is an open remote file handle. Its methods are safe for concurrent
// use; ReadAt/WriteAt never touch the shared cursor, while Read/Write
// serialize on it with a mutex.
type File struct {
	engine *Client
	path   string

	handle fileHandle

	mu     isync.Mutex
	offset int64
}

func newFile(engine *Client, path, handle string) *File {
	f := &File{engine: engine, path: path}
	f.handle.init(handle)
	return f
}

func (f *File) wrapErr(op string, err error) error {
	return wrapPathError(op, f.path, err)
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.path }

// Close closes the file. It is an error to call Close more than once.
func (f *File) Close() error {
	handle, err := f.handle.close()
	if err != nil {
		return f.wrapErr("close", err)
	}
	return f.wrapErr("close", f.engine.sendStatus(context.Background(), &filexfer.ClosePacket{Handle: handle}))
}

// Stat returns the attributes of the open file via FSTAT, which (unlike
// Client.Stat) requires no path resolution on the server.
func (f *File) Stat() (fs.FileInfo, error) {
	handle, err := f.handle.get()
	if err != nil {
		return nil, f.wrapErr("fstat", err)
	}

	pkt, err := sendTyped[filexfer.AttrsPacket](f.engine, context.Background(), &filexfer.FStatPacket{Handle: handle})
	if err != nil {
		return nil, f.wrapErr("fstat", err)
	}
	return newFileInfo(f.engine.pathHelper.Leaf(f.path), pkt.Attrs), nil
}

// SetAttributes applies attrs to the open file via FSETSTAT.
func (f *File) SetAttributes(attrs filexfer.Attributes) error {
	handle, err := f.handle.get()
	if err != nil {
		return f.wrapErr("fsetstat", err)
	}

	return f.wrapErr("fsetstat", f.engine.sendStatus(context.Background(), &filexfer.FSetstatPacket{Handle: handle, Attrs: attrs}))
}

// Truncate changes the size of the open file.
func (f *File) Truncate(size int64) error {
	return f.SetAttributes(filexfer.Attributes{Flags: filexfer.AttrSize, Size: uint64(size)})
}

// Chmod changes the permission bits of the open file.
func (f *File) Chmod(mode fs.FileMode) error {
	return f.SetAttributes(filexfer.Attributes{Flags: filexfer.AttrPermissions, Permissions: uint32(mode.Perm())})
}

// ReadAt issues a single READ for up to len(b) bytes starting at off,
// capped at the engine's configured maximum data length. Unlike
// os.File.ReadAt, it may return fewer bytes than len(b) with a nil error,
// when the cap applies or the server sends a short reply; it does not loop
// to fill b. At end of file it returns 0 and io.EOF.
func (f *File) ReadAt(b []byte, off int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	handle, err := f.handle.get()
	if err != nil {
		return 0, f.wrapErr("read", err)
	}

	n := len(b)
	if max := f.engine.maxDataLen; n > max {
		n = max
	}

	raw, err := f.engine.send(context.Background(), &filexfer.ReadPacket{
		Handle: handle,
		Offset: uint64(off),
		Length: uint32(n),
	})
	if err != nil {
		return 0, f.wrapErr("read", err)
	}
	defer f.engine.conn.Release(raw)

	data, err := ensurePacketTypeIs[filexfer.DataPacket](raw)
	if err != nil {
		return 0, f.wrapErr("read", err)
	}

	copy(b, data.Data)
	return len(data.Data), nil
}

// Read reads from the file at its current cursor, advancing it by the
// number of bytes read.
func (f *File) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.ReadAt(b, f.offset)
	f.offset += int64(n)
	return n, err
}

// WriteAt writes len(b) bytes starting at off, chunking internally to
// respect the engine's configured maximum data length.
func (f *File) WriteAt(b []byte, off int64) (int, error) {
	handle, err := f.handle.get()
	if err != nil {
		return 0, f.wrapErr("write", err)
	}

	written := 0
	for written < len(b) {
		chunk := b[written:]
		if max := f.engine.maxDataLen; len(chunk) > max {
			chunk = chunk[:max]
		}

		err := f.engine.sendStatus(context.Background(), &filexfer.WritePacket{
			Handle: handle,
			Offset: uint64(off) + uint64(written),
			Data:   chunk,
		})
		if err != nil {
			return written, f.wrapErr("write", err)
		}

		written += len(chunk)
	}

	return written, nil
}

// Write writes to the file at its current cursor, advancing it by the
// number of bytes written.
func (f *File) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.WriteAt(b, f.offset)
	f.offset += int64(n)
	return n, err
}

// Seek implements io.Seeker against the local cursor. io.SeekStart and
// io.SeekCurrent send no request to the server; io.SeekEnd issues an FSTAT
// to learn the file's current size.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		info, err := f.Stat()
		if err != nil {
			return 0, f.wrapErr("seek", err)
		}
		f.offset = info.Size() + offset
	default:
		return 0, f.wrapErr("seek", fs.ErrInvalid)
	}

	return f.offset, nil
}
