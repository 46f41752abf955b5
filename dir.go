package sftpengine

import (
	"cmp"
	"context"
	"errors"
	"io"
	"io/fs"
	"slices"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
	isync "github.com/halvarflake/sftpengine/internal/sync"
)

// Dir is an open remote directory handle, scanned one READDIR response at a
// time. Its methods are safe for concurrent use; scan serializes on the
// Dir's own mutex.
type Dir struct {
	engine *Client
	path   string

	handle fileHandle

	mu      isync.Mutex
	pending []*filexfer.NameEntry
}

func newDir(engine *Client, path, handle string) *Dir {
	d := &Dir{engine: engine, path: path}
	d.handle.init(handle)
	return d
}

func (d *Dir) wrapErr(op string, err error) error {
	return wrapPathError(op, d.path, err)
}

// Name returns the path the directory was opened with.
func (d *Dir) Name() string { return d.path }

// Close closes the directory handle.
func (d *Dir) Close() error {
	handle, err := d.handle.close()
	if err != nil {
		return d.wrapErr("close", err)
	}
	return d.wrapErr("close", d.engine.sendStatus(context.Background(), &filexfer.ClosePacket{Handle: handle}))
}

// scan returns the next batch of raw directory entries the server has not
// yet handed back, fetching a fresh READDIR response once the locally
// buffered batch is exhausted. It returns io.EOF once the server has
// reported SSH_FX_EOF and the buffer is drained.
func (d *Dir) scan(ctx context.Context) ([]*filexfer.NameEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) > 0 {
		batch := d.pending
		d.pending = nil
		return batch, nil
	}

	handle, err := d.handle.get()
	if err != nil {
		return nil, err
	}

	raw, err := d.engine.send(ctx, &filexfer.ReadDirPacket{Handle: handle})
	if err != nil {
		return nil, err
	}
	defer d.engine.conn.Release(raw)

	if raw.Type == filexfer.PacketTypeStatus {
		if statusErr := ensureStatusIs(raw, filexfer.StatusEOF); statusErr != nil {
			return nil, statusErr
		}
		return nil, io.EOF
	}

	names, err := ensurePacketTypeIs[filexfer.NamePacket](raw)
	if err != nil {
		return nil, err
	}

	return names.Entries, nil
}

// Readdir reads all remaining entries of the directory, sorted by filename,
// the same contract as os.File.Readdir(0).
func (d *Dir) Readdir() ([]fs.FileInfo, error) {
	return d.ReaddirContext(context.Background())
}

// ReaddirContext is Readdir with an explicit context for cancellation.
func (d *Dir) ReaddirContext(ctx context.Context) ([]fs.FileInfo, error) {
	var infos []fs.FileInfo

	for {
		entries, err := d.scan(ctx)
		for _, e := range entries {
			infos = append(infos, newFileInfo(e.Filename, e.Attrs))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return infos, d.wrapErr("readdir", err)
		}
	}

	slices.SortFunc(infos, func(a, b fs.FileInfo) int {
		return cmp.Compare(a.Name(), b.Name())
	})

	return infos, nil
}
