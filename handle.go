package sftpengine

import (
	"io/fs"
	"sync/atomic"
)

// fileHandle wraps a server-issued HANDLE string so that Close is safe to
// race against any in-flight operation on the same File/Dir: an atomic Swap
// ensures exactly one goroutine ever sends the CLOSE request, and every
// other in-flight operation either completes against the handle it already
// captured or observes the handle gone and fails cleanly with fs.ErrClosed,
// rather than racing a server-side reuse of the same handle string.
type fileHandle struct {
	value atomic.Pointer[string]
}

func (h *fileHandle) init(handle string) {
	h.value.Store(&handle)
}

func (h *fileHandle) get() (string, error) {
	p := h.value.Load()
	if p == nil {
		return "", fs.ErrClosed
	}
	return *p, nil
}

// close invalidates h and reports whether this call was the one that did
// so; a caller whose invalidation lost the race gets fs.ErrClosed back
// without sending anything.
func (h *fileHandle) close() (string, error) {
	p := h.value.Swap(nil)
	if p == nil {
		return "", fs.ErrClosed
	}
	return *p, nil
}
