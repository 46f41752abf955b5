package sftpengine

import (
	"io/fs"
	"time"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
)

// fileInfo adapts a wire Attributes record, plus the name the caller asked
// about, into an fs.FileInfo. Any attribute the server did not set on the
// wire (absent bit in Attrs.Flags) reads back as its zero value, the same
// convention os.FileInfo.Sys() callers already expect from a sparse stat.
type fileInfo struct {
	name  string
	attrs filexfer.Attributes
}

func newFileInfo(name string, attrs filexfer.Attributes) *fileInfo {
	return &fileInfo{name: name, attrs: attrs}
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 {
	if fi.attrs.Flags&filexfer.AttrSize == 0 {
		return 0
	}
	return int64(fi.attrs.Size)
}

func (fi *fileInfo) Mode() fs.FileMode {
	perm, ok := fi.attrs.GetPermissions()
	if !ok {
		return 0
	}
	return toGoFileMode(perm)
}

func (fi *fileInfo) ModTime() time.Time {
	if fi.attrs.Flags&filexfer.AttrACModTime == 0 {
		return time.Time{}
	}
	return time.Unix(int64(fi.attrs.MTime), 0)
}

func (fi *fileInfo) IsDir() bool {
	return fi.Mode().IsDir()
}

// Sys returns the decoded Attributes this fileInfo was built from, for
// callers that need uid/gid or the raw permission word.
func (fi *fileInfo) Sys() any {
	return fi.attrs
}

// toGoFileMode converts a wire FileMode (POSIX S_IF*/permission bits) into
// an fs.FileMode, translating the type bits the two encodings disagree on.
func toGoFileMode(m filexfer.FileMode) fs.FileMode {
	mode := fs.FileMode(m & filexfer.ModePerm)

	switch m & filexfer.ModeType {
	case filexfer.ModeDir:
		mode |= fs.ModeDir
	case filexfer.ModeSymlink:
		mode |= fs.ModeSymlink
	case filexfer.ModeNamedPipe:
		mode |= fs.ModeNamedPipe
	case filexfer.ModeSocket:
		mode |= fs.ModeSocket
	case filexfer.ModeCharDevice:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case filexfer.ModeDevice:
		mode |= fs.ModeDevice
	}

	if m&filexfer.ModeSetUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&filexfer.ModeSetGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&filexfer.ModeSticky != 0 {
		mode |= fs.ModeSticky
	}

	return mode
}
