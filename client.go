// Package sftpengine implements a client-side SFTP engine: a correct,
// concurrent request/response multiplexer over a single duplex byte stream
// speaking SFTP wire protocol version 3.
package sftpengine

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer/openssh"
	"github.com/halvarflake/sftpengine/internal/multiplex"
)

// Client is an SFTP engine bound to one subsystem stream. Multiple
// operations may be in flight concurrently from multiple goroutines; the
// Client serializes nothing beyond what the underlying multiplexer
// requires.
type Client struct {
	conn *multiplex.Conn

	maxPacket     uint32
	maxDataLen    int
	maxInflight   int
	timeout       time.Duration
	pathSeparator string
	subsystemName string
	logger        Logger

	operativeVersion uint32
	exts             map[string]string

	pathHelper *PathHelper

	session io.Closer // non-nil only when constructed via NewClient
}

func newClientDefaults() *Client {
	return &Client{
		maxPacket:     defaultMaxPacket,
		maxDataLen:    defaultMaxDataLen,
		maxInflight:   defaultMaxInflight,
		timeout:       defaultTimeout,
		pathSeparator: defaultPathSeparator,
		subsystemName: defaultSubsystemName,
		logger:        func(string, ...any) {},
	}
}

// NewClient opens an SFTP session over conn: a new SSH session is created,
// the configured subsystem (default "sftp") is requested on it, and the
// engine then speaks SFTP over the session's stdin/stdout pipes.
func NewClient(ctx context.Context, conn *ssh.Client, opts ...ClientOption) (*Client, error) {
	cl := newClientDefaults()
	for _, opt := range opts {
		if err := opt(cl); err != nil {
			return nil, err
		}
	}

	s, err := conn.NewSession()
	if err != nil {
		return nil, err
	}

	if err := s.RequestSubsystem(cl.subsystemName); err != nil {
		s.Close()
		return nil, err
	}

	w, err := s.StdinPipe()
	if err != nil {
		s.Close()
		return nil, err
	}

	r, err := s.StdoutPipe()
	if err != nil {
		s.Close()
		return nil, err
	}

	cl.session = s

	if err := cl.start(ctx, r, writeCloserFunc{w: w, c: s}); err != nil {
		s.Close()
		return nil, err
	}

	return cl, nil
}

// writeCloserFunc adapts an io.Writer (the session's stdin pipe, which does
// not itself need closing independently of the session) into an
// io.WriteCloser that closes the owning session.
type writeCloserFunc struct {
	w io.Writer
	c io.Closer
}

func (w writeCloserFunc) Write(p []byte) (int, error) { return w.w.Write(p) }
func (w writeCloserFunc) Close() error                { return w.c.Close() }

// NewClientPipe opens an SFTP session over any already-established duplex
// byte channel, e.g. a pipe to a local sftp-server subprocess, or a
// non-SSH-backed transport. ctx bounds only the initial INIT/VERSION
// exchange.
func NewClientPipe(ctx context.Context, rd io.Reader, wr io.WriteCloser, opts ...ClientOption) (*Client, error) {
	cl := newClientDefaults()
	for _, opt := range opts {
		if err := opt(cl); err != nil {
			return nil, err
		}
	}

	if err := cl.start(ctx, rd, wr); err != nil {
		return nil, err
	}

	return cl, nil
}

func (cl *Client) start(ctx context.Context, rd io.Reader, wr io.WriteCloser) error {
	exts, version, err := handshake(ctx, rd, wr, cl.maxPacket, cl.logger)
	if err != nil {
		return err
	}

	cl.exts = exts
	cl.operativeVersion = version
	cl.conn = multiplex.NewConn(rd, wr, cl.maxPacket, cl.maxInflight)
	cl.conn.Start()
	cl.pathHelper = newPathHelper(cl.pathSeparator, cl.RealPath)

	return nil
}

// handshake performs the INIT/VERSION exchange directly on rd/wr, before
// the multiplexer's recv loop takes over the read half: INIT and VERSION
// carry no request id and so fall outside the RawPacket framing every other
// packet type uses.
func handshake(ctx context.Context, rd io.Reader, wr io.Writer, maxPacket uint32, logger Logger) (map[string]string, uint32, error) {
	initPkt := &filexfer.InitPacket{Version: MaxSupportedVersion}

	data, err := initPkt.MarshalBinary()
	if err != nil {
		return nil, 0, err
	}
	if _, err := wr.Write(data); err != nil {
		return nil, 0, err
	}

	type handshakeResult struct {
		version uint32
		exts    map[string]string
		err     error
	}

	resultCh := make(chan handshakeResult, 1)
	go func() {
		v, err := readVersionPacket(rd, maxPacket)
		if err != nil {
			resultCh <- handshakeResult{err: err}
			return
		}

		if v.Version > MaxSupportedVersion {
			resultCh <- handshakeResult{err: protocolErrorf(
				"server reported incompatible protocol version %d, max supported is %d", v.Version, MaxSupportedVersion)}
			return
		}

		exts := make(map[string]string, len(v.Extensions))
		for _, e := range v.Extensions {
			exts[e.Name] = e.Data
		}
		resultCh <- handshakeResult{version: v.Version, exts: exts}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, 0, res.err
		}
		if res.version < MaxSupportedVersion {
			logger("sftp: server negotiated protocol version %d, lower than requested %d", res.version, MaxSupportedVersion)
		}
		return res.exts, res.version, nil

	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// readVersionPacket reads the single length-prefixed VERSION frame
// answering INIT. It duplicates the Framer's length-prefix handling rather
// than reusing filexfer.ReadRawPacket, since VERSION (like INIT) has no
// request id for ReadRawPacket to peel off.
func readVersionPacket(r io.Reader, maxPacket uint32) (*filexfer.VersionPacket, error) {
	if maxPacket == 0 {
		maxPacket = filexfer.DefaultMaxPacketLength
	}

	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if length > maxPacket {
		return nil, protocolErrorf("version packet length %d exceeds maximum %d", length, maxPacket)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var v filexfer.VersionPacket
	if err := v.UnmarshalBinary(body); err != nil {
		return nil, err
	}
	return &v, nil
}

// send dispatches req under a fresh request id and blocks for at most
// cl.timeout (or ctx's own deadline, if sooner) for its response.
func (cl *Client) send(ctx context.Context, req filexfer.PacketMarshaller) (*filexfer.RawPacket, error) {
	if cl.conn == nil {
		return nil, ErrClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cl.timeout)
	defer cancel()

	return cl.conn.Dispatch(ctx, req)
}

func (cl *Client) sendStatus(ctx context.Context, req filexfer.PacketMarshaller) error {
	raw, err := cl.send(ctx, req)
	if err != nil {
		return err
	}
	defer cl.conn.Release(raw)
	return ensureStatusPacketIsOK(raw)
}

func sendTyped[T any, PT interface {
	*T
	filexfer.Packet
}](cl *Client, ctx context.Context, req filexfer.PacketMarshaller) (*T, error) {
	raw, err := cl.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer cl.conn.Release(raw)
	return ensurePacketTypeIs[T, PT](raw)
}

func (cl *Client) logf(format string, args ...any) {
	if cl.logger != nil {
		cl.logger(format, args...)
	}
}

// Open opens name for reading, following teacher/io/fs convention: like
// os.Open, it is read-only.
func (cl *Client) Open(name string) (*File, error) {
	return cl.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates or truncates name, opening it read-write.
func (cl *Client) Create(name string) (*File, error) {
	return cl.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile opens name with the given os-style flags and, if creating, the
// given permission bits.
func (cl *Client) OpenFile(name string, flag int, perm fs.FileMode) (*File, error) {
	var attrs filexfer.Attributes
	if flag&os.O_CREATE != 0 {
		attrs.Flags |= filexfer.AttrPermissions
		attrs.Permissions = uint32(perm.Perm())
	}

	pkt, err := sendTyped[filexfer.HandlePacket](cl, context.Background(), &filexfer.OpenPacket{
		Filename: name,
		PFlags:   toPortableFlags(flag),
		Attrs:    attrs,
	})
	if err != nil {
		return nil, wrapPathError("open", name, err)
	}

	return newFile(cl, name, pkt.Handle), nil
}

func toPortableFlags(flag int) uint32 {
	var out uint32
	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_WRONLY:
		out |= filexfer.FlagWrite
	case os.O_RDWR:
		out |= filexfer.FlagRead | filexfer.FlagWrite
	default:
		out |= filexfer.FlagRead
	}
	if flag&os.O_APPEND != 0 {
		out |= filexfer.FlagAppend
	}
	if flag&os.O_CREATE != 0 {
		out |= filexfer.FlagCreate
	}
	if flag&os.O_TRUNC != 0 {
		out |= filexfer.FlagTruncate
	}
	if flag&os.O_EXCL != 0 {
		out |= filexfer.FlagExclusive
	}
	return out
}

// OpenDir opens name as a directory for listing via Dir.Readdir.
func (cl *Client) OpenDir(name string) (*Dir, error) {
	pkt, err := sendTyped[filexfer.HandlePacket](cl, context.Background(), &filexfer.OpenDirPacket{Path: name})
	if err != nil {
		return nil, wrapPathError("opendir", name, err)
	}
	return newDir(cl, name, pkt.Handle), nil
}

// Readdir reads the named directory, returning all its entries sorted by
// filename.
func (cl *Client) Readdir(name string) ([]fs.FileInfo, error) {
	d, err := cl.OpenDir(name)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	return d.Readdir()
}

// Stat returns the attributes of name, following symlinks.
func (cl *Client) Stat(name string) (fs.FileInfo, error) {
	pkt, err := sendTyped[filexfer.AttrsPacket](cl, context.Background(), &filexfer.StatPacket{Path: name})
	if err != nil {
		return nil, wrapPathError("stat", name, err)
	}
	return newFileInfo(cl.pathHelper.Leaf(name), pkt.Attrs), nil
}

// LStat returns the attributes of name without following a trailing
// symlink.
func (cl *Client) LStat(name string) (fs.FileInfo, error) {
	pkt, err := sendTyped[filexfer.AttrsPacket](cl, context.Background(), &filexfer.LStatPacket{Path: name})
	if err != nil {
		return nil, wrapPathError("lstat", name, err)
	}
	return newFileInfo(cl.pathHelper.Leaf(name), pkt.Attrs), nil
}

// SetAttributes applies attrs to name.
func (cl *Client) SetAttributes(name string, attrs filexfer.Attributes) error {
	return wrapPathError("setstat", name,
		cl.sendStatus(context.Background(), &filexfer.SetstatPacket{Path: name, Attrs: attrs}))
}

// Chmod changes the permission bits of name.
func (cl *Client) Chmod(name string, mode fs.FileMode) error {
	return cl.SetAttributes(name, filexfer.Attributes{
		Flags:       filexfer.AttrPermissions,
		Permissions: uint32(mode.Perm()),
	})
}

// Chown changes the owning uid/gid of name.
func (cl *Client) Chown(name string, uid, gid int) error {
	return cl.SetAttributes(name, filexfer.Attributes{
		Flags: filexfer.AttrUIDGID,
		UID:   uint32(uid),
		GID:   uint32(gid),
	})
}

// Truncate changes the size of name.
func (cl *Client) Truncate(name string, size int64) error {
	return cl.SetAttributes(name, filexfer.Attributes{
		Flags: filexfer.AttrSize,
		Size:  uint64(size),
	})
}

// Chtimes changes the access and modification times of name.
func (cl *Client) Chtimes(name string, atime, mtime time.Time) error {
	return cl.SetAttributes(name, filexfer.Attributes{
		Flags: filexfer.AttrACModTime,
		ATime: uint32(atime.Unix()),
		MTime: uint32(mtime.Unix()),
	})
}

// Mkdir creates name as a directory. It is an error if name already exists
// or its parent does not.
func (cl *Client) Mkdir(name string, perm fs.FileMode) error {
	return wrapPathError("mkdir", name,
		cl.sendStatus(context.Background(), &filexfer.MkdirPacket{
			Path: name,
			Attrs: filexfer.Attributes{
				Flags:       filexfer.AttrPermissions,
				Permissions: uint32(perm.Perm()),
			},
		}))
}

// MkdirAll creates name and any missing parent directories, the same as
// os.MkdirAll. It is not an error if name already exists and is a
// directory.
func (cl *Client) MkdirAll(name string, perm fs.FileMode) error {
	info, err := cl.Stat(name)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return wrapPathError("mkdir", name, fmt.Errorf("not a directory"))
	}

	parent := cl.pathHelper.Parent(name)
	if parent != name && parent != "." {
		if err := cl.MkdirAll(parent, perm); err != nil {
			return err
		}
	}

	err = cl.Mkdir(name, perm)
	if err != nil {
		if info, statErr := cl.Stat(name); statErr == nil && info.IsDir() {
			return nil
		}
	}
	return err
}

// Remove removes the named file.
func (cl *Client) Remove(name string) error {
	return wrapPathError("remove", name,
		cl.sendStatus(context.Background(), &filexfer.RemovePacket{Path: name}))
}

// RemoveDirectory removes the named, empty directory.
func (cl *Client) RemoveDirectory(name string) error {
	return wrapPathError("rmdir", name,
		cl.sendStatus(context.Background(), &filexfer.RmdirPacket{Path: name}))
}

// RealPath canonicalizes name against the server, resolving "." and ".."
// and any symlinks, and returning an absolute path.
func (cl *Client) RealPath(name string) (string, error) {
	pkt, err := sendTyped[filexfer.NamePacket](cl, context.Background(), &filexfer.RealPathPacket{Path: name})
	if err != nil {
		return "", wrapPathError("realpath", name, err)
	}
	if len(pkt.Entries) != 1 {
		return "", wrapPathError("realpath", name, protocolErrorf("realpath: expected exactly one name entry, got %d", len(pkt.Entries)))
	}
	return pkt.Entries[0].Filename, nil
}

// ReadLink reads the target of the symbolic link name.
func (cl *Client) ReadLink(name string) (string, error) {
	if cl.operativeVersion < 3 {
		return "", wrapPathError("readlink", name, &UnsupportedOperationError{Op: "readlink", Why: "requires protocol version 3"})
	}

	pkt, err := sendTyped[filexfer.NamePacket](cl, context.Background(), &filexfer.ReadLinkPacket{Path: name})
	if err != nil {
		return "", wrapPathError("readlink", name, err)
	}
	if len(pkt.Entries) != 1 {
		return "", wrapPathError("readlink", name, protocolErrorf("readlink: expected exactly one name entry, got %d", len(pkt.Entries)))
	}
	return pkt.Entries[0].Filename, nil
}

// Symlink creates linkpath as a symbolic link to targetpath. Field order
// matches the protocol draft's literal (linkpath, targetpath); unlike
// OpenSSH's sftp-server, this does not swap the arguments.
func (cl *Client) Symlink(linkpath, targetpath string) error {
	if cl.operativeVersion < 3 {
		return wrapLinkError("symlink", linkpath, targetpath, &UnsupportedOperationError{Op: "symlink", Why: "requires protocol version 3"})
	}

	return wrapLinkError("symlink", linkpath, targetpath,
		cl.sendStatus(context.Background(), &filexfer.SymlinkPacket{LinkPath: linkpath, TargetPath: targetpath}))
}

type renamePlan int

const (
	renamePlain renamePlan = iota
	renameV5Flags
	renamePosixExtended
)

// decideRename implements the rename fallback decision table: given the
// requested flags and the server's negotiated capabilities, it picks which
// wire request to send, or refuses the rename outright without touching
// the wire. Rows are evaluated top-down; the first matching row wins.
func decideRename(flags uint32, operativeVersion uint32, hasPosixRename bool) (renamePlan, error) {
	switch {
	case flags == 0:
		return renamePlain, nil

	case operativeVersion >= 5:
		return renameV5Flags, nil

	case flags&filexfer.RenameOverwrite != 0 && hasPosixRename:
		return renamePosixExtended, nil

	case flags&filexfer.RenameAtomic != 0 &&
		flags&filexfer.RenameOverwrite == 0 &&
		flags&filexfer.RenameNative == 0 &&
		hasPosixRename:
		return renamePlain, &UnsupportedOperationError{
			Op:  "rename",
			Why: "ATOMIC alone cannot be satisfied via posix-rename; add RenameOverwrite",
		}

	case flags&filexfer.RenameNative != 0:
		return renamePlain, nil

	default:
		return renamePlain, &UnsupportedOperationError{
			Op:  "rename",
			Why: "requested rename flags have no fallback on this server",
		}
	}
}

// Rename renames oldpath to newpath. flags is a mask of
// filexfer.RenameOverwrite/RenameAtomic/RenameNative, meaningful only from
// protocol version 5 onward; on the version-3 servers this engine targets,
// they drive extension fallback per the decision table documented on
// decideRename.
func (cl *Client) Rename(oldpath, newpath string, flags uint32) error {
	plan, err := decideRename(flags, cl.operativeVersion, cl.SupportsServerExtension("posix-rename", "openssh.com"))
	if err != nil {
		return wrapLinkError("rename", oldpath, newpath, err)
	}

	switch plan {
	case renameV5Flags:
		return wrapLinkError("rename", oldpath, newpath,
			cl.sendStatus(context.Background(), &filexfer.RenameV5Packet{OldPath: oldpath, NewPath: newpath, Flags: flags}))

	case renamePosixExtended:
		return wrapLinkError("rename", oldpath, newpath,
			cl.sendStatus(context.Background(), &openssh.POSIXRenameExtendedPacket{OldPath: oldpath, NewPath: newpath}))

	default: // renamePlain
		if flags&filexfer.RenameNative != 0 && flags != filexfer.RenameNative {
			cl.logf("sftp: rename %s -> %s: NATIVE set alongside other flags on protocol version %d; other flags ignored", oldpath, newpath, cl.operativeVersion)
		}
		return wrapLinkError("rename", oldpath, newpath,
			cl.sendStatus(context.Background(), &filexfer.RenamePacket{OldPath: oldpath, NewPath: newpath}))
	}
}

// NewExtendedRequest builds an EXTENDED packet naming the given vendor
// extension, with data as its raw request-specific payload.
func (cl *Client) NewExtendedRequest(name string, data []byte) *filexfer.ExtendedPacket {
	return &filexfer.ExtendedPacket{ExtendedRequest: name, RequestSpecificData: data}
}

// SendExtended dispatches a vendor EXTENDED request and returns the raw
// response frame (an EXTENDED_REPLY, STATUS, or any packet type the
// extension itself defines) for the caller to decode. The caller is
// responsible for calling Release on the returned frame.
func (cl *Client) SendExtended(ctx context.Context, name string, data []byte) (*filexfer.RawPacket, error) {
	return cl.send(ctx, cl.NewExtendedRequest(name, data))
}

// Release returns a raw response frame obtained from SendExtended to the
// engine's internal pool.
func (cl *Client) Release(raw *filexfer.RawPacket) {
	cl.conn.Release(raw)
}

// SetTimeoutMs overrides the default per-operation timeout.
func (cl *Client) SetTimeoutMs(ms int) {
	cl.timeout = time.Duration(ms) * time.Millisecond
}

// GetOperativeProtocolVersion returns the protocol version negotiated
// during init.
func (cl *Client) GetOperativeProtocolVersion() uint32 {
	return cl.operativeVersion
}

// SupportsServerExtension reports whether the server advertised the
// extension "name@domain" in its VERSION packet.
func (cl *Client) SupportsServerExtension(name, domain string) bool {
	_, ok := cl.exts[name+"@"+domain]
	return ok
}

// GetServerExtensionData returns the data string the server advertised for
// "name@domain", and whether it advertised it at all.
func (cl *Client) GetServerExtensionData(name, domain string) (string, bool) {
	data, ok := cl.exts[name+"@"+domain]
	return data, ok
}

// GetPathHelper returns the engine's PathHelper, configured with this
// Client's path separator and RealPath as its canonicalization hook.
func (cl *Client) GetPathHelper() *PathHelper {
	return cl.pathHelper
}

// Close shuts down the subsystem stream: the multiplexer is disconnected
// (every in-flight caller sees ErrClosed or a TransportError), the
// underlying writer is closed, and, if this Client was constructed via
// NewClient, the owning SSH session is closed too.
func (cl *Client) Close() error {
	if cl.conn == nil {
		return ErrClosed
	}
	err := cl.conn.Close()
	if cl.session != nil {
		if sErr := cl.session.Close(); err == nil {
			err = sErr
		}
	}
	return err
}
