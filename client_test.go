package sftpengine

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
)

// fakeServer drives the server side of a pipe-backed Client for tests:
// toServer carries what the engine writes, toClient carries what the fake
// server writes back. Unlike internal/multiplex's pipePair, this one also
// performs the INIT/VERSION handshake, since that exchange happens before
// the engine's multiplexer owns the read half.
type fakeServer struct {
	toServer *io.PipeReader
	toClient *io.PipeWriter
}

// newFakeClient starts the handshake goroutine, constructs the Client
// against the client half of the pipe, and returns once NewClientPipe has
// completed its INIT/VERSION exchange.
func newFakeClient(t *testing.T, version uint32, extensions []filexfer.ExtensionPair, opts ...ClientOption) (*Client, *fakeServer) {
	t.Helper()

	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	fs := &fakeServer{toServer: toServerR, toClient: toClientW}

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		fs.readInit(t)
		fs.writeVersion(t, version, extensions)
	}()

	cl, err := NewClientPipe(context.Background(), toClientR, toServerW, opts...)
	require.NoError(t, err)

	<-serverDone

	t.Cleanup(func() { cl.Close() })

	return cl, fs
}

func (fs *fakeServer) readInit(t *testing.T) {
	t.Helper()

	var lengthBytes [4]byte
	_, err := io.ReadFull(fs.toServer, lengthBytes[:])
	require.NoError(t, err)
	length := binary.BigEndian.Uint32(lengthBytes[:])

	body := make([]byte, length)
	_, err = io.ReadFull(fs.toServer, body)
	require.NoError(t, err)

	require.Equal(t, uint8(filexfer.PacketTypeInit), body[0])
}

func (fs *fakeServer) writeVersion(t *testing.T, version uint32, extensions []filexfer.ExtensionPair) {
	t.Helper()

	v := &filexfer.VersionPacket{Version: version, Extensions: extensions}

	size := 1 + 4
	for _, e := range extensions {
		size += e.Len()
	}
	buf := filexfer.NewMarshalBuffer(size)
	buf.AppendUint8(uint8(filexfer.PacketTypeVersion))
	buf.AppendUint32(v.Version)
	for _, e := range v.Extensions {
		e.MarshalInto(buf)
	}
	buf.PutLength(buf.Len() - 4)

	_, err := fs.toClient.Write(buf.Bytes())
	require.NoError(t, err)
}

func (fs *fakeServer) readRequest(t *testing.T) *filexfer.RawPacket {
	t.Helper()
	raw, err := filexfer.ReadRawPacket(fs.toServer, 0)
	require.NoError(t, err)
	return raw
}

func (fs *fakeServer) writeStatus(t *testing.T, reqid uint32, code filexfer.Status) {
	t.Helper()
	fs.writePacket(t, &filexfer.StatusPacket{StatusCode: code}, reqid)
}

func (fs *fakeServer) writePacket(t *testing.T, p filexfer.PacketMarshaller, reqid uint32) {
	t.Helper()
	header, payload, err := p.MarshalPacket(reqid)
	require.NoError(t, err)
	frame, err := filexfer.ComposePacket(header, payload, nil)
	require.NoError(t, err)
	_, err = fs.toClient.Write(frame)
	require.NoError(t, err)
}

func TestHandshakeNegotiatesVersionAndExtensions(t *testing.T) {
	cl, _ := newFakeClient(t, 3, []filexfer.ExtensionPair{
		{Name: "posix-rename@openssh.com", Data: "1"},
	})

	assert.EqualValues(t, 3, cl.GetOperativeProtocolVersion())
	assert.True(t, cl.SupportsServerExtension("posix-rename", "openssh.com"))
	assert.False(t, cl.SupportsServerExtension("statvfs", "openssh.com"))

	data, ok := cl.GetServerExtensionData("posix-rename", "openssh.com")
	assert.True(t, ok)
	assert.Equal(t, "1", data)
}

func TestHandshakeLogsDowngradedVersion(t *testing.T) {
	var logged []string
	var mu sync.Mutex

	cl, _ := newFakeClient(t, 2, nil, WithLogger(func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, format)
	}))

	assert.EqualValues(t, 2, cl.GetOperativeProtocolVersion())

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, logged)
}

func TestHandshakeRejectsNewerServerVersion(t *testing.T) {
	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()
	fs := &fakeServer{toServer: toServerR, toClient: toClientW}

	go func() {
		fs.readInit(t)
		fs.writeVersion(t, 4, nil)
	}()

	_, err := NewClientPipe(context.Background(), toClientR, toServerW)
	require.Error(t, err)

	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestOpenThenStatOutOfOrderResponses(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil)

	var wg sync.WaitGroup
	var openErr, statErr error
	var file *File
	var info interface{ Size() int64 }

	wg.Add(2)
	go func() {
		defer wg.Done()
		file, openErr = cl.Open("/a")
	}()
	go func() {
		defer wg.Done()
		fi, err := cl.Stat("/b")
		statErr = err
		if fi != nil {
			info = fi
		}
	}()

	first := fs.readRequest(t)
	second := fs.readRequest(t)

	// Respond out of order: whichever request arrived second gets answered
	// first.
	if first.Type == filexfer.PacketTypeOpen {
		fs.writePacket(t, &filexfer.AttrsPacket{Attrs: filexfer.Attributes{Flags: filexfer.AttrSize, Size: 42}}, second.RequestID)
		fs.writePacket(t, &filexfer.HandlePacket{Handle: "h1"}, first.RequestID)
	} else {
		fs.writePacket(t, &filexfer.HandlePacket{Handle: "h1"}, second.RequestID)
		fs.writePacket(t, &filexfer.AttrsPacket{Attrs: filexfer.Attributes{Flags: filexfer.AttrSize, Size: 42}}, first.RequestID)
	}

	wg.Wait()

	require.NoError(t, openErr)
	require.NoError(t, statErr)
	assert.Equal(t, "/a", file.Name())
	assert.EqualValues(t, 42, info.Size())
}

func TestRenameFallsBackToPosixRenameExtension(t *testing.T) {
	cl, fs := newFakeClient(t, 3, []filexfer.ExtensionPair{
		{Name: "posix-rename@openssh.com", Data: "1"},
	})

	done := make(chan error, 1)
	go func() {
		done <- cl.Rename("/old", "/new", filexfer.RenameOverwrite)
	}()

	req := fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeExtended, req.Type)

	buf := filexfer.NewBuffer(req.Payload)
	name, err := buf.ConsumeString()
	require.NoError(t, err)
	assert.Equal(t, "posix-rename@openssh.com", name)

	fs.writeStatus(t, req.RequestID, filexfer.StatusOK)

	require.NoError(t, <-done)
}

func TestRenameUnsupportedFlagsFailWithoutTouchingWire(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil)

	done := make(chan error, 1)
	go func() {
		done <- cl.Rename("/old", "/new", filexfer.RenameAtomic)
	}()

	err := <-done
	require.Error(t, err)

	var unsupported *UnsupportedOperationError
	assert.ErrorAs(t, err, &unsupported)

	// Nothing should have reached the wire; confirm by issuing a second,
	// unrelated request and checking it arrives first.
	go cl.Remove("/probe")
	req := fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeRemove, req.Type)
	fs.writeStatus(t, req.RequestID, filexfer.StatusOK)
}

func TestDispatchTimeoutDropsSlotWithoutDeliveringLateResponse(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil)
	cl.SetTimeoutMs(20)

	_, err := cl.Stat("/slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	req := fs.readRequest(t)
	// A late response must not panic or deadlock anything; it is simply
	// dropped since nothing is waiting on this request id anymore.
	fs.writeStatus(t, req.RequestID, filexfer.StatusOK)

	// The engine must still be usable afterward: a fresh request sent
	// right after the late response must still succeed, proving the late
	// frame was discarded rather than tearing the connection down.
	done := make(chan error, 1)
	go func() {
		_, err := cl.Stat("/still-alive")
		done <- err
	}()

	next := fs.readRequest(t)
	fs.writePacket(t, &filexfer.AttrsPacket{}, next.RequestID)

	require.NoError(t, <-done)
}

func TestFatalReadErrorFailsAllOutstandingCallers(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = cl.Stat("/a")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = cl.Stat("/b")
	}()

	fs.readRequest(t)
	fs.readRequest(t)

	require.NoError(t, fs.toClient.Close())

	wg.Wait()

	assert.Error(t, errs[0])
	assert.Error(t, errs[1])
}

func TestMkdirAllStopsAtExistingDirectory(t *testing.T) {
	cl, fs := newFakeClient(t, 3, nil)

	done := make(chan error, 1)
	go func() {
		done <- cl.MkdirAll("/a/b", 0o755)
	}()

	// Stat("/a/b") - not found.
	req := fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeStat, req.Type)
	fs.writeStatus(t, req.RequestID, filexfer.StatusNoSuchFile)

	// Stat("/a") - exists as directory, so recursion stops here.
	req = fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeStat, req.Type)
	fs.writePacket(t, &filexfer.AttrsPacket{Attrs: filexfer.Attributes{
		Flags:       filexfer.AttrPermissions,
		Permissions: uint32(filexfer.ModeDir | 0o755),
	}}, req.RequestID)

	// Mkdir("/a/b").
	req = fs.readRequest(t)
	assert.Equal(t, filexfer.PacketTypeMkdir, req.Type)
	fs.writeStatus(t, req.RequestID, filexfer.StatusOK)

	require.NoError(t, <-done)
}
