package multiplex

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
)

// pipePair wires up a Conn against a fake server goroutine driven entirely
// by the test: toServer carries what the Conn writes, toClient carries what
// the fake server writes back.
type pipePair struct {
	conn     *Conn
	toServer *io.PipeReader
	toClient *io.PipeWriter
}

func newPipePair() *pipePair {
	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()

	c := NewConn(toClientR, toServerW, 0, 0)
	c.Start()

	return &pipePair{conn: c, toServer: toServerR, toClient: toClientW}
}

func (p *pipePair) readRequest(t *testing.T) *filexfer.RawPacket {
	t.Helper()
	raw, err := filexfer.ReadRawPacket(p.toServer, 0)
	require.NoError(t, err)
	return raw
}

func (p *pipePair) writeStatus(t *testing.T, reqid uint32, code filexfer.Status) {
	t.Helper()
	status := &filexfer.StatusPacket{StatusCode: code}
	header, payload, err := status.MarshalPacket(reqid)
	require.NoError(t, err)
	frame, err := filexfer.ComposePacket(header, payload, nil)
	require.NoError(t, err)
	_, err = p.toClient.Write(frame)
	require.NoError(t, err)
}

func TestConnOutOfOrderResponsesDeliveredToCorrectCaller(t *testing.T) {
	p := newPipePair()

	var wg sync.WaitGroup
	results := make(map[string]*filexfer.RawPacket)
	var mu sync.Mutex

	wg.Add(2)
	go func() {
		defer wg.Done()
		raw, err := p.conn.Dispatch(context.Background(), &filexfer.StatPacket{Path: "/a"})
		require.NoError(t, err)
		mu.Lock()
		results["a"] = raw
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		raw, err := p.conn.Dispatch(context.Background(), &filexfer.StatPacket{Path: "/b"})
		require.NoError(t, err)
		mu.Lock()
		results["b"] = raw
		mu.Unlock()
	}()

	first := p.readRequest(t)
	second := p.readRequest(t)

	// The two dispatching goroutines race to the wire, so map each request
	// id back to the path it asked about rather than assuming /a went first.
	idFor := make(map[string]uint32)
	for _, req := range []*filexfer.RawPacket{first, second} {
		stat := new(filexfer.StatPacket)
		require.NoError(t, req.UnmarshalInto(stat))
		idFor[stat.Path] = req.RequestID
	}

	// Answer in reverse order of arrival.
	p.writeStatus(t, second.RequestID, filexfer.StatusOK)
	p.writeStatus(t, first.RequestID, filexfer.StatusEOF)

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, idFor["/a"], results["a"].RequestID)
	assert.Equal(t, idFor["/b"], results["b"].RequestID)
}

func TestConnTimeoutDropsSlotWithoutDeliveringLateResponse(t *testing.T) {
	p := newPipePair()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.conn.Dispatch(ctx, &filexfer.StatPacket{Path: "/slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	req := p.readRequest(t)
	assert.Zero(t, p.conn.table.Len(), "a timed-out request must have its slot dropped")

	// The server's answer to the timed-out request now arrives late, over
	// the real wire. It must be silently discarded rather than delivered
	// to anything (nothing is waiting on this id anymore) or treated as a
	// reason to tear down the connection.
	p.writeStatus(t, req.RequestID, filexfer.StatusOK)

	// The connection must still be usable afterward: a fresh request sent
	// right after the late response must still get its own answer, proving
	// recv's loop kept running rather than tearing the connection down.
	done := make(chan struct {
		raw *filexfer.RawPacket
		err error
	}, 1)
	go func() {
		raw, err := p.conn.Dispatch(context.Background(), &filexfer.StatPacket{Path: "/still-alive"})
		done <- struct {
			raw *filexfer.RawPacket
			err error
		}{raw, err}
	}()

	next := p.readRequest(t)
	p.writeStatus(t, next.RequestID, filexfer.StatusEOF)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, next.RequestID, res.raw.RequestID)
}

func TestConnFatalReadErrorFailsAllOutstandingCallers(t *testing.T) {
	p := newPipePair()

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = p.conn.Dispatch(context.Background(), &filexfer.StatPacket{Path: "/a"})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = p.conn.Dispatch(context.Background(), &filexfer.StatPacket{Path: "/b"})
	}()

	p.readRequest(t)
	p.readRequest(t)

	require.NoError(t, p.toClient.Close())

	wg.Wait()

	assert.Error(t, errs[0])
	assert.Error(t, errs[1])
}

func TestConnCloseFailsPendingCallers(t *testing.T) {
	p := newPipePair()

	done := make(chan error, 1)
	go func() {
		_, err := p.conn.Dispatch(context.Background(), &filexfer.StatPacket{Path: "/a"})
		done <- err
	}()

	p.readRequest(t)
	require.NoError(t, p.conn.Close())

	err := <-done
	assert.Error(t, err)
}
