package multiplex

import (
	"context"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
	isync "github.com/halvarflake/sftpengine/internal/sync"
)

// Conn fuses a Reader and a Writer onto a single duplex stream: an atomic
// request-id counter, a mutex-serialized write half, a Table of pending
// callers, and the one goroutine that owns the read half and distributes
// each response to its caller.
//
// It is the direct generalization of the teacher's clientConn: dispatch
// mirrors dispatchRequest, recv/recvLoop mirror clientConn.recv/loop, and
// disconnect mirrors broadcastErr, but the wire codec underneath is the
// filexfer package's RawPacket rather than a raw (typ, data) pair.
type Conn struct {
	r io.Reader
	w io.WriteCloser

	wmu isync.Mutex

	nextID uint32

	maxPacketLength uint32

	table *Table

	rawPool *isync.Pool[filexfer.RawPacket]
	bufPool *isync.SlicePool[[]byte, byte]

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// defaultRawPoolDepth is the rawPool cache depth used when NewConn is given
// a maxInflight of 0 or less, matching the teacher's own defaultMaxInflight.
const defaultRawPoolDepth = 64

// NewConn wraps r and w as a multiplexed duplex stream. maxPacketLength
// bounds the length a decoded frame is allowed to declare (0 selects
// filexfer.DefaultMaxPacketLength). maxInflight sizes the depth of the
// envelope pool used to read response frames, mirroring how the teacher's
// NewClient sizes resPool/bufPool/pktPool from cl.maxInflight right after
// the handshake (0 or less selects defaultRawPoolDepth).
func NewConn(r io.Reader, w io.WriteCloser, maxPacketLength uint32, maxInflight int) *Conn {
	if maxInflight <= 0 {
		maxInflight = defaultRawPoolDepth
	}

	bufLen := int(maxPacketLength)
	if maxPacketLength == 0 {
		bufLen = int(filexfer.DefaultMaxPacketLength)
	}

	return &Conn{
		r:               r,
		w:               w,
		maxPacketLength: maxPacketLength,
		table:           NewTable(maxInflight),
		rawPool:         isync.NewPool[filexfer.RawPacket](maxInflight),
		bufPool:         isync.NewSlicePool[[]byte](maxInflight, bufLen),
		done:            make(chan struct{}),
	}
}

// Start launches the goroutine that owns the read half. It must be called
// exactly once, after any handshake that needs to read from r directly has
// finished.
func (c *Conn) Start() {
	go c.recvLoop()
}

// nextRequestID returns the next request id to use, wrapping from
// 0xFFFFFFFF back to 0. A 32-bit counter wrapping mid-session could, in
// principle, collide with a still-outstanding request; Dispatch guards
// against this by refusing to overwrite a live Table entry.
func (c *Conn) nextRequestID() uint32 {
	return atomic.AddUint32(&c.nextID, 1) - 1
}

// Dispatch sends req under a freshly allocated request id and blocks until
// either a response arrives, ctx is done, or the connection fails. On a
// context cancellation it drops the pending slot so a late response is
// discarded rather than delivered to a caller who has stopped listening.
func (c *Conn) Dispatch(ctx context.Context, req filexfer.PacketMarshaller) (*filexfer.RawPacket, error) {
	id := c.nextRequestID()

	ch, ok := c.table.Register(id)
	for !ok && c.closeErr == nil {
		// id collided with a still-outstanding request across a counter
		// wraparound; draw another rather than clobber the live slot.
		id = c.nextRequestID()
		ch, ok = c.table.Register(id)
	}
	if !ok {
		return nil, c.closeErrOrDefault()
	}

	if err := c.transmit(ctx, req, id); err != nil {
		c.table.Cancel(id, ch)
		return nil, err
	}

	select {
	case res := <-ch:
		c.table.Release(ch)
		if res.err != nil {
			return nil, res.err
		}
		return res.raw, nil

	case <-ctx.Done():
		c.table.Cancel(id, ch)
		return nil, ctx.Err()

	case <-c.done:
		c.table.Cancel(id, ch)
		return nil, c.closeErrOrDefault()
	}
}

// transmit marshals req addressed to id and writes the resulting frame in a
// single call under c.wmu, so concurrent dispatchers cannot interleave a
// partial frame on the wire. The frame is assembled in a buffer borrowed
// from bufPool rather than built fresh by filexfer.ComposePacket's append,
// mirroring the teacher's own dispatchRequest, which marshals header into
// a buffer borrowed from bufPool and returns it once the write completes
// (client.go:184-221). The frame is copied before transmit waits, so if ctx
// is done before the write completes, transmit returns ctx.Err() at once and
// the write finishes in the background without touching the caller's data.
func (c *Conn) transmit(ctx context.Context, req filexfer.PacketMarshaller, id uint32) error {
	header, payload, err := req.MarshalPacket(id)
	if err != nil {
		return err
	}

	need := len(header) + len(payload)
	frame := c.bufPool.Get()
	if cap(frame) < need {
		frame = make([]byte, 0, need)
	}
	frame = append(frame[:0], header...)
	frame = append(frame, payload...)

	errc := make(chan error, 1)
	go func() {
		c.wmu.Lock()
		_, err := c.w.Write(frame)
		c.wmu.Unlock()

		c.bufPool.Put(frame)
		errc <- err
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recvLoop reads frames until the stream fails, then disconnects every
// pending caller with that error. It is the sole reader of c.r.
func (c *Conn) recvLoop() {
	err := c.recv()
	c.disconnect(err)
}

func (c *Conn) recv() error {
	for {
		raw := c.rawPool.Get()
		if err := filexfer.ReadRawPacketInto(c.r, c.maxPacketLength, raw); err != nil {
			return err
		}

		if !raw.Type.IsResponseType() {
			return errors.Errorf("sftp: received non-response packet type %v from server", raw.Type)
		}

		if !c.table.Complete(raw) {
			// No caller is waiting on this id: a response for a request
			// that Dispatch already gave up on (timeout, canceled context),
			// or a duplicate. Discard it and keep reading; every other
			// outstanding caller on this connection is still live.
			c.rawPool.Put(raw)
			continue
		}
	}
}

// Release returns a RawPacket previously delivered by Dispatch back to the
// envelope pool, once the caller has finished decoding its Payload. Calling
// it is optional; skipping it only costs an extra allocation on the next
// frame, never correctness.
func (c *Conn) Release(raw *filexfer.RawPacket) {
	raw.Reset()
	c.rawPool.Put(raw)
}

// disconnect ends the connection with err: every pending caller is woken
// with err, and the connection is marked closed so future Dispatch calls
// fail fast instead of registering a slot nothing will ever fill.
func (c *Conn) disconnect(err error) {
	c.closeOnce.Do(func() {
		if err == nil {
			err = io.ErrClosedPipe
		}
		c.closeErr = err
		c.table.FailAll(err)
		close(c.done)
	})
}

func (c *Conn) closeErrOrDefault() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return io.ErrClosedPipe
}

// Close shuts down the underlying writer and fails every pending caller.
// It does not wait for recvLoop to observe the resulting read error; callers
// that want that guarantee should cancel their own contexts.
func (c *Conn) Close() error {
	c.disconnect(errors.Wrap(fs.ErrClosed, "sftp: connection closed"))
	return c.w.Close()
}
