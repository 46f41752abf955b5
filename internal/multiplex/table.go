// Package multiplex implements request/response multiplexing over a single
// duplex SFTP stream: a monotonic request-id allocator, a table of pending
// callers keyed by id, a single goroutine that owns the read half, and a
// mutex-serialized writer so that concurrent callers can share one
// underlying connection safely.
package multiplex

import (
	"github.com/halvarflake/sftpengine/encoding/ssh/filexfer"
	isync "github.com/halvarflake/sftpengine/internal/sync"
)

// result is what a pending request is waiting to receive: either a decoded
// response frame, or a fatal error that ended the connection before a
// response arrived.
type result struct {
	raw *filexfer.RawPacket
	err error
}

// Table tracks requests awaiting a response, keyed by request id. It is the
// client-side mirror of pkg/sftp's clientConn.inflight map, pulled out into
// its own type so it can be tested in isolation from any actual I/O.
//
// The response channels themselves are borrowed from a fixed-depth
// WorkPool, the same way the teacher's clientConn borrows them from
// resPool (client.go:37,572): Register blocks once every channel is
// already checked out by another outstanding request, so the depth given
// to NewTable (the engine's maxInflight) genuinely bounds how many
// requests can be in flight at once, rather than only hinting at an
// envelope-pool cache depth.
type Table struct {
	mu      isync.Mutex
	pending map[uint32]chan result
	closed  error

	resPool *isync.WorkPool[result]
}

// NewTable returns an empty, ready-to-use Table whose response-channel
// pool holds depth channels (0 or less selects defaultRawPoolDepth's
// value, matching NewConn's own default).
func NewTable(depth int) *Table {
	if depth <= 0 {
		depth = defaultRawPoolDepth
	}

	return &Table{
		pending: make(map[uint32]chan result),
		resPool: isync.NewWorkPool[result](depth),
	}
}

// Register creates a one-shot slot for id and returns the channel the
// eventual response (or failure) will arrive on, borrowed from the
// Table's WorkPool. It blocks if every channel is currently checked out by
// another outstanding request. It returns false, without creating a slot,
// if the Table has already been shut down by FailAll, or if id is already
// in use by a still-outstanding request (a request-id wraparound
// collision, which the caller should resolve by trying another id rather
// than clobbering the live slot).
func (t *Table) Register(id uint32) (chan result, bool) {
	t.mu.Lock()
	if t.closed != nil {
		t.mu.Unlock()
		return nil, false
	}
	if _, exists := t.pending[id]; exists {
		t.mu.Unlock()
		return nil, false
	}
	t.mu.Unlock()

	ch, ok := t.resPool.Get()
	if !ok {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed != nil {
		t.resPool.Put(ch)
		return nil, false
	}

	if _, exists := t.pending[id]; exists {
		t.resPool.Put(ch)
		return nil, false
	}

	t.pending[id] = ch
	return ch, true
}

// Cancel removes id's slot, for a caller that registered but gave up
// before consuming a response (the write itself errored, ctx was
// canceled, or the connection disconnected while this caller was still
// waiting). ch is the channel Register handed back for id.
//
// If a response already raced in and is sitting in ch, ch is drained and
// recycled directly. Otherwise the response may still land in ch after
// Cancel returns, so ch itself is abandoned (to the GC, along with
// whatever late value eventually arrives in it) and a fresh channel takes
// its place in the pool — reusing ch immediately here could hand a future,
// unrelated request this request's stale response. This mirrors the
// teacher's clientConn.discard (client.go:246-259) exactly, including its
// rationale.
func (t *Table) Cancel(id uint32, ch chan result) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()

	select {
	case <-ch:
		t.resPool.Put(ch)
	default:
		t.resPool.Put(make(chan result, 1))
	}
}

// Release returns ch to the pool after its caller has consumed the
// response it carried.
func (t *Table) Release(ch chan result) {
	t.resPool.Put(ch)
}

// Complete delivers raw to whichever caller registered raw.RequestID. It
// reports false if there was no such caller: a response for a request whose
// slot Dispatch already gave up on (a timeout or canceled context ran
// Cancel first), or a duplicate. The caller should discard raw and keep
// reading rather than treat this as fatal; a late response is an expected
// race with Cancel, not evidence the stream is desynchronized.
func (t *Table) Complete(raw *filexfer.RawPacket) bool {
	t.mu.Lock()
	ch, ok := t.pending[raw.RequestID]
	if ok {
		delete(t.pending, raw.RequestID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	ch <- result{raw: raw}
	return true
}

// FailAll delivers err to every currently-pending caller, and marks the
// Table closed so that any Register call made afterward (a request racing
// with connection teardown) fails immediately instead of hanging forever.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uint32]chan result)
	if t.closed == nil {
		t.closed = err
	}
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}
}

// Len reports the number of requests currently awaiting a response. It
// exists for tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
