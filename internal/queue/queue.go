// Package queue implements StreamQueue: the per-stream ordered sequence of
// packet envelopes MuxerCore drains from, guarded by a single mutex, per
// spec §4.5.
package queue

import "sync"

// Envelope is an owning handle to a container-format packet: an opaque
// payload, its timestamps in the encoder's codec time-base, the stream it
// belongs to, and whether this envelope still owns (and must free) its
// payload. Ownership transfers to the container writer once the packet is
// handed off (spec §9 "packet ownership in the muxer").
type Envelope struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	HasDTS      bool
	Payload     []byte
	Owned       bool
}

// Queue is StreamQueue for a single stream index: an ordered sequence of
// Envelope protected by a mutex, plus a done flag set once the encoder will
// enqueue no more packets (spec §4.5, invariant 4).
type Queue struct {
	mu    sync.Mutex
	items []*Envelope
	head  int
	done  bool
}

// New returns an empty, not-done queue.
func New() *Queue {
	return &Queue{}
}

// PushBack enqueues an envelope under lock.
func (q *Queue) PushBack(e *Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, e)
}

// PopFront removes and returns the oldest envelope under lock, or nil if
// the queue is empty.
func (q *Queue) PopFront() *Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return nil
	}
	e := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	// Reclaim backing array once it's all consumed, so a long-running
	// stream doesn't grow its slice unbounded.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return e
}

// PeekFront returns the oldest envelope without removing it, or nil if
// the queue is empty.
func (q *Queue) PeekFront() *Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return nil
	}
	return q.items[q.head]
}

// Size returns the number of queued-but-unpopped envelopes under lock.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Empty reports whether the queue currently has no pending envelopes.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// End sets the done flag: the encoder for this stream will enqueue no
// further packets.
func (q *Queue) End() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = true
}

// Done reports whether End has been called for this stream.
func (q *Queue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done
}

// Drained reports whether this stream has no more work to ever produce:
// done is set and the queue is empty (spec §4.5 step 1, §8 P7).
func (q *Queue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done && len(q.items)-q.head == 0
}
