// Package ingress implements each subsystem's datagram ingress: a dedicated
// reader goroutine copies datagrams off a UDP socket into a bounded,
// tag-ordered priority queue that the subsystem's single-threaded main loop
// polls. The queue is the sole synchronization point between the reader and
// the consumer.
//
// Priority ordering (lower tag value wins, FIFO within a tag) is
// implemented with container/heap, which keeps push and pop logarithmic for
// a poll-dominated hot loop.
package ingress

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elevatorsim/core/internal/proto"
)

// ErrQueueFull is logged (not returned to callers that can't act on it) when
// Submit drops a datagram because the queue is at capacity.
var ErrQueueFull = errors.New("ingress: queue is full")

// Frame is one received (or locally synthesized) datagram, tagged with the
// remote address it arrived from so ACKs and request/response style replies
// can be sent back.
type Frame struct {
	Tag     proto.Tag
	Payload []byte
	From    *net.UDPAddr
}

// item is the heap element: Frame plus an insertion sequence number used to
// break ties between equal-priority frames in FIFO order, since
// container/heap is not inherently stable.
type item struct {
	frame Frame
	seq   uint64
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].frame.Tag != h[j].frame.Tag {
		return h[i].frame.Tag < h[j].frame.Tag
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	popped := old[n-1]
	*h = old[:n-1]
	return popped
}

// Queue is the bounded priority queue every subsystem consumes from, keyed
// by the first byte of the payload.
type Queue struct {
	mu       sync.Mutex
	heap     itemHeap
	capacity int
	nextSeq  uint64
	wake     chan struct{}

	logger zerolog.Logger
}

// NewQueue builds an empty queue of the given capacity.
func NewQueue(capacity int, logger zerolog.Logger) *Queue {
	return &Queue{
		heap:     make(itemHeap, 0, capacity),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Submit is non-blocking: it drops the frame with a logged warning if the
// queue is already at capacity. The caller must have already copied
// payload out of any shared read buffer — Queue never mutates or retains a
// reference past what it's given.
func (q *Queue) Submit(f Frame) {
	q.mu.Lock()
	if len(q.heap) >= q.capacity {
		q.mu.Unlock()
		q.logger.Warn().
			Err(ErrQueueFull).
			Str("tag", f.Tag.String()).
			Int("capacity", q.capacity).
			Msg("ingress queue full, dropping datagram")
		return
	}
	heap.Push(&q.heap, item{frame: f, seq: q.nextSeq})
	q.nextSeq++
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Poll blocks until a frame is available or timeout elapses, returning the
// highest-priority (lowest tag, then FIFO) frame. ok is false on timeout.
// The timeout lets a subsystem's state machine fall back out of its receive
// state periodically even with no traffic, which the scheduler needs in
// order to keep evaluating its ETA watchdog between messages.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (Frame, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if f, ok := q.tryPop(); ok {
			return f, true
		}
		select {
		case <-q.wake:
			continue
		case <-deadline.C:
			return Frame{}, false
		case <-ctx.Done():
			return Frame{}, false
		}
	}
}

// PollNonBlocking returns immediately: ok is false if the queue is empty.
func (q *Queue) PollNonBlocking() (Frame, bool) {
	return q.tryPop()
}

func (q *Queue) tryPop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return Frame{}, false
	}
	it := heap.Pop(&q.heap).(item)
	return it.frame, true
}

// PeekTag reports the tag of the highest-priority queued frame without
// removing it.
func (q *Queue) PeekTag() (proto.Tag, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return 0, false
	}
	return q.heap[0].frame.Tag, true
}

// PopIfTag removes and returns the head frame only if its tag matches want;
// otherwise it leaves the queue untouched. The elevator subsystem uses this
// to absorb every queued REQUEST_ELEVATOR in one pass without consuming
// higher-priority fault traffic out of turn.
func (q *Queue) PopIfTag(want proto.Tag) (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 || q.heap[0].frame.Tag != want {
		return Frame{}, false
	}
	it := heap.Pop(&q.heap).(item)
	return it.frame, true
}

// IsEmpty is observational and non-blocking.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap) == 0
}

// Len reports the current queue depth, used by tests and debug snapshots.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Receiver owns one UDP socket and the priority Queue it feeds. The
// dedicated reader goroutine (Run) is the only reader of conn and the only
// writer into Queue for inbound traffic; Send is used by the owning
// subsystem to transmit outbound messages on the same socket.
type Receiver struct {
	Queue *Queue

	conn   *net.UDPConn
	logger zerolog.Logger
}

// Listen binds a UDP socket on port and wires it to a fresh bounded queue.
// Bind failure is fatal at startup, so the caller is expected to log.Fatal
// on a non-nil error.
func Listen(port int, capacity int, logger zerolog.Logger) (*Receiver, error) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("ingress: bind UDP port %d: %w", port, err)
	}
	return &Receiver{
		Queue:  NewQueue(capacity, logger),
		conn:   conn,
		logger: logger,
	}, nil
}

// Close releases the socket. Safe to call from any exit path.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// Run reads datagrams until ctx is cancelled or the socket is closed,
// copying each payload into a fresh slice before Submit (the read buffer is
// reused across receives) and ACKing the sender. It is meant to run in its
// own goroutine, the subsystem's sole concurrency boundary besides sleeps
// and sends.
func (r *Receiver) Run(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return
		}
		r.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Error().Err(err).Msg("ingress: read failed")
			continue
		}
		if n == 0 {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		tag := proto.Tag(payload[0])
		if proto.LooksLikeRequest(payload) {
			tag = proto.TagRequest
		}
		r.Queue.Submit(Frame{Tag: tag, Payload: payload, From: from})

		if _, err := r.conn.WriteToUDP(proto.EncodeTagOnly(proto.TagAcknowledge), from); err != nil {
			r.logger.Debug().Err(err).Msg("ingress: failed to send ACK")
		}
	}
}

// Send transmits payload to addr over the receiver's own socket. Senders do
// not block on the remote ACK: this call returns once the local write
// syscall completes.
func (r *Receiver) Send(payload []byte, addr *net.UDPAddr) error {
	_, err := r.conn.WriteToUDP(payload, addr)
	return err
}

// LocalAddr exposes the bound address, mostly for tests.
func (r *Receiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// ResolveUDP is a small helper around net.ResolveUDPAddr for the "127.0.0.1:port"
// strings config.Building produces.
func ResolveUDP(hostport string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", hostport)
}
