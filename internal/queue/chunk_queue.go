package queue

import (
	"errors"
	"sync"

	"github.com/zsiec/tsingest/internal/ingestion/types"
)

// ErrQueueShutdown indicates the queue no longer accepts work
var ErrQueueShutdown = errors.New("queue shut down")

// ChunkQueue hands chunk descriptors from the producer to the workers in
// FIFO order. Pop blocks until an item arrives or the queue shuts down;
// items pushed before shutdown are still drained.
type ChunkQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []*types.Chunk
	capacity int
	shutdown bool

	pushed uint64
	popped uint64
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Depth    int
	Pushed   uint64
	Popped   uint64
	Shutdown bool
}

// NewChunkQueue creates a queue. A capacity of zero or less makes Push
// never block.
func NewChunkQueue(capacity int) *ChunkQueue {
	q := &ChunkQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends c and wakes one waiting consumer. It blocks while a bounded
// queue is full and fails once the queue is shut down.
func (q *ChunkQueue) Push(c *types.Chunk) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.shutdown && q.capacity > 0 && len(q.items) >= q.capacity {
		q.notFull.Wait()
	}
	if q.shutdown {
		return ErrQueueShutdown
	}

	q.items = append(q.items, c)
	q.pushed++
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest item. It returns false once the queue
// is shut down and empty.
func (q *ChunkQueue) Pop() (*types.Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.shutdown {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.popped++
	q.notFull.Signal()
	return c, true
}

// Shutdown stops the queue and wakes every waiter. It reports true only
// for the call that performed the transition.
func (q *ChunkQueue) Shutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return false
	}
	q.shutdown = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return true
}

// IsShutdown reports whether Shutdown has been called.
func (q *ChunkQueue) IsShutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shutdown
}

// Len returns the number of queued items.
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns queue counters.
func (q *ChunkQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Depth:    len(q.items),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Shutdown: q.shutdown,
	}
}
