package job

import (
	"container/list"
	"sync"

	"github.com/Disant-codes/keystore-filesystem/internal/metrics"
)

// Queue is the thread-safe FIFO from spec.md §4.4: one mutex + one
// condition variable guarding a linked list of pending jobs. The
// original C source threads jobs via an embedded next pointer (spec.md
// §9 flags this for re-architecture); Queue instead moves ownership of
// *Job values through a container/list-backed deque, matching the
// "ownership-transferring FIFO" redesign spec.md calls for.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	jobs *list.List

	closed bool
}

// NewQueue returns an empty, ready-to-use Queue.
func NewQueue() *Queue {
	q := &Queue{jobs: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push transitions job NOT_STARTED -> SUBMITTED and emits that status,
// then appends it at the tail and wakes one blocked Pop. The emit must
// happen before the job is made visible to Pop: once a worker can Pop
// it, it can run to completion and emit a terminal status before this
// goroutine would otherwise resume to send SUBMITTED, producing a
// stale SUBMITTED frame after the terminal one on the wire.
func (q *Queue) Push(j *Job) {
	j.submit()

	q.mu.Lock()
	q.jobs.PushBack(j)
	metrics.SetQueueDepth(q.jobs.Len())
	q.cond.Signal()
	q.mu.Unlock()
}

// Pop blocks while the queue is empty, then removes and returns the
// head, transitioning it SUBMITTED -> PROCESSING and emitting that
// status, per spec.md §4.4. Pop returns (nil, false) once the queue has
// been Closed and drained.
func (q *Queue) Pop() (*Job, bool) {
	q.mu.Lock()
	for q.jobs.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.jobs.Len() == 0 {
		q.mu.Unlock()
		return nil, false
	}
	front := q.jobs.Remove(q.jobs.Front())
	metrics.SetQueueDepth(q.jobs.Len())
	q.mu.Unlock()

	j := front.(*Job)
	j.startProcessing()
	return j, true
}

// Close unblocks any workers parked in Pop once the queue drains, used
// during shutdown (spec.md §5: "outstanding jobs already in JQ are
// drained by workers to completion before the process terminates").
// Close does not discard pending jobs; Pop keeps returning them until
// the queue is empty.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len reports the current queue depth (diagnostic use only).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}
