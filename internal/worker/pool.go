// Package worker implements the Worker Pool (WP) from spec.md §4.5: a
// fixed set of goroutines that drain the Job Queue and apply each job
// to the KV Engine, emitting the terminal response over the job's
// Response Channel.
//
// Grounded on the goroutine-per-connection / fixed-goroutine-count
// pattern internal/dispatch's package doc cites from
// _examples/rclone-rclone/cmd/serve's listeners: a sync.WaitGroup
// tracking a fixed number of long-lived goroutines, started together
// and joined together on shutdown, generalised here from one goroutine
// per connection to one goroutine per worker pulling from
// internal/job.Queue.
package worker

import (
	"sync"

	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/klog"
	"github.com/Disant-codes/keystore-filesystem/internal/metrics"
)

// Applier is satisfied by *kv.Engine. A narrow interface keeps this
// package from importing internal/kv, matching the layering spec.md §2
// draws between the Worker Pool and the KV Engine. Apply returns a
// non-nil error only for a genuine storage IO failure — not for a
// taxonomy outcome like STORAGE_FULL or KEY_NOT_FOUND, which are
// expressed entirely through resp and never surface as an error here.
type Applier interface {
	Apply(req *job.Request, resp *job.Response) error
}

// Pool runs a fixed number of worker goroutines against a Queue.
type Pool struct {
	queue  *job.Queue
	engine Applier
	size   int
	wg     sync.WaitGroup
}

// New returns a Pool of size goroutines that will drain queue into
// engine once Start is called. size must be >= 1.
func New(queue *job.Queue, engine Applier, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{queue: queue, engine: engine, size: size}
}

// Start launches the pool's worker goroutines. It returns immediately;
// call Wait to block until all workers have exited, which happens once
// queue is Closed and fully drained, per spec.md §5's shutdown drain
// requirement.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for {
		j, ok := p.queue.Pop()
		if !ok {
			return
		}
		metrics.WorkerStarted()
		p.process(id, j)
		metrics.WorkerFinished()
	}
}

// process applies j to the engine and emits its terminal response. A
// storage IO error — from the engine returning one, or a panic inside
// it — is not a normal terminal outcome: per spec.md §7 the connection
// is torn down instead of a response being sent.
func (p *Pool) process(id int, j *job.Job) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("worker", "worker %d: panic handling %s %q: %v",
				id, j.Request.Type, j.Request.Key, r)
			j.Abort()
		}
	}()
	if err := p.engine.Apply(j.Request, j.Response); err != nil {
		klog.Errorf("worker", "worker %d: storage IO error handling %s %q: %v",
			id, j.Request.Type, j.Request.Key, err)
		j.Abort()
		return
	}
	j.Complete()
}
