package worker_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/worker"
)

// fakeEngine records the requests it was asked to apply and always
// completes them successfully.
type fakeEngine struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeEngine) Apply(req *job.Request, resp *job.Response) error {
	f.mu.Lock()
	f.seen = append(f.seen, string(req.Key))
	f.mu.Unlock()
	resp.Status = job.Completed
	resp.Error = job.NoError
	return nil
}

func (f *fakeEngine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// collectingSink captures every response emitted for one job, plus
// whether the job was aborted instead of completed normally.
type collectingSink struct {
	mu      sync.Mutex
	resp    []job.Status
	aborted bool
	done    chan struct{}
}

func newCollectingSink() *collectingSink {
	return &collectingSink{done: make(chan struct{}, 8)}
}

func (s *collectingSink) Send(resp *job.Response) error {
	s.mu.Lock()
	s.resp = append(s.resp, resp.Status)
	s.mu.Unlock()
	if resp.Status.Terminal() {
		s.done <- struct{}{}
	}
	return nil
}

func (s *collectingSink) Abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.done <- struct{}{}
}

func (s *collectingSink) wasAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func TestPoolProcessesJobsToCompletion(t *testing.T) {
	q := job.NewQueue()
	engine := &fakeEngine{}
	p := worker.New(q, engine, 4)
	p.Start()

	const n = 20
	sinks := make([]*collectingSink, n)
	for i := 0; i < n; i++ {
		sinks[i] = newCollectingSink()
		j := job.New(&job.Request{Type: job.Put, Key: []byte("k")}, sinks[i])
		q.Push(j)
	}

	for i := 0; i < n; i++ {
		select {
		case <-sinks[i].done:
		case <-time.After(2 * time.Second):
			t.Fatalf("job %d never completed", i)
		}
	}

	q.Close()
	p.Wait()

	assert.Equal(t, n, engine.count())
}

func TestPoolDrainsQueueBeforeExitingOnClose(t *testing.T) {
	q := job.NewQueue()
	engine := &fakeEngine{}
	p := worker.New(q, engine, 2)

	sink := newCollectingSink()
	j := job.New(&job.Request{Type: job.Get, Key: []byte("x")}, sink)
	q.Push(j)
	q.Close()

	p.Start()
	p.Wait()

	require.Equal(t, 1, engine.count())
	assert.Equal(t, job.Completed, sink.resp[len(sink.resp)-1])
}

func TestPoolRecoversFromEnginePanic(t *testing.T) {
	q := job.NewQueue()
	engine := panicEngine{}
	p := worker.New(q, engine, 1)
	p.Start()

	sink := newCollectingSink()
	j := job.New(&job.Request{Type: job.Put, Key: []byte("boom")}, sink)
	q.Push(j)

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("panicking job never aborted")
	}

	q.Close()
	p.Wait()

	assert.True(t, sink.wasAborted(), "a panicking job should tear down its connection, not complete normally")
}

type panicEngine struct{}

func (panicEngine) Apply(req *job.Request, resp *job.Response) error {
	panic("synthetic engine failure")
}

func TestPoolAbortsConnectionOnStorageIOError(t *testing.T) {
	q := job.NewQueue()
	engine := ioErrEngine{}
	p := worker.New(q, engine, 1)
	p.Start()

	sink := newCollectingSink()
	j := job.New(&job.Request{Type: job.Get, Key: []byte("k")}, sink)
	q.Push(j)

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never aborted")
	}

	q.Close()
	p.Wait()

	assert.True(t, sink.wasAborted(), "a storage IO error should tear down the connection, not complete the job")
}

type ioErrEngine struct{}

func (ioErrEngine) Apply(req *job.Request, resp *job.Response) error {
	return errors.New("synthetic storage IO error")
}
