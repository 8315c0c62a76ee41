// Package dispatch implements the Connection Dispatcher (CD) and
// Response Channel (RC) from spec.md §4.6/§4.7: it accepts client TCP
// connections, reads one length-delimited request per read, constructs
// a Job enrolled in the Job Queue, and ships status transitions back
// down the same connection as they occur.
//
// spec.md §4.6 describes the source dispatcher as a single-threaded,
// readiness-driven (epoll) loop: one thread owns every client socket
// and multiplexes reads across all of them. Go has no blessed portable
// epoll wrapper in the standard library, and idiomatic Go network
// servers — including rclone's own cmd/serve/* listeners, grounding
// this package — instead give each accepted connection its own
// goroutine blocking in a read loop, relying on the runtime's netpoller
// to multiplex file descriptors under the hood. SPEC_FULL.md's [CD]
// section resolves this explicitly: goroutine-per-connection
// replaces epoll-loop, preserving the "one request read, one job
// enrolled" contract without hand-rolling a readiness loop.
package dispatch

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/klog"
	"github.com/Disant-codes/keystore-filesystem/internal/metrics"
	"github.com/Disant-codes/keystore-filesystem/internal/protocol"
)

// Dispatcher accepts client connections and enrolls one Job per request
// into a Queue.
type Dispatcher struct {
	listener net.Listener
	queue    *job.Queue
}

// New wraps an already-bound listener. Use Listen to also create the
// listener from a bind address.
func New(listener net.Listener, queue *job.Queue) *Dispatcher {
	return &Dispatcher{listener: listener, queue: queue}
}

// Listen binds addr (host:port) and returns a ready-to-Serve Dispatcher.
func Listen(addr string, queue *job.Queue) (*Dispatcher, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(ln, queue), nil
}

// Addr returns the dispatcher's bound address.
func (d *Dispatcher) Addr() net.Addr { return d.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed, spawning one goroutine per connection. It returns once the
// listener has been closed and all in-flight connection handlers have
// been launched (not necessarily finished — callers that need a clean
// drain should close the Queue and wait on the worker pool separately,
// per spec.md §5).
func (d *Dispatcher) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = d.listener.Close()
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		metrics.ConnectionOpened()
		go d.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (d *Dispatcher) Close() error { return d.listener.Close() }

// handleConn reads one request at a time off conn, enrolling each as a
// Job whose Response Channel is this same connection. It exits (and
// closes conn) when a read fails: EOF, a protocol error, or the
// connection having been closed (for example by connSink.Abort). A
// failed response write does not end the loop.
func (d *Dispatcher) handleConn(conn net.Conn) {
	defer metrics.ConnectionClosed()
	defer conn.Close()

	sink := &connSink{conn: conn}
	for {
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				klog.Debugf("dispatch", "connection %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		j := job.New(req, sink)
		d.queue.Push(j)
	}
}
