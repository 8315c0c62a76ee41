package dispatch

import (
	"net"
	"sync"

	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/protocol"
)

// connSink is the Response Channel (RC) implementation for one TCP
// connection: every status transition for every job read off that
// connection is written back to it as a length-delimited response
// frame, per spec.md §4.7. A failed write is logged by the caller, not
// retried — spec.md §7's partial-failure policy ("subsequent writes
// for that job silently drop") — and does not roll back the underlying
// store mutation, which has already happened by the time RC runs.
//
// dispatch.go's handleConn enrolls every request read off a connection
// as its own Job, and the worker pool runs several of those jobs
// concurrently, so more than one Job can share this same connSink at
// once; mu serialises their Send calls so two frames never interleave
// on the wire.
type connSink struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *connSink) Send(resp *job.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.WriteResponse(s.conn, resp)
}

// Abort closes the connection without sending a response. handleConn's
// blocked protocol.ReadRequest call then fails and returns, tearing the
// connection down per spec.md §7 without needing any back-channel from
// the worker pool to the dispatcher.
func (s *connSink) Abort() {
	_ = s.conn.Close()
}
