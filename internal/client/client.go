// Package client is an idiomatic Go port of
// _examples/original_source/src/client/client.c: connect to a keyvalued
// instance, send one request, and read responses until a terminal
// status arrives. spec.md §1 places this outside the core but
// "contracted" via §6's wire protocol; this package is the Go-side
// implementation of that contract, reusing internal/protocol instead
// of client.c's raw struct send/recv.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/Disant-codes/keystore-filesystem/internal/job"
	"github.com/Disant-codes/keystore-filesystem/internal/protocol"
)

// Client holds one TCP connection to a keyvalued server.
type Client struct {
	conn net.Conn
}

// Dial connects to addr (host:port), mirroring client.c's
// connect_to_server.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("client: dial %q: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Do sends req and reads responses until one with a terminal status
// arrives, invoking onResponse for every response received in between
// (including the terminal one), mirroring client.c's read loop
// ("Read multiple responses until job is completed or failed"). It
// returns the terminal response.
func (c *Client) Do(req *job.Request, onResponse func(*job.Response)) (*job.Response, error) {
	if err := protocol.WriteRequest(c.conn, req); err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}
	for {
		resp, err := protocol.ReadResponse(c.conn)
		if err != nil {
			return nil, fmt.Errorf("client: read response: %w", err)
		}
		if onResponse != nil {
			onResponse(resp)
		}
		if resp.Status.Terminal() {
			return resp, nil
		}
	}
}

// Put sends a PUT request for key/value and returns the terminal
// response.
func (c *Client) Put(key, value []byte) (*job.Response, error) {
	return c.Do(&job.Request{Type: job.Put, Key: key, Value: value}, nil)
}

// Get sends a GET request for key and returns the terminal response.
func (c *Client) Get(key []byte) (*job.Response, error) {
	return c.Do(&job.Request{Type: job.Get, Key: key}, nil)
}

// Delete sends a DELETE request for key and returns the terminal
// response.
func (c *Client) Delete(key []byte) (*job.Response, error) {
	return c.Do(&job.Request{Type: job.Delete, Key: key}, nil)
}
