package wireamqp

import (
	"net"
	"sync"

	"go.bryk.io/pkg/errors"
)

// Connection wraps a live AMQP peer connection: the raw socket, the
// negotiated container identifiers, and the one session this module
// multiplexes over it. Only the Container's Run goroutine (and, during
// bootstrap, the single goroutine performing the handshake) ever
// mutates a Connection's state.
type Connection struct {
	ContainerID       string
	RemoteContainerID string

	netConn net.Conn
	deliver uint32 // next delivery-id this endpoint assigns

	mu      sync.Mutex
	session *Session
	state   State

	bootstrapMu sync.Mutex
	bootstrap   []*decodedFrame
}

// queueBootstrapFrame stashes a frame seen during AttachLink's blocking
// wait for a specific attach echo, so it is not lost once the reactor
// takes over reading the connection.
func (c *Connection) queueBootstrapFrame(df *decodedFrame) {
	c.bootstrapMu.Lock()
	c.bootstrap = append(c.bootstrap, df)
	c.bootstrapMu.Unlock()
}

// drainBootstrapFrames returns and clears any frames queued during
// bootstrap.
func (c *Connection) drainBootstrapFrames() []*decodedFrame {
	c.bootstrapMu.Lock()
	defer c.bootstrapMu.Unlock()
	out := c.bootstrap
	c.bootstrap = nil
	return out
}

func newConnection(nc net.Conn, containerID string) *Connection {
	return &Connection{ContainerID: containerID, netConn: nc}
}

// Session returns the connection's session, creating it (and remembering
// the remote's chosen channel number) on first reference.
func (c *Connection) Session(channel uint16) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		c.session = newSession(c, channel)
	}
	return c.session
}

func (c *Connection) nextDeliveryID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.deliver
	c.deliver++
	return id
}

// Close terminates the underlying socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	if err := c.netConn.Close(); err != nil {
		return errors.Wrap(err, "close connection")
	}
	return nil
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
