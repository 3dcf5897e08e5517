// Package client implements the shared link-driven core behind qsend,
// qreceive and qrequest: a LinkHandler that groups address URLs by
// host:port, opens one connection per group, and delegates the
// role-specific link topology to whichever of ReceiveHandler, SendHandler
// or RequestHandler embeds it.
package client

import (
	"os"
	"sync"

	"github.com/ManishShukla27/qtools/internal/address"
	"github.com/ManishShukla27/qtools/internal/wireamqp"
	"go.bryk.io/pkg/errors"
	xlog "go.bryk.io/pkg/log"
)

// LinkOpener is implemented by each client role and invoked once per
// parsed address, after the connection covering its host:port has been
// dialed.
type LinkOpener interface {
	OpenLinks(c *wireamqp.Container, conn *wireamqp.Connection, path string) ([]*wireamqp.Link, error)
}

// LinkHandler is the shared client base described by the core spec: it
// embeds wireamqp.BaseHandler so a concrete handler only has to override
// the events it cares about, and provides Connect/Ready/Close to the
// three role-specific handlers.
type LinkHandler struct {
	wireamqp.BaseHandler

	opener      LinkOpener
	containerID string
	log         xlog.Logger

	mu    sync.Mutex
	links []*wireamqp.Link

	ready     chan struct{}
	readyOnce sync.Once
}

func newLinkHandler(opener LinkOpener, containerID string, log xlog.Logger) LinkHandler {
	return LinkHandler{
		opener:      opener,
		containerID: containerID,
		log:         log,
		ready:       make(chan struct{}),
	}
}

// Connect parses every url, groups them by host:port, dials one
// connection per group and opens the role-specific links for each
// address via the handler's LinkOpener. It must complete (return) before
// the container's Run loop starts processing events.
func (h *LinkHandler) Connect(c *wireamqp.Container, urls []string) error {
	type group struct {
		hostPort string
		paths    []string
	}
	var groups []*group
	index := make(map[string]*group)

	for _, raw := range urls {
		addr, err := address.Parse(raw)
		if err != nil {
			return errors.Wrap(err, "parse address")
		}
		g, ok := index[addr.HostPort()]
		if !ok {
			g = &group{hostPort: addr.HostPort()}
			index[addr.HostPort()] = g
			groups = append(groups, g)
		}
		g.paths = append(g.paths, addr.Path)
	}

	for _, g := range groups {
		conn, err := c.Dial(g.hostPort, h.containerID)
		if err != nil {
			return errors.Wrap(err, "dial "+g.hostPort)
		}
		for _, path := range g.paths {
			links, err := h.opener.OpenLinks(c, conn, path)
			if err != nil {
				return errors.Wrap(err, "open links for "+path)
			}
			h.mu.Lock()
			h.links = append(h.links, links...)
			h.mu.Unlock()
		}
		c.Activate(conn)
	}

	h.readyOnce.Do(func() { close(h.ready) })
	return nil
}

// Ready reports when every address in the first successful Connect call
// has attached its links; it stays closed after that. SendHandler and RequestHandler's feeder goroutines
// block on it before reading their first line of input.
func (h *LinkHandler) Ready() <-chan struct{} {
	return h.ready
}

// Close closes every connection the handler opened and stops the
// reactor loop, mirroring the source's "close every connection, then
// unblock the reactor" sequence.
func (h *LinkHandler) Close(c *wireamqp.Container) {
	c.Stop()
}

// OnDisconnected handles an unexpected loss of the underlying connection.
// Losing a connection is fatal for these tools: there is no reconnect
// logic, so the process logs the failure and exits 1 rather than hanging
// on a container that will never call Done.
func (h *LinkHandler) OnDisconnected(c *wireamqp.Container, ev wireamqp.Event) {
	h.log.Warning("connection lost")
	os.Exit(1)
}
