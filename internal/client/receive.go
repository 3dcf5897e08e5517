package client

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ManishShukla27/qtools/internal/wireamqp"
	"go.bryk.io/pkg/errors"
	xlog "go.bryk.io/pkg/log"
)

// receiveCreditWindow is the link-credit granted to a receiver link at
// attach time when no delivery limit was requested; each delivery
// re-grants the full window so it never runs dry.
const receiveCreditWindow = 32

// ReceiveOptions configures a ReceiveHandler.
type ReceiveOptions struct {
	// Max caps the number of deliveries accepted across all addresses.
	// Zero means unlimited.
	Max int

	Output   io.Writer
	JSON     bool
	NoPrefix bool
	Verbose  bool
}

// receiveEnvelope is the shape written to Output under --json: the whole
// message, not just its body.
type receiveEnvelope struct {
	Address       string `json:"address"`
	Body          string `json:"body"`
	ReplyTo       string `json:"reply_to,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ReceiveHandler reads deliveries from one or more addresses and writes
// their bodies to an output sink, one per line.
type ReceiveHandler struct {
	LinkHandler

	opts ReceiveOptions
	log  xlog.Logger

	mu       sync.Mutex
	received int
	done     bool
}

// NewReceiveHandler returns a handler ready to have Connect called on it.
func NewReceiveHandler(containerID string, opts ReceiveOptions, log xlog.Logger) *ReceiveHandler {
	h := &ReceiveHandler{opts: opts, log: log}
	h.LinkHandler = newLinkHandler(h, containerID, log)
	return h
}

// OpenLinks attaches a single receiver link for path and grants it its
// initial credit.
func (h *ReceiveHandler) OpenLinks(c *wireamqp.Container, conn *wireamqp.Connection, path string) ([]*wireamqp.Link, error) {
	link, err := c.AttachLink(conn, "receive-"+path, wireamqp.RoleReceiver, wireamqp.Terminus{Address: path}, wireamqp.Terminus{})
	if err != nil {
		return nil, errors.Wrap(err, "attach receiver")
	}
	window := uint32(receiveCreditWindow)
	if h.opts.Max > 0 {
		window = uint32(h.opts.Max)
	}
	if err := c.GrantCredit(link, window); err != nil {
		return nil, errors.Wrap(err, "grant credit")
	}
	return []*wireamqp.Link{link}, nil
}

// OnMessage writes one delivery's body to the output sink and requests
// close once the requested count has been reached. Deliveries arriving
// after that point are dropped: AMQP may still have some in flight.
func (h *ReceiveHandler) OnMessage(c *wireamqp.Container, ev wireamqp.Event) {
	h.mu.Lock()
	if h.done || (h.opts.Max > 0 && h.received >= h.opts.Max) {
		h.mu.Unlock()
		return
	}
	h.received++
	received := h.received
	h.mu.Unlock()

	h.write(ev)

	if h.opts.Verbose {
		h.log.WithFields(xlog.Fields{
			"address":   ev.Link.Source.Address,
			"container": ev.Conn.RemoteContainerID,
		}).Info("received message")
	}

	if h.opts.Max > 0 && received == h.opts.Max {
		h.mu.Lock()
		h.done = true
		h.mu.Unlock()
		h.Close(c)
		return
	}
	if h.opts.Max == 0 {
		if err := c.GrantCredit(ev.Link, receiveCreditWindow); err != nil {
			h.log.WithField("error", err.Error()).Warning("failed to top up credit")
		}
	}
}

func (h *ReceiveHandler) write(ev wireamqp.Event) {
	if h.opts.JSON {
		enc, err := json.Marshal(receiveEnvelope{
			Address:       ev.Link.Source.Address,
			Body:          string(ev.Message.Body),
			ReplyTo:       ev.Message.ReplyTo,
			CorrelationID: ev.Message.CorrelationID,
		})
		if err != nil {
			h.log.WithField("error", err.Error()).Warning("failed to encode message")
			return
		}
		fmt.Fprintf(h.opts.Output, "%s\n", enc)
		return
	}
	if h.opts.NoPrefix {
		fmt.Fprintf(h.opts.Output, "%s\n", ev.Message.Body)
		return
	}
	fmt.Fprintf(h.opts.Output, "%s: %s\n", ev.Link.Source.Address, ev.Message.Body)
}
