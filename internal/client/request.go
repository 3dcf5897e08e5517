package client

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/ManishShukla27/qtools/internal/wireamqp"
	"go.bryk.io/pkg/errors"
	xlog "go.bryk.io/pkg/log"
)

// requestReplyCreditWindow is the credit granted to a request client's
// dynamic reply-to receiver at attach time, re-granted in full after every
// response received.
const requestReplyCreditWindow = 32

// RequestOptions configures a RequestHandler.
type RequestOptions struct {
	// Requests are contents supplied directly (the -r flag), enqueued
	// ahead of anything the feeder reads from Input.
	Requests []string

	// Input is read line by line by the feeder goroutine, one request
	// body per line.
	Input io.Reader

	Output  io.Writer
	Verbose bool
}

// RequestHandler sends requests on one or more addresses and prints each
// corresponding reply, pairing every sender with a dynamically-addressed
// reply-to receiver opened on the same connection.
type RequestHandler struct {
	LinkHandler

	opts RequestOptions
	log  xlog.Logger

	pending *pendingQueue

	mu                sync.Mutex
	senders           []*wireamqp.Link
	repliesBySender   map[*wireamqp.Link]*wireamqp.Link
	sentRequests      int
	settledRequests   int
	receivedResponses int
	stopRequested     bool
}

// NewRequestHandler returns a handler ready to have Connect called on it.
// As with SendHandler, literal requests are queued immediately, followed
// by a sentinel if there were any.
func NewRequestHandler(containerID string, opts RequestOptions, log xlog.Logger) *RequestHandler {
	h := &RequestHandler{
		opts:            opts,
		log:             log,
		pending:         newPendingQueue(),
		repliesBySender: make(map[*wireamqp.Link]*wireamqp.Link),
	}
	h.LinkHandler = newLinkHandler(h, containerID, log)

	for _, content := range opts.Requests {
		h.pending.push(&wireamqp.Message{Body: []byte(content)})
	}
	if len(opts.Requests) > 0 {
		h.pending.push(nil)
	}
	return h
}

// OpenLinks attaches a sender for path plus a dynamically-addressed
// receiver on the same connection to collect its responses.
func (h *RequestHandler) OpenLinks(c *wireamqp.Container, conn *wireamqp.Connection, path string) ([]*wireamqp.Link, error) {
	sender, err := c.AttachLink(conn, "request-"+path, wireamqp.RoleSender, wireamqp.Terminus{}, wireamqp.Terminus{Address: path})
	if err != nil {
		return nil, errors.Wrap(err, "attach sender")
	}
	receiver, err := c.AttachLink(conn, "reply-"+path, wireamqp.RoleReceiver, wireamqp.Terminus{Dynamic: true}, wireamqp.Terminus{})
	if err != nil {
		return nil, errors.Wrap(err, "attach reply receiver")
	}
	if err := c.GrantCredit(receiver, requestReplyCreditWindow); err != nil {
		return nil, errors.Wrap(err, "grant reply credit")
	}

	h.mu.Lock()
	h.senders = append(h.senders, sender)
	h.repliesBySender[sender] = receiver
	h.mu.Unlock()

	return []*wireamqp.Link{sender, receiver}, nil
}

// Feed reads opts.Input line by line, one request body per line, mirroring
// SendHandler.Feed.
func (h *RequestHandler) Feed(c *wireamqp.Container) {
	<-h.Ready()

	scanner := bufio.NewScanner(h.opts.Input)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		h.pending.push(&wireamqp.Message{Body: []byte(line)})
		c.Inject(wakeup{})
	}
	h.pending.push(nil)
	c.Inject(wakeup{})
}

// OnSendable dispatches using the sender that just became sendable.
func (h *RequestHandler) OnSendable(c *wireamqp.Container, ev wireamqp.Event) {
	h.dispatch(c, ev.Link)
}

// OnInput dispatches without a specific sender, rotating across them.
func (h *RequestHandler) OnInput(c *wireamqp.Container, ev wireamqp.Event) {
	h.dispatch(c, nil)
}

// OnMessage prints an arriving response. Completion is gated on
// sentRequests == receivedResponses, not settlement: the semantic
// completion of a request is its response, not the broker's ack of the
// delivery.
func (h *RequestHandler) OnMessage(c *wireamqp.Container, ev wireamqp.Event) {
	h.mu.Lock()
	h.receivedResponses++
	stop := h.stopRequested && h.sentRequests == h.receivedResponses
	h.mu.Unlock()

	fmt.Fprintf(h.opts.Output, "%s\n", ev.Message.Body)
	if h.opts.Verbose {
		h.log.WithField("container", ev.Conn.RemoteContainerID).Info("received response")
	}
	if err := c.GrantCredit(ev.Link, requestReplyCreditWindow); err != nil {
		h.log.WithField("error", err.Error()).Warning("failed to top up reply credit")
	}

	if stop {
		h.Close(c)
	}
}

// OnSettled counts a settlement. It does not by itself trigger close:
// see OnMessage.
func (h *RequestHandler) OnSettled(c *wireamqp.Container, ev wireamqp.Event) {
	h.mu.Lock()
	h.settledRequests++
	h.mu.Unlock()
}

func (h *RequestHandler) dispatch(c *wireamqp.Container, link *wireamqp.Link) {
	h.mu.Lock()
	if h.stopRequested {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	req, ok := h.pending.pop()
	if !ok {
		return
	}

	if req == nil {
		h.mu.Lock()
		sent, received := h.sentRequests, h.receivedResponses
		if sent == received {
			h.mu.Unlock()
			h.Close(c)
		} else {
			h.stopRequested = true
			h.mu.Unlock()
		}
		return
	}

	sender := link
	if sender == nil {
		sender = h.rotateSender()
		if sender == nil {
			h.pending.requeue(req)
			return
		}
	}
	if sender.Credit() == 0 {
		h.pending.requeue(req)
		return
	}

	h.mu.Lock()
	receiver := h.repliesBySender[sender]
	h.mu.Unlock()

	req.ReplyTo = receiver.Source.Address
	if req.To == "" {
		req.To = sender.Target.Address
	}

	if err := c.Send(sender, *req); err != nil {
		h.pending.requeue(req)
		return
	}

	h.mu.Lock()
	h.sentRequests++
	h.mu.Unlock()

	if h.opts.Verbose {
		h.log.WithFields(xlog.Fields{
			"target":    sender.Target.Address,
			"container": sender.Session.Conn.RemoteContainerID,
		}).Info("sent request")
	}
}

func (h *RequestHandler) rotateSender() *wireamqp.Link {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.senders)
	if n == 0 {
		return nil
	}
	s := h.senders[n-1]
	h.senders = append([]*wireamqp.Link{s}, h.senders[:n-1]...)
	return s
}
