package client

import (
	"bufio"
	"io"
	"sync"

	"github.com/ManishShukla27/qtools/internal/wireamqp"
	xlog "go.bryk.io/pkg/log"
)

// wakeup is the payload sent through Container.Inject to tell the
// reactor "the pending queue may have something for you now"; it carries
// no data of its own.
type wakeup struct{}

// SendOptions configures a SendHandler.
type SendOptions struct {
	// Literals are message bodies supplied directly (the -m flag),
	// enqueued ahead of anything the feeder reads from Input.
	Literals []string

	// Input is read line by line by the feeder goroutine, one message
	// body per line. Defaults to os.Stdin in the cmd/qsend entry point.
	Input io.Reader

	Verbose bool
}

// SendHandler writes messages from stdin/args to one or more addresses,
// round-robining across them when credit allows.
type SendHandler struct {
	LinkHandler

	opts SendOptions
	log  xlog.Logger

	pending *pendingQueue

	mu            sync.Mutex
	senders       []*wireamqp.Link
	sent          int
	settled       int
	stopRequested bool
}

// NewSendHandler returns a handler ready to have Connect called on it.
// Any literal messages supplied via opts.Literals are queued immediately,
// followed by an end-of-input sentinel if there were any — matching the
// upstream behavior of queuing -m arguments before the feeder's own EOF
// sentinel arrives.
func NewSendHandler(containerID string, opts SendOptions, log xlog.Logger) *SendHandler {
	h := &SendHandler{opts: opts, log: log, pending: newPendingQueue()}
	h.LinkHandler = newLinkHandler(h, containerID, log)

	for _, literal := range opts.Literals {
		h.pending.push(&wireamqp.Message{Body: []byte(literal)})
	}
	if len(opts.Literals) > 0 {
		h.pending.push(nil)
	}
	return h
}

// OpenLinks attaches a single sender link for path.
func (h *SendHandler) OpenLinks(c *wireamqp.Container, conn *wireamqp.Connection, path string) ([]*wireamqp.Link, error) {
	link, err := c.AttachLink(conn, "send-"+path, wireamqp.RoleSender, wireamqp.Terminus{}, wireamqp.Terminus{Address: path})
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.senders = append(h.senders, link)
	h.mu.Unlock()
	return []*wireamqp.Link{link}, nil
}

// Feed reads opts.Input line by line, one message body per line, and
// hands each to the reactor via Container.Inject. It blocks until Ready
// fires, so it never races link attachment, and exits once it has
// enqueued the end-of-input sentinel. Callers run it in its own
// goroutine; it terminates with the process if the reactor never drains
// it.
func (h *SendHandler) Feed(c *wireamqp.Container) {
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

// OnSendable dispatches using the link that just became sendable.
func (h *SendHandler) OnSendable(c *wireamqp.Container, ev wireamqp.Event) {
	h.dispatch(c, ev.Link)
}

// OnInput dispatches without a specific link, rotating across senders.
func (h *SendHandler) OnInput(c *wireamqp.Container, ev wireamqp.Event) {
	h.dispatch(c, nil)
}

// OnSettled counts a settlement and closes once every sent message has
// settled and a sentinel has already been seen.
func (h *SendHandler) OnSettled(c *wireamqp.Container, ev wireamqp.Event) {
	h.mu.Lock()
	h.settled++
	stop := h.stopRequested && h.sent == h.settled
	h.mu.Unlock()
	if stop {
		h.Close(c)
	}
}

func (h *SendHandler) dispatch(c *wireamqp.Container, link *wireamqp.Link) {
	h.mu.Lock()
	if h.stopRequested {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	msg, ok := h.pending.pop()
	if !ok {
		return
	}

	if msg == nil {
		h.mu.Lock()
		sent, settled := h.sent, h.settled
		if sent == settled {
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
			h.pending.requeue(msg)
			return
		}
	}
	if sender.Credit() == 0 {
		h.pending.requeue(msg)
		return
	}

	if err := c.Send(sender, *msg); err != nil {
		h.pending.requeue(msg)
		return
	}

	h.mu.Lock()
	h.sent++
	h.mu.Unlock()

	if h.opts.Verbose {
		h.log.WithFields(xlog.Fields{
			"target":    sender.Target.Address,
			"container": sender.Session.Conn.RemoteContainerID,
		}).Info("sent message")
	}
}

// rotateSender pops the last sender and pushes it back to the front,
// round-robining across every attached address.
func (h *SendHandler) rotateSender() *wireamqp.Link {
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
