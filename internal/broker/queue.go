// Package broker implements the queue registry and link-lifecycle
// handler at the heart of qbroker: a FIFO message store per address,
// competing-consumer delivery, and the reactor hooks that wire link
// attach/detach/message/credit events into that store.
package broker

import (
	"container/list"
	"sync"

	"github.com/ManishShukla27/qtools/internal/metrics"
	"github.com/ManishShukla27/qtools/internal/wireamqp"
	xlog "go.bryk.io/pkg/log"
)

// Queue is the FIFO message buffer and ordered consumer set for a single
// address. A queue is materialised on first reference and lives until
// the broker process exits; it is never explicitly deleted.
type Queue struct {
	Address string

	log       xlog.Logger
	mu        sync.Mutex
	messages  *list.List
	consumers []*wireamqp.Link
}

func newQueue(address string, log xlog.Logger) *Queue {
	return &Queue{Address: address, log: log, messages: list.New()}
}

// AddConsumer registers link as a consumer. Preconditions: link must be
// a sender (the broker's source for messages) and must not already be
// registered; both are asserted, matching the source's invariant that
// adding the same consumer twice is a programmer error, not a recoverable
// condition.
func (q *Queue) AddConsumer(link *wireamqp.Link) {
	if link.Role != wireamqp.RoleSender {
		panic("broker: only sender links can be queue consumers")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.consumers {
		if c == link {
			panic("broker: consumer already registered")
		}
	}
	q.consumers = append(q.consumers, link)
	metrics.ActiveConsumers.WithLabelValues(q.Address).Set(float64(len(q.consumers)))
}

// RemoveConsumer removes link from the consumer list. A no-op if link is
// not present, so detach handling stays idempotent.
func (q *Queue) RemoveConsumer(link *wireamqp.Link) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, c := range q.consumers {
		if c == link {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			break
		}
	}
	metrics.ActiveConsumers.WithLabelValues(q.Address).Set(float64(len(q.consumers)))
}

// StoreMessage appends m to the tail of the FIFO.
func (q *Queue) StoreMessage(m wireamqp.Message) {
	q.mu.Lock()
	q.messages.PushBack(m)
	depth := q.messages.Len()
	q.mu.Unlock()
	metrics.MessagesStored.WithLabelValues(q.Address).Inc()
	metrics.QueueDepth.WithLabelValues(q.Address).Set(float64(depth))
}

// Forward drains the FIFO onto link while it has credit and messages
// remain. It is safe to call redundantly: once either side is exhausted
// it simply stops, so callers never need to check state before invoking
// it on every arrival and every credit grant.
func (q *Queue) Forward(c *wireamqp.Container, link *wireamqp.Link) {
	for link.Credit() > 0 {
		q.mu.Lock()
		front := q.messages.Front()
		if front == nil {
			q.mu.Unlock()
			return
		}
		q.messages.Remove(front)
		depth := q.messages.Len()
		q.mu.Unlock()
		metrics.QueueDepth.WithLabelValues(q.Address).Set(float64(depth))

		msg := front.Value.(wireamqp.Message)
		if err := c.Send(link, msg); err != nil {
			// Credit() was positive a moment ago but Send found none;
			// put the message back at the head and stop this pass.
			q.mu.Lock()
			q.messages.PushFront(msg)
			q.mu.Unlock()
			return
		}
		metrics.MessagesForwarded.WithLabelValues(q.Address).Inc()
	}
}

// ForwardAll runs Forward against every currently registered consumer,
// in subscription order. Because Forward only pops what a given
// consumer has credit for, the net effect across consumers is
// competing-consumer delivery, not fan-out: each message goes to
// whichever credited consumer reaches it first.
func (q *Queue) ForwardAll(c *wireamqp.Container) {
	q.mu.Lock()
	consumers := append([]*wireamqp.Link(nil), q.consumers...)
	q.mu.Unlock()
	for _, consumer := range consumers {
		q.Forward(c, consumer)
	}
}
