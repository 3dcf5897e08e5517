package broker

import (
	"testing"

	"github.com/ManishShukla27/qtools/internal/wireamqp"
	tdd "github.com/stretchr/testify/assert"
	xlog "go.bryk.io/pkg/log"
)

func newTestConsumer(t *testing.T, credit uint32) *wireamqp.Link {
	t.Helper()
	link := &wireamqp.Link{Role: wireamqp.RoleSender}
	link.SetCredit(credit)
	return link
}

func TestQueueAddConsumerRejectsDuplicates(t *testing.T) {
	q := newQueue("q0", xlog.Discard())
	link := newTestConsumer(t, 0)
	q.AddConsumer(link)
	tdd.Panics(t, func() { q.AddConsumer(link) })
}

func TestQueueRemoveConsumerIsIdempotent(t *testing.T) {
	q := newQueue("q0", xlog.Discard())
	link := newTestConsumer(t, 0)
	tdd.NotPanics(t, func() { q.RemoveConsumer(link) })
	q.AddConsumer(link)
	q.RemoveConsumer(link)
	tdd.NotPanics(t, func() { q.RemoveConsumer(link) })
}

func TestQueueStoreMessageFIFOOrder(t *testing.T) {
	q := newQueue("q0", xlog.Discard())
	q.StoreMessage(wireamqp.Message{Body: []byte("a")})
	q.StoreMessage(wireamqp.Message{Body: []byte("b")})
	tdd.Equal(t, 2, q.messages.Len())
	tdd.Equal(t, "a", string(q.messages.Front().Value.(wireamqp.Message).Body))
}
