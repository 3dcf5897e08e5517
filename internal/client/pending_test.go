package client

import (
	"testing"

	"github.com/ManishShukla27/qtools/internal/wireamqp"
	tdd "github.com/stretchr/testify/assert"
)

func TestPendingQueueFIFOOrder(t *testing.T) {
	q := newPendingQueue()
	q.push(&wireamqp.Message{Body: []byte("a")})
	q.push(&wireamqp.Message{Body: []byte("b")})

	first, ok := q.pop()
	tdd.True(t, ok)
	tdd.Equal(t, "a", string(first.Body))

	second, ok := q.pop()
	tdd.True(t, ok)
	tdd.Equal(t, "b", string(second.Body))

	_, ok = q.pop()
	tdd.False(t, ok)
}

func TestPendingQueueSentinelAndRequeue(t *testing.T) {
	q := newPendingQueue()
	q.push(&wireamqp.Message{Body: []byte("a")})
	q.push(nil)

	msg, ok := q.pop()
	tdd.True(t, ok)
	tdd.NotNil(t, msg)

	sentinel, ok := q.pop()
	tdd.True(t, ok)
	tdd.Nil(t, sentinel)

	q.requeue(msg)
	got, ok := q.pop()
	tdd.True(t, ok)
	tdd.Same(t, msg, got)
}
