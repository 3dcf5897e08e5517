package client

import (
	"container/list"
	"sync"

	"github.com/ManishShukla27/qtools/internal/wireamqp"
)

// pendingQueue is the feeder-to-reactor handoff used by send and request:
// the feeder pushes onto the head, the dispatcher pops from the tail,
// which preserves input order across the two goroutines. A nil
// *wireamqp.Message is the end-of-input sentinel.
type pendingQueue struct {
	mu sync.Mutex
	l  *list.List
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{l: list.New()}
}

// push appends msg at the head, to be read in the order it was pushed.
func (q *pendingQueue) push(msg *wireamqp.Message) {
	q.mu.Lock()
	q.l.PushFront(msg)
	q.mu.Unlock()
}

// pop removes and returns the tail item. ok is false if the queue is
// currently empty.
func (q *pendingQueue) pop() (msg *wireamqp.Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	back := q.l.Back()
	if back == nil {
		return nil, false
	}
	q.l.Remove(back)
	return back.Value.(*wireamqp.Message), true
}

// requeue puts msg back at the tail, the same end it was popped from, so
// the next pop sees it again before anything pushed since.
func (q *pendingQueue) requeue(msg *wireamqp.Message) {
	q.mu.Lock()
	q.l.PushBack(msg)
	q.mu.Unlock()
}
