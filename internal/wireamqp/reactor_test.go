package wireamqp

import (
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
	xlog "go.bryk.io/pkg/log"
)

// echoHandler is a minimal broker-side handler used only to exercise the
// attach/flow/transfer path end to end: every producer link it sees is
// immediately granted credit, and every message received on one link is
// forwarded verbatim to every consumer link currently attached.
type echoHandler struct {
	BaseHandler
	consumers []*Link
}

func (h *echoHandler) OnLinkOpening(c *Container, ev Event) {
	if ev.Link.Role == RoleSender {
		h.consumers = append(h.consumers, ev.Link)
		return
	}
	_ = c.GrantCredit(ev.Link, 64)
}

func (h *echoHandler) OnSendable(c *Container, ev Event) {}

func (h *echoHandler) OnMessage(c *Container, ev Event) {
	for _, consumer := range h.consumers {
		_ = c.Send(consumer, ev.Message)
	}
}

func TestReactorAttachAndTransfer(t *testing.T) {
	log := xlog.Discard()

	const addr = "127.0.0.1:18899"
	server := &echoHandler{}
	serverContainer := NewContainer(server, log)
	tdd.NoError(t, serverContainer.Listen(addr))
	go serverContainer.Run()
	defer serverContainer.Stop()

	received := make(chan Message, 1)
	client := &recordingHandler{out: received}
	clientContainer := NewContainer(client, log)
	go clientContainer.Run()
	defer clientContainer.Stop()

	conn, err := clientContainer.Dial(addr, "test-client")
	tdd.NoError(t, err)

	consumer, err := clientContainer.AttachLink(conn, "consumer", RoleReceiver, Terminus{Address: "q0"}, Terminus{})
	tdd.NoError(t, err)
	tdd.NoError(t, clientContainer.GrantCredit(consumer, 8))

	producer, err := clientContainer.AttachLink(conn, "producer", RoleSender, Terminus{}, Terminus{Address: "q0"})
	tdd.NoError(t, err)
	clientContainer.Activate(conn)

	time.Sleep(20 * time.Millisecond) // allow the producer's credit grant to arrive
	tdd.NoError(t, clientContainer.Send(producer, Message{Body: []byte("hello")}))

	select {
	case msg := <-received:
		tdd.Equal(t, "hello", string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

type recordingHandler struct {
	BaseHandler
	out chan Message
}

func (h *recordingHandler) OnMessage(c *Container, ev Event) {
	h.out <- ev.Message
}
