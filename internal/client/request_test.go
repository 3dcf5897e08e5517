package client

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ManishShukla27/qtools/internal/broker"
	"github.com/ManishShukla27/qtools/internal/wireamqp"
	tdd "github.com/stretchr/testify/assert"
	xlog "go.bryk.io/pkg/log"
)

// responder is a minimal test-only echo service: it consumes from one
// queue and replies with the same body to whatever reply-to address
// arrives on each delivery, via a producer link it pre-attaches once the
// client under test's dynamic reply address is known.
type responder struct {
	wireamqp.BaseHandler
	producer *wireamqp.Link
}

func (r *responder) OnMessage(c *wireamqp.Container, ev wireamqp.Event) {
	_ = c.Send(r.producer, wireamqp.Message{Body: ev.Message.Body})
}

func TestRequestHandlerRoundTrip(t *testing.T) {
	log := xlog.Discard()
	const addr = "127.0.0.1:18903"

	brokerContainer := wireamqp.NewContainer(broker.NewHandler(log), log)
	tdd.NoError(t, brokerContainer.Listen(addr))
	go brokerContainer.Run()
	defer brokerContainer.Stop()

	var out bytes.Buffer
	reqHandler := NewRequestHandler("requester", RequestOptions{
		Requests: []string{"abc", "xyz"},
		Input:    strings.NewReader(""),
		Output:   &out,
	}, log)
	reqContainer := wireamqp.NewContainer(reqHandler, log)
	go reqContainer.Run()
	defer reqContainer.Stop()

	tdd.NoError(t, reqHandler.Connect(reqContainer, []string{"//" + addr + "/svc"}))
	go reqHandler.Feed(reqContainer)

	replyAddress := reqHandler.repliesBySender[reqHandler.senders[0]].Source.Address
	tdd.NotEmpty(t, replyAddress)

	r := &responder{}
	respContainer := wireamqp.NewContainer(r, log)
	go respContainer.Run()
	defer respContainer.Stop()

	respConn, err := respContainer.Dial(addr, "responder")
	tdd.NoError(t, err)
	consumer, err := respContainer.AttachLink(respConn, "svc-consumer", wireamqp.RoleReceiver, wireamqp.Terminus{Address: "svc"}, wireamqp.Terminus{})
	tdd.NoError(t, err)
	producer, err := respContainer.AttachLink(respConn, "reply-producer", wireamqp.RoleSender, wireamqp.Terminus{}, wireamqp.Terminus{Address: replyAddress})
	tdd.NoError(t, err)
	r.producer = producer
	// Grant consumer credit only once the producer is attached, so the
	// broker's producer credit grant reaches the responder ahead of the
	// forwarded requests it has to answer.
	tdd.NoError(t, respContainer.GrantCredit(consumer, 8))
	respContainer.Activate(respConn)

	select {
	case <-reqContainer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request client to close")
	}

	tdd.Equal(t, "abc\nxyz\n", out.String())
	tdd.Equal(t, 2, reqHandler.sentRequests)
	tdd.Equal(t, 2, reqHandler.receivedResponses)
}
