package client

import (
	"strings"
	"testing"
	"time"

	"github.com/ManishShukla27/qtools/internal/broker"
	"github.com/ManishShukla27/qtools/internal/wireamqp"
	tdd "github.com/stretchr/testify/assert"
	xlog "go.bryk.io/pkg/log"
)

func TestSendHandlerDeliversAndSettles(t *testing.T) {
	log := xlog.Discard()
	const addr = "127.0.0.1:18904"

	brokerContainer := wireamqp.NewContainer(broker.NewHandler(log), log)
	tdd.NoError(t, brokerContainer.Listen(addr))
	go brokerContainer.Run()
	defer brokerContainer.Stop()

	sendHandler := NewSendHandler("sender", SendOptions{
		Literals: []string{"hello", "world"},
		Input:    strings.NewReader(""),
	}, log)
	sendContainer := wireamqp.NewContainer(sendHandler, log)
	go sendContainer.Run()
	defer sendContainer.Stop()

	tdd.NoError(t, sendHandler.Connect(sendContainer, []string{"//" + addr + "/q0"}))
	go sendHandler.Feed(sendContainer)

	// A plain consumer drains q0. The broker settles each message on
	// receipt, so settlement does not wait for it.
	consumerHandler := &recordingHandler{}
	consumerContainer := wireamqp.NewContainer(consumerHandler, log)
	go consumerContainer.Run()
	defer consumerContainer.Stop()

	conn, err := consumerContainer.Dial(addr, "drain")
	tdd.NoError(t, err)
	consumer, err := consumerContainer.AttachLink(conn, "q0-consumer", wireamqp.RoleReceiver, wireamqp.Terminus{Address: "q0"}, wireamqp.Terminus{})
	tdd.NoError(t, err)
	tdd.NoError(t, consumerContainer.GrantCredit(consumer, 8))
	consumerContainer.Activate(conn)

	select {
	case <-sendContainer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for send client to close")
	}

	tdd.Equal(t, 2, sendHandler.sent)
	tdd.Equal(t, 2, sendHandler.settled)
}

// recordingHandler is a BaseHandler that does nothing with deliveries; it
// only needs to exist on the connection so the broker has a consumer to
// forward to.
type recordingHandler struct {
	wireamqp.BaseHandler
}
