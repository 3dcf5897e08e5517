package client

import (
	"bytes"
	"testing"
	"time"

	"github.com/ManishShukla27/qtools/internal/broker"
	"github.com/ManishShukla27/qtools/internal/wireamqp"
	tdd "github.com/stretchr/testify/assert"
	xlog "go.bryk.io/pkg/log"
)

func TestReceiveHandlerStopsAtMax(t *testing.T) {
	log := xlog.Discard()
	const addr = "127.0.0.1:18905"

	brokerContainer := wireamqp.NewContainer(broker.NewHandler(log), log)
	tdd.NoError(t, brokerContainer.Listen(addr))
	go brokerContainer.Run()
	defer brokerContainer.Stop()

	var out bytes.Buffer
	recvHandler := NewReceiveHandler("receiver", ReceiveOptions{
		Max:      2,
		Output:   &out,
		NoPrefix: true,
	}, log)
	recvContainer := wireamqp.NewContainer(recvHandler, log)
	go recvContainer.Run()
	defer recvContainer.Stop()

	tdd.NoError(t, recvHandler.Connect(recvContainer, []string{"//" + addr + "/q0"}))

	producerHandler := &wireamqp.BaseHandler{}
	producerContainer := wireamqp.NewContainer(producerHandler, log)
	go producerContainer.Run()
	defer producerContainer.Stop()

	conn, err := producerContainer.Dial(addr, "producer")
	tdd.NoError(t, err)
	producer, err := producerContainer.AttachLink(conn, "q0-producer", wireamqp.RoleSender, wireamqp.Terminus{}, wireamqp.Terminus{Address: "q0"})
	tdd.NoError(t, err)
	producerContainer.Activate(conn)

	time.Sleep(20 * time.Millisecond) // allow the broker's producer credit grant to arrive
	tdd.NoError(t, producerContainer.Send(producer, wireamqp.Message{Body: []byte("one")}))
	tdd.NoError(t, producerContainer.Send(producer, wireamqp.Message{Body: []byte("two")}))

	select {
	case <-recvContainer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for receive client to close")
	}

	tdd.Equal(t, "one\ntwo\n", out.String())
}
