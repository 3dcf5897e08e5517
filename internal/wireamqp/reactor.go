package wireamqp

import (
	"context"
	"net"
	"sync"

	"go.bryk.io/pkg/errors"
	xlog "go.bryk.io/pkg/log"
)

// EventType tags the variants a Handler can observe. This mirrors the
// source implementation's named-event dispatch, made explicit here as a
// closed set of Go constants instead of a string lookup.
type EventType int

// Event kinds delivered to a Handler. All of them run on the
// Container's single reactor goroutine.
const (
	EventLinkOpening EventType = iota
	EventSendable
	EventMessage
	EventLinkClosing
	EventConnectionClosing
	EventDisconnected
	EventInput
	EventSettled
)

// Event carries the state a Handler needs to react to one occurrence.
// Only the fields relevant to Type are populated.
type Event struct {
	Type    EventType
	Conn    *Connection
	Link    *Link
	Message Message
	Input   interface{} // payload for EventInput, set via Container.Inject
}

// Handler reacts to reactor events. Implementations normally embed
// BaseHandler and override only the hooks they need, the way the
// broker and client role handlers in this module do.
type Handler interface {
	OnLinkOpening(c *Container, ev Event)
	OnSendable(c *Container, ev Event)
	OnMessage(c *Container, ev Event)
	OnLinkClosing(c *Container, ev Event)
	OnConnectionClosing(c *Container, ev Event)
	OnDisconnected(c *Container, ev Event)
	OnInput(c *Container, ev Event)
	OnSettled(c *Container, ev Event)
}

// BaseHandler implements Handler with no-op methods so embedders only
// need to override the events they care about.
type BaseHandler struct{}

// OnLinkOpening is a no-op.
func (BaseHandler) OnLinkOpening(*Container, Event) {}

// OnSendable is a no-op.
func (BaseHandler) OnSendable(*Container, Event) {}

// OnMessage is a no-op.
func (BaseHandler) OnMessage(*Container, Event) {}

// OnLinkClosing is a no-op.
func (BaseHandler) OnLinkClosing(*Container, Event) {}

// OnConnectionClosing is a no-op.
func (BaseHandler) OnConnectionClosing(*Container, Event) {}

// OnDisconnected is a no-op.
func (BaseHandler) OnDisconnected(*Container, Event) {}

// OnInput is a no-op.
func (BaseHandler) OnInput(*Container, Event) {}

// OnSettled is a no-op.
func (BaseHandler) OnSettled(*Container, Event) {}

// internal event kinds used to funnel raw wire frames and socket
// failures through the same channel as public events, without exposing
// them to Handler implementations.
type rawKind int

const (
	rawFrame rawKind = iota
	rawDisconnect
)

type rawEvent struct {
	kind rawKind
	conn *Connection
	frm  *decodedFrame
}

// Container is a single-reactor-goroutine AMQP endpoint: it owns every
// Connection/Session/Link it creates or accepts, and is the only
// component allowed to mutate their state once Run is underway.
type Container struct {
	// ContainerID identifies this endpoint to peers that connect to it
	// via Listen/acceptConn. Dial takes its container-id as an explicit
	// argument instead, since a single Container may open connections
	// under different identities.
	ContainerID string

	log     xlog.Logger
	handler Handler

	raw   chan rawEvent
	input chan Event

	ctx  context.Context
	halt context.CancelFunc
	wg   sync.WaitGroup

	mu    sync.Mutex
	conns map[*Connection]bool
}

// NewContainer returns a reactor bound to the given handler.
func NewContainer(handler Handler, log xlog.Logger) *Container {
	ctx, halt := context.WithCancel(context.Background())
	return &Container{
		handler: handler,
		log:     log,
		raw:     make(chan rawEvent, 16),
		input:   make(chan Event, 16),
		ctx:     ctx,
		halt:    halt,
		conns:   make(map[*Connection]bool),
	}
}

// Stop halts the reactor loop and closes every tracked connection.
func (c *Container) Stop() {
	c.mu.Lock()
	conns := make([]*Connection, 0, len(c.conns))
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
	c.halt()
}

// Done reports when the reactor has stopped.
func (c *Container) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Inject enqueues an application-level input event without the caller
// touching any connection/session/link state directly. This is the
// event-injector analog used by the send/request feeder goroutines.
func (c *Container) Inject(payload interface{}) {
	select {
	case c.input <- Event{Type: EventInput, Input: payload}:
	case <-c.ctx.Done():
	}
}

// Dial connects to addr, performs the SASL-ANONYMOUS handshake and the
// Open/Begin exchange, and returns a ready Connection. This runs
// synchronously on the caller's goroutine; reading the connection passes
// to a dedicated reader goroutine only once Activate is called.
func (c *Container) Dial(addr, containerID string) (*Connection, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	if err := clientSASLHandshake(nc); err != nil {
		_ = nc.Close()
		return nil, errors.Wrap(err, "sasl handshake")
	}
	conn := newConnection(nc, containerID)
	if err := writePerformative(nc, 0, Open{ContainerID: containerID}); err != nil {
		_ = nc.Close()
		return nil, errors.Wrap(err, "send open")
	}
	df, err := readPerformative(nc)
	if err != nil || df.Name != "open" {
		_ = nc.Close()
		return nil, errors.Wrap(ErrMalformed, "expected open")
	}
	conn.RemoteContainerID = fieldString(df.Fields, "container_id")

	if err := writePerformative(nc, 0, Begin{}); err != nil {
		_ = nc.Close()
		return nil, errors.Wrap(err, "send begin")
	}
	df, err = readPerformative(nc)
	if err != nil || df.Name != "begin" {
		_ = nc.Close()
		return nil, errors.Wrap(ErrMalformed, "expected begin")
	}
	conn.Session(0)
	conn.setState(StateLocalActive)
	return conn, nil
}

// Activate hands a connection over to the reactor once its bootstrap
// phase (Dial plus any AttachLink calls) is complete: a dedicated reader
// goroutine starts decoding frames and the reactor becomes the only code
// path that touches the connection's state from then on.
func (c *Container) Activate(conn *Connection) {
	c.track(conn)
}

// AttachLink opens a link of the given role on conn, blocking until the
// remote peer echoes the attach (possibly with a broker-assigned dynamic
// address filled in). Frames that arrive interleaved with that echo are
// queued and replayed once the reactor takes over the connection.
func (c *Container) AttachLink(conn *Connection, name string, role Role, source, target Terminus) (*Link, error) {
	sess := conn.Session(0)
	handle := sess.nextLocalHandle()
	link := &Link{Name: name, Handle: handle, Role: role, Source: source, Target: target, Session: sess}
	sess.addLink(link)

	attach := Attach{Name: name, Handle: handle, Role: role, Source: source, Target: target}
	if err := writePerformative(conn.netConn, sess.Channel, attach); err != nil {
		return nil, errors.Wrap(err, "send attach")
	}

	for {
		df, err := readPerformative(conn.netConn)
		if err != nil {
			return nil, errors.Wrap(err, "read attach echo")
		}
		if df.Name == "attach" && fieldUint32(df.Fields, "handle") == handle {
			echoed := decodeAttach(df.Fields)
			link.Source = echoed.Source
			link.Target = echoed.Target
			link.setState(StateRemoteActive)
			return link, nil
		}
		conn.queueBootstrapFrame(df)
	}
}

// GrantCredit sends a Flow performative granting credit units to the
// remote end of link. Called by whichever side is acting as the link's
// receiver: ReceiveHandler/RequestHandler grant credit to the broker's
// consumer link, the broker grants credit to a client's producer link.
func (c *Container) GrantCredit(link *Link, credit uint32) error {
	sess := link.Session
	return writePerformative(sess.Conn.netConn, sess.Channel, Flow{Handle: link.Handle, LinkCredit: credit})
}

// Send transmits msg over link, consuming one unit of credit. Returns
// errNoCredit without touching the wire if the link has none.
func (c *Container) Send(link *Link, msg Message) error {
	if !link.consumeCredit() {
		return errNoCredit
	}
	sess := link.Session
	id := sess.Conn.nextDeliveryID()
	t := Transfer{Handle: link.Handle, DeliveryID: id, DeliveryTag: msg.DeliveryTag, Message: msg}
	return writePerformative(sess.Conn.netConn, sess.Channel, t)
}

// Detach closes a single link.
func (c *Container) Detach(link *Link) error {
	sess := link.Session
	sess.removeLink(link.Handle)
	return writePerformative(sess.Conn.netConn, sess.Channel, Detach{Handle: link.Handle})
}

// track registers conn with the container and starts its reader
// goroutine, transferring ownership of further reads to the reactor.
func (c *Container) track(conn *Connection) {
	c.mu.Lock()
	c.conns[conn] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)
}

func (c *Container) untrack(conn *Connection) {
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
}

func (c *Container) readLoop(conn *Connection) {
	defer c.wg.Done()
	for _, df := range conn.drainBootstrapFrames() {
		select {
		case c.raw <- rawEvent{kind: rawFrame, conn: conn, frm: df}:
		case <-c.ctx.Done():
			return
		}
	}
	for {
		df, err := readPerformative(conn.netConn)
		if err != nil {
			select {
			case c.raw <- rawEvent{kind: rawDisconnect, conn: conn}:
			case <-c.ctx.Done():
			}
			return
		}
		select {
		case c.raw <- rawEvent{kind: rawFrame, conn: conn, frm: df}:
		case <-c.ctx.Done():
			return
		}
	}
}

// Listen accepts AMQP connections on addr, performing the server side of
// the handshake for each and tracking them with the reactor. It returns
// once the listener is established; an accept failure after that point
// (including the listener closing on Stop) ends the accept loop without
// being returned or logged.
func (c *Container) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		go func() {
			<-c.ctx.Done()
			_ = ln.Close()
		}()
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go c.acceptConn(nc)
		}
	}()
	return nil
}

func (c *Container) acceptConn(nc net.Conn) {
	if err := serverSASLHandshake(nc); err != nil {
		c.log.WithField("error", err.Error()).Warning("sasl handshake failed")
		_ = nc.Close()
		return
	}
	conn := newConnection(nc, "")
	df, err := readPerformative(nc)
	if err != nil || df.Name != "open" {
		_ = nc.Close()
		return
	}
	conn.RemoteContainerID = fieldString(df.Fields, "container_id")
	if err := writePerformative(nc, 0, Open{ContainerID: c.ContainerID}); err != nil {
		_ = nc.Close()
		return
	}

	df, err = readPerformative(nc)
	if err != nil || df.Name != "begin" {
		_ = nc.Close()
		return
	}
	if err := writePerformative(nc, df.Channel, Begin{}); err != nil {
		_ = nc.Close()
		return
	}
	conn.Session(df.Channel)
	conn.setState(StateRemoteActive)

	c.track(conn)
}

// Run drives the reactor loop until the container is stopped. It is the
// only goroutine that ever calls into Handler, so every hook is free to
// mutate connection/session/link state without additional locking.
func (c *Container) Run() {
	for {
		select {
		case <-c.ctx.Done():
			c.wg.Wait()
			return
		case ev := <-c.input:
			c.handler.OnInput(c, ev)
		case re := <-c.raw:
			c.handleRaw(re)
		}
	}
}

func (c *Container) handleRaw(re rawEvent) {
	switch re.kind {
	case rawDisconnect:
		c.untrack(re.conn)
		re.conn.setState(StateClosed)
		c.handler.OnDisconnected(c, Event{Type: EventDisconnected, Conn: re.conn})
	case rawFrame:
		c.handleFrame(re.conn, re.frm)
	}
}

func (c *Container) handleFrame(conn *Connection, df *decodedFrame) {
	sess := conn.Session(df.Channel)
	switch df.Name {
	case "attach":
		c.handleAttach(conn, sess, df)
	case "flow":
		c.handleFlow(conn, sess, df)
	case "transfer":
		c.handleTransfer(conn, sess, df)
	case "detach":
		c.handleDetach(conn, sess, df)
	case "disposition":
		c.handleDisposition(conn, sess, df)
	case "end", "close":
		c.handler.OnConnectionClosing(c, Event{Type: EventConnectionClosing, Conn: conn})
	}
}

func (c *Container) handleAttach(conn *Connection, sess *Session, df *decodedFrame) {
	a := decodeAttach(df.Fields)
	if _, exists := sess.Link(a.Handle); exists {
		// echo of a locally-initiated attach arriving after bootstrap
		// completed; nothing further to do.
		return
	}
	link := &Link{Name: a.Name, Handle: a.Handle, Role: a.Role.Complement(), Source: a.Source, Target: a.Target, Session: sess}
	sess.addLink(link)
	link.setState(StateRemoteActive)

	c.handler.OnLinkOpening(c, Event{Type: EventLinkOpening, Conn: conn, Link: link})

	echo := Attach{Name: link.Name, Handle: link.Handle, Role: a.Role, Source: link.Source, Target: link.Target}
	if err := writePerformative(conn.netConn, sess.Channel, echo); err != nil {
		c.log.WithField("error", err.Error()).Warning("failed to echo attach")
	}
}

func (c *Container) handleFlow(conn *Connection, sess *Session, df *decodedFrame) {
	f := decodeFlow(df.Fields)
	link, ok := sess.Link(f.Handle)
	if !ok {
		return
	}
	link.SetCredit(f.LinkCredit)
	c.handler.OnSendable(c, Event{Type: EventSendable, Conn: conn, Link: link})
}

func (c *Container) handleTransfer(conn *Connection, sess *Session, df *decodedFrame) {
	t := decodeTransfer(df.Fields)
	link, ok := sess.Link(t.Handle)
	if !ok {
		return
	}
	c.handler.OnMessage(c, Event{Type: EventMessage, Conn: conn, Link: link, Message: t.Message})

	// Every link in this protocol keeps the same handle number on both
	// ends, so settling by Handle alone is enough to tell the original
	// sender which delivery this acknowledges.
	disp := Disposition{Handle: t.Handle, Settled: true}
	if err := writePerformative(conn.netConn, sess.Channel, disp); err != nil {
		c.log.WithField("error", err.Error()).Warning("failed to send disposition")
	}
}

func (c *Container) handleDisposition(conn *Connection, sess *Session, df *decodedFrame) {
	d := decodeDisposition(df.Fields)
	link, ok := sess.Link(d.Handle)
	if !ok {
		return
	}
	c.handler.OnSettled(c, Event{Type: EventSettled, Conn: conn, Link: link})
}

func (c *Container) handleDetach(conn *Connection, sess *Session, df *decodedFrame) {
	d := decodeDetach(df.Fields)
	link, ok := sess.Link(d.Handle)
	if !ok {
		return
	}
	c.handler.OnLinkClosing(c, Event{Type: EventLinkClosing, Conn: conn, Link: link})
	sess.removeLink(d.Handle)
}
