package wireamqp

import (
	"sync"

	"go.bryk.io/pkg/errors"
)

// State tracks the lifecycle of a connection, session or link as
// observed by the reactor.
type State int

// Endpoint lifecycle states.
const (
	StateUnattached State = iota
	StateRemoteActive
	StateLocalActive
	StateClosed
)

// Link is one attached link within a session. Role is always expressed
// from this endpoint's own point of view: a RoleSender link is the
// source of messages flowing over it, a RoleReceiver link is the sink.
//
// A link created locally (AttachLink, the client path) declares its own
// Role directly; a link created from an inbound Attach (the broker path)
// is given the complement of the remote peer's declared role, since the
// two ends of a link always play opposite parts.
type Link struct {
	Name    string
	Handle  uint32
	Role    Role
	Source  Terminus
	Target  Terminus
	Session *Session

	// UserData lets an owning broker/client attach its own state to a
	// link without this package knowing about it — the broker uses it
	// to hold a direct back-reference to the link's Queue, avoiding the
	// address-reparsing defect described in the design notes.
	UserData interface{}

	mu     sync.Mutex
	credit uint32
	state  State
}

// Credit returns the link-credit currently available to a sender link.
func (l *Link) Credit() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit
}

// SetCredit replaces the link's current credit value; called when a
// Flow performative is processed.
func (l *Link) SetCredit(v uint32) {
	l.mu.Lock()
	l.credit = v
	l.mu.Unlock()
}

// State returns the link's current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// consumeCredit decrements the link's credit by one if any is available,
// reporting whether a unit was consumed.
func (l *Link) consumeCredit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.credit == 0 {
		return false
	}
	l.credit--
	return true
}

// Complement returns the opposite link role.
func (r Role) Complement() Role {
	if r == RoleSender {
		return RoleReceiver
	}
	return RoleSender
}

// errNoCredit is returned by Send when the link has no credit left; the
// caller (Queue.Forward) treats this as "stop forwarding", not a fatal
// protocol error.
var errNoCredit = errors.New("link has no credit")
