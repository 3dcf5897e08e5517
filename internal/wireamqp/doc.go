/*
Package wireamqp implements a small, self-consistent rendition of the
AMQP 1.0 wire protocol: primitive type encoding, frame headers, the
SASL-ANONYMOUS handshake, the performatives used to open a connection and
attach links, and a single-goroutine reactor that drives connection,
session and link state from decoded frames.

It deliberately does not implement the full compact/variable-width type
matrix the real AMQP 1.0 specification allows; every value this package
emits it can also parse back, and the broker and the client tools in this
module only ever talk to each other, so a fixed, simplified encoding is
enough to exercise the protocol's actual hard part: connection → session
→ link lifecycle, credit-based flow control, and dynamic addressing.

Reactor

A Container owns exactly one goroutine (Run) that is the only code path
allowed to touch Connection, Session or Link state. Per-connection reader
goroutines only decode frames off the wire and turn them into Event
values pushed onto the Container's event channel; Inject lets any other
goroutine (a client's stdin feeder, for instance) enqueue an application
event without crossing that boundary itself.
*/
package wireamqp
