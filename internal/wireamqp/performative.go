package wireamqp

import (
	"io"

	"go.bryk.io/pkg/errors"
)

// Role identifies which end of a link an attaching peer is claiming:
// RoleSender (the source of messages) or RoleReceiver (the target).
type Role string

// Link roles, named from the attaching endpoint's own perspective.
const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Terminus describes a link's source or target endpoint: an address,
// optionally minted by the remote end rather than supplied by the
// attaching peer (Dynamic).
type Terminus struct {
	Address string
	Dynamic bool
}

func (t Terminus) encode() map[string]interface{} {
	return map[string]interface{}{"address": t.Address, "dynamic": t.Dynamic}
}

func decodeTerminus(v interface{}) Terminus {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Terminus{}
	}
	t := Terminus{}
	if s, ok := m["address"].(string); ok {
		t.Address = s
	}
	if b, ok := m["dynamic"].(bool); ok {
		t.Dynamic = b
	}
	return t
}

// Open is the first performative exchanged on a connection.
type Open struct {
	ContainerID string
	Hostname    string
}

// Begin opens a session on a channel. This module keeps sessions thin:
// the channel number in the frame header is the session identifier, so
// Begin carries no additional required state.
type Begin struct{}

// Attach opens a link within a session.
type Attach struct {
	Name   string
	Handle uint32
	Role   Role
	Source Terminus
	Target Terminus
}

// Flow grants link-credit to a sender.
type Flow struct {
	Handle     uint32
	LinkCredit uint32
}

// Transfer carries one message delivery.
type Transfer struct {
	Handle      uint32
	DeliveryID  uint32
	DeliveryTag []byte
	Message     Message
}

// Disposition reports the settlement outcome of a delivery. Real AMQP
// 1.0 addresses deliveries by session-scoped ranges; this module's
// simplified encoding instead names the link directly by Handle, since
// every link in this protocol keeps the same handle number on both
// ends.
type Disposition struct {
	Handle  uint32
	Settled bool
}

// Detach closes a single link.
type Detach struct {
	Handle uint32
	Error  string
}

// End closes a session.
type End struct {
	Error string
}

// Close closes a connection.
type Close struct {
	Error string
}

func encodePerformative(name string, fields map[string]interface{}) map[string]interface{} {
	fields["performative"] = name
	return fields
}

func (p Open) encode() map[string]interface{} {
	return encodePerformative("open", map[string]interface{}{
		"container_id": p.ContainerID,
		"hostname":     p.Hostname,
	})
}

func (p Begin) encode() map[string]interface{} {
	return encodePerformative("begin", map[string]interface{}{})
}

func (p Attach) encode() map[string]interface{} {
	return encodePerformative("attach", map[string]interface{}{
		"name":   p.Name,
		"handle": uint64(p.Handle),
		"role":   string(p.Role),
		"source": p.Source.encode(),
		"target": p.Target.encode(),
	})
}

func (p Flow) encode() map[string]interface{} {
	return encodePerformative("flow", map[string]interface{}{
		"handle":      uint64(p.Handle),
		"link_credit": uint64(p.LinkCredit),
	})
}

func (p Transfer) encode() map[string]interface{} {
	fields := p.Message.encode()
	fields["handle"] = uint64(p.Handle)
	fields["delivery_id"] = uint64(p.DeliveryID)
	fields["delivery_tag"] = p.DeliveryTag
	return encodePerformative("transfer", fields)
}

func (p Disposition) encode() map[string]interface{} {
	return encodePerformative("disposition", map[string]interface{}{
		"handle":  uint64(p.Handle),
		"settled": p.Settled,
	})
}

func (p Detach) encode() map[string]interface{} {
	return encodePerformative("detach", map[string]interface{}{
		"handle": uint64(p.Handle),
		"error":  p.Error,
	})
}

func (p End) encode() map[string]interface{} {
	return encodePerformative("end", map[string]interface{}{"error": p.Error})
}

func (p Close) encode() map[string]interface{} {
	return encodePerformative("close", map[string]interface{}{"error": p.Error})
}

// performative is implemented by every performative struct in this file.
type performative interface {
	encode() map[string]interface{}
}

// writePerformative marshals p and writes it as a single AMQP frame on
// the given channel.
func writePerformative(w io.Writer, channel uint16, p performative) error {
	buf, err := Marshal(p.encode())
	if err != nil {
		return errors.Wrap(err, "encode performative")
	}
	return writeFrame(w, frameTypeAMQP, channel, buf)
}

// decodedFrame is the generic shape returned by readPerformative: callers
// switch on Name and pull typed fields out of Fields.
type decodedFrame struct {
	Channel uint16
	Name    string
	Fields  map[string]interface{}
}

func readPerformative(r io.Reader) (*decodedFrame, error) {
	typ, channel, body, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	if typ != frameTypeAMQP {
		return nil, errors.Wrap(ErrMalformed, "expected amqp frame")
	}
	v, err := Unmarshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode performative")
	}
	fields, err := asMap(v)
	if err != nil {
		return nil, err
	}
	name, _ := fields["performative"].(string)
	return &decodedFrame{Channel: channel, Name: name, Fields: fields}, nil
}

func fieldUint32(fields map[string]interface{}, key string) uint32 {
	v, _ := fields[key].(uint64)
	return uint32(v)
}

func fieldString(fields map[string]interface{}, key string) string {
	v, _ := fields[key].(string)
	return v
}

func fieldBool(fields map[string]interface{}, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func decodeAttach(fields map[string]interface{}) Attach {
	return Attach{
		Name:   fieldString(fields, "name"),
		Handle: fieldUint32(fields, "handle"),
		Role:   Role(fieldString(fields, "role")),
		Source: decodeTerminus(fields["source"]),
		Target: decodeTerminus(fields["target"]),
	}
}

func decodeFlow(fields map[string]interface{}) Flow {
	return Flow{
		Handle:     fieldUint32(fields, "handle"),
		LinkCredit: fieldUint32(fields, "link_credit"),
	}
}

func decodeTransfer(fields map[string]interface{}) Transfer {
	tag, _ := fields["delivery_tag"].([]byte)
	return Transfer{
		Handle:      fieldUint32(fields, "handle"),
		DeliveryID:  fieldUint32(fields, "delivery_id"),
		DeliveryTag: tag,
		Message:     decodeMessage(fields),
	}
}

func decodeDisposition(fields map[string]interface{}) Disposition {
	return Disposition{
		Handle:  fieldUint32(fields, "handle"),
		Settled: fieldBool(fields, "settled"),
	}
}

func decodeDetach(fields map[string]interface{}) Detach {
	return Detach{Handle: fieldUint32(fields, "handle"), Error: fieldString(fields, "error")}
}
