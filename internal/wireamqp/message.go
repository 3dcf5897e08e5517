package wireamqp

// Message is an AMQP message value: a body plus the handful of
// properties the broker and clients in this module actually use. It is
// immutable once stored on a Queue.
type Message struct {
	// To is the destination address the message was sent to.
	To string

	// Body is the message payload, carried as opaque bytes. Text bodies
	// (the only kind the clients produce) are UTF-8 encoded strings.
	Body []byte

	// ReplyTo is the address a response should be sent to, set by the
	// request client on its dynamic receiver's remote-assigned address.
	ReplyTo string

	// CorrelationID pairs a response with the request that produced it.
	CorrelationID string

	// DeliveryTag is assigned per transmission, not per message; it is
	// only meaningful for the lifetime of a single Transfer.
	DeliveryTag []byte
}

func (m Message) encode() map[string]interface{} {
	fields := map[string]interface{}{"body": m.Body}
	if m.To != "" {
		fields["to"] = m.To
	}
	if m.ReplyTo != "" {
		fields["reply_to"] = m.ReplyTo
	}
	if m.CorrelationID != "" {
		fields["correlation_id"] = m.CorrelationID
	}
	if len(m.DeliveryTag) > 0 {
		fields["delivery_tag"] = m.DeliveryTag
	}
	return fields
}

func decodeMessage(fields map[string]interface{}) Message {
	m := Message{}
	if b, ok := fields["body"].([]byte); ok {
		m.Body = b
	}
	if s, ok := fields["to"].(string); ok {
		m.To = s
	}
	if s, ok := fields["reply_to"].(string); ok {
		m.ReplyTo = s
	}
	if s, ok := fields["correlation_id"].(string); ok {
		m.CorrelationID = s
	}
	if b, ok := fields["delivery_tag"].([]byte); ok {
		m.DeliveryTag = b
	}
	return m
}
