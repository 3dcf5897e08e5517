package wireamqp

import (
	"io"

	"go.bryk.io/pkg/errors"
)

// protocolHeader identifies which sub-protocol (plain AMQP or SASL) a
// peer is about to speak; it is exchanged once, before any frames, as a
// fixed 8-byte magic string. This follows the real AMQP 1.0 convention
// of a version-negotiation preamble even though this module only ever
// speaks one version of its own simplified encoding.
type protocolHeader [8]byte

var amqpHeader = protocolHeader{'A', 'M', 'Q', 'P', 0, 1, 0, 0}
var saslHeader = protocolHeader{'A', 'M', 'Q', 'P', 3, 1, 0, 0}

func writeHeader(w io.Writer, h protocolHeader) error {
	_, err := w.Write(h[:])
	return err
}

func readHeader(r io.Reader) (protocolHeader, error) {
	var h protocolHeader
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return h, err
	}
	return h, nil
}

// saslMechanism is the only mechanism this module speaks: anonymous
// access, per §6's "SASL-ANONYMOUS" requirement.
const saslMechanism = "ANONYMOUS"

// clientSASLHandshake performs the client side of the SASL exchange:
// header exchange, wait for sasl-mechanisms, send sasl-init, wait for
// sasl-outcome, then re-exchange the AMQP header to switch protocols.
func clientSASLHandshake(rw io.ReadWriter) error {
	if err := writeHeader(rw, saslHeader); err != nil {
		return err
	}
	if _, err := readHeader(rw); err != nil {
		return errors.Wrap(err, "sasl header")
	}

	typ, _, body, err := readFrame(rw)
	if err != nil {
		return errors.Wrap(err, "read sasl-mechanisms")
	}
	if typ != frameTypeSASL {
		return errors.Wrap(ErrMalformed, "expected sasl frame")
	}
	if _, err := Unmarshal(body); err != nil {
		return errors.Wrap(err, "decode sasl-mechanisms")
	}

	init := map[string]interface{}{"performative": "sasl-init", "mechanism": saslMechanism}
	buf, err := Marshal(init)
	if err != nil {
		return err
	}
	if err := writeFrame(rw, frameTypeSASL, 0, buf); err != nil {
		return errors.Wrap(err, "write sasl-init")
	}

	typ, _, body, err = readFrame(rw)
	if err != nil {
		return errors.Wrap(err, "read sasl-outcome")
	}
	if typ != frameTypeSASL {
		return errors.Wrap(ErrMalformed, "expected sasl frame")
	}
	outcome, err := Unmarshal(body)
	if err != nil {
		return errors.Wrap(err, "decode sasl-outcome")
	}
	m, err := asMap(outcome)
	if err != nil {
		return err
	}
	if code, _ := m["code"].(uint64); code != 0 {
		return errors.Wrap(ErrMalformed, "sasl outcome rejected")
	}

	if err := writeHeader(rw, amqpHeader); err != nil {
		return err
	}
	if _, err := readHeader(rw); err != nil {
		return errors.Wrap(err, "amqp header")
	}
	return nil
}

// serverSASLHandshake performs the broker side: mirror the client's
// header, always grant ANONYMOUS access (there is no authentication in
// this module, per the spec's non-goals), then switch to the plain AMQP
// header exchange.
func serverSASLHandshake(rw io.ReadWriter) error {
	if _, err := readHeader(rw); err != nil {
		return errors.Wrap(err, "sasl header")
	}
	if err := writeHeader(rw, saslHeader); err != nil {
		return err
	}

	mechanisms := map[string]interface{}{
		"performative": "sasl-mechanisms",
		"mechanisms":   []interface{}{saslMechanism},
	}
	buf, err := Marshal(mechanisms)
	if err != nil {
		return err
	}
	if err := writeFrame(rw, frameTypeSASL, 0, buf); err != nil {
		return err
	}

	typ, _, body, err := readFrame(rw)
	if err != nil {
		return errors.Wrap(err, "read sasl-init")
	}
	if typ != frameTypeSASL {
		return errors.Wrap(ErrMalformed, "expected sasl frame")
	}
	if _, err := Unmarshal(body); err != nil {
		return errors.Wrap(err, "decode sasl-init")
	}

	outcome := map[string]interface{}{"performative": "sasl-outcome", "code": uint64(0)}
	buf, err = Marshal(outcome)
	if err != nil {
		return err
	}
	if err := writeFrame(rw, frameTypeSASL, 0, buf); err != nil {
		return err
	}

	if _, err := readHeader(rw); err != nil {
		return errors.Wrap(err, "amqp header")
	}
	return writeHeader(rw, amqpHeader)
}
