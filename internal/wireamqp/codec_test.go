package wireamqp

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := map[string]interface{}{
		"performative": "attach",
		"handle":       uint64(7),
		"name":         "q0",
		"flag":         true,
		"body":         []byte("hello"),
		"tags":         []interface{}{"a", "b"},
	}
	buf, err := Marshal(in)
	tdd.NoError(t, err)

	out, err := Unmarshal(buf)
	tdd.NoError(t, err)
	tdd.Equal(t, in, out)
}

func TestPerformativeRoundTrip(t *testing.T) {
	a := Attach{
		Name:   "link-0",
		Handle: 3,
		Role:   RoleSender,
		Source: Terminus{Address: "q0"},
		Target: Terminus{Dynamic: true},
	}
	buf, err := Marshal(a.encode())
	tdd.NoError(t, err)

	v, err := Unmarshal(buf)
	tdd.NoError(t, err)
	fields, err := asMap(v)
	tdd.NoError(t, err)

	got := decodeAttach(fields)
	tdd.Equal(t, a, got)
}

func TestUnmarshalMalformed(t *testing.T) {
	_, err := Unmarshal([]byte{0xFF})
	tdd.ErrorIs(t, err, ErrMalformed)
}
