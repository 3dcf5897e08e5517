package address

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Address
	}{
		{"bare path", "queue0", Address{Host: "localhost", Port: 5672, Path: "queue0"}},
		{"explicit authority", "//h:1234/q", Address{Host: "h", Port: 1234, Path: "q"}},
		{"host and port", "h:9/q", Address{Host: "h", Port: 9, Path: "q"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.in)
			tdd.NoError(t, err)
			tdd.Equal(t, c.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"//:5672/q",
		"h:xx/q",
	}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			tdd.Error(t, err)
			tdd.ErrorIs(t, err, ErrInvalid)
		})
	}
}
