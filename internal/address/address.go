// Package address parses the small address-URL grammar shared by the
// broker and the client tools.
package address

import (
	"strconv"
	"strings"

	"go.bryk.io/pkg/errors"
)

// DefaultHost is used when an address omits an explicit authority.
const DefaultHost = "localhost"

// DefaultPort is used when an address omits an explicit port.
const DefaultPort = 5672

// ErrInvalid is the root error returned for any address that does not
// parse per the supported grammar.
var ErrInvalid = errors.New("invalid address")

// Address is the parsed form of an address string: `//host[:port]/path`,
// `host:port/path` or a bare `path`.
type Address struct {
	Host string
	Port int
	Path string
}

// String renders the address back in `//host:port/path` form.
func (a Address) String() string {
	return "//" + a.Host + ":" + strconv.Itoa(a.Port) + "/" + a.Path
}

// HostPort renders the `host:port` authority, used to group addresses by
// connection target.
func (a Address) HostPort() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Parse decodes an address string into its (host, port, path) parts. The
// path is everything after the first slash following the authority; for
// the bare-path form the whole input is the path.
func Parse(raw string) (Address, error) {
	addr := Address{Host: DefaultHost, Port: DefaultPort}

	rest := raw
	hasAuthority := false
	if strings.HasPrefix(rest, "//") {
		hasAuthority = true
		rest = rest[2:]
		idx := strings.IndexByte(rest, '/')
		var authority string
		if idx < 0 {
			authority, rest = rest, ""
		} else {
			authority, rest = rest[:idx], rest[idx+1:]
		}
		if authority == "" {
			return Address{}, errors.Wrap(ErrInvalid, "empty authority")
		}
		if err := parseAuthority(authority, &addr); err != nil {
			return Address{}, err
		}
		addr.Path = rest
		return addr, nil
	}

	// host:port/path form: only applies when a slash is present and the
	// segment before it contains a colon (so a bare path containing no
	// colon is left untouched).
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		authority, path := rest[:idx], rest[idx+1:]
		if strings.Contains(authority, ":") {
			hasAuthority = true
			if err := parseAuthority(authority, &addr); err != nil {
				return Address{}, err
			}
			addr.Path = path
			return addr, nil
		}
	}

	if hasAuthority {
		// unreachable, kept for clarity of the two branches above
		return addr, nil
	}
	addr.Path = raw
	return addr, nil
}

func parseAuthority(authority string, addr *Address) error {
	host, portStr, found := strings.Cut(authority, ":")
	if host == "" {
		return errors.Wrap(ErrInvalid, "empty host")
	}
	addr.Host = host
	if !found {
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return errors.Wrap(ErrInvalid, "invalid port")
	}
	addr.Port = port
	return nil
}
