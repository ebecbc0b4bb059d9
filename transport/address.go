package transport

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// DefaultSystemBus is the system bus address used when
// DBUS_SYSTEM_BUS_ADDRESS is not set.
const DefaultSystemBus = "unix:path=/run/dbus/system_bus_socket"

// Address is a connectable DBus server address.
//
// Only the unix transport is supported, with either a filesystem
// socket path or a Linux abstract socket name.
type Address struct {
	// Path is the filesystem path of the socket, or the socket name
	// if Abstract is true.
	Path string
	// Abstract is true if Path names a Linux abstract socket.
	Abstract bool
}

// String returns the DBus address string for a.
func (a Address) String() string {
	key := "path"
	if a.Abstract {
		key = "abstract"
	}
	return "unix:" + key + "=" + escape(a.Path)
}

// socket returns the address in the form accepted by net.DialUnix.
func (a Address) socket() string {
	if a.Abstract {
		return "@" + a.Path
	}
	return a.Path
}

// ParseAddress parses a DBus server address list, and returns the
// first address that this package can connect to.
//
// An address list is a semicolon-separated sequence of addresses of
// the form "transport:key=value,key=value". Values use %-escaping
// for bytes outside of the unescaped set.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, errors.New("empty bus address")
	}
	var errs []error
	for _, one := range strings.Split(s, ";") {
		if one == "" {
			continue
		}
		addr, err := parseOne(one)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return addr, nil
	}
	if len(errs) == 0 {
		return Address{}, fmt.Errorf("no addresses in %q", s)
	}
	return Address{}, fmt.Errorf("no usable address in %q: %w", s, errors.Join(errs...))
}

func parseOne(s string) (Address, error) {
	transport, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("address %q has no transport", s)
	}
	if transport != "unix" {
		return Address{}, fmt.Errorf("unsupported transport %q", transport)
	}

	var (
		ret    Address
		hasKey bool
	)
	for _, kv := range strings.Split(rest, ",") {
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return Address{}, fmt.Errorf("address %q: malformed key/value pair %q", s, kv)
		}
		v, err := url.PathUnescape(v)
		if err != nil {
			return Address{}, fmt.Errorf("address %q: bad escaping in %q: %w", s, k, err)
		}
		switch k {
		case "path", "abstract":
			if hasKey {
				return Address{}, fmt.Errorf("address %q has more than one socket location", s)
			}
			if v == "" {
				return Address{}, fmt.Errorf("address %q has empty %s", s, k)
			}
			hasKey = true
			ret.Path = v
			ret.Abstract = k == "abstract"
		case "guid":
		case "tmpdir", "dir", "runtime":
			return Address{}, fmt.Errorf("address %q: %s= is only valid for listening", s, k)
		default:
			return Address{}, fmt.Errorf("address %q: unknown key %q", s, k)
		}
	}
	if !hasKey {
		return Address{}, fmt.Errorf("address %q has no path or abstract key", s)
	}
	return ret, nil
}

// escape %-escapes the bytes of s that DBus addresses do not allow
// unescaped.
func escape(s string) string {
	var b strings.Builder
	for i := range len(s) {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte("-_/\\.*", c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02x", c)
		}
	}
	return b.String()
}

// SessionBusAddress returns the address of the current user's session
// bus, from the DBUS_SESSION_BUS_ADDRESS environment variable.
func SessionBusAddress() (Address, error) {
	s := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if s == "" {
		return Address{}, errors.New("session bus not available, DBUS_SESSION_BUS_ADDRESS is not set")
	}
	return ParseAddress(s)
}

// SystemBusAddress returns the address of the system bus, from the
// DBUS_SYSTEM_BUS_ADDRESS environment variable if set, or
// [DefaultSystemBus] otherwise.
func SystemBusAddress() (Address, error) {
	s := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS")
	if s == "" {
		s = DefaultSystemBus
	}
	return ParseAddress(s)
}
