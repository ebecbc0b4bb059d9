package dbus

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// maxNameLength is the maximum length of a DBus name, not counting
// the nul terminator.
const maxNameLength = 255

// Name grammar violations. A [NameError]'s Reason wraps exactly one
// of these.
var (
	ErrEmptyName           = errors.New("name is empty")
	ErrNameTooLong         = fmt.Errorf("name is longer than %d bytes", maxNameLength)
	ErrNotTerminated       = errors.New("name must be nul-terminated")
	ErrLeadingChar         = errors.New("invalid leading character")
	ErrInvalidChar         = errors.New("invalid character")
	ErrAdjacentSeparators  = errors.New("adjacent separators")
	ErrTrailingSeparator   = errors.New("trailing separator")
	ErrElementLeadingDigit = errors.New("element begins with a digit")
	ErrTooFewElements      = errors.New("name must have at least 2 elements")
	ErrEmptyElement        = errors.New("empty element")
)

const (
	kindObjectPath = "object path"
	kindInterface  = "interface name"
	kindBusName    = "bus name"
	kindMember     = "member name"
)

func nameErr(kind string, b []byte, reason error, detail string, args ...any) error {
	name := b
	if i := bytes.IndexByte(b, 0); i >= 0 {
		name = b[:i]
	}
	if detail != "" {
		reason = fmt.Errorf("%w: %s", reason, fmt.Sprintf(detail, args...))
	}
	return NameError{
		Kind:   kind,
		Name:   string(name),
		Reason: reason,
	}
}

func isAlpha(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// withNul returns a copy of s with a nul terminator, for validation
// by one of the FromBytes constructors. An embedded nul would
// silently truncate s, so it is reported as an invalid character.
func withNul(kind, s string) ([]byte, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return nil, nameErr(kind, []byte(s), ErrInvalidChar, "embedded nul at offset %d", i)
	}
	ret := make([]byte, len(s)+1)
	copy(ret, s)
	return ret, nil
}

// An ObjectPath is a validated DBus object path, for example
// "/org/freedesktop/DBus".
//
// An ObjectPath is a read-only view of the bytes it was constructed
// from, including the trailing nul byte. Callers must not modify
// those bytes while the ObjectPath is in use.
type ObjectPath struct {
	b []byte
}

// ObjectPathFromBytes validates that b begins with a nul-terminated
// DBus object path, and returns an ObjectPath that references b up
// to and including the terminator. Bytes following the terminator
// are ignored.
//
// An object path begins with '/' and consists of non-empty elements
// containing only the characters [A-Za-z0-9_], separated by single
// '/' characters. Only the root path "/" may end in '/'.
func ObjectPathFromBytes(b []byte) (ObjectPath, error) {
	if len(b) == 0 || b[0] == 0 {
		return ObjectPath{}, nameErr(kindObjectPath, b, ErrEmptyName, "")
	}
	if b[0] != '/' {
		return ObjectPath{}, nameErr(kindObjectPath, b, ErrLeadingChar, "must begin with '/'")
	}

	for i := 1; i < len(b); i++ {
		if i > maxNameLength {
			return ObjectPath{}, nameErr(kindObjectPath, b, ErrNameTooLong, "")
		}
		prev, c := b[i-1], b[i]
		switch {
		case c == '/':
			if prev == '/' {
				return ObjectPath{}, nameErr(kindObjectPath, b, ErrAdjacentSeparators, "'//' at offset %d", i-1)
			}
		case isAlpha(c) || isDigit(c) || c == '_':
		case c == 0:
			if prev == '/' && i != 1 {
				return ObjectPath{}, nameErr(kindObjectPath, b, ErrTrailingSeparator, "only the root path may end in '/'")
			}
			return ObjectPath{b[:i+1]}, nil
		default:
			return ObjectPath{}, nameErr(kindObjectPath, b, ErrInvalidChar, "%q at offset %d, only [A-Za-z0-9_/] allowed", c, i)
		}
	}

	return ObjectPath{}, nameErr(kindObjectPath, b, ErrNotTerminated, "")
}

// ObjectPathUnchecked returns an ObjectPath that references b
// without validating it. b must be a valid, nul-terminated object
// path, such as the output of [ObjectPath.Bytes].
func ObjectPathUnchecked(b []byte) ObjectPath {
	return ObjectPath{b}
}

// ParseObjectPath copies s, and validates it as an object path.
func ParseObjectPath(s string) (ObjectPath, error) {
	b, err := withNul(kindObjectPath, s)
	if err != nil {
		return ObjectPath{}, err
	}
	return ObjectPathFromBytes(b)
}

// Bytes returns the path's bytes, including the nul terminator. The
// returned slice shares storage with the ObjectPath, and must not be
// modified.
func (p ObjectPath) Bytes() []byte { return p.b }

// String returns a copy of the path, without the nul terminator.
func (p ObjectPath) String() string { return trimNul(p.b) }

// IsZero reports whether p is the zero ObjectPath, which is not a
// valid object path.
func (p ObjectPath) IsZero() bool { return len(p.b) == 0 }

// An InterfaceName is a validated DBus interface name, for example
// "org.freedesktop.DBus.Peer".
//
// An InterfaceName is a read-only view of the bytes it was
// constructed from, including the trailing nul byte. Callers must
// not modify those bytes while the InterfaceName is in use.
type InterfaceName struct {
	b []byte
}

// InterfaceNameFromBytes validates that b begins with a
// nul-terminated DBus interface name, and returns an InterfaceName
// that references b up to and including the terminator.
//
// An interface name has at least two non-empty elements separated by
// '.'. Elements contain only the characters [A-Za-z0-9_], and must
// not begin with a digit.
func InterfaceNameFromBytes(b []byte) (InterfaceName, error) {
	if len(b) == 0 || b[0] == 0 {
		return InterfaceName{}, nameErr(kindInterface, b, ErrEmptyName, "")
	}
	switch c := b[0]; {
	case c == '.':
		return InterfaceName{}, nameErr(kindInterface, b, ErrLeadingChar, "must not begin with '.'")
	case isAlpha(c) || c == '_':
	default:
		return InterfaceName{}, nameErr(kindInterface, b, ErrLeadingChar, "%q, must be one of [A-Za-z_]", c)
	}

	dots := 0
	for i := 1; i < len(b); i++ {
		if i > maxNameLength {
			return InterfaceName{}, nameErr(kindInterface, b, ErrNameTooLong, "")
		}
		prev, c := b[i-1], b[i]
		switch {
		case c == '.':
			if prev == '.' {
				return InterfaceName{}, nameErr(kindInterface, b, ErrAdjacentSeparators, "'..' at offset %d", i-1)
			}
			dots++
		case isAlpha(c) || c == '_':
		case isDigit(c):
			if prev == '.' {
				return InterfaceName{}, nameErr(kindInterface, b, ErrElementLeadingDigit, "at offset %d", i)
			}
		case c == 0:
			if prev == '.' {
				return InterfaceName{}, nameErr(kindInterface, b, ErrTrailingSeparator, "must not end in '.'")
			}
			if dots < 1 {
				return InterfaceName{}, nameErr(kindInterface, b, ErrTooFewElements, "")
			}
			return InterfaceName{b[:i+1]}, nil
		default:
			return InterfaceName{}, nameErr(kindInterface, b, ErrInvalidChar, "%q at offset %d, only [A-Za-z0-9_.] allowed", c, i)
		}
	}

	return InterfaceName{}, nameErr(kindInterface, b, ErrNotTerminated, "")
}

// InterfaceNameUnchecked returns an InterfaceName that references b
// without validating it. b must be a valid, nul-terminated interface
// name.
func InterfaceNameUnchecked(b []byte) InterfaceName {
	return InterfaceName{b}
}

// ParseInterfaceName copies s, and validates it as an interface
// name.
func ParseInterfaceName(s string) (InterfaceName, error) {
	b, err := withNul(kindInterface, s)
	if err != nil {
		return InterfaceName{}, err
	}
	return InterfaceNameFromBytes(b)
}

// Bytes returns the name's bytes, including the nul terminator. The
// returned slice shares storage with the InterfaceName, and must not
// be modified.
func (n InterfaceName) Bytes() []byte { return n.b }

// String returns a copy of the name, without the nul terminator.
func (n InterfaceName) String() string { return trimNul(n.b) }

// IsZero reports whether n is the zero InterfaceName.
func (n InterfaceName) IsZero() bool { return len(n.b) == 0 }

// A BusName is a validated DBus bus name. Bus names are either
// unique connection names assigned by the bus, which begin with ':'
// (for example ":1.42"), or well-known names claimed by a peer (for
// example "org.freedesktop.NetworkManager").
//
// A BusName is a read-only view of the bytes it was constructed
// from, including the trailing nul byte. Callers must not modify
// those bytes while the BusName is in use.
type BusName struct {
	b []byte
}

// BusNameFromBytes validates that b begins with a nul-terminated
// DBus bus name, and returns a BusName that references b up to and
// including the terminator.
//
// A bus name has at least two non-empty elements separated by
// '.'. Elements contain only the characters [A-Za-z0-9_-]. Elements
// of well-known names must not begin with a digit, elements of
// unique names may.
func BusNameFromBytes(b []byte) (BusName, error) {
	if len(b) == 0 || b[0] == 0 {
		return BusName{}, nameErr(kindBusName, b, ErrEmptyName, "")
	}
	unique := false
	switch c := b[0]; {
	case c == '.':
		return BusName{}, nameErr(kindBusName, b, ErrLeadingChar, "must not begin with '.'")
	case isAlpha(c) || c == '_' || c == '-':
	case c == ':':
		unique = true
	default:
		return BusName{}, nameErr(kindBusName, b, ErrLeadingChar, "%q, must be one of [A-Za-z_-:]", c)
	}

	dots := 0
	for i := 1; i < len(b); i++ {
		if i > maxNameLength {
			return BusName{}, nameErr(kindBusName, b, ErrNameTooLong, "")
		}
		prev, c := b[i-1], b[i]
		switch {
		case c == '.':
			if prev == '.' {
				return BusName{}, nameErr(kindBusName, b, ErrAdjacentSeparators, "'..' at offset %d", i-1)
			}
			if prev == ':' {
				return BusName{}, nameErr(kindBusName, b, ErrEmptyElement, "unique name has empty first element")
			}
			dots++
		case isAlpha(c) || c == '_' || c == '-':
		case isDigit(c):
			if prev == '.' && !unique {
				return BusName{}, nameErr(kindBusName, b, ErrElementLeadingDigit, "at offset %d", i)
			}
		case c == 0:
			if prev == '.' {
				return BusName{}, nameErr(kindBusName, b, ErrTrailingSeparator, "must not end in '.'")
			}
			if prev == ':' {
				return BusName{}, nameErr(kindBusName, b, ErrEmptyElement, "unique name has no elements")
			}
			if dots < 1 {
				return BusName{}, nameErr(kindBusName, b, ErrTooFewElements, "")
			}
			return BusName{b[:i+1]}, nil
		default:
			return BusName{}, nameErr(kindBusName, b, ErrInvalidChar, "%q at offset %d, only [A-Za-z0-9_-.] allowed", c, i)
		}
	}

	return BusName{}, nameErr(kindBusName, b, ErrNotTerminated, "")
}

// BusNameUnchecked returns a BusName that references b without
// validating it. b must be a valid, nul-terminated bus name.
func BusNameUnchecked(b []byte) BusName {
	return BusName{b}
}

// ParseBusName copies s, and validates it as a bus name.
func ParseBusName(s string) (BusName, error) {
	b, err := withNul(kindBusName, s)
	if err != nil {
		return BusName{}, err
	}
	return BusNameFromBytes(b)
}

// Bytes returns the name's bytes, including the nul terminator. The
// returned slice shares storage with the BusName, and must not be
// modified.
func (n BusName) Bytes() []byte { return n.b }

// String returns a copy of the name, without the nul terminator.
func (n BusName) String() string { return trimNul(n.b) }

// IsZero reports whether n is the zero BusName.
func (n BusName) IsZero() bool { return len(n.b) == 0 }

// IsUnique reports whether n is a unique connection name.
func (n BusName) IsUnique() bool { return len(n.b) > 0 && n.b[0] == ':' }

// A MemberName is a validated DBus method or signal name, for example
// "GetNameOwner".
//
// A MemberName is a read-only view of the bytes it was constructed
// from, including the trailing nul byte. Callers must not modify
// those bytes while the MemberName is in use.
type MemberName struct {
	b []byte
}

// MemberNameFromBytes validates that b begins with a nul-terminated
// DBus member name, and returns a MemberName that references b up to
// and including the terminator.
//
// A member name is non-empty, contains only the characters
// [A-Za-z0-9_], and must not begin with a digit.
func MemberNameFromBytes(b []byte) (MemberName, error) {
	if len(b) == 0 || b[0] == 0 {
		return MemberName{}, nameErr(kindMember, b, ErrEmptyName, "")
	}
	if c := b[0]; !isAlpha(c) && c != '_' {
		return MemberName{}, nameErr(kindMember, b, ErrLeadingChar, "%q, must be one of [A-Za-z_]", c)
	}

	for i := 1; i < len(b); i++ {
		if i > maxNameLength {
			return MemberName{}, nameErr(kindMember, b, ErrNameTooLong, "")
		}
		switch c := b[i]; {
		case isAlpha(c) || isDigit(c) || c == '_':
		case c == 0:
			return MemberName{b[:i+1]}, nil
		case c == '.':
			return MemberName{}, nameErr(kindMember, b, ErrInvalidChar, "'.' at offset %d, member names have no elements", i)
		default:
			return MemberName{}, nameErr(kindMember, b, ErrInvalidChar, "%q at offset %d, only [A-Za-z0-9_] allowed", c, i)
		}
	}

	return MemberName{}, nameErr(kindMember, b, ErrNotTerminated, "")
}

// MemberNameUnchecked returns a MemberName that references b without
// validating it. b must be a valid, nul-terminated member name.
func MemberNameUnchecked(b []byte) MemberName {
	return MemberName{b}
}

// ParseMemberName copies s, and validates it as a member name.
func ParseMemberName(s string) (MemberName, error) {
	b, err := withNul(kindMember, s)
	if err != nil {
		return MemberName{}, err
	}
	return MemberNameFromBytes(b)
}

// Bytes returns the name's bytes, including the nul terminator. The
// returned slice shares storage with the MemberName, and must not be
// modified.
func (n MemberName) Bytes() []byte { return n.b }

// String returns a copy of the name, without the nul terminator.
func (n MemberName) String() string { return trimNul(n.b) }

// IsZero reports whether n is the zero MemberName.
func (n MemberName) IsZero() bool { return len(n.b) == 0 }

func trimNul(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return string(b[:len(b)-1])
}
