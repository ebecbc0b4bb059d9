package dbus

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// A Signature is a validated DBus type signature, describing the
// types of a sequence of values.
//
// The zero Signature is the empty signature, which describes zero
// values.
type Signature struct {
	str string
}

// Signature grammar errors, wrapped in a [SignatureError].
var (
	// ErrElementRequired is reported when an array type code is not
	// followed by the array's element type.
	ErrElementRequired = errors.New("array type code is missing its element type")
	// ErrParenClosedBeforeOpen is reported for a ')' with no
	// matching '('.
	ErrParenClosedBeforeOpen = errors.New("closed a paren without having any open")
)

// InvalidTypeCodeError is reported when a signature contains a
// character that is not a DBus type code.
type InvalidTypeCodeError struct {
	Code   rune
	Offset int
}

func (e InvalidTypeCodeError) Error() string {
	return fmt.Sprintf("invalid type code %q at offset %d", e.Code, e.Offset)
}

// UnclosedParenError is reported when a signature ends with structs
// still open.
type UnclosedParenError struct {
	// Depth is the number of unclosed parens.
	Depth int
}

func (e UnclosedParenError) Error() string {
	return fmt.Sprintf("left %d parens unclosed", e.Depth)
}

// ParseSignature validates sig as a DBus type signature.
//
// The grammar is checked in a single pass, which accepts the basic
// type codes "ybnqiuxtdhsog", arrays ("a" followed by a complete
// element type), and structs delimited by parentheses.
func ParseSignature(sig string) (Signature, error) {
	var (
		depth           int
		elementRequired bool
	)
	for i, c := range sig {
		switch {
		case c < utf8.RuneSelf && basicTypeCodes.Has(byte(c)):
			elementRequired = false
		case c == 'a':
			elementRequired = true
		case c == '(':
			depth++
		case c == ')':
			if depth == 0 {
				return Signature{}, SignatureError{sig, ErrParenClosedBeforeOpen}
			}
			if elementRequired {
				return Signature{}, SignatureError{sig, ErrElementRequired}
			}
			depth--
		default:
			return Signature{}, SignatureError{sig, InvalidTypeCodeError{c, i}}
		}
	}

	if depth != 0 {
		return Signature{}, SignatureError{sig, UnclosedParenError{depth}}
	}
	if elementRequired {
		return Signature{}, SignatureError{sig, ErrElementRequired}
	}
	return Signature{sig}, nil
}

// MustParseSignature is like [ParseSignature], but panics if sig is
// invalid. It is intended for signatures that are program constants.
func MustParseSignature(sig string) Signature {
	ret, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

// String returns the string encoding of the Signature, as described
// in the DBus specification.
func (s Signature) String() string {
	return s.str
}

// IsZero reports whether the signature is empty. An empty Signature
// describes zero values.
func (s Signature) IsZero() bool {
	return s.str == ""
}

// SignatureOf returns the Signature describing vs in order.
func SignatureOf(vs ...Value) (Signature, error) {
	var b strings.Builder
	for _, v := range vs {
		if v == nil {
			return Signature{}, typeErr(v, "nil Value")
		}
		b.WriteString(v.signatureDBus())
	}
	str := b.String()
	if strings.Contains(str, "()") {
		return Signature{}, typeErr(vs, "empty structs are not allowed")
	}
	return ParseSignature(str)
}
