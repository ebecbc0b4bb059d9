package dbus

import (
	"strings"
	"unicode/utf8"

	"github.com/danderson/dbuswire/fragments"
)

// A Value is a DBus value that can be written to a message.
//
// The set of Values is closed: [Byte], [Bool], [Uint32], [Uint64],
// [String], [Array], [Struct], [Signature], [UnixFD], and the name
// types [ObjectPath], [InterfaceName], [BusName] and [MemberName].
type Value interface {
	// signatureDBus returns the DBus type signature of the value.
	signatureDBus() string
	// marshalDBus writes the value to e, including any leading
	// alignment padding.
	marshalDBus(e *fragments.Encoder) error
}

// Marshal returns the DBus wire encoding of vs, in order, using the
// given byte order.
func Marshal(ord fragments.ByteOrder, vs ...Value) ([]byte, error) {
	return MarshalAppend(nil, ord, vs...)
}

// MarshalAppend is like [Marshal], but appends to bs. Alignment is
// computed relative to the start of bs, so bs must be empty or hold
// the start of a message.
//
// If encoding fails, MarshalAppend returns a nil slice. bs may have
// been overwritten past its original length.
func MarshalAppend(bs []byte, ord fragments.ByteOrder, vs ...Value) ([]byte, error) {
	e := fragments.Encoder{
		Order: ord,
		Out:   bs,
	}
	if err := marshalValues(&e, vs); err != nil {
		return nil, err
	}
	return e.Out, nil
}

func marshalValues(e *fragments.Encoder, vs []Value) error {
	for _, v := range vs {
		if v == nil {
			return typeErr(v, "nil Value")
		}
		if err := v.marshalDBus(e); err != nil {
			return err
		}
	}
	return nil
}

// Byte is a DBus BYTE.
type Byte uint8

func (Byte) signatureDBus() string { return "y" }

func (b Byte) marshalDBus(e *fragments.Encoder) error {
	e.Uint8(uint8(b))
	return nil
}

// Bool is a DBus BOOLEAN. It encodes as a uint32 that is either 0
// or 1.
type Bool bool

func (Bool) signatureDBus() string { return "b" }

func (b Bool) marshalDBus(e *fragments.Encoder) error {
	v := uint32(0)
	if b {
		v = 1
	}
	e.Uint32(v)
	return nil
}

// Uint32 is a DBus UINT32.
type Uint32 uint32

func (Uint32) signatureDBus() string { return "u" }

func (u Uint32) marshalDBus(e *fragments.Encoder) error {
	e.Uint32(uint32(u))
	return nil
}

// Uint64 is a DBus UINT64.
type Uint64 uint64

func (Uint64) signatureDBus() string { return "t" }

func (u Uint64) marshalDBus(e *fragments.Encoder) error {
	e.Uint64(uint64(u))
	return nil
}

// String is a DBus STRING. It must be valid UTF-8, and must not
// contain nul bytes.
type String string

func (String) signatureDBus() string { return "s" }

func (s String) marshalDBus(e *fragments.Encoder) error {
	if !utf8.ValidString(string(s)) {
		return typeErr(s, "string is not valid UTF-8")
	}
	if strings.IndexByte(string(s), 0) >= 0 {
		return typeErr(s, "string contains a nul byte")
	}
	return e.String(string(s))
}

// Array is a DBus ARRAY of values of type T.
//
// All elements of an Array must have the same DBus type. The element
// type of an empty Array is the type of T's zero value, so empty
// arrays of [Struct] or of a non-concrete element type cannot be
// encoded.
type Array[T Value] []T

func (a Array[T]) elemSignature() string {
	if len(a) > 0 {
		if any(a[0]) == nil {
			return ""
		}
		return a[0].signatureDBus()
	}
	var zero T
	if any(zero) == nil {
		return ""
	}
	return zero.signatureDBus()
}

func (a Array[T]) signatureDBus() string { return "a" + a.elemSignature() }

func (a Array[T]) marshalDBus(e *fragments.Encoder) error {
	for i, v := range a {
		if any(v) == nil {
			return typeErr(a, "array element %d is nil", i)
		}
	}
	sig := a.elemSignature()
	if sig == "" || sig == "()" {
		return typeErr(a, "cannot determine element type of empty array")
	}
	return e.Array(alignOf(sig[0]), func() error {
		for i, v := range a {
			if got := v.signatureDBus(); got != sig {
				return typeErr(a, "array element %d has type %q, want %q", i, got, sig)
			}
			if err := v.marshalDBus(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Struct is a DBus STRUCT, whose fields are the Struct's elements in
// order. A Struct must have at least one field.
type Struct []Value

func (s Struct) signatureDBus() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, f := range s {
		if f != nil {
			b.WriteString(f.signatureDBus())
		}
	}
	b.WriteByte(')')
	return b.String()
}

func (s Struct) marshalDBus(e *fragments.Encoder) error {
	if len(s) == 0 {
		return typeErr(s, "empty structs are not allowed")
	}
	return e.Struct(func() error {
		return marshalValues(e, s)
	})
}

func (Signature) signatureDBus() string { return "g" }

func (s Signature) marshalDBus(e *fragments.Encoder) error {
	return e.Signature(s.str)
}

func (ObjectPath) signatureDBus() string { return "o" }

func (p ObjectPath) marshalDBus(e *fragments.Encoder) error {
	return marshalName(e, p, p.b)
}

func (InterfaceName) signatureDBus() string { return "s" }

func (n InterfaceName) marshalDBus(e *fragments.Encoder) error {
	return marshalName(e, n, n.b)
}

func (BusName) signatureDBus() string { return "s" }

func (n BusName) marshalDBus(e *fragments.Encoder) error {
	return marshalName(e, n, n.b)
}

func (MemberName) signatureDBus() string { return "s" }

func (n MemberName) marshalDBus(e *fragments.Encoder) error {
	return marshalName(e, n, n.b)
}

// marshalName writes the nul-terminated name b as a DBus string.
func marshalName(e *fragments.Encoder, v Value, b []byte) error {
	if len(b) == 0 {
		return typeErr(v, "zero value is not a valid name")
	}
	return e.StringBytes(b[:len(b)-1])
}
