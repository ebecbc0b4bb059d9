package dbus

import (
	"github.com/danderson/dbuswire/fragments"
)

// variant is a DBus VARIANT: a type signature, followed by one value
// of that type.
//
// Variants only appear as values of header fields, so the type is
// not exported.
type variant struct {
	v Value
}

func (variant) signatureDBus() string { return "v" }

func (v variant) marshalDBus(e *fragments.Encoder) error {
	if v.v == nil {
		return typeErr(v, "variant has no value")
	}
	sig := v.v.signatureDBus()
	if _, err := ParseSignature(sig); err != nil {
		return typeErr(v, "invalid inner type: %w", err)
	}
	if err := e.Signature(sig); err != nil {
		return err
	}
	return v.v.marshalDBus(e)
}
