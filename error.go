package dbus

import (
	"fmt"
)

// TypeError is the error returned when a value cannot be represented
// in the DBus wire format.
type TypeError struct {
	// Type is the name of the type that caused the error.
	Type string
	// Reason is an explanation of why the type isn't representable by
	// DBus.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("dbus cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(v any, reason string, args ...any) error {
	return TypeError{fmt.Sprintf("%T", v), fmt.Errorf(reason, args...)}
}

// NameError is the error returned when a byte string does not
// satisfy the grammar of a DBus name.
type NameError struct {
	// Kind is the kind of name that failed validation, for example
	// "object path".
	Kind string
	// Name is a copy of the rejected input, up to its nul terminator
	// if it has one.
	Name string
	// Reason wraps one of the ErrXxx name grammar errors, with
	// additional detail.
	Reason error
}

func (e NameError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Name, e.Reason)
}

func (e NameError) Unwrap() error {
	return e.Reason
}

// SignatureError is the error returned when a string is not a valid
// DBus type signature.
type SignatureError struct {
	// Sig is the rejected signature.
	Sig string
	// Reason is one of [ErrElementRequired],
	// [ErrParenClosedBeforeOpen], an [InvalidTypeCodeError] or an
	// [UnclosedParenError].
	Reason error
}

func (e SignatureError) Error() string {
	return fmt.Sprintf("invalid type signature %q: %s", e.Sig, e.Reason)
}

func (e SignatureError) Unwrap() error {
	return e.Reason
}

// CallError is the payload of a DBus error message.
type CallError struct {
	// Name is the DBus error name, for example
	// "org.freedesktop.DBus.Error.UnknownMethod".
	Name string
	// Detail is the human-readable explanation of what went wrong.
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Detail)
}
