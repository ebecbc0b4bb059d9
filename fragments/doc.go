// package fragments provides low-level encoding helpers to construct
// DBus messages.
//
// The provided encoder is very low level, and does not encode any
// DBus semantics beyond alignment and length prefixes. It is the
// caller's responsibility to produce valid DBus messages using it.
//
// You should not need to use this package at all, unless you are
// assembling message fragments by hand, for example to inspect the
// exact bytes a header or body encodes to.
package fragments
