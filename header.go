package dbus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creachadair/mds/value"
	"github.com/danderson/dbuswire/fragments"
)

// ProtocolVersion is the DBus protocol version implemented by this
// package.
const ProtocolVersion = 1

// MessageType is the type of a DBus message.
type MessageType byte

const (
	TypeInvalid MessageType = iota
	TypeMethodCall
	TypeMethodReturn
	TypeMethodError
	TypeSignal
)

var msgTypeNames = [...]string{
	TypeInvalid:      "invalid",
	TypeMethodCall:   "method_call",
	TypeMethodReturn: "method_return",
	TypeMethodError:  "error",
	TypeSignal:       "signal",
}

func (t MessageType) String() string {
	if int(t) < len(msgTypeNames) {
		return msgTypeNames[t]
	}
	return fmt.Sprintf("MessageType(%d)", byte(t))
}

// ParseMessageType returns the MessageType encoded by b. Unknown
// message types are rejected.
func ParseMessageType(b byte) (MessageType, error) {
	if int(b) >= len(msgTypeNames) {
		return 0, fmt.Errorf("unknown message type %d", b)
	}
	return MessageType(b), nil
}

// Flags is the set of flags in a message header.
type Flags byte

const (
	// FlagNoReplyExpected indicates that the sender of a method call
	// does not want a reply.
	FlagNoReplyExpected Flags = 1 << iota
	// FlagNoAutoStart asks the bus not to launch the destination
	// service to handle the message.
	FlagNoAutoStart
	// FlagAllowInteractiveAuth indicates that the sender is prepared
	// to wait for an interactive authorization prompt.
	FlagAllowInteractiveAuth

	allFlags = FlagNoReplyExpected | FlagNoAutoStart | FlagAllowInteractiveAuth
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FlagNoReplyExpected, "NoReplyExpected"},
	{FlagNoAutoStart, "NoAutoStart"},
	{FlagAllowInteractiveAuth, "AllowInteractiveAuth"},
}

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	for _, n := range flagNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	if extra := f &^ allFlags; extra != 0 {
		parts = append(parts, fmt.Sprintf("%#x", byte(extra)))
	}
	return strings.Join(parts, "|")
}

// ParseFlags returns the Flags encoded by b. Unknown flag bits are
// rejected.
func ParseFlags(b byte) (Flags, error) {
	f := Flags(b)
	if extra := f &^ allFlags; extra != 0 {
		return 0, fmt.Errorf("unknown header flags %#x", byte(extra))
	}
	return f, nil
}

// FieldCode identifies a header field.
type FieldCode byte

const (
	// FieldInvalid is never present in a message.
	FieldInvalid FieldCode = iota
	FieldPath
	FieldInterface
	FieldMember
	FieldErrorName
	FieldReplySerial
	FieldDestination
	FieldSender
	FieldSignature
	FieldUnixFDs
)

var fieldNames = [...]string{
	FieldInvalid:     "INVALID",
	FieldPath:        "PATH",
	FieldInterface:   "INTERFACE",
	FieldMember:      "MEMBER",
	FieldErrorName:   "ERROR_NAME",
	FieldReplySerial: "REPLY_SERIAL",
	FieldDestination: "DESTINATION",
	FieldSender:      "SENDER",
	FieldSignature:   "SIGNATURE",
	FieldUnixFDs:     "UNIX_FDS",
}

func (c FieldCode) String() string {
	if int(c) < len(fieldNames) {
		return fieldNames[c]
	}
	return fmt.Sprintf("FieldCode(%d)", byte(c))
}

// ParseFieldCode returns the FieldCode encoded by b. FieldInvalid and
// unknown codes are rejected.
func ParseFieldCode(b byte) (FieldCode, error) {
	if b == byte(FieldInvalid) || int(b) >= len(fieldNames) {
		return 0, fmt.Errorf("invalid header field code %d", b)
	}
	return FieldCode(b), nil
}

// A HeaderField is a header field that is present in a message.
type HeaderField struct {
	Code FieldCode
	// Value is the field's value. Its type is determined by Code.
	Value Value
}

// Header is a DBus message header.
//
// Optional header fields are absent when they hold their zero value.
type Header struct {
	// Order is the byte order of the message. The header and body
	// are both encoded in this order.
	Order fragments.ByteOrder
	// Type is the message's type.
	Type MessageType
	// Flags is the message's flag byte.
	Flags Flags
	// Version is the DBus protocol version.
	Version uint8
	// BodyLength is the length of the message body, not including
	// the header or padding between header and body.
	BodyLength uint32
	// Serial is the serial for this message. It must be non-zero,
	// and is assigned by the connection that sends the message.
	Serial uint32

	// Path is the target object for a call, or the source object
	// for a signal. Required for TypeMethodCall and TypeSignal.
	Path ObjectPath
	// Interface is the interface to target for a call, or the
	// source interface for a signal. Required for TypeSignal.
	Interface InterfaceName
	// Member is the method name for a call, or signal name for a
	// signal. Required for TypeMethodCall and TypeSignal.
	Member MemberName
	// ErrorName is the name of the error that occurred. Required
	// for TypeMethodError.
	ErrorName InterfaceName
	// ReplySerial is the message serial to which this message is
	// replying. Required for TypeMethodReturn and TypeMethodError.
	ReplySerial value.Maybe[uint32]
	// Destination is the target for a message.
	Destination BusName
	// Sender is the unique name of the message sender. The message
	// bus populates this value itself.
	Sender BusName
	// Signature is the type signature of the message body. Absent
	// if the body is empty.
	Signature Signature
	// UnixFDs is the number of file descriptors attached to this
	// message.
	UnixFDs value.Maybe[uint32]
}

// NewHeader returns a little endian header for protocol version 1,
// with no type, flags, serial or fields.
func NewHeader() Header {
	return Header{
		Order:   fragments.LittleEndian,
		Type:    TypeInvalid,
		Version: ProtocolVersion,
	}
}

// Fields returns the header's present fields, in ascending field code
// order.
func (h *Header) Fields() []HeaderField {
	var ret []HeaderField
	add := func(c FieldCode, v Value) {
		ret = append(ret, HeaderField{c, v})
	}
	if !h.Path.IsZero() {
		add(FieldPath, h.Path)
	}
	if !h.Interface.IsZero() {
		add(FieldInterface, h.Interface)
	}
	if !h.Member.IsZero() {
		add(FieldMember, h.Member)
	}
	if !h.ErrorName.IsZero() {
		add(FieldErrorName, h.ErrorName)
	}
	if s, ok := h.ReplySerial.GetOK(); ok {
		add(FieldReplySerial, Uint32(s))
	}
	if !h.Destination.IsZero() {
		add(FieldDestination, h.Destination)
	}
	if !h.Sender.IsZero() {
		add(FieldSender, h.Sender)
	}
	if !h.Signature.IsZero() {
		add(FieldSignature, h.Signature)
	}
	if n, ok := h.UnixFDs.GetOK(); ok {
		add(FieldUnixFDs, Uint32(n))
	}
	return ret
}

// Valid checks that the message header is valid for its message type.
func (h *Header) Valid() error {
	if h.Order == nil {
		return errors.New("missing byte order")
	}
	if h.Version != ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d", h.Version)
	}
	if h.Serial == 0 {
		return errors.New("invalid message with zero Serial")
	}
	if extra := h.Flags &^ allFlags; extra != 0 {
		return fmt.Errorf("unknown header flags %#x", byte(extra))
	}
	if s, ok := h.ReplySerial.GetOK(); ok && s == 0 {
		return errors.New("invalid zero ReplySerial")
	}
	switch h.Type {
	case TypeMethodCall:
		if h.Path.IsZero() {
			return errors.New("missing required header field Path")
		}
		if h.Member.IsZero() {
			return errors.New("missing required header field Member")
		}
	case TypeMethodReturn:
		if !h.ReplySerial.Present() {
			return errors.New("missing required header field ReplySerial")
		}
	case TypeMethodError:
		if !h.ReplySerial.Present() {
			return errors.New("missing required header field ReplySerial")
		}
		if h.ErrorName.IsZero() {
			return errors.New("missing required header field ErrorName")
		}
	case TypeSignal:
		if h.Path.IsZero() {
			return errors.New("missing required header field Path")
		}
		if h.Interface.IsZero() {
			return errors.New("missing required header field Interface")
		}
		if h.Member.IsZero() {
			return errors.New("missing required header field Member")
		}
	default:
		return fmt.Errorf("invalid message type %s", h.Type)
	}
	return nil
}

// MarshalDBus writes the header to e, including the trailing padding
// that precedes the message body.
//
// e's output must be empty or 8-byte aligned, and e.Order must match
// h.Order. MarshalDBus does not check that the header is valid, see
// [Header.Valid].
func (h *Header) MarshalDBus(e *fragments.Encoder) error {
	if h.Order == nil {
		return errors.New("missing byte order")
	}
	if !fragments.SameOrder(e.Order, h.Order) {
		return fmt.Errorf("encoder byte order %q does not match header byte order %q", fragments.Flag(e.Order), fragments.Flag(h.Order))
	}
	if len(e.Out)%8 != 0 {
		return fmt.Errorf("header must start at an 8-byte boundary, not offset %d", len(e.Out))
	}

	e.ByteOrderFlag()
	e.Uint8(byte(h.Type))
	e.Uint8(byte(h.Flags))
	e.Uint8(h.Version)
	e.Uint32(h.BodyLength)
	e.Uint32(h.Serial)

	err := e.Array(alignOf('('), func() error {
		for _, f := range h.Fields() {
			fv := Struct{Byte(f.Code), variant{f.Value}}
			if err := fv.marshalDBus(e); err != nil {
				return fmt.Errorf("encoding header field %s: %w", f.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.Pad(8)
	return nil
}

// WantReply reports whether this message requires a response.
func (h *Header) WantReply() bool {
	return h.Type == TypeMethodCall && h.Flags&FlagNoReplyExpected == 0
}

// CanInteract reports whether the message's sender is prepared to
// wait for an interactive authorization prompt, if the sender lacks
// the necessary privileges for the message, and the bus or
// destination wish to trigger an interactive prompt.
func (h *Header) CanInteract() bool {
	return h.Type == TypeMethodCall && h.Flags&FlagAllowInteractiveAuth != 0
}

func (h *Header) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s serial=%d", h.Type, h.Serial)
	if h.Flags != 0 {
		fmt.Fprintf(&b, " flags=%s", h.Flags)
	}
	for _, f := range h.Fields() {
		fmt.Fprintf(&b, " %s=", strings.ToLower(f.Code.String()))
		switch v := f.Value.(type) {
		case Uint32:
			fmt.Fprintf(&b, "%d", uint32(v))
		case fmt.Stringer:
			fmt.Fprintf(&b, "%q", v.String())
		}
	}
	return b.String()
}
