package dbus

import (
	"errors"
	"fmt"
	"os"

	"github.com/creachadair/mds/value"
	"github.com/danderson/dbuswire/fragments"
)

const (
	// maxMessageSize is the largest message DBus allows, in bytes.
	maxMessageSize = 1 << 27
	// maxSignatureLength is the largest type signature DBus allows.
	maxSignatureLength = 255
)

// A Message is a DBus message under construction: a header, and a
// body of encoded values.
//
// A Message is not safe for concurrent use. Independent Messages may
// be built concurrently.
type Message struct {
	Header Header

	body  fragments.Encoder
	files []*os.File
}

func newMessage(t MessageType) *Message {
	hdr := NewHeader()
	hdr.Type = t
	return &Message{
		Header: hdr,
		body: fragments.Encoder{
			Order: hdr.Order,
		},
	}
}

// NewMethodCall returns a method call message. dest and iface may be
// zero values, in which case they are omitted from the message.
func NewMethodCall(dest BusName, path ObjectPath, iface InterfaceName, member MemberName) *Message {
	ret := newMessage(TypeMethodCall)
	ret.Header.Destination = dest
	ret.Header.Path = path
	ret.Header.Interface = iface
	ret.Header.Member = member
	return ret
}

// NewMethodReturn returns a reply to the method call with the given
// serial.
func NewMethodReturn(replySerial uint32) *Message {
	ret := newMessage(TypeMethodReturn)
	ret.Header.ReplySerial = value.Just(replySerial)
	return ret
}

// NewSignal returns a signal message.
func NewSignal(path ObjectPath, iface InterfaceName, member MemberName) *Message {
	ret := newMessage(TypeSignal)
	ret.Header.Path = path
	ret.Header.Interface = iface
	ret.Header.Member = member
	return ret
}

// NewError returns an error reply to the method call with the given
// serial. ce.Name must be a valid error name, which has the same
// grammar as an interface name. If ce.Detail is not empty, it is
// sent as the message body.
func NewError(replySerial uint32, ce CallError) (*Message, error) {
	name, err := ParseInterfaceName(ce.Name)
	if err != nil {
		return nil, fmt.Errorf("invalid error name: %w", err)
	}
	ret := newMessage(TypeMethodError)
	ret.Header.ReplySerial = value.Just(replySerial)
	ret.Header.ErrorName = name
	if ce.Detail != "" {
		if err := ret.Append(String(ce.Detail)); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// Append encodes vs to the end of the message body, and extends the
// message's body signature to match.
//
// Append is atomic: if any value fails to encode, the body and
// signature are left as they were before the call.
func (m *Message) Append(vs ...Value) error {
	if len(m.body.Out) == 0 {
		m.body.Order = m.Header.Order
	} else if !fragments.SameOrder(m.body.Order, m.Header.Order) {
		return errors.New("header byte order changed after body was written")
	}
	if m.body.Order == nil {
		return errors.New("missing byte order")
	}

	sig, err := SignatureOf(vs...)
	if err != nil {
		return err
	}
	newSig := m.Header.Signature.str + sig.str
	if len(newSig) > maxSignatureLength {
		return fmt.Errorf("body signature %q: %w", newSig, fragments.ErrTooLong)
	}

	mark := len(m.body.Out)
	if err := marshalValues(&m.body, vs); err != nil {
		m.body.Out = m.body.Out[:mark]
		return err
	}
	if len(m.body.Out) > maxMessageSize {
		m.body.Out = m.body.Out[:mark]
		return fmt.Errorf("message body exceeds %d bytes: %w", maxMessageSize, fragments.ErrTooLong)
	}
	m.Header.Signature = Signature{newSig}
	return nil
}

// Body returns the encoded message body. The returned slice shares
// storage with the Message, and is only valid until the next call to
// Append.
func (m *Message) Body() []byte {
	return m.body.Out
}

// Len returns the length of the encoded message body.
func (m *Message) Len() int {
	return len(m.body.Out)
}

// Marshal returns the wire encoding of the message.
//
// Marshal sets the header's BodyLength to the encoded length of the
// body, then checks that the header is valid before encoding
// anything.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.body.Out) > 0 && !fragments.SameOrder(m.body.Order, m.Header.Order) {
		return nil, errors.New("header byte order changed after body was written")
	}
	if len(m.body.Out) > 0 && m.Header.Signature.IsZero() {
		return nil, errors.New("message has a body but no body signature")
	}
	if n, _ := m.Header.UnixFDs.GetOK(); int(n) != len(m.files) {
		return nil, fmt.Errorf("header declares %d file descriptors, but %d are attached", n, len(m.files))
	}
	m.Header.BodyLength = uint32(len(m.body.Out))
	if err := m.Header.Valid(); err != nil {
		return nil, fmt.Errorf("invalid message header: %w", err)
	}

	e := fragments.Encoder{
		Order: m.Header.Order,
	}
	if err := m.Header.MarshalDBus(&e); err != nil {
		return nil, err
	}
	e.Write(m.body.Out)
	if len(e.Out) > maxMessageSize {
		return nil, fmt.Errorf("message exceeds %d bytes: %w", maxMessageSize, fragments.ErrTooLong)
	}
	return e.Out, nil
}
