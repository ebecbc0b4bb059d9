package dbus

import (
	"os"

	"github.com/creachadair/mds/value"
	"github.com/danderson/dbuswire/fragments"
)

// UnixFD is a DBus UNIX_FD value: the index of a file attached to
// the message with [Message.AttachFile].
//
// The file itself is sent alongside the message as ancillary data,
// see [Conn.Send].
type UnixFD uint32

func (UnixFD) signatureDBus() string { return "h" }

func (u UnixFD) marshalDBus(e *fragments.Encoder) error {
	e.Uint32(uint32(u))
	return nil
}

// AttachFile attaches f to the message, and returns the UnixFD that
// refers to it in the message body.
//
// The message does not take ownership of f. The caller must keep f
// open until the message has been sent.
func (m *Message) AttachFile(f *os.File) UnixFD {
	m.files = append(m.files, f)
	m.Header.UnixFDs = value.Just(uint32(len(m.files)))
	return UnixFD(len(m.files) - 1)
}

// Files returns the files attached to the message.
func (m *Message) Files() []*os.File {
	return m.files
}
