// Package dbus produces byte-exact DBus messages.
//
// The package validates the four kinds of DBus names ([ObjectPath],
// [InterfaceName], [BusName] and [MemberName]) and type signatures
// ([Signature]), encodes a small set of wire values with the DBus
// alignment rules, and assembles them with a [Header] into a
// [Message] that any compliant bus accepts.
//
// Names are validated in a single forward pass over nul-terminated
// bytes, and the validated value is a view of the input rather than
// a copy:
//
//	buf := []byte("/org/freedesktop/DBus\x00trailing data")
//	path, err := dbus.ObjectPathFromBytes(buf)
//	// path.Bytes() is buf[:22]
//
// The Parse functions copy a Go string instead, for names that come
// from the program itself.
//
// Wire values implement the closed [Value] interface: [Byte], [Bool],
// [Uint32], [Uint64], [String], [Array], [Struct], [Signature],
// [UnixFD], and the name types. Every value is aligned relative to
// the start of the message, so a message body must be encoded in one
// buffer from its first byte:
//
//	m := dbus.NewSignal(path, iface, member)
//	if err := m.Append(dbus.String("hello"), dbus.Uint32(42)); err != nil {
//	    return err
//	}
//	conn, err := dbus.SessionBus(ctx)
//	...
//	serial, err := conn.Send(ctx, m)
//
// A [Conn] only sends. It reads and discards whatever the bus sends
// back, and does not decode replies.
package dbus
