package dbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/danderson/dbuswire/fragments"
	"github.com/danderson/dbuswire/transport"
	"github.com/rs/zerolog"
)

// SystemBus connects to the system bus.
func SystemBus(ctx context.Context) (*Conn, error) {
	addr, err := transport.SystemBusAddress()
	if err != nil {
		return nil, err
	}
	return DialAddress(ctx, addr)
}

// SessionBus connects to the current user's session bus.
func SessionBus(ctx context.Context) (*Conn, error) {
	addr, err := transport.SessionBusAddress()
	if err != nil {
		return nil, err
	}
	return DialAddress(ctx, addr)
}

// Dial connects to the bus listening on the unix socket at path, and
// sends the Hello call that registers the connection with the bus.
func Dial(ctx context.Context, path string) (*Conn, error) {
	return DialAddress(ctx, transport.Address{Path: path})
}

// DialAddress is like [Dial], but connects to a parsed bus address.
func DialAddress(ctx context.Context, addr transport.Address) (*Conn, error) {
	t, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	ret := NewConn(ctx, t)
	if _, err := ret.Hello(ctx); err != nil {
		ret.Close()
		return nil, fmt.Errorf("registering with bus: %w", err)
	}
	return ret, nil
}

// NewConn returns a Conn that sends messages over t. The caller is
// responsible for sending the initial Hello, see [Conn.Hello].
//
// The Conn logs to the zerolog logger in ctx, if any.
func NewConn(ctx context.Context, t transport.Transport) *Conn {
	ret := &Conn{
		t:        t,
		log:      zerolog.Ctx(ctx).With().Str("component", "dbus").Logger(),
		readDone: make(chan struct{}),
	}
	go ret.readLoop()
	return ret
}

// Conn is a send-only DBus connection.
//
// Conn assigns serial numbers to outgoing messages and writes them
// one at a time. Messages received from the bus are read and
// discarded, so that the bus never blocks on a full socket buffer.
type Conn struct {
	t   transport.Transport
	log zerolog.Logger

	writeMu    sync.Mutex
	lastSerial uint32

	mu       sync.Mutex
	closed   bool
	readDone chan struct{}
	readErr  error
}

// Close closes the DBus connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.t.Close()
	<-c.readDone
	return err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// nextSerial returns the next message serial. Serials are never
// zero. Must be called with writeMu held.
func (c *Conn) nextSerial() uint32 {
	c.lastSerial++
	if c.lastSerial == 0 {
		c.lastSerial++
	}
	return c.lastSerial
}

// Send assigns m a serial number, and writes it to the bus. It
// returns the serial used.
//
// Any attached files are sent along with the message, and method
// calls get the flags set by [WithCallFlags]. Sends are serialized:
// concurrent calls to Send write their messages whole, in serial
// order. If Send fails, m's header is restored and m may be sent
// again.
func (c *Conn) Send(ctx context.Context, m *Message) (uint32, error) {
	if c.isClosed() {
		return 0, net.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prevSerial, prevFlags := m.Header.Serial, m.Header.Flags
	if m.Header.Type == TypeMethodCall {
		m.Header.Flags |= contextCallFlags(ctx)
	}
	m.Header.Serial = c.nextSerial()
	bs, err := m.Marshal()
	if err != nil {
		c.lastSerial--
		m.Header.Serial, m.Header.Flags = prevSerial, prevFlags
		return 0, err
	}

	if _, err := c.t.WriteWithFiles(bs, m.Files()); err != nil {
		// Part of the message may have reached the bus, so its serial
		// stays used, but m is left as the caller passed it.
		c.log.Debug().Err(err).Uint32("serial", m.Header.Serial).Msg("write failed")
		m.Header.Serial, m.Header.Flags = prevSerial, prevFlags
		return 0, err
	}
	c.log.Debug().
		Stringer("type", m.Header.Type).
		Uint32("serial", m.Header.Serial).
		Int("len", len(bs)).
		Int("files", len(m.Files())).
		Msg("sent message")
	return m.Header.Serial, nil
}

var (
	busName   = BusNameUnchecked([]byte("org.freedesktop.DBus\x00"))
	busPath   = ObjectPathUnchecked([]byte("/org/freedesktop/DBus\x00"))
	busIface  = InterfaceNameUnchecked([]byte("org.freedesktop.DBus\x00"))
	helloName = MemberNameUnchecked([]byte("Hello\x00"))
)

// Hello sends the org.freedesktop.DBus.Hello call, which must be the
// first message sent on a bus connection. It returns the call's
// serial.
func (c *Conn) Hello(ctx context.Context) (uint32, error) {
	return c.Send(ctx, NewMethodCall(busName, busPath, busIface, helloName))
}

// Err returns the error that stopped the Conn's reader, or nil if
// the Conn is still running or was closed cleanly.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	for {
		err := c.skipMsg()
		if err == nil {
			continue
		}
		if c.isClosed() || errors.Is(err, net.ErrClosed) {
			return
		}
		// Anything else is a protocol violation or a dead socket,
		// and is fatal to the Conn.
		c.log.Error().Err(err).Msg("read error")
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
		return
	}
}

// skipMsg reads one complete message from c.t, and discards it
// without decoding more than the fixed part of its header.
func (c *Conn) skipMsg() error {
	var fixed [16]byte
	if _, err := io.ReadFull(c.t, fixed[:]); err != nil {
		return err
	}
	n, info, err := frameLength(fixed)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(io.Discard, c.t, int64(n)); err != nil {
		return err
	}
	// Nothing claims received files, close them rather than let
	// them pile up in the transport.
	files := c.t.DiscardFiles()
	c.log.Debug().
		Stringer("type", info.Type).
		Uint32("serial", info.Serial).
		Int("files", files).
		Msg("discarded received message")
	return nil
}

// frameLength returns the number of message bytes that follow the
// 16-byte fixed header prefix in fixed, and the header fields it
// could read from the prefix.
func frameLength(fixed [16]byte) (int, Header, error) {
	var hdr Header
	ord, err := fragments.ParseByteOrderFlag(fixed[0])
	if err != nil {
		return 0, hdr, err
	}
	hdr.Order = ord
	if hdr.Type, err = ParseMessageType(fixed[1]); err != nil {
		return 0, hdr, err
	}
	hdr.Flags = Flags(fixed[2])
	hdr.Version = fixed[3]
	if hdr.Version != ProtocolVersion {
		return 0, hdr, fmt.Errorf("unsupported protocol version %d", hdr.Version)
	}
	hdr.BodyLength = ord.Uint32(fixed[4:8])
	hdr.Serial = ord.Uint32(fixed[8:12])
	fieldsLen := uint64(ord.Uint32(fixed[12:16]))

	headerLen := 16 + fieldsLen
	headerLen += (8 - headerLen%8) % 8
	total := headerLen + uint64(hdr.BodyLength)
	if total > maxMessageSize {
		return 0, hdr, fmt.Errorf("received message of %d bytes exceeds maximum size %d", total, maxMessageSize)
	}
	return int(total - 16), hdr, nil
}
