package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	dbus "github.com/danderson/dbuswire"
	"github.com/danderson/dbuswire/fragments"
	"github.com/danderson/dbuswire/transport"
	"github.com/kr/pretty"
	"github.com/rs/zerolog"
)

var globalArgs struct {
	UseSessionBus bool   `flag:"session,Connect to session bus instead of system bus"`
	Address       string `flag:"address,DBus address to connect to instead of a standard bus"`
	LogLevel      string `flag:"log-level,default=warn,Log level for diagnostics on stderr"`
}

var msgArgs struct {
	Type        string `flag:"type,default=signal,Message type: call or return or error or signal"`
	Destination string `flag:"dest,Destination bus name"`
	Path        string `flag:"path,Object path"`
	Interface   string `flag:"interface,Interface name"`
	Member      string `flag:"member,Method or signal name"`
	ErrorName   string `flag:"error-name,Error name for error messages"`
	ReplySerial uint   `flag:"reply-serial,Serial of the call being answered"`
	NoReply     bool   `flag:"no-reply,Set the no reply expected flag on method calls"`
	BigEndian   bool   `flag:"big-endian,Encode the message big endian"`
}

var encodeArgs struct {
	Serial     uint `flag:"serial,default=1,Message serial"`
	ShowHeader bool `flag:"header,Print the message header before the encoding"`
}

func main() {
	root := &command.C{
		Name:     "dbus",
		Usage:    "command args...",
		Help:     "Validate DBus names and signatures, and encode and send DBus messages.",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Init: func(env *command.Env) error {
			env.SetContext(setupLogger(env.Context(), globalArgs.LogLevel))
			return nil
		},
		Commands: []*command.C{
			{
				Name:  "validate",
				Usage: "validate kind name...",
				Help: `Validate DBus names.

kind is one of: path, interface, bus, member, error.

Each name is checked against the grammar for its kind, and the result
is printed. The command fails if any name is invalid.`,
				Run: runValidate,
			},
			{
				Name:  "signature",
				Usage: "signature sig...",
				Help:  "Validate DBus type signatures.",
				Run:   runSignature,
			},
			{
				Name:  "encode",
				Usage: "encode [flags] value...",
				Help: `Encode a DBus message and print a hex dump of the wire bytes.

Each value is written as code:text, where code is a DBus type code
and text is the value. Supported codes are y, b, u, t, s, o, g and h,
and arrays of the basic codes written as for example au:1,2,3.

For h, text is a path to a file, which is attached to the message.`,
				SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
					flax.MustBind(fs, &msgArgs)
					flax.MustBind(fs, &encodeArgs)
				},
				Run: runEncode,
			},
			{
				Name:     "send",
				Usage:    "send [flags] value...",
				Help:     "Send a DBus message to the bus. Values are given as for encode.",
				SetFlags: command.Flags(flax.MustBind, &msgArgs),
				Run:      runSend,
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx).MergeFlags(true)
	command.RunOrFail(env, os.Args[1:])
}

// setupLogger returns ctx with a console logger attached. An unknown
// level falls back to warn.
func setupLogger(ctx context.Context, level string) context.Context {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	ll, err := zerolog.ParseLevel(level)
	if err != nil || ll == zerolog.NoLevel {
		ll = zerolog.WarnLevel
	}
	logger := zerolog.New(cw).Level(ll).With().Timestamp().Logger()
	return logger.WithContext(ctx)
}

func busConn(ctx context.Context) (*dbus.Conn, error) {
	switch {
	case globalArgs.Address != "":
		addr, err := transport.ParseAddress(globalArgs.Address)
		if err != nil {
			return nil, err
		}
		return dbus.DialAddress(ctx, addr)
	case globalArgs.UseSessionBus:
		return dbus.SessionBus(ctx)
	default:
		return dbus.SystemBus(ctx)
	}
}

func runValidate(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("need a kind and at least one name")
	}
	check, ok := validators[env.Args[0]]
	if !ok {
		return env.Usagef("unknown name kind %q", env.Args[0])
	}
	var failed int
	for _, name := range env.Args[1:] {
		if err := check(name); err != nil {
			fmt.Println(err)
			failed++
			continue
		}
		fmt.Printf("valid %s %q\n", env.Args[0], name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d names invalid", failed, len(env.Args)-1)
	}
	return nil
}

func runSignature(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("need at least one signature")
	}
	var failed int
	for _, s := range env.Args {
		sig, err := dbus.ParseSignature(s)
		if err != nil {
			fmt.Println(err)
			failed++
			continue
		}
		if sig.IsZero() {
			fmt.Println(`valid empty signature ""`)
		} else {
			fmt.Printf("valid signature %q\n", sig)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d signatures invalid", failed, len(env.Args))
	}
	return nil
}

func runEncode(env *command.Env) error {
	m, err := buildMessage(env.Args)
	if err != nil {
		return err
	}
	defer closeFiles(m)
	m.Header.Serial = uint32(encodeArgs.Serial)
	bs, err := m.Marshal()
	if err != nil {
		return err
	}
	if encodeArgs.ShowHeader {
		fmt.Printf("%# v\n", pretty.Formatter(summarize(&m.Header)))
	}
	fmt.Print(hex.Dump(bs))
	return nil
}

func runSend(env *command.Env) error {
	m, err := buildMessage(env.Args)
	if err != nil {
		return err
	}
	defer closeFiles(m)

	ctx, cancel := context.WithTimeout(env.Context(), 10*time.Second)
	defer cancel()
	conn, err := busConn(ctx)
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	serial, err := conn.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	zerolog.Ctx(ctx).Info().Uint32("serial", serial).Msg("message sent")
	fmt.Printf("sent %s with serial %d\n", m.Header.Type, serial)
	return nil
}

// buildMessage constructs the message described by msgArgs, with
// body values parsed from args.
func buildMessage(args []string) (*dbus.Message, error) {
	var (
		m   *dbus.Message
		err error
	)
	switch strings.ToLower(msgArgs.Type) {
	case "call", "method_call":
		m, err = newCall()
		if err == nil && msgArgs.NoReply {
			m.Header.Flags |= dbus.FlagNoReplyExpected
		}
	case "return", "method_return":
		m = dbus.NewMethodReturn(uint32(msgArgs.ReplySerial))
	case "error":
		m, err = dbus.NewError(uint32(msgArgs.ReplySerial), dbus.CallError{Name: msgArgs.ErrorName})
	case "signal":
		m, err = newSignal()
	default:
		return nil, fmt.Errorf("unknown message type %q", msgArgs.Type)
	}
	if err != nil {
		return nil, err
	}
	if msgArgs.BigEndian {
		m.Header.Order = fragments.BigEndian
	}

	vs, err := parseValues(m, args)
	if err != nil {
		closeFiles(m)
		return nil, err
	}
	if err := m.Append(vs...); err != nil {
		closeFiles(m)
		return nil, err
	}
	return m, nil
}

func newCall() (*dbus.Message, error) {
	var (
		dest  dbus.BusName
		iface dbus.InterfaceName
		err   error
	)
	if msgArgs.Destination != "" {
		if dest, err = dbus.ParseBusName(msgArgs.Destination); err != nil {
			return nil, err
		}
	}
	path, err := dbus.ParseObjectPath(msgArgs.Path)
	if err != nil {
		return nil, err
	}
	if msgArgs.Interface != "" {
		if iface, err = dbus.ParseInterfaceName(msgArgs.Interface); err != nil {
			return nil, err
		}
	}
	member, err := dbus.ParseMemberName(msgArgs.Member)
	if err != nil {
		return nil, err
	}
	return dbus.NewMethodCall(dest, path, iface, member), nil
}

func newSignal() (*dbus.Message, error) {
	path, err := dbus.ParseObjectPath(msgArgs.Path)
	if err != nil {
		return nil, err
	}
	iface, err := dbus.ParseInterfaceName(msgArgs.Interface)
	if err != nil {
		return nil, err
	}
	member, err := dbus.ParseMemberName(msgArgs.Member)
	if err != nil {
		return nil, err
	}
	ret := dbus.NewSignal(path, iface, member)
	if msgArgs.Destination != "" {
		if ret.Header.Destination, err = dbus.ParseBusName(msgArgs.Destination); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func closeFiles(m *dbus.Message) {
	var errs []error
	for _, f := range m.Files() {
		errs = append(errs, f.Close())
	}
	if err := errors.Join(errs...); err != nil {
		fmt.Fprintf(os.Stderr, "closing attached files: %v\n", err)
	}
}
