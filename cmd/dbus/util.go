package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/creachadair/mds/slice"
	dbus "github.com/danderson/dbuswire"
	"github.com/danderson/dbuswire/fragments"
)

func nameCheck[T any](parse func(string) (T, error)) func(string) error {
	return func(s string) error {
		_, err := parse(s)
		return err
	}
}

var validators = map[string]func(string) error{
	"path":      nameCheck(dbus.ParseObjectPath),
	"interface": nameCheck(dbus.ParseInterfaceName),
	"bus":       nameCheck(dbus.ParseBusName),
	"member":    nameCheck(dbus.ParseMemberName),
	// Error names share the interface name grammar.
	"error": nameCheck(dbus.ParseInterfaceName),
}

// parseValues parses command line values of the form code:text.
// Files named by h values are opened and attached to m.
func parseValues(m *dbus.Message, args []string) ([]dbus.Value, error) {
	ret := make([]dbus.Value, 0, len(args))
	for _, arg := range args {
		v, err := parseValue(m, arg)
		if err != nil {
			return nil, fmt.Errorf("parsing value %q: %w", arg, err)
		}
		ret = append(ret, v)
	}
	return ret, nil
}

func parseValue(m *dbus.Message, arg string) (dbus.Value, error) {
	code, text, ok := strings.Cut(arg, ":")
	if !ok {
		return nil, fmt.Errorf("missing type code, want code:value")
	}
	if elem, ok := strings.CutPrefix(code, "a"); ok {
		elems := slices.Collect(slice.Select(strings.Split(text, ","), func(s string) bool {
			return s != ""
		}))
		return parseArray(elem, elems)
	}
	switch code {
	case "h":
		f, err := os.Open(text)
		if err != nil {
			return nil, err
		}
		return m.AttachFile(f), nil
	default:
		return parseBasic(code, text)
	}
}

func parseBasic(code, text string) (dbus.Value, error) {
	switch code {
	case "y":
		n, err := strconv.ParseUint(text, 0, 8)
		return dbus.Byte(n), err
	case "b":
		b, err := strconv.ParseBool(text)
		return dbus.Bool(b), err
	case "u":
		n, err := strconv.ParseUint(text, 0, 32)
		return dbus.Uint32(n), err
	case "t":
		n, err := strconv.ParseUint(text, 0, 64)
		return dbus.Uint64(n), err
	case "s":
		return dbus.String(text), nil
	case "o":
		return dbus.ParseObjectPath(text)
	case "g":
		return dbus.ParseSignature(text)
	default:
		return nil, fmt.Errorf("unsupported type code %q", code)
	}
}

func parseArray(code string, elems []string) (dbus.Value, error) {
	switch code {
	case "y":
		return arrayOf[dbus.Byte](code, elems)
	case "b":
		return arrayOf[dbus.Bool](code, elems)
	case "u":
		return arrayOf[dbus.Uint32](code, elems)
	case "t":
		return arrayOf[dbus.Uint64](code, elems)
	case "s":
		return arrayOf[dbus.String](code, elems)
	case "o":
		return arrayOf[dbus.ObjectPath](code, elems)
	case "g":
		return arrayOf[dbus.Signature](code, elems)
	default:
		return nil, fmt.Errorf("unsupported array element type %q", code)
	}
}

func arrayOf[T dbus.Value](code string, elems []string) (dbus.Array[T], error) {
	ret := make(dbus.Array[T], 0, len(elems))
	for _, e := range elems {
		v, err := parseBasic(code, e)
		if err != nil {
			return nil, err
		}
		ret = append(ret, v.(T))
	}
	return ret, nil
}

// headerSummary is a printable view of a message header.
type headerSummary struct {
	ByteOrder  string
	Type       string
	Flags      string
	Serial     uint32
	BodyLength uint32
	Fields     map[string]string
}

func summarize(h *dbus.Header) headerSummary {
	ret := headerSummary{
		ByteOrder:  string(fragments.Flag(h.Order)),
		Type:       h.Type.String(),
		Flags:      h.Flags.String(),
		Serial:     h.Serial,
		BodyLength: h.BodyLength,
		Fields:     map[string]string{},
	}
	for _, f := range h.Fields() {
		ret.Fields[f.Code.String()] = fmt.Sprint(f.Value)
	}
	return ret
}
