package main

import (
	"encoding/hex"
	"os"
	"testing"

	dbus "github.com/danderson/dbuswire"
	"github.com/danderson/dbuswire/fragments"
	"github.com/google/go-cmp/cmp"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want string // hex of little endian encoding
	}{
		{"y:7", "07"},
		{"b:true", "01000000"},
		{"u:0x18", "18000000"},
		{"t:5", "0500000000000000"},
		{"s:foo", "03000000666f6f00"},
		{"o:/a", "020000002f6100"},
		{"g:ai", "02616900"},
		{"au:1,2", "080000000100000002000000"},
		{"as:", "00000000"},
		{"ay:1,,2", "020000000102"},
	}
	for _, tc := range tests {
		v, err := parseValue(nil, tc.in)
		if err != nil {
			t.Errorf("parseValue(%q) got err: %v", tc.in, err)
			continue
		}
		bs, err := dbus.Marshal(fragments.LittleEndian, v)
		if err != nil {
			t.Errorf("Marshal(%q) got err: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(hex.EncodeToString(bs), tc.want); diff != "" {
			t.Errorf("parseValue(%q) wrong encoding (-got+want):\n%s", tc.in, diff)
		}
	}
}

func TestParseValueErrors(t *testing.T) {
	for _, in := range []string{"7", "y:256", "b:maybe", "u:-1", "o:a", "g:a", "x:1", "a:1", "av:1", "au:1,x"} {
		if v, err := parseValue(nil, in); err == nil {
			t.Errorf("parseValue(%q) = %v, want error", in, v)
		}
	}
}

func TestParseValueFile(t *testing.T) {
	m := dbus.NewSignal(
		must(dbus.ParseObjectPath("/a")),
		must(dbus.ParseInterfaceName("a.b")),
		must(dbus.ParseMemberName("C")))
	v, err := parseValue(m, "h:"+os.DevNull)
	if err != nil {
		t.Fatalf("parseValue(h) got err: %v", err)
	}
	defer closeFiles(m)
	if v != dbus.UnixFD(0) {
		t.Errorf("parseValue(h) = %v, want UnixFD 0", v)
	}
	if len(m.Files()) != 1 {
		t.Errorf("message has %d files attached, want 1", len(m.Files()))
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		kind, name string
		ok         bool
	}{
		{"path", "/org/example", true},
		{"path", "org/example", false},
		{"interface", "org.example.Foo", true},
		{"interface", "org", false},
		{"bus", ":1.42", true},
		{"bus", "1.42", false},
		{"member", "Ping", true},
		{"member", "a.b", false},
		{"error", "org.example.Error.Failed", true},
	}
	for _, tc := range tests {
		err := validators[tc.kind](tc.name)
		if got := err == nil; got != tc.ok {
			t.Errorf("validate %s %q = %v, want ok=%v", tc.kind, tc.name, err, tc.ok)
		}
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
