package fragments_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danderson/dbuswire/fragments"
)

func TestEncoder(t *testing.T) {
	tests := []struct {
		name string
		in   func(*fragments.Encoder)
		want []byte
	}{
		{
			"raw bytes",
			func(e *fragments.Encoder) {
				e.Write([]byte{1, 2, 3})
			},
			[]byte{0x01, 0x02, 0x03},
		},

		{
			"string",
			func(e *fragments.Encoder) {
				e.String("foo")
			},
			[]byte{
				0x00, 0x00, 0x00, 0x03, // length
				0x66, 0x6f, 0x6f, // val
				0x00, // terminator
			},
		},

		{
			"empty string",
			func(e *fragments.Encoder) {
				e.String("")
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
				0x00, // terminator
			},
		},

		{
			"signature",
			func(e *fragments.Encoder) {
				e.Signature("a(uu)")
			},
			[]byte{
				0x05,                         // length
				0x61, 0x28, 0x75, 0x75, 0x29, // val
				0x00, // terminator
			},
		},

		{
			"uints",
			func(e *fragments.Encoder) {
				e.Uint8(42)
				e.Uint32(42)
				e.Uint64(66)
			},
			[]byte{
				0x2a,
				0x00, 0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
			},
		},

		{
			"uints padding",
			func(e *fragments.Encoder) {
				e.Uint64(66)
				e.Write([]byte{0})
				e.Uint32(42)
				e.Write([]byte{0})
				e.Uint8(42)
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00,             // raw
				0x00, 0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x2a,
				0x00, // raw
				0x2a,
			},
		},

		{
			"strings repad",
			func(e *fragments.Encoder) {
				e.String("foo")
				e.String("+")
				e.String("bar")
			},
			[]byte{
				0x00, 0x00, 0x00, 0x03, 'f', 'o', 'o', 0x00,
				0x00, 0x00, 0x00, 0x01, '+', 0x00,
				0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x03, 'b', 'a', 'r', 0x00,
			},
		},

		{
			"struct padding",
			func(e *fragments.Encoder) {
				e.Struct(func() error {
					e.Uint64(66)
					return nil
				})
				e.Struct(func() error {
					e.Uint32(42)
					return nil
				})
				e.Struct(func() error {
					e.Uint8(42)
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, // pad
				0x2a,
			},
		},

		{
			"array",
			func(e *fragments.Encoder) {
				e.Array(4, func() error {
					e.Uint32(1)
					e.Uint32(2)
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x08, // length
				0x00, 0x00, 0x00, 0x01,
				0x00, 0x00, 0x00, 0x02,
			},
		},

		{
			"empty array",
			func(e *fragments.Encoder) {
				e.Array(4, func() error { return nil })
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
			},
		},

		{
			"uint64 array",
			func(e *fragments.Encoder) {
				e.Array(8, func() error {
					e.Uint64(5)
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x08, // length
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
			},
		},

		{
			"struct array",
			func(e *fragments.Encoder) {
				e.Array(8, func() error {
					e.Struct(func() error {
						e.Uint8(1)
						return nil
					})
					e.Struct(func() error {
						e.Uint8(2)
						return nil
					})
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x09, // length
				0x00, 0x00, 0x00, 0x00, // pad
				0x01,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x02,
			},
		},

		{
			"empty struct array",
			func(e *fragments.Encoder) {
				e.Array(8, func() error { return nil })
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, // length
				0x00, 0x00, 0x00, 0x00, // pad
			},
		},

		{
			"array followed by other stuff",
			func(e *fragments.Encoder) {
				e.Array(4, func() error {
					e.Uint32(1)
					return nil
				})
				e.Uint8(3)
			},
			[]byte{
				0x00, 0x00, 0x00, 0x04, // length
				0x00, 0x00, 0x00, 0x01,
				0x03,
			},
		},

		{
			"string array",
			func(e *fragments.Encoder) {
				e.Array(4, func() error {
					e.String("fo")
					e.String("bar")
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x10, // length
				0x00, 0x00, 0x00, 0x02, 'f', 'o', 0x00,
				0x00, // pad
				0x00, 0x00, 0x00, 0x03, 'b', 'a', 'r', 0x00,
			},
		},

		{
			"byte order flag",
			func(e *fragments.Encoder) {
				e.Order = fragments.BigEndian
				e.ByteOrderFlag()
				e.Order = fragments.LittleEndian
				e.ByteOrderFlag()
			},
			[]byte{'B', 'l'},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := fragments.Encoder{
				Order: fragments.BigEndian,
			}
			tc.in(&e)
			if got := e.Out; !bytes.Equal(got, tc.want) {
				t.Errorf("incorrect encode:\n  got: % x\n want: % x", got, tc.want)
			} else if testing.Verbose() {
				t.Logf("encoder got: % x", got)
			}
		})
	}
}

func TestPad(t *testing.T) {
	for _, start := range []int{0, 1, 2, 3, 5, 7, 8, 9, 13} {
		for _, align := range []int{1, 2, 4, 8} {
			e := fragments.Encoder{
				Order: fragments.LittleEndian,
				Out:   bytes.Repeat([]byte{0xff}, start),
			}
			e.Pad(align)
			wantPad := (align - start%align) % align
			if got := len(e.Out) - start; got != wantPad {
				t.Errorf("Pad(%d) at offset %d added %d bytes, want %d", align, start, got, wantPad)
			}
			if len(e.Out)%align != 0 {
				t.Errorf("Pad(%d) at offset %d left length %d", align, start, len(e.Out))
			}
			for i, b := range e.Out[start:] {
				if b != 0 {
					t.Errorf("Pad(%d) at offset %d wrote non-zero pad byte %x at %d", align, start, b, start+i)
				}
			}
		}
	}
}

func TestPadInvalid(t *testing.T) {
	for _, align := range []int{-1, 0, 9, 16} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Pad(%d) did not panic", align)
				}
			}()
			var e fragments.Encoder
			e.Pad(align)
		}()
	}
}

func TestArrayElementError(t *testing.T) {
	e := fragments.Encoder{Order: fragments.LittleEndian}
	wantErr := errors.New("boom")
	err := e.Array(4, func() error {
		e.Uint32(1)
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Array() err = %v, want %v", err, wantErr)
	}
}

func TestSignatureTooLong(t *testing.T) {
	e := fragments.Encoder{Order: fragments.LittleEndian}
	if err := e.Signature(strings.Repeat("u", 256)); !errors.Is(err, fragments.ErrTooLong) {
		t.Fatalf("Signature(256 bytes) err = %v, want ErrTooLong", err)
	}
	if len(e.Out) != 0 {
		t.Fatalf("Signature(256 bytes) wrote % x, want nothing", e.Out)
	}
	if err := e.Signature(strings.Repeat("u", 255)); err != nil {
		t.Fatalf("Signature(255 bytes) err = %v", err)
	}
}

func TestByteOrderFlag(t *testing.T) {
	tests := []struct {
		in      byte
		want    fragments.ByteOrder
		wantErr bool
	}{
		{'l', fragments.LittleEndian, false},
		{'B', fragments.BigEndian, false},
		{'b', nil, true},
		{0, nil, true},
	}
	for _, tc := range tests {
		got, err := fragments.ParseByteOrderFlag(tc.in)
		if gotErr := err != nil; gotErr != tc.wantErr {
			t.Errorf("ParseByteOrderFlag(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		if !fragments.SameOrder(got, tc.want) {
			t.Errorf("ParseByteOrderFlag(%q) = %v, want %v", tc.in, got, tc.want)
		}
		if f := fragments.Flag(got); f != tc.in {
			t.Errorf("Flag(ParseByteOrderFlag(%q)) = %q", tc.in, f)
		}
	}
}
