package fragments

import (
	"bytes"
	"errors"
	"testing"
)

func withMaxLength(t *testing.T, n uint64) {
	t.Helper()
	old := maxLength
	maxLength = n
	t.Cleanup(func() { maxLength = old })
}

func TestStringTooLong(t *testing.T) {
	withMaxLength(t, 4)

	e := Encoder{Order: LittleEndian, Out: []byte{0xff}}
	if err := e.String("abcde"); !errors.Is(err, ErrTooLong) {
		t.Fatalf("String() err = %v, want ErrTooLong", err)
	}
	if want := []byte{0xff}; !bytes.Equal(e.Out, want) {
		t.Fatalf("String() left % x, want % x", e.Out, want)
	}

	if err := e.String("abcd"); err != nil {
		t.Fatalf("String() at limit err = %v", err)
	}
}

func TestArrayTooLong(t *testing.T) {
	withMaxLength(t, 8)

	e := Encoder{Order: LittleEndian, Out: []byte{0xff}}
	err := e.Array(8, func() error {
		e.Uint64(1)
		e.Uint64(2)
		return nil
	})
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("Array() err = %v, want ErrTooLong", err)
	}
	// Only the padding before the discarded length prefix remains.
	if want := []byte{0xff, 0, 0, 0}; !bytes.Equal(e.Out, want) {
		t.Fatalf("Array() left % x, want % x", e.Out, want)
	}

	e.Out = nil
	err = e.Array(8, func() error {
		e.Uint64(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Array() at limit err = %v", err)
	}
	if want := []byte{8, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}; !bytes.Equal(e.Out, want) {
		t.Fatalf("Array() at limit = % x, want % x", e.Out, want)
	}
}
