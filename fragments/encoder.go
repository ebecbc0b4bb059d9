package fragments

import (
	"errors"
	"fmt"
	"math"
)

// ErrTooLong is the error returned when a string or array is longer
// than its DBus length prefix can describe.
var ErrTooLong = errors.New("value too long for DBus length prefix")

// maxLength is the largest byte count a uint32 length prefix can
// describe.
var maxLength uint64 = math.MaxUint32

// maxSignatureLength is the largest byte count of a signature's
// uint8 length prefix.
const maxSignatureLength = math.MaxUint8

// An Encoder provides utilities to write a DBus wire format message
// to a byte slice.
//
// Methods insert padding as needed to conform to DBus alignment
// rules, except for [Encoder.Write] which outputs bytes verbatim.
// Alignment is always computed relative to the start of Out, so Out
// must begin at the start of a message, or at an 8-byte aligned
// offset within one.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Out is the encoded output.
	Out []byte
}

// Pad inserts padding bytes as needed to make the message a multiple
// of align bytes. If the message is already correctly aligned, no
// padding is inserted.
//
// DBus alignments are between 1 and 8 bytes. Pad panics if given
// anything else, since that can only be a bug in the caller.
func (e *Encoder) Pad(align int) {
	if align < 1 || align > 8 {
		panic(fmt.Sprintf("invalid DBus alignment %d", align))
	}
	extra := len(e.Out) % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Out = append(e.Out, pad[:align-extra]...)
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// String writes s to the output.
//
// If s is too long for a DBus string, String returns [ErrTooLong] and
// writes nothing.
func (e *Encoder) String(s string) error {
	if uint64(len(s)) > maxLength {
		return ErrTooLong
	}
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
	return nil
}

// StringBytes is like [Encoder.String], but takes the string's
// bytes as a slice. bs must not include a nul terminator.
func (e *Encoder) StringBytes(bs []byte) error {
	if uint64(len(bs)) > maxLength {
		return ErrTooLong
	}
	e.Uint32(uint32(len(bs)))
	e.Out = append(e.Out, bs...)
	e.Out = append(e.Out, 0)
	return nil
}

// Signature writes the type signature s to the output.
//
// Signatures have a single byte length prefix. If s is longer than
// 255 bytes, Signature returns [ErrTooLong] and writes nothing.
func (e *Encoder) Signature(s string) error {
	if len(s) > maxSignatureLength {
		return ErrTooLong
	}
	e.Uint8(uint8(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
	return nil
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.Out = append(e.Out, u8)
}

// Uint32 writes uint32.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes uint64.
func (e *Encoder) Uint64(u64 uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// Array writes an array to the output.
//
// Array elements must be added within the provided elements
// function. The elements function is responsible for padding each
// array element to the correct alignment for the element type.
//
// elemAlign is the alignment of the array's element type. The array
// header is padded to that alignment even if the array is empty.
//
// The array's length prefix is the number of bytes elements wrote,
// excluding the padding between the length prefix and the first
// element. If that count does not fit in the length prefix, Array
// discards the array header and elements and returns [ErrTooLong].
func (e *Encoder) Array(elemAlign int, elements func() error) error {
	e.Pad(4)
	offset := len(e.Out)
	e.Uint32(0)
	e.Pad(elemAlign)

	start := len(e.Out)
	if err := elements(); err != nil {
		return err
	}
	n := uint64(len(e.Out) - start)
	if n > maxLength {
		e.Out = e.Out[:offset]
		return ErrTooLong
	}
	e.Order.PutUint32(e.Out[offset:], uint32(n))

	return nil
}

// Struct writes a struct to the output.
//
// Struct fields must be added within the provided fields function.
func (e *Encoder) Struct(fields func() error) error {
	e.Pad(8)
	return fields()
}

// ByteOrderFlag writes the DBus byte order flag byte ('l' or 'B')
// that matches [Encoder.Order].
func (e *Encoder) ByteOrderFlag() {
	e.Uint8(e.Order.dbusFlag())
}
