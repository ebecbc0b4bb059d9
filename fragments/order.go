package fragments

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/cpu"
)

// ByteOrder is a byte order that DBus can express in a message
// header.
type ByteOrder interface {
	byteOrder
	dbusFlag() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
}

func (w wrapStd) dbusFlag() byte {
	switch w.byteOrder {
	case binary.BigEndian:
		return 'B'
	case binary.LittleEndian:
		return 'l'
	case binary.NativeEndian:
		if cpu.IsBigEndian {
			return 'B'
		}
		return 'l'
	default:
		panic("unknown ByteOrder, how did you manage to make one of those?")
	}
}

var (
	BigEndian    = wrapStd{binary.BigEndian}
	LittleEndian = wrapStd{binary.LittleEndian}
	NativeEndian = wrapStd{binary.NativeEndian}
)

// Flag returns the DBus byte order mark for ord, 'l' or 'B'.
func Flag(ord ByteOrder) byte {
	return ord.dbusFlag()
}

// ParseByteOrderFlag returns the ByteOrder named by the DBus byte
// order mark b.
func ParseByteOrderFlag(b byte) (ByteOrder, error) {
	switch b {
	case 'l':
		return LittleEndian, nil
	case 'B':
		return BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order mark %q", b)
	}
}

// SameOrder reports whether a and b produce identical encodings.
func SameOrder(a, b ByteOrder) bool {
	return a.dbusFlag() == b.dbusFlag()
}
