package dbus

import (
	"github.com/creachadair/mds/mapset"
)

var (
	// basicTypeCodes is the set of DBus type codes that describe a
	// complete type on their own.
	basicTypeCodes = mapset.New[byte](
		'y', // byte
		'b', // bool
		'n', // int16
		'q', // uint16
		'i', // int32
		'u', // uint32
		'x', // int64
		't', // uint64
		'd', // float64
		'h', // unix fd
		's', // string
		'o', // object path
		'g', // signature
	)

	// typeAlign maps the leading DBus type code of a type to its wire
	// alignment.
	typeAlign = map[byte]int{
		'y': 1,
		'b': 4,
		'n': 2,
		'q': 2,
		'i': 4,
		'u': 4,
		'x': 8,
		't': 8,
		'd': 8,
		'h': 4,
		's': 4,
		'o': 4,
		'g': 1,
		'v': 1,
		'a': 4,
		'(': 8,
		'{': 8,
	}
)

// alignOf returns the wire alignment of types whose signature begins
// with code.
func alignOf(code byte) int {
	ret, ok := typeAlign[code]
	if !ok {
		panic("alignOf called with unknown type code " + string(code))
	}
	return ret
}
