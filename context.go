package dbus

import (
	"context"
)

type callFlagsContextKey struct{}

// WithCallFlags returns a copy of ctx that makes [Conn.Send] set
// flags on the method calls it sends, in addition to the flags
// already present in their headers.
//
// Flags only apply to method calls. Other message types are sent
// unmodified.
func WithCallFlags(ctx context.Context, flags Flags) context.Context {
	return context.WithValue(ctx, callFlagsContextKey{}, flags|contextCallFlags(ctx))
}

func contextCallFlags(ctx context.Context) Flags {
	v := ctx.Value(callFlagsContextKey{})
	if v == nil {
		return 0
	}
	if ret, ok := v.(Flags); ok {
		return ret
	}
	return 0
}
