// Package native binds raw.Surface to the embeddable WireGuard C library
// (wireguard.c/wireguard.h) through cgo. Build with the wgembed tag and
// the library installed:
//
//	CGO_ENABLED=1 go build -tags wgembed
//
// Both header and library must be on the default search paths, or named
// through CGO_CFLAGS and CGO_LDFLAGS. Without the tag, New returns
// ErrUnavailable.
package native

import "errors"

// ErrUnavailable is returned by New in builds without the C library.
var ErrUnavailable = errors.New("native: built without wgembed tag or cgo")
