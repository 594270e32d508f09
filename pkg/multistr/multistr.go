// Package multistr decodes the double-NUL-terminated name lists returned by
// the native enumeration call:
//
//	first\0second\0third\0\0
//
// The source buffer is borrowed and its length is unknown, so the scan is
// bounded by the terminator pair and by a hard cap.
package multistr

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
	"unsafe"
)

// DefaultLimit caps a scan at 4096 names of the longest legal length.
const DefaultLimit = 4096 * 16

var (
	// ErrUnterminated reports that no terminator pair was found within the
	// scan limit. The producer broke its contract.
	ErrUnterminated = errors.New("multistr: no terminator pair within scan limit")

	// ErrInvalidUTF8 reports a scanned region that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("multistr: invalid UTF-8")

	// ErrInvalidName reports a name that cannot be encoded.
	ErrInvalidName = errors.New("multistr: invalid name")
)

// ScanLen returns the scanned length of the buffer at p: the index of the
// second NUL of the first NUL-NUL pair, where the byte before p counts as
// NUL. The region includes every name's own terminator and excludes only
// the final NUL, so "a\0b\0\0" scans 4 bytes and "\0\0" scans 0.
//
// At most limit bytes are read. A nil p scans 0 bytes.
func ScanLen(p unsafe.Pointer, limit int) (int, error) {
	if p == nil {
		return 0, nil
	}
	prev := byte(0)
	for i := 0; i < limit; i++ {
		cur := *(*byte)(unsafe.Add(p, i))
		if cur == 0 && prev == 0 {
			return i, nil
		}
		prev = cur
	}
	return 0, fmt.Errorf("%w (%d bytes)", ErrUnterminated, limit)
}

// Decode decodes the buffer at p with DefaultLimit.
func Decode(p unsafe.Pointer) ([]string, error) {
	return DecodeLimit(p, DefaultLimit)
}

// DecodeLimit copies the scanned region out of p, validates it as UTF-8
// and splits it on NUL. A nil pointer or an empty region yields nil and no
// error. The result never aliases the source buffer.
func DecodeLimit(p unsafe.Pointer, limit int) ([]string, error) {
	n, err := ScanLen(p, limit)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	owned := make([]byte, n)
	copy(owned, unsafe.Slice((*byte)(p), n))
	if !utf8.Valid(owned) {
		return nil, ErrInvalidUTF8
	}

	// The region ends with the last name's terminator; trim it so Split
	// does not produce an empty trailing element.
	owned = bytes.TrimSuffix(owned, []byte{0})
	parts := bytes.Split(owned, []byte{0})
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		names = append(names, string(part))
	}
	return names, nil
}

// Clone copies the buffer at p, final NUL included, into Go memory so the
// source can be released at once. An empty or nil buffer clones as "\0\0".
func Clone(p unsafe.Pointer, limit int) ([]byte, error) {
	n, err := ScanLen(p, limit)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{0, 0}, nil
	}
	owned := make([]byte, n+1)
	copy(owned, unsafe.Slice((*byte)(p), n+1))
	return owned, nil
}

// Encode builds a buffer in the enumeration format. An empty list encodes
// as "\0\0". Names must be non-empty and free of NUL bytes.
func Encode(names []string) ([]byte, error) {
	size := 2
	for _, name := range names {
		size += len(name) + 1
	}
	buf := make([]byte, 0, size)
	for _, name := range names {
		if name == "" || bytes.IndexByte([]byte(name), 0) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		buf = append(buf, name...)
		buf = append(buf, 0)
	}
	buf = append(buf, 0)
	if len(names) == 0 {
		buf = append(buf, 0)
	}
	return buf, nil
}
