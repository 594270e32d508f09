package device

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

var (
	// ErrExist is returned by Create when the interface name is taken. It
	// also matches fs.ErrExist.
	ErrExist = fmt.Errorf("device: interface already exists: %w", fs.ErrExist)

	// ErrNotBound is returned by accessors on a Handle with no device
	// record. Fetch (Pull) or Push first.
	ErrNotBound = errors.New("device: no device record bound")

	// ErrClosed is returned by every operation on a closed Handle.
	ErrClosed = errors.New("device: handle closed")

	// ErrNameTooLong is returned for names that do not fit the fixed
	// 16-byte field with its terminator.
	ErrNameTooLong = errors.New("device: name too long")

	// ErrInvalidName is returned for names that are empty, not UTF-8 or
	// contain bytes an interface name may not carry.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrDecode is returned when a field or buffer from the native side
	// violates its format.
	ErrDecode = errors.New("device: decode failure")
)

// NativeError is a failed call into the native surface.
type NativeError struct {
	Op     string
	Device string
	Status int
	Errno  syscall.Errno
}

func (e *NativeError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("device: %s: %v (status %d)", e.Op, e.Errno, e.Status)
	}
	return fmt.Sprintf("device: %s %s: %v (status %d)", e.Op, e.Device, e.Errno, e.Status)
}

// Unwrap exposes the errno for errors.Is checks such as syscall.ENODEV.
func (e *NativeError) Unwrap() error {
	return e.Errno
}

// nativeError builds a NativeError from a status and the errno reported
// with it. When no errno was reported the status is used if it is a
// negative errno, and EIO otherwise.
func nativeError(op, name string, status int, err error) *NativeError {
	var errno syscall.Errno
	if !errors.As(err, &errno) || errno == 0 {
		errno = syscall.EIO
		if status < 0 {
			errno = syscall.Errno(-status)
		}
	}
	return &NativeError{Op: op, Device: name, Status: status, Errno: errno}
}
