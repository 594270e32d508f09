//go:build !cgo || !wgembed

package native

import (
	"syscall"
	"unsafe"

	"github.com/irctrakz/wgbind/pkg/raw"
)

// Backend is never constructed without the C library.
type Backend struct{}

var _ raw.Surface = (*Backend)(nil)

// New always returns ErrUnavailable.
func New(int) (*Backend, error) { return nil, ErrUnavailable }

func (*Backend) AddDevice(string) (int, error) {
	return -int(syscall.ENOSYS), syscall.ENOSYS
}

func (*Backend) DelDevice(string) (int, error) {
	return -int(syscall.ENOSYS), syscall.ENOSYS
}

func (*Backend) GetDevice(string) (*raw.Device, int, error) {
	return nil, -int(syscall.ENOSYS), syscall.ENOSYS
}

func (*Backend) SetDevice(*raw.Device) (int, error) {
	return -int(syscall.ENOSYS), syscall.ENOSYS
}

func (*Backend) NewDevice() *raw.Device { return nil }

func (*Backend) FreeDevice(*raw.Device) {}

func (*Backend) ListDeviceNames() unsafe.Pointer { return nil }

func (*Backend) Outstanding() int { return 0 }

func (*Backend) Close() error { return nil }
