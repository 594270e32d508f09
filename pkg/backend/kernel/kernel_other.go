//go:build !linux

package kernel

import (
	"errors"
	"syscall"
	"unsafe"

	"github.com/irctrakz/wgbind/pkg/raw"
)

// ErrUnsupported is returned by New off Linux.
var ErrUnsupported = errors.New("kernel: WireGuard kernel backend requires linux")

// Backend is never constructed off Linux.
type Backend struct{}

var _ raw.Surface = (*Backend)(nil)

// New always fails.
func New() (*Backend, error) { return nil, ErrUnsupported }

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
