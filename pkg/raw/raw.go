// Package raw describes the native WireGuard device-configuration surface:
// the fixed-layout device record, its flag bits, and the operations a
// backend exposes. Nothing in this package is safe to use directly from
// application code; pkg/device wraps it.
package raw

import (
	"bytes"
	"strings"
	"unsafe"
)

const (
	// IfNameSize is the size of the fixed name field, terminator included.
	IfNameSize = 16

	// KeyLen is the length of a curve25519 key.
	KeyLen = 32
)

// Key is the raw 32-byte key buffer embedded in a device record.
type Key [KeyLen]byte

// IsZero reports whether every byte of k is zero.
func (k *Key) IsZero() bool {
	var z Key
	return *k == z
}

// DeviceFlags is the bit set carried in a device record.
type DeviceFlags uint32

// Device flag bits, matching enum wg_device_flags.
const (
	FlagReplacePeers  DeviceFlags = 1 << 0
	FlagHasPrivateKey DeviceFlags = 1 << 1
	FlagHasPublicKey  DeviceFlags = 1 << 2
	FlagHasListenPort DeviceFlags = 1 << 3
	FlagHasFwmark     DeviceFlags = 1 << 4
)

// Has reports whether all bits of f are set.
func (d DeviceFlags) Has(f DeviceFlags) bool {
	return d&f == f
}

var flagNames = []struct {
	flag DeviceFlags
	name string
}{
	{FlagReplacePeers, "replace-peers"},
	{FlagHasPrivateKey, "has-private-key"},
	{FlagHasPublicKey, "has-public-key"},
	{FlagHasListenPort, "has-listen-port"},
	{FlagHasFwmark, "has-fwmark"},
}

// String returns the set flags joined by '|', or "none".
func (d DeviceFlags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if d.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Device is the raw device record. Its layout matches struct wg_device so
// that a pointer returned by the C library can be viewed as a *Device.
//
// The peer list is opaque here. Records built on the Go side always carry
// nil peer pointers.
type Device struct {
	Name       [IfNameSize]byte
	IfIndex    uint32
	Flags      DeviceFlags
	PublicKey  Key
	PrivateKey Key
	Fwmark     uint32
	ListenPort uint16
	FirstPeer  unsafe.Pointer
	LastPeer   unsafe.Pointer
}

// InterfaceName returns the name field up to its first NUL, or the whole
// field when it is unterminated. It does no validation.
func (d *Device) InterfaceName() string {
	n := d.Name[:]
	if i := bytes.IndexByte(n, 0); i >= 0 {
		n = n[:i]
	}
	return string(n)
}

// Surface is the native capability set. Methods returning a status follow
// the C convention: 0 on success, a negative errno otherwise, with the
// errno observed at the call as the error.
type Surface interface {
	// AddDevice creates a kernel-visible interface.
	AddDevice(name string) (int, error)

	// DelDevice removes an interface.
	DelDevice(name string) (int, error)

	// GetDevice fetches the configuration of an interface. On success the
	// caller owns the returned record and must pass it to FreeDevice once.
	GetDevice(name string) (*Device, int, error)

	// SetDevice applies the fields of dev selected by its flags.
	SetDevice(dev *Device) (int, error)

	// NewDevice allocates a zeroed record releasable with FreeDevice.
	NewDevice() *Device

	// FreeDevice releases a record obtained from GetDevice or NewDevice.
	FreeDevice(dev *Device)

	// ListDeviceNames returns a borrowed "name1\0name2\0\0" buffer, or nil.
	// The buffer stays valid until the next call on the surface.
	ListDeviceNames() unsafe.Pointer
}
