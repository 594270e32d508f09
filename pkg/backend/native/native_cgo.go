//go:build cgo && wgembed

package native

/*
#cgo LDFLAGS: -lwireguard
#include <stdlib.h>
#include <wireguard.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/multistr"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// raw.Device must be a faithful view of wg_device. Each line fails to
// compile when the two disagree.
var (
	_ [unsafe.Sizeof(raw.Device{}) - unsafe.Sizeof(C.wg_device{})]struct{}
	_ [unsafe.Sizeof(C.wg_device{}) - unsafe.Sizeof(raw.Device{})]struct{}

	_ [unsafe.Offsetof(raw.Device{}.IfIndex) - unsafe.Offsetof(C.wg_device{}.ifindex)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.ifindex) - unsafe.Offsetof(raw.Device{}.IfIndex)]struct{}
	_ [unsafe.Offsetof(raw.Device{}.Flags) - unsafe.Offsetof(C.wg_device{}.flags)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.flags) - unsafe.Offsetof(raw.Device{}.Flags)]struct{}
	_ [unsafe.Offsetof(raw.Device{}.PublicKey) - unsafe.Offsetof(C.wg_device{}.public_key)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.public_key) - unsafe.Offsetof(raw.Device{}.PublicKey)]struct{}
	_ [unsafe.Offsetof(raw.Device{}.PrivateKey) - unsafe.Offsetof(C.wg_device{}.private_key)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.private_key) - unsafe.Offsetof(raw.Device{}.PrivateKey)]struct{}
	_ [unsafe.Offsetof(raw.Device{}.Fwmark) - unsafe.Offsetof(C.wg_device{}.fwmark)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.fwmark) - unsafe.Offsetof(raw.Device{}.Fwmark)]struct{}
	_ [unsafe.Offsetof(raw.Device{}.ListenPort) - unsafe.Offsetof(C.wg_device{}.listen_port)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.listen_port) - unsafe.Offsetof(raw.Device{}.ListenPort)]struct{}
	_ [unsafe.Offsetof(raw.Device{}.FirstPeer) - unsafe.Offsetof(C.wg_device{}.first_peer)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.first_peer) - unsafe.Offsetof(raw.Device{}.FirstPeer)]struct{}
	_ [unsafe.Offsetof(raw.Device{}.LastPeer) - unsafe.Offsetof(C.wg_device{}.last_peer)]struct{}
	_ [unsafe.Offsetof(C.wg_device{}.last_peer) - unsafe.Offsetof(raw.Device{}.LastPeer)]struct{}

	_ = [1]struct{}{}[uint32(raw.FlagReplacePeers)^uint32(C.WGDEVICE_REPLACE_PEERS)]
	_ = [1]struct{}{}[uint32(raw.FlagHasPrivateKey)^uint32(C.WGDEVICE_HAS_PRIVATE_KEY)]
	_ = [1]struct{}{}[uint32(raw.FlagHasPublicKey)^uint32(C.WGDEVICE_HAS_PUBLIC_KEY)]
	_ = [1]struct{}{}[uint32(raw.FlagHasListenPort)^uint32(C.WGDEVICE_HAS_LISTEN_PORT)]
	_ = [1]struct{}{}[uint32(raw.FlagHasFwmark)^uint32(C.WGDEVICE_HAS_FWMARK)]
)

// Backend is a raw.Surface over the C library. It is safe for concurrent
// use.
type Backend struct {
	log *logrus.Entry

	scanLimit int

	mu   sync.Mutex
	live map[*raw.Device]struct{}
}

var _ raw.Surface = (*Backend)(nil)

// New returns a Backend whose name list copies read at most scanLimit
// bytes; 0 means multistr.DefaultLimit. The library keeps no state, so New
// does not fail.
func New(scanLimit int) (*Backend, error) {
	if scanLimit <= 0 {
		scanLimit = multistr.DefaultLimit
	}
	return &Backend{
		log:       logging.Component("native"),
		scanLimit: scanLimit,
		live:      make(map[*raw.Device]struct{}),
	}, nil
}

func (b *Backend) track(d *raw.Device) *raw.Device {
	b.mu.Lock()
	b.live[d] = struct{}{}
	b.mu.Unlock()
	return d
}

// AddDevice implements raw.Surface with wg_add_device.
func (b *Backend) AddDevice(name string) (int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	r, err := C.wg_add_device(cname)
	return int(r), err
}

// DelDevice implements raw.Surface with wg_del_device.
func (b *Backend) DelDevice(name string) (int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	r, err := C.wg_del_device(cname)
	return int(r), err
}

// GetDevice implements raw.Surface with wg_get_device.
func (b *Backend) GetDevice(name string) (*raw.Device, int, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var dev *C.wg_device
	r, err := C.wg_get_device(&dev, cname)
	if r != 0 {
		if dev != nil {
			C.wg_free_device(dev)
		}
		return nil, int(r), err
	}
	if dev == nil {
		return nil, -int(syscall.EIO), syscall.EIO
	}
	return b.track((*raw.Device)(unsafe.Pointer(dev))), 0, nil
}

// SetDevice implements raw.Surface with wg_set_device.
func (b *Backend) SetDevice(dev *raw.Device) (int, error) {
	if dev == nil {
		return -int(syscall.EINVAL), syscall.EINVAL
	}
	r, err := C.wg_set_device((*C.wg_device)(unsafe.Pointer(dev)))
	return int(r), err
}

// NewDevice implements raw.Surface with calloc, which wg_free_device
// releases. It returns nil when allocation fails.
func (b *Backend) NewDevice() *raw.Device {
	p := C.calloc(1, C.size_t(unsafe.Sizeof(C.wg_device{})))
	if p == nil {
		return nil
	}
	return b.track((*raw.Device)(p))
}

// FreeDevice implements raw.Surface with wg_free_device. Freeing a record
// that did not come from this backend, or freeing one twice, panics.
func (b *Backend) FreeDevice(dev *raw.Device) {
	if dev == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.live[dev]
	delete(b.live, dev)
	b.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("native: free of unowned device record %p", dev))
	}
	C.wg_free_device((*C.wg_device)(unsafe.Pointer(dev)))
}

// ListDeviceNames implements raw.Surface with wg_list_device_names. The C
// buffer is copied into Go memory and freed before returning; the copy
// stays valid for as long as the caller holds the pointer. An unterminated
// C buffer is logged and reported as nil.
func (b *Backend) ListDeviceNames() unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := C.wg_list_device_names()
	if p == nil {
		return nil
	}
	buf, err := multistr.Clone(unsafe.Pointer(p), b.scanLimit)
	C.free(unsafe.Pointer(p))
	if err != nil {
		b.log.Errorf("list device names: %v", err)
		return nil
	}
	return unsafe.Pointer(&buf[0])
}

// Outstanding returns the number of records handed out and not yet freed.
func (b *Backend) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Close reports leaked records. Outstanding records stay valid; their
// Handles still release them.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.live); n > 0 {
		b.log.Warnf("%d device records still outstanding at close", n)
	}
	return nil
}
