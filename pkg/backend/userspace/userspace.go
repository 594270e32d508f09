// Package userspace implements raw.Surface on wireguard-go. Each interface
// is a wireguard-go device configured through the UAPI text protocol
// (IpcGet/IpcSet). Devices sit on an in-memory TUN by default and need no
// privileges while they stay down; with KernelTUN they open a host TUN
// interface of the same name instead.
package userspace

import (
	"errors"
	"net"
	"sort"
	"sync"
	"syscall"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/conn"
	wgdev "golang.zx2c4.com/wireguard/device"
	wgtun "golang.zx2c4.com/wireguard/tun"

	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/multistr"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// Options configures new devices.
type Options struct {
	MTU     int  // plaintext MTU of the memory TUN; 0 means 1420
	Up      bool // bring devices up after creation, binding UDP sockets
	Verbose bool // forward wireguard-go verbose logs at debug level

	// KernelTUN opens a host TUN per device (linux, needs CAP_NET_ADMIN).
	KernelTUN bool
}

type instance struct {
	dev     *wgdev.Device
	mem     *memTUN // nil on a kernel TUN
	ifindex uint32
}

// Backend is a raw.Surface over wireguard-go devices. It is safe for
// concurrent use.
type Backend struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	devices map[string]*instance
	nextIdx uint32
	names   []byte
	ledger  raw.Ledger
}

var _ raw.Surface = (*Backend)(nil)

// New returns a Backend with no devices.
func New(opts Options) *Backend {
	return &Backend{
		opts:    opts,
		log:     logging.Component("userspace"),
		devices: make(map[string]*instance),
	}
}

func status(errno syscall.Errno) (int, error) {
	return -int(errno), errno
}

// errnoOf maps a wireguard-go error to an errno. IPC errors carry a
// negative errno code.
func errnoOf(err error) syscall.Errno {
	var ipcErr *wgdev.IPCError
	if errors.As(err, &ipcErr) {
		if c := ipcErr.ErrorCode(); c < 0 {
			return syscall.Errno(-c)
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}

func (b *Backend) newLogger(name string) *wgdev.Logger {
	entry := b.log.WithField("device", name)
	l := &wgdev.Logger{Verbosef: wgdev.DiscardLogf, Errorf: entry.Errorf}
	if b.opts.Verbose {
		l.Verbosef = entry.Debugf
	}
	return l
}

// AddDevice implements raw.Surface.
func (b *Backend) AddDevice(name string) (int, error) {
	if name == "" || len(name) >= raw.IfNameSize {
		return status(syscall.EINVAL)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[name]; ok {
		return status(syscall.EEXIST)
	}

	inst := &instance{}
	var tun wgtun.Device
	if b.opts.KernelTUN {
		kt, err := newKernelTUN(name, b.opts.MTU)
		if err != nil {
			b.log.WithField("device", name).Warnf("kernel tun: %v", err)
			return status(errnoOf(err))
		}
		tun = kt
		if ifi, err := net.InterfaceByName(name); err == nil {
			inst.ifindex = uint32(ifi.Index)
		}
	} else {
		inst.mem = newMemTUN(name, b.opts.MTU)
		tun = inst.mem
		b.nextIdx++
		inst.ifindex = b.nextIdx
	}

	inst.dev = wgdev.NewDevice(tun, conn.NewDefaultBind(), b.newLogger(name))
	if b.opts.Up {
		if err := inst.dev.Up(); err != nil {
			inst.dev.Close()
			b.log.WithField("device", name).Warnf("device up failed: %v", err)
			return status(errnoOf(err))
		}
	}
	b.devices[name] = inst
	b.log.WithFields(logrus.Fields{
		"device": name,
		"up":     b.opts.Up,
		"kernel": b.opts.KernelTUN,
	}).Debugf("device added")
	return 0, nil
}

// DelDevice implements raw.Surface.
func (b *Backend) DelDevice(name string) (int, error) {
	b.mu.Lock()
	inst, ok := b.devices[name]
	delete(b.devices, name)
	b.mu.Unlock()
	if !ok {
		return status(syscall.ENODEV)
	}
	inst.dev.Close()
	b.log.WithField("device", name).Debugf("device removed")
	return 0, nil
}

func (b *Backend) lookup(name string) (*instance, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.devices[name]
	return inst, ok
}

// GetDevice implements raw.Surface.
func (b *Backend) GetDevice(name string) (*raw.Device, int, error) {
	inst, ok := b.lookup(name)
	if !ok {
		st, err := status(syscall.ENODEV)
		return nil, st, err
	}
	text, err := inst.dev.IpcGet()
	if err != nil {
		st, err := status(errnoOf(err))
		return nil, st, err
	}
	iface, err := parseInterface(text)
	if err != nil {
		b.log.WithField("device", name).Warnf("unparsable device state: %v", err)
		st, err := status(syscall.EPROTO)
		return nil, st, err
	}

	rec := b.ledger.Alloc()
	copy(rec.Name[:], name)
	rec.IfIndex = inst.ifindex
	iface.fill(rec)
	return rec, 0, nil
}

// SetDevice implements raw.Surface.
func (b *Backend) SetDevice(dev *raw.Device) (int, error) {
	if dev == nil {
		return status(syscall.EINVAL)
	}
	name := dev.InterfaceName()
	inst, ok := b.lookup(name)
	if !ok {
		return status(syscall.ENODEV)
	}
	conf := formatSet(dev)
	if conf == "" {
		return 0, nil
	}
	if logging.IsDebug() {
		b.log.WithField("device", name).Debugf("uapi set:\n%s", maskKey(conf))
	}
	if err := inst.dev.IpcSet(conf); err != nil {
		return status(errnoOf(err))
	}
	return 0, nil
}

// NewDevice implements raw.Surface.
func (b *Backend) NewDevice() *raw.Device {
	return b.ledger.Alloc()
}

// FreeDevice implements raw.Surface. It panics on a record this backend
// did not hand out or already freed.
func (b *Backend) FreeDevice(dev *raw.Device) {
	b.ledger.Free(dev)
}

// ListDeviceNames implements raw.Surface. The buffer is retained until the
// next call.
func (b *Backend) ListDeviceNames() unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.devices) == 0 {
		b.names = nil
		return nil
	}
	names := make([]string, 0, len(b.devices))
	for name := range b.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	buf, err := multistr.Encode(names)
	if err != nil {
		b.log.Errorf("encode device names: %v", err)
		b.names = nil
		return nil
	}
	b.names = buf
	return unsafe.Pointer(&b.names[0])
}

// Stats returns the TUN counters of name. Kernel TUNs keep none.
func (b *Backend) Stats(name string) (TunStats, bool) {
	inst, ok := b.lookup(name)
	if !ok || inst.mem == nil {
		return TunStats{}, false
	}
	return inst.mem.Stats(), true
}

// Inject queues a plaintext frame on the memory TUN of name, as if the
// host had routed it into the interface. Kernel TUNs take frames from the
// host stack instead.
func (b *Backend) Inject(name string, frame []byte) error {
	inst, ok := b.lookup(name)
	if !ok {
		return syscall.ENODEV
	}
	if inst.mem == nil {
		return errKernelTUN
	}
	return inst.mem.Inject(frame)
}

// Outstanding returns the number of records handed out and not yet freed.
func (b *Backend) Outstanding() int {
	return b.ledger.Live()
}

// Close shuts every device down. Interfaces do not outlive the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	devices := b.devices
	b.devices = make(map[string]*instance)
	b.names = nil
	b.mu.Unlock()
	for name, inst := range devices {
		inst.dev.Close()
		b.log.WithField("device", name).Debugf("device closed")
	}
	if n := b.ledger.Live(); n > 0 {
		b.log.Warnf("%d device records still outstanding at close", n)
	}
	return nil
}
