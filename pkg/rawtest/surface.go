// Package rawtest provides an in-memory raw.Surface for tests. It keeps a
// small table of "kernel" device state and counts every release per
// record, so tests can assert that each owned pointer is freed exactly once.
package rawtest

import (
	"sort"
	"sync"
	"syscall"
	"unsafe"

	"github.com/irctrakz/wgbind/pkg/keys"
	"github.com/irctrakz/wgbind/pkg/multistr"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// Op names a surface operation for failure injection and call counting.
type Op string

// Surface operations.
const (
	OpAdd  Op = "add"
	OpDel  Op = "del"
	OpGet  Op = "get"
	OpSet  Op = "set"
	OpNew  Op = "new"
	OpFree Op = "free"
	OpList Op = "list"
)

// Surface is a counting stub of the native surface. It is safe for
// concurrent use.
type Surface struct {
	mu       sync.Mutex
	devices  map[string]raw.Device
	issued   map[*raw.Device]bool
	frees    map[*raw.Device]int
	calls    map[Op]int
	failures map[Op]syscall.Errno
	names    []byte

	// NamesOverride, when non-nil, replaces the encoded name buffer
	// returned by ListDeviceNames.
	NamesOverride []byte

	// NilNames makes ListDeviceNames return nil.
	NilNames bool
}

// New returns an empty stub.
func New() *Surface {
	return &Surface{
		devices:  make(map[string]raw.Device),
		issued:   make(map[*raw.Device]bool),
		frees:    make(map[*raw.Device]int),
		calls:    make(map[Op]int),
		failures: make(map[Op]syscall.Errno),
	}
}

// Fail makes the next call of op fail with errno.
func (s *Surface) Fail(op Op, errno syscall.Errno) {
	s.mu.Lock()
	s.failures[op] = errno
	s.mu.Unlock()
}

// Calls returns how often op was invoked.
func (s *Surface) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// FreeCount returns how often d was passed to FreeDevice.
func (s *Surface) FreeCount(d *raw.Device) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frees[d]
}

// Outstanding returns the number of issued records not yet freed.
func (s *Surface) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for d := range s.issued {
		if s.frees[d] == 0 {
			n++
		}
	}
	return n
}

// DoubleFrees returns the number of records freed more than once.
func (s *Surface) DoubleFrees() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.frees {
		if c > 1 {
			n++
		}
	}
	return n
}

// State returns the stored configuration of name.
func (s *Surface) State(name string) (raw.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	return d, ok
}

// Seed installs device state directly, bypassing AddDevice.
func (s *Surface) Seed(name string, d raw.Device) {
	copy(d.Name[:], name)
	s.mu.Lock()
	s.devices[name] = d
	s.mu.Unlock()
}

// fail consumes an injected failure for op. Callers hold mu.
func (s *Surface) fail(op Op) (syscall.Errno, bool) {
	s.calls[op]++
	errno, ok := s.failures[op]
	if ok {
		delete(s.failures, op)
	}
	return errno, ok
}

func (s *Surface) issue() *raw.Device {
	d := new(raw.Device)
	s.issued[d] = true
	return d
}

func status(errno syscall.Errno) (int, error) {
	return -int(errno), errno
}

// AddDevice implements raw.Surface.
func (s *Surface) AddDevice(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errno, ok := s.fail(OpAdd); ok {
		return status(errno)
	}
	if _, ok := s.devices[name]; ok {
		return status(syscall.EEXIST)
	}
	var d raw.Device
	copy(d.Name[:], name)
	d.IfIndex = uint32(len(s.devices) + 1)
	s.devices[name] = d
	return 0, nil
}

// DelDevice implements raw.Surface.
func (s *Surface) DelDevice(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errno, ok := s.fail(OpDel); ok {
		return status(errno)
	}
	if _, ok := s.devices[name]; !ok {
		return status(syscall.ENODEV)
	}
	delete(s.devices, name)
	return 0, nil
}

// GetDevice implements raw.Surface.
func (s *Surface) GetDevice(name string) (*raw.Device, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errno, ok := s.fail(OpGet); ok {
		st, err := status(errno)
		return nil, st, err
	}
	state, ok := s.devices[name]
	if !ok {
		st, err := status(syscall.ENODEV)
		return nil, st, err
	}
	d := s.issue()
	*d = state
	return d, 0, nil
}

// SetDevice implements raw.Surface. Only fields selected by the record's
// flags are applied.
func (s *Surface) SetDevice(dev *raw.Device) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errno, ok := s.fail(OpSet); ok {
		return status(errno)
	}
	name := dev.InterfaceName()
	state, ok := s.devices[name]
	if !ok {
		return status(syscall.ENODEV)
	}
	if dev.Flags.Has(raw.FlagHasPrivateKey) {
		state.PrivateKey = dev.PrivateKey
		state.Flags &^= raw.FlagHasPrivateKey | raw.FlagHasPublicKey
		state.PublicKey = raw.Key{}
		if !dev.PrivateKey.IsZero() {
			state.PublicKey = keys.Public(dev.PrivateKey)
			state.Flags |= raw.FlagHasPrivateKey | raw.FlagHasPublicKey
		}
	}
	if dev.Flags.Has(raw.FlagHasListenPort) {
		state.ListenPort = dev.ListenPort
		state.Flags |= raw.FlagHasListenPort
	}
	if dev.Flags.Has(raw.FlagHasFwmark) {
		state.Fwmark = dev.Fwmark
		state.Flags |= raw.FlagHasFwmark
	}
	s.devices[name] = state
	return 0, nil
}

// NewDevice implements raw.Surface.
func (s *Surface) NewDevice() *raw.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fail(OpNew); ok {
		return nil
	}
	return s.issue()
}

// FreeDevice implements raw.Surface. Every call is counted, including
// invalid ones, so double frees stay observable.
func (s *Surface) FreeDevice(dev *raw.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpFree]++
	if dev == nil {
		return
	}
	s.frees[dev]++
}

// ListDeviceNames implements raw.Surface.
func (s *Surface) ListDeviceNames() unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fail(OpList); ok || s.NilNames {
		return nil
	}
	if s.NamesOverride != nil {
		s.names = append([]byte(nil), s.NamesOverride...)
	} else {
		names := make([]string, 0, len(s.devices))
		for name := range s.devices {
			names = append(names, name)
		}
		sort.Strings(names)
		buf, err := multistr.Encode(names)
		if err != nil {
			return nil
		}
		s.names = buf
	}
	if len(s.names) == 0 {
		return nil
	}
	return unsafe.Pointer(&s.names[0])
}

var _ raw.Surface = (*Surface)(nil)
