// Package device wraps raw device records in an exclusively owned Handle.
//
// A Handle owns at most one record obtained from the native surface and
// releases it exactly once: on Close, when a fetch or push replaces it, or
// from a finalizer if the Handle leaks. Accessors read the record in place
// and fail with ErrNotBound instead of touching a missing record.
//
// A Handle is not safe for concurrent use. Pass *Handle around; never copy
// the struct.
package device

import (
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/raw"
)

var log = logging.Component("device")

// noCopy makes go vet's copylocks check flag copies of a Handle.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle is the sole owner of one raw device record.
type Handle struct {
	_ noCopy

	surface raw.Surface
	name    string
	rec     *raw.Device
	edits   edits
	closed  bool
}

func newHandle(s raw.Surface, name string, rec *raw.Device) *Handle {
	h := &Handle{surface: s, name: name, rec: rec}
	runtime.SetFinalizer(h, (*Handle).finalize)
	return h
}

// Create adds the interface name and returns a Handle for it. The Handle
// has no record yet; Pull or Push before reading fields. A name collision
// yields ErrExist.
func Create(s raw.Surface, name string) (*Handle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	status, err := s.AddDevice(name)
	if status != 0 {
		nerr := nativeError("add", name, status, err)
		if status == -int(syscall.EEXIST) || nerr.Errno == syscall.EEXIST {
			return nil, &existError{native: nerr}
		}
		return nil, nerr
	}
	log.WithField("device", name).Debugf("interface created")
	return newHandle(s, name, nil), nil
}

// existError carries the native failure behind ErrExist.
type existError struct {
	native *NativeError
}

func (e *existError) Error() string   { return ErrExist.Error() + ": " + e.native.Device }
func (e *existError) Unwrap() []error { return []error{ErrExist, e.native} }

// Open fetches the configuration of an existing interface into a new
// Handle.
func Open(s raw.Surface, name string) (*Handle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	h := newHandle(s, name, nil)
	if err := h.Pull(); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// FromRaw makes a new Handle the owner of rec. The caller gives up rec
// entirely, even when FromRaw fails; it must not free rec itself.
func FromRaw(s raw.Surface, rec *raw.Device) (*Handle, error) {
	if rec == nil {
		return nil, ErrNotBound
	}
	name, err := unmarshalName(&rec.Name)
	if err != nil {
		s.FreeDevice(rec)
		return nil, err
	}
	return newHandle(s, name, rec), nil
}

// InterfaceName returns the name of the interface the Handle targets. It
// needs no record.
func (h *Handle) InterfaceName() string {
	return h.name
}

// Bound reports whether the Handle owns a record.
func (h *Handle) Bound() bool {
	return h.rec != nil
}

// Closed reports whether Close has run.
func (h *Handle) Closed() bool {
	return h.closed
}

// Detach moves the record out of the Handle. The caller becomes its owner
// and must free it; the Handle is left unbound.
func (h *Handle) Detach() *raw.Device {
	rec := h.rec
	h.rec = nil
	return rec
}

// Close releases the record, if any, and retires the Handle. Further calls
// are no-ops.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.release()
	h.edits = edits{}
	runtime.SetFinalizer(h, nil)
	return nil
}

// release frees the owned record once and forgets it.
func (h *Handle) release() {
	if h.rec == nil {
		return
	}
	rec := h.rec
	h.rec = nil
	h.surface.FreeDevice(rec)
}

// replace installs rec as the owned record and frees the previous one.
func (h *Handle) replace(rec *raw.Device) {
	old := h.rec
	h.rec = rec
	h.edits = edits{}
	if old != nil && old != rec {
		h.surface.FreeDevice(old)
	}
}

func (h *Handle) finalize() {
	if h.closed || h.rec == nil {
		return
	}
	logging.WarnWithFields(logrus.Fields{"device": h.name}, "device handle leaked without Close; releasing record")
	h.release()
}

// record returns the owned record or the reason there is none.
func (h *Handle) record() (*raw.Device, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if h.rec == nil {
		return nil, ErrNotBound
	}
	return h.rec, nil
}
