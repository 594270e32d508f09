// Package lifecycle drives a device Handle through the supported states:
//
//	Unbound -> Created -> Synchronized <-> Modified -> Removed
//
// Refresh always wins over unpushed local edits. Remove deletes the
// interface first and releases the record only once the delete succeeded.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/wgbind/pkg/device"
	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// State is the lifecycle state of an Interface.
type State int

// Lifecycle states.
const (
	Unbound State = iota
	Created
	Synchronized
	Modified
	Removed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Created:
		return "created"
	case Synchronized:
		return "synchronized"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// Interface is one managed WireGuard interface. It is not safe for
// concurrent use.
type Interface struct {
	surface raw.Surface
	handle  *device.Handle
	removed bool
	log     *logrus.Entry
}

// New returns an Unbound Interface over s.
func New(s raw.Surface) *Interface {
	return &Interface{surface: s, log: logging.Component("lifecycle")}
}

// State derives the current state from the Handle.
func (i *Interface) State() State {
	switch {
	case i.removed:
		return Removed
	case i.handle == nil:
		return Unbound
	case i.handle.Pending():
		return Modified
	case i.handle.Bound():
		return Synchronized
	default:
		return Created
	}
}

// Handle returns the underlying Handle for reading fields, or nil when
// Unbound or Removed. Stage edits through the Interface setters.
func (i *Interface) Handle() *device.Handle {
	return i.handle
}

func (i *Interface) transitionError(op string, allowed ...State) error {
	return fmt.Errorf("%w: %s in state %s (allowed: %v)", ErrInvalidTransition, op, i.State(), allowed)
}

func (i *Interface) require(op string, allowed ...State) error {
	cur := i.State()
	for _, s := range allowed {
		if s == cur {
			return nil
		}
	}
	return i.transitionError(op, allowed...)
}

func (i *Interface) logTransition(op string, from State) {
	i.log.WithFields(logrus.Fields{
		"device": i.handle.InterfaceName(),
		"op":     op,
		"from":   from,
		"to":     i.State(),
	}).Debugf("state transition")
}

// CreateInterface creates the interface name. Unbound -> Created.
func (i *Interface) CreateInterface(name string) error {
	if err := i.require("create", Unbound); err != nil {
		return err
	}
	h, err := device.Create(i.surface, name)
	if err != nil {
		return err
	}
	i.handle = h
	i.logTransition("create", Unbound)
	return nil
}

// Attach binds an existing interface by fetching it. Unbound ->
// Synchronized.
func (i *Interface) Attach(name string) error {
	if err := i.require("attach", Unbound); err != nil {
		return err
	}
	h, err := device.Open(i.surface, name)
	if err != nil {
		return err
	}
	i.handle = h
	i.logTransition("attach", Unbound)
	return nil
}

// RefreshDevice fetches the kernel state, discarding unpushed edits.
// Created, Synchronized or Modified -> Synchronized.
func (i *Interface) RefreshDevice() error {
	from := i.State()
	if err := i.require("refresh", Created, Synchronized, Modified); err != nil {
		return err
	}
	if from == Modified {
		i.log.WithField("device", i.handle.InterfaceName()).Debugf("refresh discards unpushed edits")
	}
	if err := i.handle.Pull(); err != nil {
		return err
	}
	i.logTransition("refresh", from)
	return nil
}

// UpdateDevice pushes staged edits. Modified -> Synchronized; a no-op in
// Synchronized.
func (i *Interface) UpdateDevice() error {
	from := i.State()
	if from == Synchronized {
		return nil
	}
	if err := i.require("update", Modified); err != nil {
		return err
	}
	if err := i.handle.Push(); err != nil {
		return err
	}
	i.logTransition("update", from)
	return nil
}

// RemoveInterface deletes the interface, then releases the record. A
// failed delete leaves the state unchanged. Any bound state -> Removed.
func (i *Interface) RemoveInterface() error {
	from := i.State()
	if err := i.require("remove", Created, Synchronized, Modified); err != nil {
		return err
	}
	name := i.handle.InterfaceName()
	if err := device.Delete(i.surface, name); err != nil {
		return err
	}
	i.handle.Close()
	i.handle = nil
	i.removed = true
	i.log.WithFields(logrus.Fields{"device": name, "op": "remove", "from": from, "to": Removed}).Debugf("state transition")
	return nil
}

// Close releases the record without deleting the interface. The Interface
// ends Removed from this value's point of view.
func (i *Interface) Close() error {
	if i.handle != nil {
		i.handle.Close()
		i.handle = nil
	}
	i.removed = true
	return nil
}

func (i *Interface) stage(op string, fn func(h *device.Handle) error) error {
	if err := i.require(op, Created, Synchronized, Modified); err != nil {
		return err
	}
	return fn(i.handle)
}

// SetFwmark stages a firewall mark.
func (i *Interface) SetFwmark(mark uint32) error {
	return i.stage("set fwmark", func(h *device.Handle) error { return h.SetFwmark(mark) })
}

// SetListenPort stages a listen port.
func (i *Interface) SetListenPort(port uint16) error {
	return i.stage("set listen port", func(h *device.Handle) error { return h.SetListenPort(port) })
}

// SetPrivateKey stages a private key.
func (i *Interface) SetPrivateKey(k raw.Key) error {
	return i.stage("set private key", func(h *device.Handle) error { return h.SetPrivateKey(k) })
}

// SetReplacePeers stages replacement of the peer list.
func (i *Interface) SetReplacePeers(replace bool) error {
	return i.stage("set replace peers", func(h *device.Handle) error { return h.SetReplacePeers(replace) })
}
