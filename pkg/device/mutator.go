package device

import (
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/irctrakz/wgbind/pkg/keys"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// edits are local field changes not yet pushed.
type edits struct {
	fwmark       *uint32
	listenPort   *uint16
	privateKey   *raw.Key
	replacePeers bool
}

// SetFwmark stages a firewall mark. Zero clears the mark on push.
func (h *Handle) SetFwmark(mark uint32) error {
	if h.closed {
		return ErrClosed
	}
	h.edits.fwmark = &mark
	return nil
}

// SetListenPort stages a listen port. Zero asks for a random port on push.
func (h *Handle) SetListenPort(port uint16) error {
	if h.closed {
		return ErrClosed
	}
	h.edits.listenPort = &port
	return nil
}

// SetPrivateKey stages a private key. The zero key clears it on push.
func (h *Handle) SetPrivateKey(k raw.Key) error {
	if h.closed {
		return ErrClosed
	}
	h.edits.privateKey = &k
	return nil
}

// SetReplacePeers makes the next push replace the peer list. Pushed
// records never carry peers, so this empties it.
func (h *Handle) SetReplacePeers(replace bool) error {
	if h.closed {
		return ErrClosed
	}
	h.edits.replacePeers = replace
	return nil
}

// Pending reports whether there are staged edits.
func (h *Handle) Pending() bool {
	e := h.edits
	return e.fwmark != nil || e.listenPort != nil || e.privateKey != nil || e.replacePeers
}

// Discard drops staged edits.
func (h *Handle) Discard() {
	h.edits = edits{}
}

// Pull fetches the interface configuration and swaps the new record in,
// releasing the old one. Staged edits are dropped: the fetched state wins.
// On failure the Handle is unchanged.
func (h *Handle) Pull() error {
	if h.closed {
		return ErrClosed
	}
	rec, status, err := h.surface.GetDevice(h.name)
	if status != 0 {
		if rec != nil {
			h.surface.FreeDevice(rec)
		}
		return nativeError("get", h.name, status, err)
	}
	if rec == nil {
		return nativeError("get", h.name, status, syscall.EIO)
	}
	if _, err := unmarshalName(&rec.Name); err != nil {
		h.surface.FreeDevice(rec)
		return err
	}
	h.replace(rec)
	log.WithFields(logrus.Fields{"device": h.name, "flags": rec.Flags}).Debugf("pulled device record")
	return nil
}

// Push builds a fresh record from the current record and the staged
// edits, applies it, and on success makes it the owned record. On failure
// the built record is freed and the Handle, edits included, is unchanged.
func (h *Handle) Push() error {
	if h.closed {
		return ErrClosed
	}
	rec := h.surface.NewDevice()
	if rec == nil {
		return nativeError("alloc", h.name, 0, syscall.ENOMEM)
	}
	if err := h.build(rec); err != nil {
		h.surface.FreeDevice(rec)
		return err
	}
	status, err := h.surface.SetDevice(rec)
	if status != 0 {
		h.surface.FreeDevice(rec)
		nerr := nativeError("set", h.name, status, err)
		log.WithFields(logrus.Fields{"device": h.name, "errno": nerr.Errno}).Debugf("push failed")
		return nerr
	}
	h.replace(rec)
	log.WithFields(logrus.Fields{"device": h.name, "flags": rec.Flags}).Debugf("pushed device record")
	return nil
}

// build fills rec from the owned record, or from an empty one when none is
// bound, overlaid with the staged edits. Peer pointers are always nil.
func (h *Handle) build(rec *raw.Device) error {
	name, err := marshalName(h.name)
	if err != nil {
		return err
	}
	var base raw.Device
	if h.rec != nil {
		base = *h.rec
	}

	*rec = base
	rec.Name = name
	rec.FirstPeer, rec.LastPeer = nil, nil

	var flags raw.DeviceFlags
	if h.edits.replacePeers {
		flags |= raw.FlagReplacePeers
	}

	if p := h.edits.listenPort; p != nil {
		rec.ListenPort = *p
		flags |= raw.FlagHasListenPort
	} else if base.Flags.Has(raw.FlagHasListenPort) || base.ListenPort != 0 {
		flags |= raw.FlagHasListenPort
	}

	if m := h.edits.fwmark; m != nil {
		rec.Fwmark = *m
		flags |= raw.FlagHasFwmark
	} else if base.Flags.Has(raw.FlagHasFwmark) || base.Fwmark != 0 {
		flags |= raw.FlagHasFwmark
	}

	if k := h.edits.privateKey; k != nil {
		rec.PrivateKey = *k
		rec.PublicKey = raw.Key{}
		flags |= raw.FlagHasPrivateKey
		if !k.IsZero() {
			rec.PublicKey = keys.Public(*k)
			flags |= raw.FlagHasPublicKey
		}
	} else if !base.PrivateKey.IsZero() {
		flags |= raw.FlagHasPrivateKey
		if base.Flags.Has(raw.FlagHasPublicKey) || !base.PublicKey.IsZero() {
			flags |= raw.FlagHasPublicKey
		}
	}

	rec.Flags = flags
	return nil
}
