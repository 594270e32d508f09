package device

import (
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/irctrakz/wgbind/pkg/raw"
)

// Name reads the name stored in the record.
func (h *Handle) Name() (string, error) {
	rec, err := h.record()
	if err != nil {
		return "", err
	}
	return unmarshalName(&rec.Name)
}

// Flags reads the record's flag bits.
func (h *Handle) Flags() (raw.DeviceFlags, error) {
	rec, err := h.record()
	if err != nil {
		return 0, err
	}
	return rec.Flags, nil
}

// Fwmark reads the firewall mark.
func (h *Handle) Fwmark() (uint32, error) {
	rec, err := h.record()
	if err != nil {
		return 0, err
	}
	return rec.Fwmark, nil
}

// ListenPort reads the UDP listen port.
func (h *Handle) ListenPort() (uint16, error) {
	rec, err := h.record()
	if err != nil {
		return 0, err
	}
	return rec.ListenPort, nil
}

// IfIndex reads the kernel interface index.
func (h *Handle) IfIndex() (uint32, error) {
	rec, err := h.record()
	if err != nil {
		return 0, err
	}
	return rec.IfIndex, nil
}

// PrivateKey reads the private key buffer as text. It reports false when
// the buffer is empty or not terminated within its 32 bytes.
func (h *Handle) PrivateKey() (string, bool, error) {
	rec, err := h.record()
	if err != nil {
		return "", false, err
	}
	return keyText(&rec.PrivateKey)
}

// PublicKey reads the public key buffer as text, like PrivateKey.
func (h *Handle) PublicKey() (string, bool, error) {
	rec, err := h.record()
	if err != nil {
		return "", false, err
	}
	return keyText(&rec.PublicKey)
}

// PrivateKeyBytes returns the binary private key, present when the record
// carries the has-private-key flag.
func (h *Handle) PrivateKeyBytes() (wgtypes.Key, bool, error) {
	rec, err := h.record()
	if err != nil {
		return wgtypes.Key{}, false, err
	}
	if !rec.Flags.Has(raw.FlagHasPrivateKey) {
		return wgtypes.Key{}, false, nil
	}
	return wgtypes.Key(rec.PrivateKey), true, nil
}

// PublicKeyBytes returns the binary public key, present when the record
// carries the has-public-key flag.
func (h *Handle) PublicKeyBytes() (wgtypes.Key, bool, error) {
	rec, err := h.record()
	if err != nil {
		return wgtypes.Key{}, false, err
	}
	if !rec.Flags.Has(raw.FlagHasPublicKey) {
		return wgtypes.Key{}, false, nil
	}
	return wgtypes.Key(rec.PublicKey), true, nil
}
