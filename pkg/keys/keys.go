// Package keys provides the curve25519 key primitives the native library
// exports (wg_generate_*, wg_key_to_base64, wg_key_from_base64,
// wg_key_is_zero) for callers that configure devices.
package keys

import (
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/irctrakz/wgbind/pkg/raw"
)

// GeneratePrivate generates a clamped private key from a
// cryptographically safe source.
func GeneratePrivate() (raw.Key, error) {
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return raw.Key{}, fmt.Errorf("keys: generate private key: %w", err)
	}
	return raw.Key(k), nil
}

// GeneratePreshared generates a random key suitable as a preshared key. It
// must not be used as a private key.
func GeneratePreshared() (raw.Key, error) {
	k, err := wgtypes.GenerateKey()
	if err != nil {
		return raw.Key{}, fmt.Errorf("keys: generate preshared key: %w", err)
	}
	return raw.Key(k), nil
}

// Public derives the public key of private.
func Public(private raw.Key) raw.Key {
	var pub raw.Key
	curve25519.ScalarBaseMult((*[32]byte)(&pub), (*[32]byte)(&private))
	return pub
}

// ToBase64 encodes k in the standard WireGuard base64 form.
func ToBase64(k raw.Key) string {
	return wgtypes.Key(k).String()
}

// FromBase64 parses a base64-encoded key.
func FromBase64(s string) (raw.Key, error) {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return raw.Key{}, fmt.Errorf("keys: %w", err)
	}
	return raw.Key(k), nil
}

// IsZero reports whether k is the all-zero key.
func IsZero(k raw.Key) bool {
	return k.IsZero()
}
