package device

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/irctrakz/wgbind/pkg/raw"
)

// MaxNameLen is the longest name that fits the record's name field.
const MaxNameLen = raw.IfNameSize - 1

// ValidateName checks that name can be used for an interface: non-empty, at
// most MaxNameLen bytes of UTF-8, no NUL, '/', ':' or whitespace, and not
// "." or "..".
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q is %d bytes, max %d", ErrNameTooLong, name, len(name), MaxNameLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q is not UTF-8", ErrInvalidName, name)
	}
	if strings.IndexFunc(name, func(r rune) bool {
		return r == 0 || r == '/' || r == ':' || unicode.IsSpace(r)
	}) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// marshalName writes name into a fixed name field, NUL padded. Names that
// do not fit with their terminator are rejected, never truncated.
func marshalName(name string) ([raw.IfNameSize]byte, error) {
	var field [raw.IfNameSize]byte
	if len(name) > MaxNameLen {
		return field, fmt.Errorf("%w: %q is %d bytes, max %d", ErrNameTooLong, name, len(name), MaxNameLen)
	}
	if !utf8.ValidString(name) || strings.IndexByte(name, 0) >= 0 {
		return field, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	copy(field[:], name)
	return field, nil
}

// unmarshalName reads a name field. The field must hold a terminator and
// the bytes before it must be UTF-8.
func unmarshalName(field *[raw.IfNameSize]byte) (string, error) {
	i := bytes.IndexByte(field[:], 0)
	if i < 0 {
		return "", fmt.Errorf("%w: name field not terminated", ErrDecode)
	}
	if !utf8.Valid(field[:i]) {
		return "", fmt.Errorf("%w: name field is not UTF-8", ErrDecode)
	}
	return string(field[:i]), nil
}

// keyText reads a key buffer as text. A buffer starting with NUL or with
// no terminator inside the window is "no key". A terminated buffer with
// anything other than printable ASCII before the terminator is a decode
// failure.
func keyText(k *raw.Key) (string, bool, error) {
	if k[0] == 0 {
		return "", false, nil
	}
	i := bytes.IndexByte(k[:], 0)
	if i < 0 {
		return "", false, nil
	}
	for _, c := range k[:i] {
		if c < 0x20 || c > 0x7e {
			return "", false, fmt.Errorf("%w: key buffer is not printable ASCII", ErrDecode)
		}
	}
	return string(k[:i]), true, nil
}
