package device

import (
	"fmt"

	"github.com/irctrakz/wgbind/pkg/multistr"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// ListNames enumerates interface names. No devices is a nil list and no
// error.
func ListNames(s raw.Surface) ([]string, error) {
	return ListNamesLimit(s, multistr.DefaultLimit)
}

// ListNamesLimit is ListNames with an explicit scan cap in bytes.
func ListNamesLimit(s raw.Surface, limit int) ([]string, error) {
	names, err := multistr.DecodeLimit(s.ListDeviceNames(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: device names: %w", ErrDecode, err)
	}
	return names, nil
}

// Delete removes the interface name. A missing interface is a
// NativeError, typically wrapping ENODEV.
func Delete(s raw.Surface, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	status, err := s.DelDevice(name)
	if status != 0 {
		return nativeError("del", name, status, err)
	}
	log.WithField("device", name).Debugf("interface deleted")
	return nil
}
