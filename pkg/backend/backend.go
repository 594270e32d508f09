// Package backend opens the raw.Surface implementation a configuration
// names.
package backend

import (
	"fmt"
	"io"

	"github.com/irctrakz/wgbind/pkg/backend/kernel"
	"github.com/irctrakz/wgbind/pkg/backend/native"
	"github.com/irctrakz/wgbind/pkg/backend/userspace"
	"github.com/irctrakz/wgbind/pkg/config"
	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// Backend is a surface that holds resources until closed.
type Backend interface {
	raw.Surface
	io.Closer

	// Outstanding returns the number of records handed out and not yet
	// freed.
	Outstanding() int
}

// Open returns the backend cfg selects.
func Open(cfg config.BackendConfig) (Backend, error) {
	logging.Component("backend").WithField("kind", cfg.Kind).Debugf("opening backend")
	switch cfg.Kind {
	case config.KindNative:
		b, err := native.New(cfg.ScanLimit)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.KindKernel:
		b, err := kernel.New()
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.KindUserspace:
		return userspace.New(userspace.Options{
			MTU:       cfg.Userspace.MTU,
			Up:        cfg.Userspace.Up,
			Verbose:   cfg.Userspace.Verbose,
			KernelTUN: cfg.Userspace.KernelTUN,
		}), nil
	default:
		return nil, fmt.Errorf("backend: unknown kind %q", cfg.Kind)
	}
}
