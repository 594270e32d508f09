//go:build linux

package userspace

import (
	"os"
	"sync"

	"github.com/songgao/water"
	wgtun "golang.zx2c4.com/wireguard/tun"
)

// waterTUN is a kernel TUN opened through water. The interface is visible
// to the host and carries the device name.
type waterTUN struct {
	ifce *water.Interface
	mtu  int

	events    chan wgtun.Event
	closeOnce sync.Once
	closeErr  error
}

var _ wgtun.Device = (*waterTUN)(nil)

func newKernelTUN(name string, mtu int) (wgtun.Device, error) {
	if mtu <= 0 {
		mtu = defaultMTU
	}
	cfg := water.Config{DeviceType: water.TUN}
	cfg.Name = name
	ifce, err := water.New(cfg)
	if err != nil {
		return nil, err
	}
	return &waterTUN{ifce: ifce, mtu: mtu, events: make(chan wgtun.Event, 2)}, nil
}

func (t *waterTUN) File() *os.File { return nil }

func (t *waterTUN) Name() (string, error) { return t.ifce.Name(), nil }

func (t *waterTUN) MTU() (int, error) { return t.mtu, nil }

func (t *waterTUN) Events() <-chan wgtun.Event { return t.events }

func (t *waterTUN) BatchSize() int { return 1 }

func (t *waterTUN) Read(bufs [][]byte, sizes []int, offset int) (int, error) {
	if len(bufs) == 0 || offset >= len(bufs[0]) {
		return 0, nil
	}
	n, err := t.ifce.Read(bufs[0][offset:])
	if err != nil {
		return 0, err
	}
	if len(sizes) > 0 {
		sizes[0] = n
	}
	return 1, nil
}

func (t *waterTUN) Write(bufs [][]byte, offset int) (int, error) {
	for i, b := range bufs {
		if offset >= len(b) {
			continue
		}
		if _, err := t.ifce.Write(b[offset:]); err != nil {
			return i, err
		}
	}
	return len(bufs), nil
}

func (t *waterTUN) Close() error {
	t.closeOnce.Do(func() {
		t.events <- wgtun.EventDown
		close(t.events)
		t.closeErr = t.ifce.Close()
	})
	return t.closeErr
}
