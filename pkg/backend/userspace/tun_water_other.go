//go:build !linux

package userspace

import (
	"errors"

	wgtun "golang.zx2c4.com/wireguard/tun"
)

func newKernelTUN(string, int) (wgtun.Device, error) {
	return nil, errors.New("userspace: kernel TUN requires linux")
}
