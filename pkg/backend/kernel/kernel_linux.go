//go:build linux

// Package kernel implements raw.Surface for the Linux WireGuard module in
// pure Go. Links are added, deleted and enumerated over rtnetlink; device
// configuration goes through wgctrl's generic netlink client.
package kernel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"syscall"
	"unsafe"

	"github.com/mdlayher/netlink"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/irctrakz/wgbind/pkg/logging"
	"github.com/irctrakz/wgbind/pkg/multistr"
	"github.com/irctrakz/wgbind/pkg/raw"
)

// linkKind is the rtnetlink link kind of WireGuard interfaces.
const linkKind = "wireguard"

// Backend is a raw.Surface over the kernel module. It is safe for
// concurrent use.
type Backend struct {
	rtnl *netlink.Conn
	wg   *wgctrl.Client
	log  *logrus.Entry

	mu     sync.Mutex
	names  []byte
	ledger raw.Ledger
}

var _ raw.Surface = (*Backend)(nil)

// New dials rtnetlink and the WireGuard generic netlink family.
func New() (*Backend, error) {
	rtnl, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, fmt.Errorf("kernel: dial rtnetlink: %w", err)
	}
	wg, err := wgctrl.New()
	if err != nil {
		rtnl.Close()
		return nil, fmt.Errorf("kernel: open wgctrl: %w", err)
	}
	return &Backend{rtnl: rtnl, wg: wg, log: logging.Component("kernel")}, nil
}

func status(errno syscall.Errno) (int, error) {
	return -int(errno), errno
}

// errnoOf unpacks netlink and wgctrl errors. Missing devices surface as
// os.ErrNotExist from wgctrl and become ENODEV.
func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENODEV
	case errors.Is(err, os.ErrPermission):
		return syscall.EPERM
	default:
		return syscall.EIO
	}
}

// linkMessage builds an rtnetlink link request for name. withKind adds
// the nested IFLA_LINKINFO/IFLA_INFO_KIND attribute.
func linkMessage(typ netlink.HeaderType, flags netlink.HeaderFlags, name string, withKind bool) (netlink.Message, error) {
	ae := netlink.NewAttributeEncoder()
	ae.String(unix.IFLA_IFNAME, name)
	if withKind {
		ae.Nested(unix.IFLA_LINKINFO, func(nae *netlink.AttributeEncoder) error {
			nae.String(unix.IFLA_INFO_KIND, linkKind)
			return nil
		})
	}
	attrs, err := ae.Encode()
	if err != nil {
		return netlink.Message{}, err
	}
	// struct ifinfomsg, all zero: AF_UNSPEC, no index, no flags.
	data := make([]byte, unix.SizeofIfInfomsg, unix.SizeofIfInfomsg+len(attrs))
	data = append(data, attrs...)
	return netlink.Message{
		Header: netlink.Header{
			Type:  typ,
			Flags: netlink.Request | netlink.Acknowledge | flags,
		},
		Data: data,
	}, nil
}

func (b *Backend) executeLink(op string, msg netlink.Message, name string) (int, error) {
	if _, err := b.rtnl.Execute(msg); err != nil {
		errno := errnoOf(err)
		b.log.WithFields(logrus.Fields{"device": name, "op": op, "errno": errno}).Debugf("rtnetlink request failed")
		return status(errno)
	}
	return 0, nil
}

// AddDevice implements raw.Surface with RTM_NEWLINK. An existing link
// fails with EEXIST.
func (b *Backend) AddDevice(name string) (int, error) {
	msg, err := linkMessage(unix.RTM_NEWLINK, netlink.Create|netlink.Excl, name, true)
	if err != nil {
		return status(syscall.EINVAL)
	}
	return b.executeLink("add", msg, name)
}

// DelDevice implements raw.Surface with RTM_DELLINK.
func (b *Backend) DelDevice(name string) (int, error) {
	msg, err := linkMessage(unix.RTM_DELLINK, 0, name, false)
	if err != nil {
		return status(syscall.EINVAL)
	}
	return b.executeLink("del", msg, name)
}

// recordFrom fills rec from a wgctrl device.
func recordFrom(rec *raw.Device, d *wgtypes.Device, ifindex int) {
	copy(rec.Name[:raw.IfNameSize-1], d.Name)
	rec.IfIndex = uint32(ifindex)
	rec.ListenPort = uint16(d.ListenPort)
	rec.Fwmark = uint32(d.FirewallMark)
	if rec.ListenPort != 0 {
		rec.Flags |= raw.FlagHasListenPort
	}
	if rec.Fwmark != 0 {
		rec.Flags |= raw.FlagHasFwmark
	}
	var zero wgtypes.Key
	if d.PrivateKey != zero {
		rec.PrivateKey = raw.Key(d.PrivateKey)
		rec.PublicKey = raw.Key(d.PublicKey)
		rec.Flags |= raw.FlagHasPrivateKey | raw.FlagHasPublicKey
	}
}

// configFrom selects the fields of dev named by its flags.
func configFrom(dev *raw.Device) wgtypes.Config {
	var cfg wgtypes.Config
	if dev.Flags.Has(raw.FlagHasPrivateKey) {
		k := wgtypes.Key(dev.PrivateKey)
		cfg.PrivateKey = &k
	}
	if dev.Flags.Has(raw.FlagHasListenPort) {
		p := int(dev.ListenPort)
		cfg.ListenPort = &p
	}
	if dev.Flags.Has(raw.FlagHasFwmark) {
		m := int(dev.Fwmark)
		cfg.FirewallMark = &m
	}
	cfg.ReplacePeers = dev.Flags.Has(raw.FlagReplacePeers)
	return cfg
}

// GetDevice implements raw.Surface.
func (b *Backend) GetDevice(name string) (*raw.Device, int, error) {
	d, err := b.wg.Device(name)
	if err != nil {
		st, err := status(errnoOf(err))
		return nil, st, err
	}
	ifindex := 0
	if ifi, err := net.InterfaceByName(name); err == nil {
		ifindex = ifi.Index
	}
	rec := b.ledger.Alloc()
	recordFrom(rec, d, ifindex)
	return rec, 0, nil
}

// SetDevice implements raw.Surface.
func (b *Backend) SetDevice(dev *raw.Device) (int, error) {
	if dev == nil {
		return status(syscall.EINVAL)
	}
	name := dev.InterfaceName()
	if err := b.wg.ConfigureDevice(name, configFrom(dev)); err != nil {
		return status(errnoOf(err))
	}
	return 0, nil
}

// NewDevice implements raw.Surface.
func (b *Backend) NewDevice() *raw.Device {
	return b.ledger.Alloc()
}

// FreeDevice implements raw.Surface. It panics on a record this backend
// did not hand out or already freed.
func (b *Backend) FreeDevice(dev *raw.Device) {
	b.ledger.Free(dev)
}

// ListDeviceNames implements raw.Surface by dumping links and keeping
// those of kind wireguard.
func (b *Backend) ListDeviceNames() unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names = nil

	msg := netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_GETLINK,
			Flags: netlink.Request | netlink.Dump,
		},
		Data: make([]byte, unix.SizeofIfInfomsg),
	}
	msgs, err := b.rtnl.Execute(msg)
	if err != nil {
		b.log.Warnf("link dump failed: %v", err)
		return nil
	}
	names, err := parseLinks(msgs)
	if err != nil {
		b.log.Warnf("link dump unparsable: %v", err)
		return nil
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	buf, err := multistr.Encode(names)
	if err != nil {
		b.log.Errorf("encode device names: %v", err)
		return nil
	}
	b.names = buf
	return unsafe.Pointer(&b.names[0])
}

// parseLinks returns the names of WireGuard links in an RTM_NEWLINK dump.
func parseLinks(msgs []netlink.Message) ([]string, error) {
	var names []string
	for _, m := range msgs {
		if m.Header.Type != unix.RTM_NEWLINK {
			continue
		}
		if len(m.Data) < unix.SizeofIfInfomsg {
			return nil, fmt.Errorf("kernel: rtnetlink message too short for ifinfomsg: %d", len(m.Data))
		}
		ad, err := netlink.NewAttributeDecoder(m.Data[unix.SizeofIfInfomsg:])
		if err != nil {
			return nil, err
		}
		var (
			name string
			isWG bool
		)
		for ad.Next() {
			switch ad.Type() {
			case unix.IFLA_IFNAME:
				name = ad.String()
			case unix.IFLA_LINKINFO:
				ad.Nested(func(nad *netlink.AttributeDecoder) error {
					for nad.Next() {
						if nad.Type() == unix.IFLA_INFO_KIND && nad.String() == linkKind {
							isWG = true
						}
					}
					return nil
				})
			}
		}
		if err := ad.Err(); err != nil {
			return nil, err
		}
		if isWG && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Outstanding returns the number of records handed out and not yet freed.
func (b *Backend) Outstanding() int {
	return b.ledger.Live()
}

// Close releases both netlink sockets.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.names = nil
	b.mu.Unlock()
	if n := b.ledger.Live(); n > 0 {
		b.log.Warnf("%d device records still outstanding at close", n)
	}
	werr := b.wg.Close()
	if err := b.rtnl.Close(); err != nil {
		return err
	}
	return werr
}
