package userspace

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"

	wgtun "golang.zx2c4.com/wireguard/tun"
)

const defaultMTU = 1420

var (
	errTunClosed = errors.New("userspace tun closed")
	errTunFull   = errors.New("userspace tun queue full")
	errKernelTUN = errors.New("userspace: device uses a kernel tun")
)

// TunStats exposes the plaintext counters of a memory TUN.
type TunStats struct {
	Injected uint64 // frames queued for the device to read
	Written  uint64 // frames the device emitted
	Drops    uint64 // frames dropped on a full queue
}

// memTUN is a TUN with no kernel side. wireguard-go reads frames queued by
// Inject and writes decrypted frames, which are counted and discarded.
type memTUN struct {
	name string
	mtu  int

	inCh    chan []byte
	events  chan wgtun.Event
	closed  chan struct{}
	closeMu sync.Mutex

	stats TunStats
}

var _ wgtun.Device = (*memTUN)(nil)

func newMemTUN(name string, mtu int) *memTUN {
	if mtu <= 0 {
		mtu = defaultMTU
	}
	return &memTUN{
		name:   name,
		mtu:    mtu,
		inCh:   make(chan []byte, 256),
		events: make(chan wgtun.Event, 2),
		closed: make(chan struct{}),
	}
}

func (t *memTUN) File() *os.File { return nil }

func (t *memTUN) Name() (string, error) { return t.name, nil }

func (t *memTUN) MTU() (int, error) { return t.mtu, nil }

func (t *memTUN) Events() <-chan wgtun.Event { return t.events }

func (t *memTUN) BatchSize() int { return 1 }

// Read blocks until a frame is injected or the TUN is closed.
func (t *memTUN) Read(bufs [][]byte, sizes []int, offset int) (int, error) {
	select {
	case <-t.closed:
		return 0, os.ErrClosed
	case pkt := <-t.inCh:
		if len(bufs) == 0 || offset >= len(bufs[0]) {
			return 0, nil
		}
		n := copy(bufs[0][offset:], pkt)
		if len(sizes) > 0 {
			sizes[0] = n
		}
		return 1, nil
	}
}

// Write consumes every frame.
func (t *memTUN) Write(bufs [][]byte, offset int) (int, error) {
	select {
	case <-t.closed:
		return 0, os.ErrClosed
	default:
	}
	n := 0
	for _, b := range bufs {
		if offset >= len(b) {
			continue
		}
		n++
	}
	atomic.AddUint64(&t.stats.Written, uint64(n))
	return len(bufs), nil
}

// Inject queues a frame for the device to read.
func (t *memTUN) Inject(b []byte) error {
	select {
	case <-t.closed:
		return errTunClosed
	default:
	}
	cp := append([]byte(nil), b...)
	select {
	case t.inCh <- cp:
		atomic.AddUint64(&t.stats.Injected, 1)
		return nil
	default:
		atomic.AddUint64(&t.stats.Drops, 1)
		return errTunFull
	}
}

// Stats returns a snapshot of the counters.
func (t *memTUN) Stats() TunStats {
	return TunStats{
		Injected: atomic.LoadUint64(&t.stats.Injected),
		Written:  atomic.LoadUint64(&t.stats.Written),
		Drops:    atomic.LoadUint64(&t.stats.Drops),
	}
}

// Close is idempotent. It emits a Down event before closing the event
// stream.
func (t *memTUN) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	select {
	case <-t.closed:
		return nil
	default:
	}
	close(t.closed)
	select {
	case t.events <- wgtun.EventDown:
	default:
	}
	close(t.events)
	return nil
}
