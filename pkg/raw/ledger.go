package raw

import (
	"fmt"
	"sync"
)

// Ledger hands out Go-allocated device records and tracks which of them are
// still live. Backends that have no C allocator use it to give FreeDevice
// the same exactly-once contract wg_free_device has.
//
// The zero value is ready to use.
type Ledger struct {
	mu   sync.Mutex
	live map[*Device]struct{}
}

// Alloc returns a zeroed record owned by the ledger until freed.
func (l *Ledger) Alloc() *Device {
	d := new(Device)
	l.mu.Lock()
	if l.live == nil {
		l.live = make(map[*Device]struct{})
	}
	l.live[d] = struct{}{}
	l.mu.Unlock()
	return d
}

// Free releases d. Freeing nil is a no-op. Freeing a record that is not
// live panics: it is either a double free or a pointer from elsewhere.
func (l *Ledger) Free(d *Device) {
	if d == nil {
		return
	}
	l.mu.Lock()
	_, ok := l.live[d]
	delete(l.live, d)
	l.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("raw: free of unowned device record %p", d))
	}
	// Key material must not outlive the record.
	d.PrivateKey = Key{}
	d.FirstPeer, d.LastPeer = nil, nil
}

// Owns reports whether d is a live record of this ledger.
func (l *Ledger) Owns(d *Device) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.live[d]
	return ok
}

// Live returns the number of records not yet freed.
func (l *Ledger) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}
