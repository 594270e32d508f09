//go:build cgo && wgembed

package native

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/wgbind/pkg/device"
	"github.com/irctrakz/wgbind/pkg/multistr"
	"github.com/irctrakz/wgbind/pkg/raw"
)

func TestNewDeviceIsZeroed(t *testing.T) {
	b, err := New(0)
	require.NoError(t, err)
	defer b.Close()

	rec := b.NewDevice()
	require.NotNil(t, rec)
	assert.Equal(t, raw.Device{}, *rec)
	assert.Equal(t, 1, b.Outstanding())

	b.FreeDevice(rec)
	assert.Zero(t, b.Outstanding())
}

func TestFreeUnownedPanics(t *testing.T) {
	b, err := New(0)
	require.NoError(t, err)
	defer b.Close()

	rec := b.NewDevice()
	require.NotNil(t, rec)
	b.FreeDevice(rec)
	assert.Panics(t, func() { b.FreeDevice(rec) })
	assert.Panics(t, func() { b.FreeDevice(&raw.Device{}) })
	assert.NotPanics(t, func() { b.FreeDevice(nil) })
}

func TestConcurrentListNames(t *testing.T) {
	b, err := New(0)
	require.NoError(t, err)
	defer b.Close()

	want, err := device.ListNames(b)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				names, err := device.ListNames(b)
				if err != nil {
					errs <- err
					return
				}
				if len(names) != len(want) {
					t.Errorf("listed %d names, want %d", len(names), len(want))
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestListNamesOutlivesNextCall(t *testing.T) {
	b, err := New(0)
	require.NoError(t, err)
	defer b.Close()

	first := b.ListDeviceNames()
	_ = b.ListDeviceNames()
	if first == nil {
		t.Skip("no name buffer from the library")
	}
	_, err = multistr.Decode(first)
	assert.NoError(t, err)
}
