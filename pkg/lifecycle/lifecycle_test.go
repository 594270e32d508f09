package lifecycle

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/wgbind/pkg/device"
	"github.com/irctrakz/wgbind/pkg/raw"
	"github.com/irctrakz/wgbind/pkg/rawtest"
)

func TestFullLifecycle(t *testing.T) {
	s := rawtest.New()
	iface := New(s)
	assert.Equal(t, Unbound, iface.State())
	assert.Nil(t, iface.Handle())

	require.NoError(t, iface.CreateInterface("wg-test"))
	assert.Equal(t, Created, iface.State())

	require.NoError(t, iface.RefreshDevice())
	assert.Equal(t, Synchronized, iface.State())

	require.NoError(t, iface.SetFwmark(51))
	assert.Equal(t, Modified, iface.State())

	require.NoError(t, iface.UpdateDevice())
	assert.Equal(t, Synchronized, iface.State())
	state, ok := s.State("wg-test")
	require.True(t, ok)
	assert.Equal(t, uint32(51), state.Fwmark)

	require.NoError(t, iface.RemoveInterface())
	assert.Equal(t, Removed, iface.State())
	_, ok = s.State("wg-test")
	assert.False(t, ok)

	assert.Zero(t, s.Outstanding())
	assert.Zero(t, s.DoubleFrees())
}

func TestRefreshWinsOverLocalEdits(t *testing.T) {
	s := rawtest.New()
	iface := New(s)
	require.NoError(t, iface.CreateInterface("wg0"))
	require.NoError(t, iface.SetFwmark(10))
	require.NoError(t, iface.UpdateDevice())

	require.NoError(t, iface.SetFwmark(20))
	require.Equal(t, Modified, iface.State())
	require.NoError(t, iface.RefreshDevice())

	assert.Equal(t, Synchronized, iface.State())
	mark, err := iface.Handle().Fwmark()
	require.NoError(t, err)
	assert.Equal(t, uint32(10), mark)
	require.NoError(t, iface.Close())
}

func TestCreateExisting(t *testing.T) {
	s := rawtest.New()
	first := New(s)
	require.NoError(t, first.CreateInterface("wg-test"))
	defer first.Close()

	second := New(s)
	err := second.CreateInterface("wg-test")
	assert.ErrorIs(t, err, device.ErrExist)
	assert.Equal(t, Unbound, second.State())
}

func TestRemoveFailureKeepsState(t *testing.T) {
	s := rawtest.New()
	iface := New(s)
	require.NoError(t, iface.CreateInterface("wg0"))
	require.NoError(t, iface.RefreshDevice())
	h := iface.Handle()

	s.Fail(rawtest.OpDel, syscall.EBUSY)
	err := iface.RemoveInterface()
	assert.ErrorIs(t, err, syscall.EBUSY)
	assert.Equal(t, Synchronized, iface.State())
	assert.Same(t, h, iface.Handle())
	assert.Zero(t, s.Calls(rawtest.OpFree), "no release before a successful delete")

	require.NoError(t, iface.RemoveInterface())
	assert.Equal(t, 1, s.Calls(rawtest.OpFree))
}

func TestRemoveDeletedElsewhere(t *testing.T) {
	s := rawtest.New()
	iface := New(s)
	require.NoError(t, iface.CreateInterface("wg0"))
	require.NoError(t, device.Delete(s, "wg0"))

	err := iface.RemoveInterface()
	var nerr *device.NativeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, syscall.ENODEV, nerr.Errno)
	assert.Equal(t, Created, iface.State())
	require.NoError(t, iface.Close())
}

func TestInvalidTransitions(t *testing.T) {
	s := rawtest.New()
	iface := New(s)

	assert.ErrorIs(t, iface.RefreshDevice(), ErrInvalidTransition)
	assert.ErrorIs(t, iface.UpdateDevice(), ErrInvalidTransition)
	assert.ErrorIs(t, iface.RemoveInterface(), ErrInvalidTransition)
	assert.ErrorIs(t, iface.SetFwmark(1), ErrInvalidTransition)

	require.NoError(t, iface.CreateInterface("wg0"))
	assert.ErrorIs(t, iface.CreateInterface("wg1"), ErrInvalidTransition)
	assert.ErrorIs(t, iface.UpdateDevice(), ErrInvalidTransition, "nothing staged in created")

	require.NoError(t, iface.RemoveInterface())
	assert.ErrorIs(t, iface.RefreshDevice(), ErrInvalidTransition)
	assert.ErrorIs(t, iface.RemoveInterface(), ErrInvalidTransition)
	assert.ErrorIs(t, iface.Attach("wg0"), ErrInvalidTransition)
}

func TestUpdateNoopWhenSynchronized(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{})
	iface := New(s)
	require.NoError(t, iface.Attach("wg0"))
	defer iface.Close()

	require.Equal(t, Synchronized, iface.State())
	require.NoError(t, iface.UpdateDevice())
	assert.Zero(t, s.Calls(rawtest.OpSet))
}

func TestUpdateFailureStaysModified(t *testing.T) {
	s := rawtest.New()
	iface := New(s)
	require.NoError(t, iface.CreateInterface("wg0"))
	defer iface.Close()
	require.NoError(t, iface.SetListenPort(51820))

	s.Fail(rawtest.OpSet, syscall.EINVAL)
	assert.ErrorIs(t, iface.UpdateDevice(), syscall.EINVAL)
	assert.Equal(t, Modified, iface.State())

	require.NoError(t, iface.UpdateDevice())
	assert.Equal(t, Synchronized, iface.State())
}

func TestCloseReleasesWithoutDelete(t *testing.T) {
	s := rawtest.New()
	iface := New(s)
	require.NoError(t, iface.CreateInterface("wg0"))
	require.NoError(t, iface.RefreshDevice())

	require.NoError(t, iface.Close())
	_, ok := s.State("wg0")
	assert.True(t, ok)
	assert.Zero(t, s.Outstanding())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "state(9)", State(9).String())
}
