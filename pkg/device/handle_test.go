package device

import (
	"errors"
	"io/fs"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/wgbind/pkg/raw"
	"github.com/irctrakz/wgbind/pkg/rawtest"
)

func TestCreateThenPull(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg-test")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "wg-test", h.InterfaceName())
	assert.False(t, h.Bound())
	_, err = h.Name()
	assert.ErrorIs(t, err, ErrNotBound)

	require.NoError(t, h.Pull())
	name, err := h.Name()
	require.NoError(t, err)
	assert.Equal(t, "wg-test", name)
}

func TestCreateExisting(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg-test")
	require.NoError(t, err)
	defer h.Close()

	_, err = Create(s, "wg-test")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExist)
	assert.ErrorIs(t, err, fs.ErrExist)
	assert.ErrorIs(t, err, syscall.EEXIST)
}

func TestCreateGenericFailure(t *testing.T) {
	s := rawtest.New()
	s.Fail(rawtest.OpAdd, syscall.EPERM)

	_, err := Create(s, "wg0")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExist)

	var nerr *NativeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "add", nerr.Op)
	assert.Equal(t, syscall.EPERM, nerr.Errno)
	assert.Equal(t, -int(syscall.EPERM), nerr.Status)
}

func TestCreateRejectsBadNames(t *testing.T) {
	s := rawtest.New()
	for _, name := range []string{"", ".", "wg 0", "wg/0", "a:b", "\xff"} {
		_, err := Create(s, name)
		assert.ErrorIs(t, err, ErrInvalidName, "%q", name)
	}
	_, err := Create(s, strings.Repeat("a", 16))
	assert.ErrorIs(t, err, ErrNameTooLong)
	assert.Zero(t, s.Calls(rawtest.OpAdd))
}

func TestDeleteMissing(t *testing.T) {
	s := rawtest.New()
	err := Delete(s, "missing0")
	require.Error(t, err)

	var nerr *NativeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, syscall.ENODEV, nerr.Errno)
	assert.ErrorIs(t, err, syscall.ENODEV)
}

func TestDelete(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg0")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	require.NoError(t, Delete(s, "wg0"))
	_, ok := s.State("wg0")
	assert.False(t, ok)
}

func TestOpenMissing(t *testing.T) {
	s := rawtest.New()
	_, err := Open(s, "wg9")
	assert.ErrorIs(t, err, syscall.ENODEV)
	assert.Zero(t, s.Outstanding())
}

func TestReleaseExactlyOnce(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{})

	h, err := Open(s, "wg0")
	require.NoError(t, err)
	first := h.rec

	// A second pull replaces and frees the first record.
	require.NoError(t, h.Pull())
	second := h.rec
	require.NotSame(t, first, second)
	assert.Equal(t, 1, s.FreeCount(first))
	assert.Zero(t, s.FreeCount(second))

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	h.finalize()

	assert.Equal(t, 1, s.FreeCount(first))
	assert.Equal(t, 1, s.FreeCount(second))
	assert.Zero(t, s.Outstanding())
	assert.Zero(t, s.DoubleFrees())
}

func TestFinalizeThenClose(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{})
	h, err := Open(s, "wg0")
	require.NoError(t, err)
	rec := h.rec

	h.finalize()
	require.NoError(t, h.Close())
	assert.Equal(t, 1, s.FreeCount(rec))
}

func TestReleaseUnboundIsNoop(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg0")
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Zero(t, s.Calls(rawtest.OpFree))
}

func TestClosedHandle(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{})
	h, err := Open(s, "wg0")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.Fwmark()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.Pull(), ErrClosed)
	assert.ErrorIs(t, h.Push(), ErrClosed)
	assert.ErrorIs(t, h.SetFwmark(1), ErrClosed)
	assert.True(t, h.Closed())
}

func TestAccessorsUnbound(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg0")
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Name()
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = h.Flags()
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = h.Fwmark()
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = h.ListenPort()
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = h.IfIndex()
	assert.ErrorIs(t, err, ErrNotBound)
	_, _, err = h.PrivateKey()
	assert.ErrorIs(t, err, ErrNotBound)
	_, _, err = h.PublicKey()
	assert.ErrorIs(t, err, ErrNotBound)
	_, _, err = h.PrivateKeyBytes()
	assert.ErrorIs(t, err, ErrNotBound)
	_, _, err = h.PublicKeyBytes()
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestFromRaw(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{Fwmark: 42, Flags: raw.FlagHasFwmark})

	rec, status, err := s.GetDevice("wg0")
	require.NoError(t, err)
	require.Zero(t, status)

	h, err := FromRaw(s, rec)
	require.NoError(t, err)
	assert.Equal(t, "wg0", h.InterfaceName())
	mark, err := h.Fwmark()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), mark)

	require.NoError(t, h.Close())
	assert.Equal(t, 1, s.FreeCount(rec))
}

func TestFromRawBadName(t *testing.T) {
	s := rawtest.New()
	rec := s.NewDevice()
	for i := range rec.Name {
		rec.Name[i] = 'x'
	}

	_, err := FromRaw(s, rec)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 1, s.FreeCount(rec), "ownership passes even on failure")

	_, err = FromRaw(s, nil)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestDetach(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{})
	h, err := Open(s, "wg0")
	require.NoError(t, err)

	rec := h.Detach()
	require.NotNil(t, rec)
	assert.False(t, h.Bound())
	require.NoError(t, h.Close())
	assert.Zero(t, s.FreeCount(rec))

	s.FreeDevice(rec)
	assert.Equal(t, 1, s.FreeCount(rec))
}

func TestKeyText(t *testing.T) {
	var empty raw.Key
	_, ok, err := keyText(&empty)
	assert.NoError(t, err)
	assert.False(t, ok)

	var text raw.Key
	copy(text[:], "printable-key")
	got, ok, err := keyText(&text)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "printable-key", got)

	var full raw.Key
	for i := range full {
		full[i] = 'k'
	}
	_, ok, err = keyText(&full)
	assert.NoError(t, err, "unterminated is no key")
	assert.False(t, ok)

	binary := raw.Key{0x01, 0xfe, 0x00}
	_, ok, err = keyText(&binary)
	assert.ErrorIs(t, err, ErrDecode)
	assert.False(t, ok)
}

func TestNameFieldRoundTrip(t *testing.T) {
	for n := 0; n <= MaxNameLen; n++ {
		name := strings.Repeat("w", n)
		field, err := marshalName(name)
		require.NoError(t, err, n)
		back, err := unmarshalName(&field)
		require.NoError(t, err, n)
		assert.Equal(t, name, back)
	}

	_, err := marshalName(strings.Repeat("w", raw.IfNameSize))
	assert.ErrorIs(t, err, ErrNameTooLong)
	_, err = marshalName("bad\x00")
	assert.ErrorIs(t, err, ErrInvalidName)

	var field [raw.IfNameSize]byte
	copy(field[:], []byte{'w', 0xff, 0})
	_, err = unmarshalName(&field)
	assert.ErrorIs(t, err, ErrDecode)
}
