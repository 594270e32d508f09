package device

import (
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/wgbind/pkg/keys"
	"github.com/irctrakz/wgbind/pkg/multistr"
	"github.com/irctrakz/wgbind/pkg/raw"
	"github.com/irctrakz/wgbind/pkg/rawtest"
)

func TestPushThenFetchName(t *testing.T) {
	s := rawtest.New()
	for n := 1; n <= MaxNameLen; n++ {
		name := strings.Repeat("n", n)
		h, err := Create(s, name)
		require.NoError(t, err, name)
		require.NoError(t, h.SetFwmark(uint32(n)))
		require.NoError(t, h.Push())
		require.NoError(t, h.Pull())

		got, err := h.Name()
		require.NoError(t, err)
		assert.Equal(t, name, got)
		require.NoError(t, h.Close())
	}
	assert.Zero(t, s.Outstanding())
}

func TestPushRejectsLongName(t *testing.T) {
	s := rawtest.New()
	h := newHandle(s, strings.Repeat("x", 16), nil)
	defer h.Close()
	require.NoError(t, h.SetFwmark(1))

	assert.ErrorIs(t, h.Push(), ErrNameTooLong)
	assert.Zero(t, s.Calls(rawtest.OpSet))
	assert.Zero(t, s.Outstanding(), "built record is freed")
	assert.True(t, h.Pending())
}

func TestPushFromCreated(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg0")
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetListenPort(51820))
	require.NoError(t, h.Push())
	assert.True(t, h.Bound())
	assert.False(t, h.Pending())

	port, err := h.ListenPort()
	require.NoError(t, err)
	assert.Equal(t, uint16(51820), port)

	flags, err := h.Flags()
	require.NoError(t, err)
	assert.Equal(t, raw.FlagHasListenPort, flags)

	state, ok := s.State("wg0")
	require.True(t, ok)
	assert.Equal(t, uint16(51820), state.ListenPort)
}

func TestPushReplacesRecord(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{})
	h, err := Open(s, "wg0")
	require.NoError(t, err)
	fetched := h.rec

	require.NoError(t, h.SetFwmark(7))
	require.NoError(t, h.Push())
	assert.NotSame(t, fetched, h.rec)
	assert.Equal(t, 1, s.FreeCount(fetched))
	assert.Nil(t, h.rec.FirstPeer)
	assert.Nil(t, h.rec.LastPeer)

	require.NoError(t, h.Close())
	assert.Zero(t, s.Outstanding())
	assert.Zero(t, s.DoubleFrees())
}

func TestPushFailureLeavesHandle(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{Fwmark: 3, Flags: raw.FlagHasFwmark})
	h, err := Open(s, "wg0")
	require.NoError(t, err)
	defer h.Close()
	before := h.rec

	require.NoError(t, h.SetFwmark(9))
	s.Fail(rawtest.OpSet, syscall.EPERM)
	err = h.Push()
	assert.ErrorIs(t, err, syscall.EPERM)

	assert.Same(t, before, h.rec)
	assert.True(t, h.Pending())
	mark, err := h.Fwmark()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), mark)
	assert.Equal(t, 1, s.Outstanding(), "only the bound record is live")

	state, _ := s.State("wg0")
	assert.Equal(t, uint32(3), state.Fwmark)
}

func TestPushAllocFailure(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg0")
	require.NoError(t, err)
	defer h.Close()

	s.Fail(rawtest.OpNew, 0)
	assert.ErrorIs(t, h.Push(), syscall.ENOMEM)
}

func TestPullDiscardsLocalEdits(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg0")
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetFwmark(5))
	require.NoError(t, h.Push())

	require.NoError(t, h.SetFwmark(99))
	require.True(t, h.Pending())
	require.NoError(t, h.Pull())

	assert.False(t, h.Pending())
	mark, err := h.Fwmark()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), mark)
}

func TestPullFailureLeavesHandle(t *testing.T) {
	s := rawtest.New()
	s.Seed("wg0", raw.Device{})
	h, err := Open(s, "wg0")
	require.NoError(t, err)
	defer h.Close()
	before := h.rec
	require.NoError(t, h.SetFwmark(1))

	s.Fail(rawtest.OpGet, syscall.ENODEV)
	assert.ErrorIs(t, h.Pull(), syscall.ENODEV)
	assert.Same(t, before, h.rec)
	assert.True(t, h.Pending())
}

func TestPushPrivateKey(t *testing.T) {
	s := rawtest.New()
	h, err := Create(s, "wg0")
	require.NoError(t, err)
	defer h.Close()

	k, err := keys.GeneratePrivate()
	require.NoError(t, err)
	require.NoError(t, h.SetPrivateKey(k))
	require.NoError(t, h.Push())
	require.NoError(t, h.Pull())

	priv, ok, err := h.PrivateKeyBytes()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [32]byte(k), [32]byte(priv))

	pub, ok, err := h.PublicKeyBytes()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, keys.ToBase64(keys.Public(k)), pub.String())

	// Clearing the key drops both flags.
	require.NoError(t, h.SetPrivateKey(raw.Key{}))
	require.NoError(t, h.Push())
	require.NoError(t, h.Pull())
	_, ok, err = h.PrivateKeyBytes()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildFlags(t *testing.T) {
	s := rawtest.New()
	priv, err := keys.GeneratePrivate()
	require.NoError(t, err)
	h := newHandle(s, "wg0", &raw.Device{
		ListenPort: 51820,
		PrivateKey: priv,
		PublicKey:  keys.Public(priv),
		Flags:      raw.FlagHasPrivateKey | raw.FlagHasPublicKey,
	})
	defer h.Detach()

	var rec raw.Device
	require.NoError(t, h.build(&rec))
	assert.Equal(t, raw.FlagHasListenPort|raw.FlagHasPrivateKey|raw.FlagHasPublicKey, rec.Flags)

	require.NoError(t, h.SetReplacePeers(true))
	require.NoError(t, h.SetFwmark(0))
	require.NoError(t, h.build(&rec))
	assert.True(t, rec.Flags.Has(raw.FlagReplacePeers|raw.FlagHasFwmark))
	assert.Zero(t, rec.Fwmark)

	h.Discard()
	assert.False(t, h.Pending())
}

func TestListNames(t *testing.T) {
	s := rawtest.New()
	names, err := ListNames(s)
	require.NoError(t, err)
	assert.Nil(t, names)

	for _, name := range []string{"wg1", "wg0"} {
		h, err := Create(s, name)
		require.NoError(t, err)
		require.NoError(t, h.Close())
	}
	names, err = ListNames(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"wg0", "wg1"}, names)

	s.NilNames = true
	names, err = ListNames(s)
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestListNamesDecodeFailure(t *testing.T) {
	s := rawtest.New()
	s.NamesOverride = []byte{'w', 0xff, 0, 0}
	_, err := ListNames(s)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, multistr.ErrInvalidUTF8)

	s.NamesOverride = []byte(strings.Repeat("wg0\x00", 8) + "\x00")
	_, err = ListNamesLimit(s, 8)
	assert.ErrorIs(t, err, multistr.ErrUnterminated)
}
