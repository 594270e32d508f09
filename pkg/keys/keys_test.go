package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func TestGeneratePrivate(t *testing.T) {
	k, err := GeneratePrivate()
	require.NoError(t, err)
	assert.False(t, IsZero(k))
	assert.Equal(t, byte(0), k[0]&7, "low bits clamped")
	assert.Equal(t, byte(64), k[31]&192, "high bits clamped")
}

func TestPublicMatchesWgtypes(t *testing.T) {
	k, err := GeneratePrivate()
	require.NoError(t, err)
	want := wgtypes.Key(k).PublicKey()
	assert.Equal(t, [32]byte(want), [32]byte(Public(k)))
}

func TestBase64RoundTrip(t *testing.T) {
	k, err := GeneratePreshared()
	require.NoError(t, err)
	s := ToBase64(k)
	assert.Len(t, s, 44)

	back, err := FromBase64(s)
	require.NoError(t, err)
	assert.Equal(t, k, back)

	_, err = FromBase64("not a key")
	assert.Error(t, err)
}
