package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

func TestOwnUserIdentityVerifiesItself(t *testing.T) {
	own, err := NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	require.True(t, own.Verify())
	require.True(t, own.Verified())
}

func TestIsDeviceSigned(t *testing.T) {
	own, err := NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)

	deviceKey, err := primitives.GenerateEd25519KeyPair()
	require.NoError(t, err)

	sig := own.SignDevice(deviceKey.PublicKey)
	require.True(t, own.IsDeviceSigned(deviceKey.PublicKey, sig))

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xFF
	require.False(t, own.IsDeviceSigned(deviceKey.PublicKey, tampered))
}

func TestIsIdentitySignedBy(t *testing.T) {
	alice, err := NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	bob, err := NewOwnUserIdentity("@bob:example.org")
	require.NoError(t, err)

	sig := alice.SignOtherUser(&bob.UserIdentity)
	require.True(t, bob.IsIdentitySignedBy(&alice.UserIdentity, sig))
}
