package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/olmcore/internal/identity"
	"github.com/jaydenbeard/olmcore/internal/primitives"
)

func signedDeviceKeys(t *testing.T, userID, deviceID string) (DeviceKeys, *primitives.Ed25519KeyPair) {
	t.Helper()

	deviceSigningKey, err := primitives.GenerateEd25519KeyPair()
	require.NoError(t, err)

	keys := DeviceKeys{
		UserID:              userID,
		DeviceID:            deviceID,
		DisplayName:         "test device",
		SupportedAlgorithms: []string{"m.olm.v1.curve25519-aes-sha2"},
		Keys:                map[string][]byte{"ed25519": deviceSigningKey.PublicKey},
	}

	canonical, err := primitives.CanonicalJSON(signableDeviceKeys{
		UserID:              keys.UserID,
		DeviceID:            keys.DeviceID,
		DisplayName:         keys.DisplayName,
		SupportedAlgorithms: keys.SupportedAlgorithms,
		Keys:                keys.Keys,
	})
	require.NoError(t, err)

	keys.SelfSignature = primitives.Sign(deviceSigningKey.PrivateKey, canonical)
	return keys, deviceSigningKey
}

func TestUpsertDeviceRejectsBadSignature(t *testing.T) {
	own, err := identity.NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	r := New("@alice:example.org", own)

	keys, _ := signedDeviceKeys(t, "@alice:example.org", "DEVICE1")
	keys.SelfSignature[0] ^= 0xFF

	_, err = r.UpsertDevice(keys)
	require.ErrorIs(t, err, ErrBadSignature)

	_, ok := r.Device("@alice:example.org", "DEVICE1")
	require.False(t, ok)
}

func TestUpsertDeviceAcceptsValidSignature(t *testing.T) {
	own, err := identity.NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	r := New("@alice:example.org", own)

	keys, _ := signedDeviceKeys(t, "@alice:example.org", "DEVICE1")
	record, err := r.UpsertDevice(keys)
	require.NoError(t, err)
	require.Equal(t, "DEVICE1", record.DeviceID)

	fetched, ok := r.Device("@alice:example.org", "DEVICE1")
	require.True(t, ok)
	require.Equal(t, record.DeviceID, fetched.DeviceID)
}

func TestMarkDeletedIsMonotonicAcrossReupsert(t *testing.T) {
	own, err := identity.NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	r := New("@alice:example.org", own)

	keys, _ := signedDeviceKeys(t, "@alice:example.org", "DEVICE1")
	_, err = r.UpsertDevice(keys)
	require.NoError(t, err)

	r.MarkDeleted("@alice:example.org", "DEVICE1")
	d, ok := r.Device("@alice:example.org", "DEVICE1")
	require.True(t, ok)
	require.True(t, d.Deleted())

	// Re-upserting the same device (e.g. a replayed key upload) must not
	// resurrect it.
	_, err = r.UpsertDevice(keys)
	require.NoError(t, err)
	d, ok = r.Device("@alice:example.org", "DEVICE1")
	require.True(t, ok)
	require.True(t, d.Deleted())
}

func TestTrustStateLocalVerifiedShortCircuits(t *testing.T) {
	own, err := identity.NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	r := New("@alice:example.org", own)

	keys, _ := signedDeviceKeys(t, "@bob:example.org", "DEVICE1")
	record, err := r.UpsertDevice(keys)
	require.NoError(t, err)

	require.False(t, r.TrustState(record))

	record.SetLocalTrust(TrustVerified)
	require.True(t, r.TrustState(record))
}

func TestTrustStateOwnDeviceViaOwnIdentity(t *testing.T) {
	own, err := identity.NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	r := New("@alice:example.org", own)

	deviceSigningKey, err := primitives.GenerateEd25519KeyPair()
	require.NoError(t, err)

	keys := DeviceKeys{
		UserID:              "@alice:example.org",
		DeviceID:            "DEVICE2",
		SupportedAlgorithms: []string{"m.megolm.v1.aes-sha2"},
		Keys:                map[string][]byte{"ed25519": deviceSigningKey.PublicKey},
	}
	canonical, err := primitives.CanonicalJSON(signableDeviceKeys{
		UserID:              keys.UserID,
		DeviceID:            keys.DeviceID,
		SupportedAlgorithms: keys.SupportedAlgorithms,
		Keys:                keys.Keys,
	})
	require.NoError(t, err)
	keys.SelfSignature = primitives.Sign(deviceSigningKey.PrivateKey, canonical)
	keys.CrossSignature = own.SignDevice(deviceSigningKey.PublicKey)

	record, err := r.UpsertDevice(keys)
	require.NoError(t, err)
	require.True(t, r.TrustState(record))
}

func TestTrustStateOtherUserRequiresMutualCrossSigning(t *testing.T) {
	alice, err := identity.NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	r := New("@alice:example.org", alice)

	bob, err := identity.NewOwnUserIdentity("@bob:example.org")
	require.NoError(t, err)

	deviceSigningKey, err := primitives.GenerateEd25519KeyPair()
	require.NoError(t, err)
	keys := DeviceKeys{
		UserID:   "@bob:example.org",
		DeviceID: "BOBDEVICE",
		Keys:     map[string][]byte{"ed25519": deviceSigningKey.PublicKey},
	}
	canonical, err := primitives.CanonicalJSON(signableDeviceKeys{
		UserID:   keys.UserID,
		DeviceID: keys.DeviceID,
		Keys:     keys.Keys,
	})
	require.NoError(t, err)
	keys.SelfSignature = primitives.Sign(deviceSigningKey.PrivateKey, canonical)
	keys.CrossSignature = bob.SignDevice(deviceSigningKey.PublicKey)

	record, err := r.UpsertDevice(keys)
	require.NoError(t, err)

	// Bob's identity is known but alice hasn't verified it yet.
	r.SetUserIdentity(&bob.UserIdentity)
	require.False(t, r.TrustState(record))

	// Once alice verifies bob's identity, his cross-signed device is trusted.
	r.VerifyUserIdentity(&bob.UserIdentity)
	require.True(t, r.TrustState(record))
}
