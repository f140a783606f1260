package olm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// establishedPair runs the X3DH-style bootstrap and Bob's first decrypt, so
// both sides end up with a usable bidirectional session.
func establishedPair(t *testing.T) (alice, bob *Session) {
	t.Helper()

	bobSignedPrekey, err := primitives.GenerateCurve25519KeyPair()
	require.NoError(t, err)
	bobIdentity, err := primitives.GenerateCurve25519KeyPair()
	require.NoError(t, err)

	var sharedSecret [32]byte
	copy(sharedSecret[:], []byte("a shared secret from X3DH, 32 b"))

	alice, err = NewOutbound(sharedSecret, bobSignedPrekey.PublicKey, bobIdentity.PublicKey, bobSignedPrekey.PublicKey)
	require.NoError(t, err)
	require.True(t, alice.HasPendingPrekey())

	bob = NewInbound(sharedSecret, bobSignedPrekey)

	wire, err := alice.Encrypt([]byte("hello bob"))
	require.NoError(t, err)

	pm, err := DecodePrekeyMessage(wire)
	require.NoError(t, err)

	plaintext, err := bob.Decrypt(pm.Inner)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(plaintext))
	require.False(t, bob.HasPendingPrekey())

	return alice, bob
}

func TestOlmHandshakeAndBidirectionalExchange(t *testing.T) {
	alice, bob := establishedPair(t)

	reply, err := bob.Encrypt([]byte("hi alice"))
	require.NoError(t, err)

	plaintext, err := alice.Decrypt(reply)
	require.NoError(t, err)
	require.Equal(t, "hi alice", string(plaintext))
	require.False(t, alice.HasPendingPrekey())

	for i := 0; i < 5; i++ {
		wire, err := alice.Encrypt([]byte("ping"))
		require.NoError(t, err)
		plaintext, err := bob.Decrypt(wire)
		require.NoError(t, err)
		require.Equal(t, "ping", string(plaintext))
	}
}

// TestOlmPrekeyFlowRootKeysConverge mirrors scenario S1: after Bob's first
// reply, both sides have ratcheted to the same root key.
func TestOlmPrekeyFlowRootKeysConverge(t *testing.T) {
	alice, bob := establishedPair(t)

	reply, err := bob.Encrypt([]byte("hi"))
	require.NoError(t, err)
	_, err = alice.Decrypt(reply)
	require.NoError(t, err)

	require.Equal(t, alice.rootKey, bob.rootKey)
}

func TestOlmOutOfOrderDeliveryUsesSkippedKeyCache(t *testing.T) {
	alice, bob := establishedPair(t)

	var wires [][]byte
	for i := 0; i < 3; i++ {
		wire, err := alice.Encrypt([]byte("msg"))
		require.NoError(t, err)
		// Alice has not decrypted a reply yet, so each message is still a
		// prekey envelope; Bob's session decrypts the inner Message.
		pm, err := DecodePrekeyMessage(wire)
		require.NoError(t, err)
		wires = append(wires, pm.Inner)
	}

	// Decrypt the third message first; the first two become skipped keys.
	plaintext, err := bob.Decrypt(wires[2])
	require.NoError(t, err)
	require.Equal(t, "msg", string(plaintext))

	plaintext, err = bob.Decrypt(wires[0])
	require.NoError(t, err)
	require.Equal(t, "msg", string(plaintext))

	plaintext, err = bob.Decrypt(wires[1])
	require.NoError(t, err)
	require.Equal(t, "msg", string(plaintext))

	// Re-delivering an already-consumed skipped key fails: it was single-use.
	_, err = bob.Decrypt(wires[0])
	require.ErrorIs(t, err, ErrBadMessageFormat)
}

func TestOlmTamperedCiphertextFailsMac(t *testing.T) {
	alice, bob := establishedPair(t)

	reply, err := bob.Encrypt([]byte("hi alice"))
	require.NoError(t, err)

	tampered := make([]byte, len(reply))
	copy(tampered, reply)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = alice.Decrypt(tampered)
	require.ErrorIs(t, err, ErrBadMac)
}

func TestOlmTooManySkippedFails(t *testing.T) {
	alice, bob := establishedPair(t)

	var lastWire []byte
	for i := 0; i < maxSkippedKeys+2; i++ {
		wire, err := alice.Encrypt([]byte("x"))
		require.NoError(t, err)
		lastWire = wire
	}

	// Still prekey-wrapped: Alice has not decrypted a reply yet.
	pm, err := DecodePrekeyMessage(lastWire)
	require.NoError(t, err)
	_, err = bob.Decrypt(pm.Inner)
	require.ErrorIs(t, err, ErrTooManySkipped)
}

func TestOlmUnknownMessageTypeRejected(t *testing.T) {
	_, bob := establishedPair(t)

	bad := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}
	_, err := bob.Decrypt(bad)
	require.ErrorIs(t, err, ErrUnknownMessageType)
}
