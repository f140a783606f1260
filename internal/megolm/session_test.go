package megolm

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSeed(t *testing.T) [32]byte {
	t.Helper()
	var seed [32]byte
	_, err := rand.Read(seed[:])
	require.NoError(t, err)
	return seed
}

func TestMegolmRoundTrip(t *testing.T) {
	out, err := NewOutboundSession(newSeed(t))
	require.NoError(t, err)

	preIndex, preParts, signingPub := out.ExportAt()
	require.EqualValues(t, 0, preIndex)

	wire, err := out.Encrypt([]byte("hello room"))
	require.NoError(t, err)

	var senderKey [32]byte
	inbound := NewInboundSession(preIndex, preParts, senderKey, signingPub)
	plaintext, idx, err := inbound.Decrypt(wire)
	require.NoError(t, err)
	require.EqualValues(t, 0, idx)
	require.Equal(t, "hello room", string(plaintext))
}

func TestMegolmForwardSecrecyBoundary(t *testing.T) {
	out, err := NewOutboundSession(newSeed(t))
	require.NoError(t, err)

	wire1, err := out.Encrypt([]byte("first"))
	require.NoError(t, err)
	exportIndex, exportParts, signingPub := out.ExportAt() // index is now 1

	wire2, err := out.Encrypt([]byte("second"))
	require.NoError(t, err)

	var senderKey [32]byte
	inbound := NewInboundSession(exportIndex, exportParts, senderKey, signingPub)

	// Message at index 1 (the export point) decrypts fine.
	plaintext, idx, err := inbound.Decrypt(wire2)
	require.NoError(t, err)
	require.EqualValues(t, 1, idx)
	require.Equal(t, "second", string(plaintext))

	// Message at index 0, before the export boundary, is permanently lost.
	_, _, err = inbound.Decrypt(wire1)
	require.ErrorIs(t, err, ErrUnknownIndex)
}

func TestMegolmTamperedSignatureRejected(t *testing.T) {
	out, err := NewOutboundSession(newSeed(t))
	require.NoError(t, err)

	exportIndex, exportParts, signingPub := out.ExportAt()
	wire, err := out.Encrypt([]byte("payload"))
	require.NoError(t, err)

	tampered := make([]byte, len(wire))
	copy(tampered, wire)
	tampered[len(tampered)-1] ^= 0xFF

	var senderKey [32]byte
	inbound := NewInboundSession(exportIndex, exportParts, senderKey, signingPub)
	_, _, err = inbound.Decrypt(tampered)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestMegolmRatchetAdvanceIsDeterministic(t *testing.T) {
	seed := newSeed(t)
	r1, err := newRatchetFromSeed(seed)
	require.NoError(t, err)
	r2, err := newRatchetFromSeed(seed)
	require.NoError(t, err)

	r1.advanceTo(300) // crosses the 2^8 stride boundary
	r2.advanceTo(300)
	require.Equal(t, r1.parts, r2.parts)
}
