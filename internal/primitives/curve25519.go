// Package primitives implements the cryptographic building blocks shared by
// the Olm and Megolm session layers: Curve25519 Diffie-Hellman, Ed25519
// signing, HKDF/HMAC key derivation, AES-256-CBC with PKCS#7 padding, and
// canonical JSON for signature computation.
package primitives

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// ErrInvalidKeySize is returned when a key does not have the expected length.
var ErrInvalidKeySize = errors.New("primitives: invalid key size")

// Curve25519KeyPair is an X25519 Diffie-Hellman key pair.
type Curve25519KeyPair struct {
	PrivateKey [32]byte
	PublicKey  [32]byte
}

// GenerateCurve25519KeyPair generates a new clamped X25519 key pair.
func GenerateCurve25519KeyPair() (*Curve25519KeyPair, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, fmt.Errorf("primitives: generate private key: %w", err)
	}

	// Clamp per RFC 7748.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("primitives: derive public key: %w", err)
	}

	kp := &Curve25519KeyPair{PrivateKey: priv}
	copy(kp.PublicKey[:], pub)
	return kp, nil
}

// DH computes the X25519 shared secret between a local private key and a
// remote public key.
func DH(privateKey, publicKey [32]byte) ([32]byte, error) {
	shared, err := curve25519.X25519(privateKey[:], publicKey[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("primitives: X25519 agreement: %w", err)
	}

	var out [32]byte
	copy(out[:], shared)
	return out, nil
}
