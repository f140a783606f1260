package primitives

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Ed25519KeyPair is a long-term or cross-signing signing key pair.
type Ed25519KeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateEd25519KeyPair generates a new Ed25519 signing key pair.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("primitives: generate ed25519 key: %w", err)
	}
	return &Ed25519KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// Sign signs msg with the given Ed25519 private key.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature of msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
