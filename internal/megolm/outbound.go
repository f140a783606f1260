package megolm

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// OutboundSession produces a forward-secret stream of group messages. Every
// ciphertext is Ed25519-signed with the session's own signing key so
// recipients can authenticate the sender without a shared MAC secret.
type OutboundSession struct {
	mu         sync.Mutex
	ratchet    *ratchet
	signingKey ed25519.PrivateKey
	SigningPub ed25519.PublicKey
}

// NewOutboundSession creates a fresh outbound session from a random 32-byte
// seed and a newly generated Ed25519 signing key.
func NewOutboundSession(seed [32]byte) (*OutboundSession, error) {
	r, err := newRatchetFromSeed(seed)
	if err != nil {
		return nil, err
	}

	signing, err := primitives.GenerateEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("megolm: generate signing key: %w", err)
	}

	return &OutboundSession{
		ratchet:    r,
		signingKey: signing.PrivateKey,
		SigningPub: signing.PublicKey,
	}, nil
}

// Encrypt signs and encrypts plaintext at the current index, then advances
// the ratchet by one.
func (s *OutboundSession) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	aesKey, iv, err := s.ratchet.messageKeys()
	if err != nil {
		return nil, err
	}

	ciphertext, err := primitives.EncryptAESCBC(plaintext, aesKey, iv)
	if err != nil {
		return nil, fmt.Errorf("megolm: encrypt message: %w", err)
	}

	msg := &message{Index: s.ratchet.counter, Ciphertext: ciphertext}
	wire := msg.encode(s.signingKey)

	s.ratchet.advanceTo(s.ratchet.counter + 1)
	return wire, nil
}

// MessageIndex returns the index the next Encrypt call will use.
func (s *OutboundSession) MessageIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratchet.counter
}

// ExportAt returns an inbound-session snapshot for the current index, for
// sharing the outbound session's key with other devices (spec §4.3/§4.7).
// The returned snapshot can decrypt messages at this index and later; it
// cannot decrypt anything sent before it — the forward-secrecy boundary.
func (s *OutboundSession) ExportAt() (index uint32, parts [4][32]byte, signingPub ed25519.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, parts = s.ratchet.snapshot()
	return index, parts, s.SigningPub
}
