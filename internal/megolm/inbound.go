package megolm

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// InboundSession is the receive side of a Megolm group session: a ratchet
// snapshot imported at some index, the sender's Curve25519 identity (for
// bookkeeping by the caller) and Ed25519 signing key (for authenticating
// every message). Because the ratchet only ever advances, decrypting a
// message at index i forecloses decrypting any message at an index below i —
// this is the forward-secrecy boundary spec §4.3 describes.
type InboundSession struct {
	mu           sync.Mutex
	ratchet      *ratchet
	earliest     uint32
	SenderKey    [32]byte
	SigningPub   ed25519.PublicKey
}

// NewInboundSession imports a snapshot exported by an OutboundSession (or a
// forwarded re-export from another device).
func NewInboundSession(index uint32, parts [4][32]byte, senderKey [32]byte, signingPub ed25519.PublicKey) *InboundSession {
	return &InboundSession{
		ratchet:    newRatchetFromParts(index, parts),
		earliest:   index,
		SenderKey:  senderKey,
		SigningPub: signingPub,
	}
}

// Decrypt verifies wire's Ed25519 signature, derives the message key at its
// index, and decrypts. Indices below the session's current position — either
// the original import index or an index the session has already advanced
// past — fail with ErrUnknownIndex.
func (s *InboundSession) Decrypt(wire []byte) (plaintext []byte, index uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, body, sig, err := decodeMessage(wire)
	if err != nil {
		return nil, 0, err
	}

	if msg.Index < s.ratchet.counter {
		return nil, 0, fmt.Errorf("megolm: message index %d below current position %d: %w", msg.Index, s.ratchet.counter, ErrUnknownIndex)
	}

	if !ed25519.Verify(s.SigningPub, body, sig) {
		return nil, 0, ErrBadSignature
	}

	s.ratchet.advanceTo(msg.Index)
	aesKey, iv, err := s.ratchet.messageKeys()
	if err != nil {
		return nil, 0, err
	}

	plaintext, err = primitives.DecryptAESCBC(msg.Ciphertext, aesKey, iv)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}

	return plaintext, msg.Index, nil
}

// EarliestUsableIndex returns the index this session was imported at.
func (s *InboundSession) EarliestUsableIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.earliest
}
