package orchestrator

import (
	"fmt"
	"sync"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// Account is the root secret material of one user-device (spec §3's
// Account): a long-term Curve25519 identity key, a long-term Ed25519 signing
// key, and a pool of single-use Curve25519 one-time prekeys. Account secret
// key material is held exclusively by its owning Orchestrator and serializes
// all mutations — one-time-key generation, claiming, the shared flag —
// behind an exclusive lock (spec §5); reads of the public half take a shared
// lock.
type Account struct {
	mu sync.RWMutex

	userID, deviceID string
	identityKey      *primitives.Curve25519KeyPair
	signingKey       *primitives.Ed25519KeyPair
	oneTimeKeys      map[[32]byte]*primitives.Curve25519KeyPair
	shared           bool
}

// NewAccount generates a fresh identity key pair and signing key pair for
// (userID, deviceID). Created once per install, per spec §3.
func NewAccount(userID, deviceID string) (*Account, error) {
	identityKey, err := primitives.GenerateCurve25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: generate identity key: %w", err)
	}
	signingKey, err := primitives.GenerateEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: generate signing key: %w", err)
	}
	return &Account{
		userID:      userID,
		deviceID:    deviceID,
		identityKey: identityKey,
		signingKey:  signingKey,
		oneTimeKeys: make(map[[32]byte]*primitives.Curve25519KeyPair),
	}, nil
}

// IdentityPublicKey returns the account's long-term Curve25519 public key.
func (a *Account) IdentityPublicKey() [32]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.identityKey.PublicKey
}

// SigningPublicKey returns the account's long-term Ed25519 public key.
func (a *Account) SigningPublicKey() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]byte(nil), a.signingKey.PublicKey...)
}

// IsShared reports whether the account's public keys have been published.
func (a *Account) IsShared() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.shared
}

// MarkShared records that the account's public keys have been published.
// Once shared, spec §3 requires the identity keys never change; this
// implementation never rotates them, so MarkShared only flips the flag.
func (a *Account) MarkShared() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shared = true
}

// GenerateOneTimeKeys adds count fresh one-time prekeys to the pool and
// returns their public halves for publishing.
func (a *Account) GenerateOneTimeKeys(count int) ([][32]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		kp, err := primitives.GenerateCurve25519KeyPair()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: generate one-time key: %w", err)
		}
		a.oneTimeKeys[kp.PublicKey] = kp
		out = append(out, kp.PublicKey)
	}
	return out, nil
}

// UnpublishedOneTimeKeyCount reports how many one-time keys remain unclaimed.
func (a *Account) UnpublishedOneTimeKeyCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.oneTimeKeys)
}

// ClaimOneTimeKey removes and returns the key pair matching pub. One-time
// keys are single-use: once claimed for an inbound session they are gone
// from the pool for good, matching libolm's remove_one_time_keys semantics.
func (a *Account) ClaimOneTimeKey(pub [32]byte) (*primitives.Curve25519KeyPair, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kp, ok := a.oneTimeKeys[pub]
	if !ok {
		return nil, false
	}
	delete(a.oneTimeKeys, pub)
	return kp, true
}

// dhWithIdentity computes DH(account identity private key, remote public
// key), used by the Orchestrator's X3DH-style root key derivation.
func (a *Account) dhWithIdentity(remote [32]byte) ([32]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return primitives.DH(a.identityKey.PrivateKey, remote)
}
