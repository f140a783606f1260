// Package identity implements the cross-signing key hierarchy: a master
// Ed25519 key anchors a self-signing key (signs this user's own devices)
// and a user-signing key (signs other users' master keys), per spec §4.4/§4.5.
package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// UserIdentity is the public cross-signing hierarchy for one user: a master
// key, a self-signing key signed by the master key, and a user-signing key
// signed by the master key.
type UserIdentity struct {
	UserID            string
	MasterKey         ed25519.PublicKey
	SelfSigningKey    ed25519.PublicKey
	SelfSigningSig    []byte
	UserSigningKey    ed25519.PublicKey
	UserSigningSig    []byte
}

// Verify checks that both subordinate keys are signed by the master key.
func (u *UserIdentity) Verify() bool {
	if !primitives.Verify(u.MasterKey, u.SelfSigningKey, u.SelfSigningSig) {
		return false
	}
	if u.UserSigningKey != nil && !primitives.Verify(u.MasterKey, u.UserSigningKey, u.UserSigningSig) {
		return false
	}
	return true
}

// OwnUserIdentity additionally holds the private halves of the hierarchy, so
// the local account can sign other users' master keys and its own devices.
type OwnUserIdentity struct {
	UserIdentity
	masterPriv         ed25519.PrivateKey
	selfSigningPriv    ed25519.PrivateKey
	userSigningPriv    ed25519.PrivateKey
	verified           bool
}

// NewOwnUserIdentity generates a fresh master/self-signing/user-signing
// hierarchy for userID.
func NewOwnUserIdentity(userID string) (*OwnUserIdentity, error) {
	master, err := primitives.GenerateEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate master key: %w", err)
	}
	selfSigning, err := primitives.GenerateEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate self-signing key: %w", err)
	}
	userSigning, err := primitives.GenerateEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("identity: generate user-signing key: %w", err)
	}

	selfSigningSig := primitives.Sign(master.PrivateKey, selfSigning.PublicKey)
	userSigningSig := primitives.Sign(master.PrivateKey, userSigning.PublicKey)

	return &OwnUserIdentity{
		UserIdentity: UserIdentity{
			UserID:         userID,
			MasterKey:      master.PublicKey,
			SelfSigningKey: selfSigning.PublicKey,
			SelfSigningSig: selfSigningSig,
			UserSigningKey: userSigning.PublicKey,
			UserSigningSig: userSigningSig,
		},
		masterPriv:      master.PrivateKey,
		selfSigningPriv: selfSigning.PrivateKey,
		userSigningPriv: userSigning.PrivateKey,
		verified:        true, // the local account trusts its own keys by construction
	}, nil
}

// SignDevice signs a device's Ed25519 identity key with this account's
// self-signing key, attesting that the device belongs to this user.
func (o *OwnUserIdentity) SignDevice(deviceKey ed25519.PublicKey) []byte {
	return primitives.Sign(o.selfSigningPriv, deviceKey)
}

// SignOtherUser signs another user's master key with this account's
// user-signing key, attesting that the local user has verified them.
func (o *OwnUserIdentity) SignOtherUser(other *UserIdentity) []byte {
	return primitives.Sign(o.userSigningPriv, other.MasterKey)
}

// IsDeviceSigned reports whether sig is a valid self-signing-key signature
// over deviceKey under this identity.
func (u *UserIdentity) IsDeviceSigned(deviceKey ed25519.PublicKey, sig []byte) bool {
	return primitives.Verify(u.SelfSigningKey, deviceKey, sig)
}

// IsIdentitySignedBy reports whether sig is a valid user-signing-key
// signature by signer over u's master key — i.e. signer has verified u.
func (u *UserIdentity) IsIdentitySignedBy(signer *UserIdentity, sig []byte) bool {
	return primitives.Verify(signer.UserSigningKey, u.MasterKey, sig)
}

// Verified reports whether the local account considers its own identity
// trustworthy (always true: it is the root of trust for this device).
func (o *OwnUserIdentity) Verified() bool { return o.verified }
