package orchestrator

import (
	"fmt"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// x3dhLabel is the HKDF info label for the Orchestrator's X3DH-style root
// key agreement, kept distinct from olm.ratchetStepLabel so the two
// derivations can never collide.
var x3dhLabel = []byte("OLM_X3DH")

// deriveRootKey combines two Diffie-Hellman outputs into the 32-byte X3DH
// shared secret NewOutbound/NewInbound expect as their rootKey argument.
//
// This is a simplified two-DH agreement (identity-to-one-time-key,
// identity-to-identity) rather than the full three/four-DH X3DH: Alice's
// session ratchet key pair, generated inside olm.NewOutbound, already
// contributes its own Diffie-Hellman against Bob's one-time key as the
// session's first ratchet step, so a third DH folding in that same ephemeral
// here would be redundant. See DESIGN.md.
func deriveRootKey(dh1, dh2 [32]byte) ([32]byte, error) {
	var rootKey [32]byte
	if err := primitives.HKDFExpand(append(dh1[:], dh2[:]...), nil, x3dhLabel, rootKey[:]); err != nil {
		return [32]byte{}, fmt.Errorf("orchestrator: derive X3DH root key: %w", err)
	}
	return rootKey, nil
}

// outboundRootKey computes the root key from the initiator's side: the local
// account's identity private key against the remote device's claimed
// one-time key and identity key.
func outboundRootKey(local *Account, remoteIdentityKey, remoteOneTimeKey [32]byte) ([32]byte, error) {
	dh1, err := local.dhWithIdentity(remoteOneTimeKey)
	if err != nil {
		return [32]byte{}, fmt.Errorf("orchestrator: X3DH dh1: %w", err)
	}
	dh2, err := local.dhWithIdentity(remoteIdentityKey)
	if err != nil {
		return [32]byte{}, fmt.Errorf("orchestrator: X3DH dh2: %w", err)
	}
	return deriveRootKey(dh1, dh2)
}

// inboundRootKey computes the same root key from the responder's side: the
// claimed one-time key's private half against the initiator's identity key,
// and the local account's identity private key against the same remote
// identity key. Diffie-Hellman commutativity makes this equal to
// outboundRootKey's result.
func inboundRootKey(local *Account, oneTimeKeyPriv [32]byte, remoteIdentityKey [32]byte) ([32]byte, error) {
	dh1, err := primitives.DH(oneTimeKeyPriv, remoteIdentityKey)
	if err != nil {
		return [32]byte{}, fmt.Errorf("orchestrator: X3DH dh1 (inbound): %w", err)
	}
	dh2, err := local.dhWithIdentity(remoteIdentityKey)
	if err != nil {
		return [32]byte{}, fmt.Errorf("orchestrator: X3DH dh2 (inbound): %w", err)
	}
	return deriveRootKey(dh1, dh2)
}
